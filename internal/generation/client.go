// Package generation is the HTTP adapter for the text-generation web UI API.
// The completion endpoint is treated as an opaque collaborator: one blocking
// request per task, and every transport or server failure is converted into a
// failed Result instead of an error.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"tgw-batch-service/internal/batch"
)

const defaultTimeout = 60 * time.Second

// completionRequest is the wire shape of POST /v1/completions.
type completionRequest struct {
	Prompt string `json:"prompt"`
	batch.GenerationParams
}

type completionChoice struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

// Usage is the token accounting echoed by the endpoint.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type completionResponse struct {
	Choices []completionChoice `json:"choices"`
	Usage   Usage              `json:"usage"`
}

// TokenizeResponse is the wire shape of POST /v1/internal/tokenize.
type TokenizeResponse struct {
	Tokens   []string `json:"tokens"`
	TokenIDs []int    `json:"token_ids"`
}

// Client talks to a single TGW instance.
type Client struct {
	baseURL string
	httpc   *http.Client
	log     *zap.Logger
}

// NewClient builds a client for the given base URL. A non-positive timeout
// falls back to the 60s default.
func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Generate issues one completion request for the task. It never returns an
// error: non-200 responses, transport failures and malformed bodies all
// become failed Results carrying the error description.
func (c *Client) Generate(ctx context.Context, task batch.Task) batch.Result {
	start := time.Now()

	body, err := json.Marshal(completionRequest{Prompt: task.Prompt, GenerationParams: task.Parameters})
	if err != nil {
		return batch.FailedResult(task, time.Since(start), fmt.Sprintf("encode request: %v", err))
	}

	resp, err := c.post(ctx, "/v1/completions", body)
	elapsed := time.Since(start)
	if err != nil {
		c.log.Warn("completion request failed",
			zap.String("task_id", task.ID), zap.Error(err))
		return batch.FailedResult(task, elapsed, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("completion endpoint returned status %d", resp.StatusCode)
		c.log.Warn("completion request rejected",
			zap.String("task_id", task.ID), zap.Int("status", resp.StatusCode))
		return batch.FailedResult(task, elapsed, msg)
	}

	var payload completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return batch.FailedResult(task, elapsed, fmt.Sprintf("decode response: %v", err))
	}

	text := ""
	if len(payload.Choices) > 0 {
		text = payload.Choices[0].Text
	}

	tokenCount := payload.Usage.CompletionTokens
	if tokenCount == 0 {
		// the endpoint does not always report usage; fall back to a word count
		tokenCount = len(strings.Fields(text))
	}

	return batch.Result{
		TaskID:         task.ID,
		Prompt:         task.Prompt,
		GeneratedText:  text,
		Parameters:     task.Parameters,
		GenerationTime: elapsed.Seconds(),
		TokenCount:     tokenCount,
		Metadata:       task.Metadata,
		Timestamp:      time.Now().Format(time.RFC3339),
		Success:        true,
	}
}

// Tokenize asks the server-side tokenizer to split text.
func (c *Client) Tokenize(ctx context.Context, text string) (TokenizeResponse, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return TokenizeResponse{}, err
	}
	resp, err := c.post(ctx, "/v1/internal/tokenize", body)
	if err != nil {
		return TokenizeResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return TokenizeResponse{}, fmt.Errorf("tokenize endpoint returned status %d: %s", resp.StatusCode, string(raw))
	}

	var out TokenizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return TokenizeResponse{}, fmt.Errorf("decode tokenize response: %w", err)
	}
	return out, nil
}

// HealthCheck probes GET /v1/models and reports whether the API answers 200.
func (c *Client) HealthCheck(ctx context.Context) bool {
	endpoint, err := c.resolve("/v1/models")
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		c.log.Warn("health check failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	endpoint, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.httpc.Do(req)
}

func (c *Client) resolve(path string) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", c.baseURL, err)
	}
	rel, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(rel).String(), nil
}
