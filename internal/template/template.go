// Package template implements prompt templates: reusable prompt bodies with
// {variable} placeholders and per-template optimal sampling parameters.
package template

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"tgw-batch-service/internal/batch"
)

var variableRe = regexp.MustCompile(`\{([^{}]+)\}`)

// Template is a named prompt body. Variables is derived from the body and is
// kept sorted and de-duplicated.
type Template struct {
	Name          string                 `json:"name"`
	Category      string                 `json:"category"`
	Body          string                 `json:"template"`
	Variables     []string               `json:"variables"`
	Description   string                 `json:"description"`
	Tags          []string               `json:"tags,omitempty"`
	OptimalParams batch.GenerationParams `json:"optimal_params"`
}

// New builds a template, extracting the placeholder variables from the body.
// A nil params falls back to the default generation parameters.
func New(name, category, body, description string, tags []string, params *batch.GenerationParams) Template {
	p := batch.DefaultParams()
	if params != nil {
		p = *params
	}
	return Template{
		Name:          name,
		Category:      category,
		Body:          body,
		Variables:     ExtractVariables(body),
		Description:   description,
		Tags:          tags,
		OptimalParams: p,
	}
}

// ExtractVariables returns the sorted set of {placeholder} names in body.
func ExtractVariables(body string) []string {
	seen := map[string]struct{}{}
	for _, m := range variableRe.FindAllStringSubmatch(body, -1) {
		seen[m[1]] = struct{}{}
	}
	vars := make([]string, 0, len(seen))
	for v := range seen {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return vars
}

// Render substitutes the given variables into the body. Every placeholder the
// body declares must be provided; unused extra variables are ignored.
func (t Template) Render(vars map[string]string) (string, error) {
	var missing []string
	for _, v := range t.Variables {
		if _, ok := vars[v]; !ok {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("template %q: missing variables: %s", t.Name, strings.Join(missing, ", "))
	}

	prompt := t.Body
	for v, value := range vars {
		prompt = strings.ReplaceAll(prompt, "{"+v+"}", value)
	}
	return prompt, nil
}

// Matches reports whether the template matches a free-text search query over
// name, description and tags.
func (t Template) Matches(query string) bool {
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(t.Name), q) ||
		strings.Contains(strings.ToLower(t.Description), q) {
		return true
	}
	for _, tag := range t.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}
