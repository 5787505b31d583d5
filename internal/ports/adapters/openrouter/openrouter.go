// Package openrouter implements the review collaborator on the OpenRouter
// chat-completions API.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/subcards/subcards/internal/ports"
)

const defaultModel = "anthropic/claude-3.5-sonnet"

type Adapter struct {
	key       string
	model     string
	baseURL   string
	appName   string
	siteURL   string
	batchSize int
	timeout   time.Duration
	client    *http.Client
}

type Options struct {
	Model     string
	BaseURL   string
	AppName   string
	SiteURL   string
	BatchSize int
	Timeout   time.Duration
}

func New(apiKey string, opts Options) *Adapter {
	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = 30
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Adapter{
		key:       apiKey,
		model:     model,
		baseURL:   normalizeBaseURL(opts.BaseURL),
		appName:   opts.AppName,
		siteURL:   opts.SiteURL,
		batchSize: batch,
		timeout:   timeout,
		client:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// Review asks the model, in batches, which lines make useful flashcards and
// what to focus on. Any failed batch fails the whole call with a
// ProviderError; the caller decides how to degrade.
func (a *Adapter) Review(ctx context.Context, items []ports.ReviewItem, level string) ([]ports.ReviewCandidate, error) {
	if len(items) == 0 {
		return nil, nil
	}
	out := make([]ports.ReviewCandidate, 0, len(items))
	for lo := 0; lo < len(items); lo += a.batchSize {
		hi := lo + a.batchSize
		if hi > len(items) {
			hi = len(items)
		}
		cands, err := a.reviewBatch(ctx, items[lo:hi], level)
		if err != nil {
			return nil, err
		}
		out = append(out, cands...)
	}
	return out, nil
}

func (a *Adapter) reviewBatch(ctx context.Context, items []ports.ReviewItem, level string) ([]ports.ReviewCandidate, error) {
	type item struct {
		ID     string `json:"id"`
		Source string `json:"source"`
		Target string `json:"target"`
	}
	arr := make([]item, 0, len(items))
	for _, it := range items {
		arr = append(arr, item{ID: it.ID, Source: it.Source, Target: it.Target})
	}
	itemsJSON, err := json.Marshal(arr)
	if err != nil {
		return nil, fmt.Errorf("marshal items: %w", err)
	}

	payload := map[string]any{
		"model":  a.model,
		"stream": false,
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": buildUserPrompt(level, itemsJSON)},
		},
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name": "subcards_review",
				"schema": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"lines": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"id":     map[string]any{"type": "string"},
									"keep":   map[string]any{"type": "boolean"},
									"focus":  map[string]any{"type": "string"},
									"gloss":  map[string]any{"type": "string"},
									"reason": map[string]any{"type": "string"},
								},
								"required": []string{"id", "keep", "focus", "gloss", "reason"},
							},
						},
					},
					"required": []string{"lines"},
				},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, a.baseURL+"/api/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.Header.Set("Content-Type", "application/json")
	if a.appName != "" {
		req.Header.Set("X-Title", a.appName)
	}
	if a.siteURL != "" {
		req.Header.Set("HTTP-Referer", a.siteURL)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, &ports.ProviderError{Provider: "openrouter", Err: fmt.Errorf("timeout after %s (model=%s)", a.timeout, a.model)}
		}
		return nil, &ports.ProviderError{Provider: "openrouter", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, &ports.ProviderError{Provider: "openrouter", Status: resp.StatusCode, Err: fmt.Errorf("read body: %v", readErr)}
		}
		return nil, &ports.ProviderError{
			Provider: "openrouter",
			Status:   resp.StatusCode,
			Err:      errors.New(truncate(redactSecrets(string(rb), a.key), 400)),
		}
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &ports.ProviderError{Provider: "openrouter", Err: err}
	}
	if len(raw.Choices) == 0 {
		return nil, &ports.ProviderError{Provider: "openrouter", Err: errors.New("no choices in response")}
	}
	content, err := messageContentToString(raw.Choices[0].Message.Content)
	if err != nil {
		return nil, &ports.ProviderError{Provider: "openrouter", Err: err}
	}
	clean, err := extractJSONObject(content)
	if err != nil {
		return nil, &ports.ProviderError{Provider: "openrouter", Err: err}
	}

	var parsed struct {
		Lines []struct {
			ID     string `json:"id"`
			Keep   bool   `json:"keep"`
			Focus  string `json:"focus"`
			Gloss  string `json:"gloss"`
			Reason string `json:"reason"`
		} `json:"lines"`
	}
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		return nil, &ports.ProviderError{Provider: "openrouter", Err: fmt.Errorf("decode model output: %w", err)}
	}

	known := make(map[string]bool, len(items))
	for _, it := range items {
		known[it.ID] = true
	}
	out := make([]ports.ReviewCandidate, 0, len(parsed.Lines))
	for _, l := range parsed.Lines {
		// Hallucinated ids are dropped rather than surfaced as stale rows.
		if !known[l.ID] {
			continue
		}
		out = append(out, ports.ReviewCandidate{
			ID:     l.ID,
			Keep:   l.Keep,
			Focus:  strings.TrimSpace(l.Focus),
			Gloss:  strings.TrimSpace(l.Gloss),
			Reason: strings.TrimSpace(l.Reason),
		})
	}
	return out, nil
}

const systemPrompt = "You select subtitle lines that make good language-learning flashcards. " +
	"Pick broadly useful vocabulary or grammar and avoid proper nouns, locations, " +
	"very specific facts, or context-only lines. Prefer shorter, general lines. " +
	"Return strict JSON only."

func buildUserPrompt(level string, itemsJSON []byte) string {
	return "Task: decide which lines should become flashcards.\n" +
		"Learner proficiency: " + level + "\n" +
		"Rules:\n" +
		"- keep=true only if the line teaches useful vocab/grammar for this level\n" +
		"- avoid names, locations, brand names, specific events, or overly niche content\n" +
		"- beginner: favor high-frequency words and basic grammar\n" +
		"- intermediate: allow less common but still general words/structures\n" +
		"- advanced: allow idioms, nuanced grammar, and rarer but still useful words\n" +
		"- focus: the key word or short phrase to study (empty if keep=false)\n" +
		"- gloss: short translation of focus, 1-4 words (empty if keep=false)\n" +
		"- reason: short reason, max 12 words\n" +
		"Return a JSON object {\"lines\": [...]} with keys: id, keep, focus, gloss, reason.\n" +
		"Input JSON:\n" + string(itemsJSON)
}

func messageContentToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []any:
		// Some providers return an array of {type,text} parts.
		var b strings.Builder
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := m["text"].(string); ok {
				b.WriteString(t)
			}
		}
		s := b.String()
		if strings.TrimSpace(s) == "" {
			return "", errors.New("openrouter: empty content")
		}
		return s, nil
	default:
		return "", fmt.Errorf("openrouter: unexpected content type %T", v)
	}
}

func extractJSONObject(s string) (string, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", errors.New("openrouter: empty content")
	}

	// Strip markdown code fences.
	if strings.HasPrefix(t, "```") {
		if i := strings.Index(t, "\n"); i >= 0 {
			t = t[i+1:]
		}
		if j := strings.LastIndex(t, "```"); j >= 0 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}

	// Best-effort: take the first JSON object found.
	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start >= 0 && end > start {
		return t[start : end+1], nil
	}
	return "", fmt.Errorf("openrouter: could not locate JSON object in: %q", truncate(t, 200))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}
