// Package moderation calls an external classification service to score a
// submission's text. It supports two response shapes: structured category
// scores from a moderation endpoint, and free-text chat completions that
// embed a JSON verdict. Every failure mode degrades to a neutral signal;
// moderation can never be the reason a legitimate submission is dropped.
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/formward/formward/pkg/httputil"
	"github.com/formward/formward/pkg/model"
)

// DefaultBaseURL points at the OpenAI-compatible API surface.
const DefaultBaseURL = "https://api.openai.com/v1"

// DefaultModel is the dedicated moderation model.
const DefaultModel = "omni-moderation-latest"

// chatModels are the classification-capable chat models a deployment may
// select instead of a moderation endpoint. Unknown model names fall back
// to the default moderation model.
var chatModels = map[string]bool{
	"gpt-4o-mini":   true,
	"gpt-4o":        true,
	"gpt-4.1-mini":  true,
	"gpt-4.1":       true,
	"gpt-3.5-turbo": true,
}

const classifierPrompt = `You are a spam classifier for web form submissions.
Judge whether the submission below is spam: unsolicited advertising, SEO link
schemes, scams, phishing, or machine-generated filler. A normal inquiry,
question, or comment is not spam even if informal or short.

Respond with JSON only:
{"is_spam": true|false, "score": 0.0-1.0, "reason": "brief explanation"}`

// Client calls the moderation service. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	limiter    *RateLimiter
	sem        *httputil.Semaphore
}

type Option func(*Client)

// WithHTTPClient overrides the tiered shared client, used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithRateLimiter(rl *RateLimiter) Option {
	return func(c *Client) { c.limiter = rl }
}

// WithMaxConcurrent bounds in-flight moderation calls across the process.
func WithMaxConcurrent(n int) Option {
	return func(c *Client) { c.sem = httputil.NewSemaphore(n) }
}

func NewClient(baseURL, apiKey, modelName string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	if !chatModels[modelName] && !strings.Contains(modelName, "moderation") {
		modelName = DefaultModel
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   modelName,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		if c.usesChatEndpoint() {
			c.httpClient = httputil.Client(httputil.TierChat)
		} else {
			c.httpClient = httputil.Client(httputil.TierModeration)
		}
	}
	return c
}

func (c *Client) usesChatEndpoint() bool {
	return !strings.Contains(c.model, "moderation")
}

// Classify scores the submission's text. The returned signal is always
// usable by the aggregator: service failures, rate limiting, and parse
// failures yield the neutral score 0.5 with Error set, alongside the typed
// error for logging. A missing API key returns an uninvoked signal and a
// ConfigError; the engine treats that as "moderation skipped".
func (c *Client) Classify(ctx context.Context, sub *model.Submission, submitterKey string) (model.ModerationSignal, error) {
	if c.apiKey == "" {
		return model.ModerationSignal{}, &ConfigError{Missing: "api key"}
	}

	text := sub.AllText()
	if strings.TrimSpace(text) == "" {
		return model.ModerationSignal{}, nil
	}

	if c.limiter != nil {
		if err := c.limiter.Allow(ctx, submitterKey); err != nil {
			return neutral(err), err
		}
	}

	if c.sem != nil {
		if err := c.sem.Acquire(ctx); err != nil {
			serr := &ServiceError{Err: err}
			return neutral(serr), serr
		}
		defer c.sem.Release()
	}

	var (
		sig model.ModerationSignal
		err error
	)
	if c.usesChatEndpoint() {
		sig, err = c.classifyChat(ctx, text)
	} else {
		sig, err = c.classifyModeration(ctx, text)
	}
	if err != nil {
		return neutral(err), err
	}
	sig.Invoked = true
	return sig, nil
}

func neutral(err error) model.ModerationSignal {
	return model.ModerationSignal{
		Score:   0.5,
		Error:   true,
		Reason:  err.Error(),
		Invoked: true,
	}
}

type moderationRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type moderationResponse struct {
	Results []struct {
		Flagged        bool               `json:"flagged"`
		CategoryScores map[string]float64 `json:"category_scores"`
	} `json:"results"`
}

// classifyModeration uses the structured shape: the spam score is the
// maximum category score, and categories above 0.5 are reported.
func (c *Client) classifyModeration(ctx context.Context, text string) (model.ModerationSignal, error) {
	var sig model.ModerationSignal

	body, err := c.post(ctx, "/moderations", moderationRequest{Input: text, Model: c.model})
	if err != nil {
		return sig, err
	}

	var parsed moderationResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return sig, &ParseError{Content: string(body), Err: err}
	}
	if len(parsed.Results) == 0 {
		return sig, &ParseError{Content: string(body), Err: fmt.Errorf("no results")}
	}

	res := parsed.Results[0]
	var flagged []string
	for cat, score := range res.CategoryScores {
		if score > sig.Score {
			sig.Score = score
		}
		if score > 0.5 {
			flagged = append(flagged, cat)
		}
	}
	sig.IsSpam = res.Flagged
	if len(flagged) > 0 {
		sig.Reason = "flagged categories: " + strings.Join(flagged, ", ")
	}
	return sig, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type chatVerdict struct {
	IsSpam bool    `json:"is_spam"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// classifyChat uses a chat completion and extracts the JSON verdict from
// the generated text, which may be wrapped in prose or markdown fences.
func (c *Client) classifyChat(ctx context.Context, text string) (model.ModerationSignal, error) {
	var sig model.ModerationSignal

	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: classifierPrompt},
			{Role: "user", Content: text},
		},
		Temperature: 0.1,
	}
	body, err := c.post(ctx, "/chat/completions", req)
	if err != nil {
		return sig, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return sig, &ParseError{Content: string(body), Err: err}
	}
	if len(parsed.Choices) == 0 {
		return sig, &ParseError{Content: string(body), Err: fmt.Errorf("no choices")}
	}

	content := parsed.Choices[0].Message.Content
	var verdict chatVerdict
	if err := json.Unmarshal([]byte(extractJSON(content)), &verdict); err != nil {
		return sig, &ParseError{Content: content, Err: err}
	}
	if verdict.Score < 0 {
		verdict.Score = 0
	}
	if verdict.Score > 1 {
		verdict.Score = 1
	}
	sig.Score = verdict.Score
	sig.IsSpam = verdict.IsSpam
	sig.Reason = verdict.Reason
	return sig, nil
}

// extractJSON pulls the first JSON object out of free-form model output.
func extractJSON(content string) string {
	clean := strings.TrimSpace(content)
	if start := strings.Index(clean, "{"); start != -1 {
		clean = clean[start:]
	}
	if end := strings.LastIndex(clean, "}"); end != -1 {
		clean = clean[:end+1]
	}
	return clean
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, &ServiceError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, &ServiceError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ServiceError{Err: err}
	}
	defer httputil.DrainAndClose(resp.Body)

	body, err := httputil.ReadResponseBody(resp.Body, httputil.MaxResponseSize)
	if err != nil {
		return nil, &ServiceError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ServiceError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(body))),
		}
	}
	return body, nil
}
