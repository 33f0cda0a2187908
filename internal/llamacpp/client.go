// Package llamacpp is a minimal client for the llama.cpp HTTP server.
//
// The server speaks an OpenAI-compatible dialect with extensions this
// package relies on: a GBNF grammar and n_predict on chat completions,
// per-request timings, GET /props and POST /tokenize.
package llamacpp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrNoChoices is returned when a completion response carries no choices.
var ErrNoChoices = errors.New("no choices returned")

// ErrNoModels is returned when the server lists no models.
var ErrNoModels = errors.New("no model available")

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a chat message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Query is the body for POST /v1/chat/completions.
type Query struct {
	Stream      bool      `json:"stream"`
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Grammar     string    `json:"grammar,omitempty"`
	Temperature float64   `json:"temperature"`
	NPredict    int       `json:"n_predict"`
}

// Choice is one completion alternative.
type Choice struct {
	Message Message `json:"message"`
}

// Timings reports server-side generation timings for one request.
type Timings struct {
	PredictedMS float64 `json:"predicted_ms"`
	PredictedN  int     `json:"predicted_n"`
	PromptMS    float64 `json:"prompt_ms"`
	PromptN     int     `json:"prompt_n"`
}

// Response is the JSON returned by POST /v1/chat/completions.
type Response struct {
	Choices []Choice `json:"choices"`
	Timings Timings  `json:"timings"`
}

// Content returns the text of the first choice.
func (r *Response) Content() (string, error) {
	if len(r.Choices) == 0 {
		return "", ErrNoChoices
	}
	return r.Choices[0].Message.Content, nil
}

// GenerationSettings holds the server's default generation parameters.
type GenerationSettings struct {
	NCtx int `json:"n_ctx"`
}

// Props mirrors the JSON returned by GET /props.
type Props struct {
	DefaultGenerationSettings GenerationSettings `json:"default_generation_settings"`
}

// modelList mirrors the JSON returned by GET /v1/models.
type modelList struct {
	Data []modelEntry `json:"data"`
}

type modelEntry struct {
	ID string `json:"id"`
}

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Client communicates with a llama.cpp server over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client targeting the given llama.cpp base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			// Completions on CPU-only hosts can take minutes for long documents.
			Timeout: 10 * time.Minute,
		},
		logger: slog.Default(),
	}
}

// Props returns the server properties, including the context window size.
func (c *Client) Props(ctx context.Context) (Props, error) {
	var p Props
	if err := c.send(ctx, http.MethodGet, "/props", nil, &p); err != nil {
		return Props{}, err
	}
	return p, nil
}

// Models returns the identifiers of all models served.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	var list modelList
	if err := c.send(ctx, http.MethodGet, "/v1/models", nil, &list); err != nil {
		return nil, err
	}

	ids := make([]string, len(list.Data))
	for i, m := range list.Data {
		ids[i] = m.ID
	}
	return ids, nil
}

type tokenizeRequest struct {
	Content string `json:"content"`
}

type tokenizeResponse struct {
	Tokens []int `json:"tokens"`
}

// Tokenize returns the model's token ids for text.
func (c *Client) Tokenize(ctx context.Context, text string) ([]int, error) {
	var resp tokenizeResponse
	if err := c.send(ctx, http.MethodPost, "/tokenize", tokenizeRequest{Content: text}, &resp); err != nil {
		return nil, err
	}
	return resp.Tokens, nil
}

// Complete sends a chat completion request.
func (c *Client) Complete(ctx context.Context, q Query) (*Response, error) {
	var resp Response
	if err := c.send(ctx, http.MethodPost, "/v1/chat/completions", q, &resp); err != nil {
		return nil, err
	}
	c.logger.Debug("received completion response",
		"prompt_n", resp.Timings.PromptN,
		"prompt_ms", resp.Timings.PromptMS,
		"predicted_n", resp.Timings.PredictedN,
		"predicted_ms", resp.Timings.PredictedMS,
	)
	return &resp, nil
}

func (c *Client) send(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("sending query", "method", method, "path", path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Op: method + " " + path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
