// Package paperless is a small client for the paperless-ngx REST API.
// See https://docs.paperless-ngx.com/api/.
package paperless

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout  = 60 * time.Second
	defaultRate     = 10
	maxDownloadSize = 64 << 20 // 64MB
)

// Client communicates with the paperless-ngx API. All calls share one token
// bucket so concurrent document pipelines cannot exceed the configured rate.
type Client struct {
	apiURL     string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a client for the paperless instance at baseURL,
// authenticating with token. perSecond <= 0 selects the default of 10.
func NewClient(baseURL, token string, perSecond int) *Client {
	if perSecond <= 0 {
		perSecond = defaultRate
	}
	return &Client{
		apiURL: strings.TrimRight(baseURL, "/") + "/api/",
		token:  token,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		logger:  slog.Default(),
	}
}

// Tags returns a name to id mapping of all tags.
func (c *Client) Tags(ctx context.Context) (map[string]int, error) {
	return c.idNames(ctx, CategoryTags)
}

// CustomFields returns a name to id mapping of all custom fields.
func (c *Client) CustomFields(ctx context.Context) (map[string]int, error) {
	return c.idNames(ctx, CategoryCustomFields)
}

// LookupID resolves a tag or custom field name to its id. The returned error
// wraps ErrNotFound when no object carries that exact name.
func (c *Client) LookupID(ctx context.Context, cat Category, name string) (int, error) {
	ids, err := c.idNames(ctx, cat)
	if err != nil {
		return 0, err
	}
	id, ok := ids[name]
	if !ok {
		return 0, fmt.Errorf("%s %q: %w", cat, name, ErrNotFound)
	}
	return id, nil
}

func (c *Client) idNames(ctx context.Context, cat Category) (map[string]int, error) {
	out := make(map[string]int)
	next := c.apiURL + string(cat) + "/?page_size=100"
	for next != "" {
		var p page[idName]
		if err := c.query(ctx, http.MethodGet, next, nil, &p); err != nil {
			return nil, fmt.Errorf("listing %s: %w", cat, err)
		}
		for _, x := range p.Results {
			out[x.Name] = x.ID
		}
		next = ""
		if p.Next != nil {
			next = *p.Next
		}
	}
	return out, nil
}

// ListIDs returns the ids of all documents carrying a tag named tag
// (case-insensitive exact match). An empty tag lists every document.
func (c *Client) ListIDs(ctx context.Context, tag string) ([]int, error) {
	u := c.apiURL + "documents/"
	if tag != "" {
		u += "?" + url.Values{"tags__name__iexact": {tag}}.Encode()
	}
	var resp documentsResponse
	if err := c.query(ctx, http.MethodGet, u, nil, &resp); err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return resp.All, nil
}

// Document fetches one document. The returned error wraps ErrNotFound for
// unknown ids.
func (c *Client) Document(ctx context.Context, id int) (Document, error) {
	var d Document
	if err := c.query(ctx, http.MethodGet, c.documentURL(id), nil, &d); err != nil {
		return Document{}, fmt.Errorf("fetching document %d: %w", id, err)
	}
	return d, nil
}

// PatchDocument replaces the title, tags and custom fields of a document.
func (c *Client) PatchDocument(ctx context.Context, id int, p DocumentPatch) error {
	if err := c.query(ctx, http.MethodPatch, c.documentURL(id), p, nil); err != nil {
		return fmt.Errorf("patching document %d: %w", id, err)
	}
	return nil
}

// Download returns the archived (OCR'd PDF) version of a document, or the
// original file when no archive exists.
func (c *Client) Download(ctx context.Context, id int) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, c.documentURL(id)+"download/", nil)
	if err != nil {
		return nil, fmt.Errorf("downloading document %d: %w", id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize))
	if err != nil {
		return nil, fmt.Errorf("reading document %d: %w", id, err)
	}
	return data, nil
}

func (c *Client) documentURL(id int) string {
	return c.apiURL + "documents/" + strconv.Itoa(id) + "/"
}

func (c *Client) query(ctx context.Context, method, u string, body, out any) error {
	resp, err := c.do(ctx, method, u, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// do waits for the rate limiter, sends the request and maps error statuses.
// The caller closes the body of a successful response.
func (c *Client) do(ctx context.Context, method, u string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("executing query", "method", method, "url", u)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, u, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, &StatusError{Op: method + " " + u, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return resp, nil
}
