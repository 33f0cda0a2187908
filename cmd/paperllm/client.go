package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/paperllm/internal/api"
)

// statusClient reads the status server of a running process.
type statusClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func newStatusClient(addr, token string) *statusClient {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &statusClient{
		baseURL:    base,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *statusClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status server not reachable, is a run in progress? (%w)", err)
	}
	return resp, nil
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show the progress of a run started with --status-addr",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.Status.Addr
		overrideString(cmd, "addr", &addr)
		if addr == "" {
			return fmt.Errorf("no status address: pass --addr or set status.addr")
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		resp, err := newStatusClient(addr, cfg.Status.Token).get(ctx, "/progress")
		if err != nil {
			return err
		}
		var snap api.ProgressSnapshot
		if err := decodeJSON(resp, &snap); err != nil {
			return err
		}
		writeProgress(cmd.OutOrStdout(), snap)
		return nil
	},
}

func init() {
	progressCmd.Flags().String("addr", "", "status server address (overrides status.addr)")
}

func writeProgress(w io.Writer, s api.ProgressSnapshot) {
	state := "running"
	if s.Finished {
		state = "finished"
	}
	mode := "dry-run"
	if s.Apply {
		mode = "apply"
	}
	fmt.Fprintf(w, "%s %s (%s, %s)\n", colorize(colorBold, "Run"), s.RunID, mode, state)
	fmt.Fprintf(w, "  %d/%d documents in %s\n", s.Processed, s.Total, (time.Duration(s.ElapsedMS) * time.Millisecond).Round(time.Second))
	if len(s.Failed) > 0 {
		fmt.Fprintf(w, "  failed: %s\n", joinIDs(s.Failed))
	}
}
