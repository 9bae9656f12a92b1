// Package client talks to the soldrop status server.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound is returned when the server has no such resource.
var ErrNotFound = errors.New("not found")

// Row is one recipient row as served by the status server.
type Row struct {
	ID        string `json:"id"`
	Address   string `json:"address"`
	Valid     bool   `json:"valid"`
	Amount    string `json:"amount"`
	State     string `json:"state"`
	Signature string `json:"signature,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// ReportEntry is one line of a run report.
type ReportEntry struct {
	Address  string `json:"address"`
	Response string `json:"response"`
	TxHash   string `json:"txHash,omitempty"`
}

// Report is a finished run's per-recipient outcome list.
type Report struct {
	Result []ReportEntry `json:"result"`
}

// Run is the state of the distribution the server is watching.
type Run struct {
	RunID  string          `json:"run_id,omitempty"`
	Phase  string          `json:"phase"`
	Token  json.RawMessage `json:"token,omitempty"`
	Plan   json.RawMessage `json:"plan,omitempty"`
	Signer string          `json:"signer,omitempty"`
	Error  string          `json:"error,omitempty"`
	Rows   []Row           `json:"rows"`
	Report *Report         `json:"report,omitempty"`
	Counts map[string]int  `json:"counts"`
}

// RowEvent is a row transition delivered over the row stream.
type RowEvent struct {
	RunID       string    `json:"run_id"`
	RowID       string    `json:"row_id"`
	Address     string    `json:"address"`
	Amount      string    `json:"amount"`
	State       string    `json:"state"`
	Signature   string    `json:"signature,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Client is the HTTP client for the soldrop status server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new status server client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.get(ctx, "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}
	return nil
}

// GetRun retrieves the current run snapshot.
func (c *Client) GetRun(ctx context.Context) (*Run, error) {
	var run Run
	if err := c.getJSON(ctx, "/api/v1/run", &run); err != nil {
		return nil, err
	}
	c.logger.Debug("fetched run", "run_id", run.RunID, "phase", run.Phase, "rows", len(run.Rows))
	return &run, nil
}

// GetRow retrieves a single row by id.
func (c *Client) GetRow(ctx context.Context, id string) (*Row, error) {
	var row Row
	if err := c.getJSON(ctx, "/api/v1/run/rows/"+url.PathEscape(id), &row); err != nil {
		return nil, err
	}
	return &row, nil
}

// GetReport retrieves the report of the last finished run.
func (c *Client) GetReport(ctx context.Context) (*Report, error) {
	var report Report
	if err := c.getJSON(ctx, "/api/v1/run/report", &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// StreamRows follows the server's row stream and calls fn for every row
// event until ctx is done, the server closes the stream or fn returns an
// error. An empty runID follows every run.
func (c *Client) StreamRows(ctx context.Context, runID string, fn func(RowEvent) error) error {
	u := c.baseURL + "/api/v1/stream/rows"
	if runID != "" {
		u += "?run_id=" + url.QueryEscape(runID)
	}
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream outlives any request timeout.
	streamClient := *c.httpClient
	streamClient.Timeout = 0

	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	var event, data string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := c.dispatch(event, data, fn); err != nil {
				return err
			}
			event, data = "", ""
		case strings.HasPrefix(line, ":"):
			// comment / keepalive
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stream read failed: %w", err)
	}
	return ctx.Err()
}

func (c *Client) dispatch(event, data string, fn func(RowEvent) error) error {
	switch event {
	case "row":
		var ev RowEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			c.logger.Warn("skipping malformed row event", "error", err)
			return nil
		}
		return fn(ev)
	case "error":
		return fmt.Errorf("stream error: %s", data)
	case "connected":
		c.logger.Debug("row stream connected", "data", data)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	resp, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		err := fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return err
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, errResp.Error)
	}
	return fmt.Errorf("request failed: %s", errResp.Error)
}
