package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"cmdb/services/inventory"
)

// ErrAlreadyResolved is returned when a decision targets an sn with no
// pending report, usually because another operator got there first.
var ErrAlreadyResolved = errors.New("already resolved")

// APIError carries a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cmdb api: %d %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrAlreadyResolved && e.Status == http.StatusConflict
}

// BatchItem is the per-sn result of a bulk decision.
type BatchItem struct {
	SN      string     `json:"sn"`
	AssetID *uuid.UUID `json:"asset_id,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// BatchResult is the aggregate of a bulk decision.
type BatchResult struct {
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Items     []BatchItem `json:"items"`
}

// Client talks to the CMDB API, retrying transient failures.
type Client struct {
	base       string
	reportPath string
	agent      string
	http       *retryablehttp.Client
}

// New builds a Client from cfg.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newClient(cfg.BaseURL(), cfg, logger), nil
}

// NewWithBaseURL skips host validation; base is used verbatim.
func NewWithBaseURL(base string, cfg Config, logger zerolog.Logger) *Client {
	return newClient(strings.TrimRight(base, "/"), cfg.withDefaults(), logger)
}

func newClient(base string, cfg Config, logger zerolog.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.Retries
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = cfg.RequestTimeout.Duration()
	rc.Logger = leveledLogger{log: logger}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return &Client{base: base, reportPath: cfg.URL, agent: cfg.Agent, http: rc}
}

// SubmitReport posts a raw hardware report.
func (c *Client) SubmitReport(ctx context.Context, report map[string]any) (inventory.SubmitResult, error) {
	var out inventory.SubmitResult
	body := map[string]any{"agent": c.agent, "report": report}
	err := c.do(ctx, http.MethodPost, c.reportPath, nil, body, &out)
	return out, err
}

// ListPending returns staged reports, optionally filtered.
func (c *Client) ListPending(ctx context.Context, filter inventory.PendingFilter) ([]inventory.PendingSummary, error) {
	q := url.Values{}
	setQuery(q, "asset_type", string(filter.AssetType))
	setQuery(q, "manufacturer", filter.Manufacturer)

	var out struct {
		Pending []inventory.PendingSummary `json:"pending"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/pending", q, nil, &out)
	return out.Pending, err
}

// GetPending returns the full staged report for sn.
func (c *Client) GetPending(ctx context.Context, sn string) (inventory.PendingAsset, error) {
	var out struct {
		Pending inventory.PendingAsset `json:"pending"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/pending/"+url.PathEscape(sn), nil, nil, &out)
	return out.Pending, err
}

// Approve merges the staged report for sn.
func (c *Client) Approve(ctx context.Context, sn, principal string) (uuid.UUID, error) {
	var out struct {
		AssetID uuid.UUID `json:"asset_id"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/pending/"+url.PathEscape(sn)+"/approve", nil, map[string]string{"principal": principal}, &out)
	return out.AssetID, err
}

// Reject discards the staged report for sn.
func (c *Client) Reject(ctx context.Context, sn, principal string) error {
	return c.do(ctx, http.MethodPost, "/v1/pending/"+url.PathEscape(sn)+"/reject", nil, map[string]string{"principal": principal}, nil)
}

// ApproveMany approves each sn independently.
func (c *Client) ApproveMany(ctx context.Context, sns []string, principal string) (BatchResult, error) {
	var out BatchResult
	err := c.do(ctx, http.MethodPost, "/v1/pending/approve", nil, map[string]any{"sns": sns, "principal": principal}, &out)
	return out, err
}

// RejectMany rejects each sn independently.
func (c *Client) RejectMany(ctx context.Context, sns []string, principal string) (BatchResult, error) {
	var out BatchResult
	err := c.do(ctx, http.MethodPost, "/v1/pending/reject", nil, map[string]any{"sns": sns, "principal": principal}, &out)
	return out, err
}

// ListAssets queries canonical assets.
func (c *Client) ListAssets(ctx context.Context, filter inventory.AssetFilter) ([]inventory.Asset, error) {
	q := url.Values{}
	setQuery(q, "asset_type", string(filter.AssetType))
	setQuery(q, "manufacturer", filter.Manufacturer)
	setQuery(q, "time_field", filter.TimeField)
	if !filter.Since.IsZero() {
		q.Set("since", filter.Since.UTC().Format(time.RFC3339))
	}
	if !filter.Until.IsZero() {
		q.Set("until", filter.Until.UTC().Format(time.RFC3339))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Offset > 0 {
		q.Set("offset", strconv.Itoa(filter.Offset))
	}

	var out struct {
		Assets []inventory.Asset `json:"assets"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/assets", q, nil, &out)
	return out.Assets, err
}

// GetAsset fetches one asset by id.
func (c *Client) GetAsset(ctx context.Context, id uuid.UUID) (inventory.Asset, error) {
	var out struct {
		Asset inventory.Asset `json:"asset"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/assets/"+id.String(), nil, nil, &out)
	return out.Asset, err
}

// AssetBySN fetches one asset by serial number.
func (c *Client) AssetBySN(ctx context.Context, sn string) (inventory.Asset, error) {
	var out struct {
		Asset inventory.Asset `json:"asset"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/assets/by-sn/"+url.PathEscape(sn), nil, nil, &out)
	return out.Asset, err
}

// ListEvents returns audit records.
func (c *Client) ListEvents(ctx context.Context, filter inventory.EventFilter) ([]inventory.Event, error) {
	q := url.Values{}
	setQuery(q, "sn", filter.SN)
	setQuery(q, "event_type", string(filter.Type))
	if filter.AssetID != nil {
		q.Set("asset_id", filter.AssetID.String())
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}

	var out struct {
		Events []inventory.Event `json:"events"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/events", q, nil, &out)
	return out.Events, err
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	target := c.base + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	var body any
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = data
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.agent != "" {
		req.Header.Set("X-CMDB-Agent", c.agent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil {
		_, err = io.Copy(io.Discard, resp.Body)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorMessage(data []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(data))
}

func setQuery(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

// leveledLogger adapts zerolog to retryablehttp.LeveledLogger.
type leveledLogger struct {
	log zerolog.Logger
}

func (l leveledLogger) Error(msg string, kv ...any) { l.log.Error().Fields(kv).Msg(msg) }
func (l leveledLogger) Info(msg string, kv ...any)  { l.log.Debug().Fields(kv).Msg(msg) }
func (l leveledLogger) Debug(msg string, kv ...any) { l.log.Trace().Fields(kv).Msg(msg) }
func (l leveledLogger) Warn(msg string, kv ...any)  { l.log.Warn().Fields(kv).Msg(msg) }
