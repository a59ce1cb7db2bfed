// Package prom queries a Prometheus-compatible endpoint for SLO timeseries
// used to chart alert trends.
package prom

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

const httpTimeout = 30 * time.Second

// Client runs range queries against a Prometheus/Mimir endpoint.
type Client struct {
	endpoint   string
	tenantID   string
	httpClient *http.Client
}

// New creates a Client for the given endpoint. tenantID may be empty; when set
// it is sent as X-Scope-OrgID for multi-tenant setups.
func New(endpoint, tenantID string) *Client {
	return &Client{
		endpoint:   endpoint,
		tenantID:   tenantID,
		httpClient: &http.Client{Timeout: httpTimeout},
	}
}

// QuerySLOTimeseries fetches the trend series for an SLO over the given range.
// It returns *UnknownSLOError when the SLO name maps to no known query class.
func (c *Client) QuerySLOTimeseries(ctx context.Context, slo, objectiveName string, tr TimeRange) ([]Timeseries, error) {
	query, err := queryForSLO(slo, objectiveName, tr)
	if err != nil {
		return nil, err
	}
	return c.queryRange(ctx, query, tr)
}

func (c *Client) queryRange(ctx context.Context, query string, tr TimeRange) ([]Timeseries, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	u.Path = path.Join(u.Path, "api/v1/query_range")

	q := u.Query()
	q.Set("query", query)
	q.Set("start", tr.From.UTC().Format(time.RFC3339))
	q.Set("end", tr.To.UTC().Format(time.RFC3339))
	q.Set("step", stepForRange(tr))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.tenantID != "" {
		req.Header.Set("X-Scope-OrgID", c.tenantID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("prometheus range query failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("prometheus returned %d: %s", resp.StatusCode, string(body))
	}

	var envelope struct {
		Status string `json:"status"`
		Data   struct {
			ResultType string        `json:"resultType"`
			Result     []rangeVector `json:"result"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode prometheus response: %w", err)
	}
	if envelope.Status != "success" {
		return nil, fmt.Errorf("prometheus query failed: %s", string(body))
	}
	if envelope.Data.ResultType != "matrix" {
		return nil, fmt.Errorf("unexpected result type %q", envelope.Data.ResultType)
	}

	series := make([]Timeseries, len(envelope.Data.Result))
	for i, rv := range envelope.Data.Result {
		series[i] = rv.toTimeseries()
	}
	return series, nil
}
