package tswriter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Sample is the most recent stored value of one metric for one device.
type Sample struct {
	Value float64
	Time  time.Time
}

// Reader queries the time-series store's /query endpoint for the newest
// sample of a metric per device — the Evaluator's threshold input.
type Reader struct {
	baseURL    string
	httpClient *http.Client
}

// NewReader creates a Reader against the same endpoint the Writer writes to.
func NewReader(baseURL string) *Reader {
	return &Reader{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// LastSamples returns the newest sample of metric for every device in the
// tenant's telemetry database. Devices with no stored sample are absent from
// the map.
func (r *Reader) LastSamples(ctx context.Context, tenant, metric string) (map[string]Sample, error) {
	q := fmt.Sprintf(`SELECT last(%s) FROM telemetry GROUP BY device_id`, quoteIdent(metric))

	u := fmt.Sprintf("%s/query?db=telemetry_%s&epoch=ns&q=%s",
		r.baseURL, url.QueryEscape(tenant), url.QueryEscape(q))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building query request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying time-series store: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("time-series store returned HTTP %d", resp.StatusCode)
	}

	var body queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding query response: %w", err)
	}

	out := make(map[string]Sample)
	for _, result := range body.Results {
		if result.Error != "" {
			return nil, fmt.Errorf("time-series query error: %s", result.Error)
		}
		for _, series := range result.Series {
			device := series.Tags["device_id"]
			if device == "" || len(series.Values) == 0 || len(series.Values[0]) < 2 {
				continue
			}
			row := series.Values[0]
			ns, okTS := asInt64(row[0])
			val, okVal := asFloat64(row[1])
			if !okTS || !okVal {
				continue
			}
			out[device] = Sample{Value: val, Time: time.Unix(0, ns)}
		}
	}
	return out, nil
}

type queryResponse struct {
	Results []struct {
		Error  string `json:"error,omitempty"`
		Series []struct {
			Tags   map[string]string `json:"tags"`
			Values [][]any           `json:"values"`
		} `json:"series"`
	} `json:"results"`
}

func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case json.Number:
		i, err := t.Int64()
		return i, err == nil
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case bool:
		// Boolean fields evaluate as 0/1 against numeric thresholds.
		if t {
			return 1, true
		}
		return 0, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	return 0, false
}

// quoteIdent double-quotes an InfluxQL identifier, escaping embedded quotes
// and backslashes so a metric name can never break out of the query.
func quoteIdent(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
