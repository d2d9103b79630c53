// Package client is the HTTP client for a Conduit server.
//
// Client implements navigator.Fetcher (batched lookup by identifier) and
// navigator.Pager (count plus after/before paging), so a navigator.Cache or
// navigator.Cursor can be driven directly over the network. It also covers the
// annotator, class and annotation endpoints the terminal annotator needs.
//
// Example:
//
//	c := client.New(client.DefaultConfig())
//	me, err := c.Annotator(ctx, "bfoo")
//	if err != nil {
//		log.Fatal(err)
//	}
//	cache := navigator.NewCache(navigator.NewIndex(me.CurrentCampaign.Segments), c, navigator.DefaultConfig())
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/orneryd/conduit/pkg/navigator"
	"github.com/orneryd/conduit/pkg/segment"
)

// maxErrorBody bounds how much of a failed response is kept in StatusError.
const maxErrorBody = 4096

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Config holds client settings.
type Config struct {
	// BaseURL of the server, e.g. http://127.0.0.1:8000
	BaseURL string
	// Timeout for each request. Zero means no client-side timeout.
	Timeout time.Duration
	// HTTPClient overrides the default client (tests use httptest's).
	HTTPClient *http.Client
}

// DefaultConfig returns a client for a local server with a 30s timeout.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "http://127.0.0.1:8000",
		Timeout: 30 * time.Second,
	}
}

// Client talks to a Conduit server. It is safe for concurrent use.
type Client struct {
	base   string
	client *http.Client
}

var (
	_ navigator.Fetcher = (*Client)(nil)
	_ navigator.Pager   = (*Client)(nil)
)

// New creates a client. A nil config uses DefaultConfig.
func New(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	base := strings.TrimRight(config.BaseURL, "/")
	if base == "" {
		base = DefaultConfig().BaseURL
	}
	hc := config.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: config.Timeout}
	}
	return &Client{base: base, client: hc}
}

// BaseURL returns the server URL the client was created with.
func (c *Client) BaseURL() string { return c.base }

// SegmentDetail is a single segment with the requesting annotator's annotation.
type SegmentDetail struct {
	Signals    map[string][]float64 `json:"signals"`
	Annotation *segment.Annotation  `json:"annotation"`
}

// SaveResult is the server's answer to an annotation write.
type SaveResult struct {
	SegmentID     string             `json:"_id"`
	Annotator     string             `json:"annotator"`
	Annotation    segment.Annotation `json:"annotation"`
	LastAnnotated bool               `json:"last_annotated"`
}

// Find fetches segments by identifier in one request. The result order is
// whatever the server returns; unknown identifiers are simply absent.
func (c *Client) Find(ctx context.Context, ids []string) ([]*segment.Segment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := url.Values{"find": ids}
	var segs []*segment.Segment
	if err := c.get(ctx, "/api/segments", q, &segs); err != nil {
		return nil, fmt.Errorf("find %d segments: %w", len(ids), err)
	}
	return segs, nil
}

// Count returns the 1-based position of startID (0 when empty) and the total
// number of segments.
func (c *Client) Count(ctx context.Context, startID string) (index, total int, err error) {
	q := url.Values{}
	if startID != "" {
		q.Set("start", startID)
	}
	var pair [2]int
	if err := c.get(ctx, "/api/segments/count", q, &pair); err != nil {
		return 0, 0, fmt.Errorf("count segments: %w", err)
	}
	return pair[0], pair[1], nil
}

// Page fetches up to req.Limit segments after or before a segment id.
func (c *Client) Page(ctx context.Context, req navigator.PageRequest) ([]*segment.Segment, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprint(req.Limit))
	if req.After != "" {
		q.Set("after", req.After)
	}
	if req.Before != "" {
		q.Set("before", req.Before)
	}
	var segs []*segment.Segment
	if err := c.get(ctx, "/api/segments", q, &segs); err != nil {
		return nil, fmt.Errorf("page segments: %w", err)
	}
	return segs, nil
}

// Segment fetches one segment's signals and, when annotator is set, that
// annotator's annotation.
func (c *Client) Segment(ctx context.Context, id, annotator string) (*SegmentDetail, error) {
	q := url.Values{}
	if annotator != "" {
		q.Set("annotator", annotator)
	}
	var detail SegmentDetail
	if err := c.get(ctx, "/api/segments/"+url.PathEscape(id), q, &detail); err != nil {
		return nil, fmt.Errorf("segment %s: %w", id, err)
	}
	return &detail, nil
}

// SaveAnnotation stores annotator's annotation on segment id.
func (c *Client) SaveAnnotation(ctx context.Context, id, annotator string, a segment.Annotation) (*SaveResult, error) {
	path := "/api/segments/" + url.PathEscape(id) + "/annotations/" + url.PathEscape(annotator)
	var result SaveResult
	if err := c.do(ctx, http.MethodPut, path, nil, a, &result); err != nil {
		return nil, fmt.Errorf("save annotation on %s: %w", id, err)
	}
	return &result, nil
}

// Annotator fetches one annotator, including their current campaign.
func (c *Client) Annotator(ctx context.Context, username string) (*segment.Annotator, error) {
	var a segment.Annotator
	if err := c.get(ctx, "/api/annotators/"+url.PathEscape(username), nil, &a); err != nil {
		return nil, fmt.Errorf("annotator %s: %w", username, err)
	}
	return &a, nil
}

// Annotators lists every annotator.
func (c *Client) Annotators(ctx context.Context) ([]*segment.Annotator, error) {
	var out []*segment.Annotator
	if err := c.get(ctx, "/api/annotators", nil, &out); err != nil {
		return nil, fmt.Errorf("list annotators: %w", err)
	}
	return out, nil
}

// Classes returns the label set offered to annotators.
func (c *Client) Classes(ctx context.Context) ([]segment.Class, error) {
	var out []segment.Class
	if err := c.get(ctx, "/api/classes", nil, &out); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return out, nil
}

// Health returns nil when the server answers its liveness probe.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/health", nil, nil)
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, q, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out interface{}) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// statusError builds a StatusError, preferring the server's JSON message.
func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		Message string `json:"message"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &payload) == nil && payload.Message != "" {
		msg = payload.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &StatusError{Code: resp.StatusCode, Message: msg}
}
