// Package bitable is a client for a Feishu/Lark Bitable record store holding
// bookmarks. It acquires a tenant access token per operation, enforces a
// URL-dedup check before inserts, and samples the table's tag taxonomy to
// build recommendation lists.
package bitable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// DefaultBaseURL is the production open-apis endpoint.
const DefaultBaseURL = "https://open.feishu.cn/open-apis"

// Bitable field names of the bookmarks table. The table schema predates this
// tool and uses Chinese display names.
const (
	fieldTitle       = "标题"
	fieldURL         = "网址"
	fieldTags        = "标签"
	fieldTagFormula  = "标签公式"
	fieldDescription = "简介"
	fieldCreatedTime = "创建时间"
)

// pageSize caps every search request. Results past the first page are not
// fetched.
const pageSize = 100

// Config carries the credentials and table coordinates for one Bitable.
type Config struct {
	AppID     string
	AppSecret string
	BaseID    string
	TableID   string
}

// Bookmark is the input to Save. Tags is a single "#"-delimited string, the
// form the capture surface collects.
type Bookmark struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Tags  string `json:"tags,omitempty"`
}

// Client performs authenticated reads and writes against one Bitable. The
// token is re-acquired on every public operation and never cached across
// calls; always-fresh tokens avoid expiry handling entirely.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	token      string
}

// New creates a Client for the production endpoint.
func New(cfg Config) *Client {
	return NewWithBaseURL(cfg, DefaultBaseURL)
}

// NewWithBaseURL creates a Client targeting the given base URL (used by
// tests to point at a fake backend).
func NewWithBaseURL(cfg Config, baseURL string) *Client {
	return &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(baseURL, "/"),
		// No client-side timeout: a hung call waits on the transport.
		httpClient: &http.Client{},
	}
}

func (c *Client) tablePath(suffix string) string {
	return fmt.Sprintf("/bitable/v1/apps/%s/tables/%s%s", c.cfg.BaseID, c.cfg.TableID, suffix)
}

// do issues one request and returns the response body after the HTTP status
// check. Backend-level codes are checked by each caller against its typed
// response.
func (c *Client) do(ctx context.Context, op, method, path string, body any, authed bool) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshalling request: %w", op, err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: reading response: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &RequestError{Op: op, Status: resp.StatusCode}
	}
	return data, nil
}

type tokenRequest struct {
	AppID     string `json:"app_id"`
	AppSecret string `json:"app_secret"`
}

type tokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
}

// acquireToken fetches a fresh tenant access token. On any failure the held
// token is cleared so privileged operations cannot proceed with a stale one.
func (c *Client) acquireToken(ctx context.Context) error {
	c.token = ""
	data, err := c.do(ctx, "token", http.MethodPost, "/auth/v3/tenant_access_token/internal",
		tokenRequest{AppID: c.cfg.AppID, AppSecret: c.cfg.AppSecret}, false)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}
	var tr tokenResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrAuth, err)
	}
	if tr.Code != 0 {
		return fmt.Errorf("%w: backend code %d: %s", ErrAuth, tr.Code, tr.Msg)
	}
	c.token = tr.TenantAccessToken
	return nil
}

type searchCondition struct {
	FieldName string   `json:"field_name"`
	Operator  string   `json:"operator"`
	Value     []string `json:"value"`
}

type searchFilter struct {
	Conjunction string            `json:"conjunction"`
	Conditions  []searchCondition `json:"conditions"`
}

type sortSpec struct {
	FieldName string `json:"field_name"`
	Desc      bool   `json:"desc"`
}

type searchRequest struct {
	Filter   *searchFilter `json:"filter,omitempty"`
	Sort     []sortSpec    `json:"sort,omitempty"`
	PageSize int           `json:"page_size,omitempty"`
}

type recordItem struct {
	RecordID string                     `json:"record_id"`
	Fields   map[string]json.RawMessage `json:"fields"`
}

type searchResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Total int          `json:"total"`
		Items []recordItem `json:"items"`
	} `json:"data"`
}

// searchRecords runs one records/search call and returns the first page.
func (c *Client) searchRecords(ctx context.Context, op string, req searchRequest) ([]recordItem, int, error) {
	data, err := c.do(ctx, op, http.MethodPost, c.tablePath("/records/search"), req, true)
	if err != nil {
		return nil, 0, err
	}
	var sr searchResponse
	if err := json.Unmarshal(data, &sr); err != nil {
		return nil, 0, fmt.Errorf("%s: decoding response: %w", op, err)
	}
	if sr.Code != 0 {
		return nil, 0, &RequestError{Op: op, Code: sr.Code, Msg: sr.Msg}
	}
	return sr.Data.Items, sr.Data.Total, nil
}

// ExistsByURL reports whether a record with exactly this URL is present.
func (c *Client) ExistsByURL(ctx context.Context, url string) (bool, error) {
	if err := c.acquireToken(ctx); err != nil {
		return false, err
	}
	return c.existsByURL(ctx, url)
}

func (c *Client) existsByURL(ctx context.Context, url string) (bool, error) {
	_, total, err := c.searchRecords(ctx, "exists", searchRequest{
		Filter: &searchFilter{
			Conjunction: "and",
			Conditions: []searchCondition{
				{FieldName: fieldURL, Operator: "is", Value: []string{url}},
			},
		},
	})
	if err != nil {
		return false, err
	}
	return total > 0, nil
}

type insertResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Save validates the bookmark, checks the URL for duplicates, and inserts a
// record.
//
// The check and the insert are not atomic: two near-simultaneous saves of
// the same URL can both pass the check, and the backend does not enforce
// uniqueness, so duplicate records are possible under concurrent saves. This
// is a known limitation, not masked here.
func (c *Client) Save(ctx context.Context, b Bookmark) error {
	if b.Title == "" || b.URL == "" {
		return ErrValidation
	}

	exists, err := c.ExistsByURL(ctx, b.URL)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicate
	}

	fields := map[string]any{
		fieldTitle: b.Title,
		fieldURL:   map[string]string{"link": b.URL},
	}
	if tags := splitTags(b.Tags); len(tags) > 0 {
		fields[fieldTags] = tags
	}

	data, err := c.do(ctx, "insert", http.MethodPost, c.tablePath("/records"),
		map[string]any{"fields": fields}, true)
	if err != nil {
		return err
	}
	var ir insertResponse
	if err := json.Unmarshal(data, &ir); err != nil {
		return fmt.Errorf("insert: decoding response: %w", err)
	}
	if ir.Code != 0 {
		return &RequestError{Op: "insert", Code: ir.Code, Msg: ir.Msg}
	}
	return nil
}

// splitTags splits a "#"-delimited tag string, discarding empty fragments.
func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(s, "#") {
		if strings.TrimSpace(t) == "" {
			continue
		}
		tags = append(tags, t)
	}
	return tags
}

// Search returns records matching query in the title, URL, or tag-derived
// field (OR-combined). Only the first page is fetched.
func (c *Client) Search(ctx context.Context, query string) ([]Record, error) {
	if err := c.acquireToken(ctx); err != nil {
		return nil, err
	}
	items, _, err := c.searchRecords(ctx, "search", searchRequest{
		Filter: &searchFilter{
			Conjunction: "or",
			Conditions: []searchCondition{
				{FieldName: fieldTitle, Operator: "contains", Value: []string{query}},
				{FieldName: fieldURL, Operator: "contains", Value: []string{query}},
				{FieldName: fieldTagFormula, Operator: "contains", Value: []string{query}},
			},
		},
		PageSize: pageSize,
	})
	if err != nil {
		return nil, err
	}
	return formatRecords(items), nil
}

type fieldsResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Items []struct {
			FieldName string `json:"field_name"`
			Property  *struct {
				Options []struct {
					Name string `json:"name"`
				} `json:"options"`
			} `json:"property"`
		} `json:"items"`
	} `json:"data"`
}

// TagVocabulary returns the declared option list of the tag field. An empty
// list means no tag-based filtering is possible; it is not a failure.
func (c *Client) TagVocabulary(ctx context.Context) ([]string, error) {
	if err := c.acquireToken(ctx); err != nil {
		return nil, err
	}
	return c.tagOptions(ctx), nil
}

// tagOptions fetches the field schema and extracts the tag options. Any
// failure yields an empty vocabulary so callers fall back to recency.
func (c *Client) tagOptions(ctx context.Context) []string {
	data, err := c.do(ctx, "fields", http.MethodGet, c.tablePath("/fields"), nil, true)
	if err != nil {
		slog.Debug("fetching field schema failed", "error", err)
		return nil
	}
	var fr fieldsResponse
	if err := json.Unmarshal(data, &fr); err != nil {
		slog.Debug("decoding field schema failed", "error", err)
		return nil
	}
	if fr.Code != 0 {
		slog.Debug("field schema request rejected", "code", fr.Code, "msg", fr.Msg)
		return nil
	}
	for _, f := range fr.Data.Items {
		if f.FieldName != fieldTags {
			continue
		}
		if f.Property == nil || len(f.Property.Options) == 0 {
			return nil
		}
		names := make([]string, len(f.Property.Options))
		for i, o := range f.Property.Options {
			names[i] = o.Name
		}
		return names
	}
	return nil
}

type listResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// TestConnection verifies the credentials and table coordinates by acquiring
// a token and reading a single record.
func (c *Client) TestConnection(ctx context.Context) error {
	if err := c.acquireToken(ctx); err != nil {
		return err
	}
	data, err := c.do(ctx, "test", http.MethodGet, c.tablePath("/records?page_size=1"), nil, true)
	if err != nil {
		return err
	}
	var lr listResponse
	if err := json.Unmarshal(data, &lr); err != nil {
		return fmt.Errorf("test: decoding response: %w", err)
	}
	if lr.Code != 0 {
		return &RequestError{Op: "test", Code: lr.Code, Msg: lr.Msg}
	}
	return nil
}
