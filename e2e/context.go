package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// TestContext drives one scenario against a running explorer server and
// remembers the last response for assertions.
type TestContext struct {
	baseURL    string
	adminToken string
	client     *http.Client

	// run scopes source and metric names so scenarios can share a database.
	run string

	lastStatus int
	lastBody   []byte
	lastHeader http.Header
	sources    map[string]int64
}

// NewTestContext targets the server at baseURL.
func NewTestContext(baseURL, adminToken string) *TestContext {
	return &TestContext{
		baseURL:    strings.TrimRight(baseURL, "/"),
		adminToken: adminToken,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	tc.run = strconv.FormatInt(time.Now().UnixNano(), 36)
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.lastHeader = nil
	tc.sources = make(map[string]int64)
}

// Scoped suffixes a human name with the scenario's run token.
func (tc *TestContext) Scoped(name string) string {
	return name + " [" + tc.run + "]"
}

func (tc *TestContext) do(method, path string, body any, admin bool) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.Header.Set("X-Admin-Token", tc.adminToken)
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	tc.lastBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	tc.lastStatus = resp.StatusCode
	tc.lastHeader = resp.Header
	return nil
}

func (tc *TestContext) GET(path string) error { return tc.do(http.MethodGet, path, nil, false) }

func (tc *TestContext) POST(path string, body any) error {
	return tc.do(http.MethodPost, path, body, false)
}

// AdminDo sends a request carrying the admin token.
func (tc *TestContext) AdminDo(method, path string, body any) error {
	return tc.do(method, path, body, true)
}

func (tc *TestContext) GetLastResponseStatus() int       { return tc.lastStatus }
func (tc *TestContext) GetLastResponseBody() []byte      { return tc.lastBody }
func (tc *TestContext) GetLastHeader(name string) string { return tc.lastHeader.Get(name) }

// GetResponseField resolves a dotted path such as "rows.0.trust_badge" in
// the last JSON response.
func (tc *TestContext) GetResponseField(path string) (any, error) {
	var doc any
	if err := json.Unmarshal(tc.lastBody, &doc); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	cur := doc
	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, fmt.Errorf("field %q not found in %s", part, path)
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil, fmt.Errorf("index %q out of range in %s", part, path)
			}
			cur = node[i]
		default:
			return nil, fmt.Errorf("cannot descend into %s at %q", path, part)
		}
	}
	return cur, nil
}

func (tc *TestContext) RememberSource(name string, id int64) { tc.sources[name] = id }

func (tc *TestContext) SourceID(name string) (int64, error) {
	id, ok := tc.sources[name]
	if !ok {
		return 0, fmt.Errorf("source %q was not registered in this scenario", name)
	}
	return id, nil
}
