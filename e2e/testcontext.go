// Package e2e drives the portal's public API from the outside, black-box
// style. The suite speaks plain HTTP against a running server; it shares no
// code with the implementation.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// TestContext carries per-scenario state: the current bearer token, the last
// response, and names remembered across steps (issue ids, solution ids).
type TestContext struct {
	baseURL string
	client  *http.Client

	token      string
	lastStatus int
	lastBody   []byte

	vars map[string]string
}

func NewTestContext(baseURL string) *TestContext {
	return &TestContext{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		vars:    make(map[string]string),
	}
}

// Reset clears scenario state so scenarios stay independent.
func (tc *TestContext) Reset() {
	tc.token = ""
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.vars = make(map[string]string)
}

// UseRole selects the bearer token for a role. Tokens come from the
// environment (CIVICDESK_E2E_CITIZEN_TOKEN and friends) so the suite never
// mints credentials itself.
func (tc *TestContext) UseRole(role string) error {
	key := "CIVICDESK_E2E_" + strings.ToUpper(role) + "_TOKEN"
	token := os.Getenv(key)
	if token == "" {
		return fmt.Errorf("no token for role %q: set %s", role, key)
	}
	tc.token = token
	return nil
}

func (tc *TestContext) ClearAuth() {
	tc.token = ""
}

func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil)
}

func (tc *TestContext) POST(path string, body any) error {
	return tc.do(http.MethodPost, path, body)
}

func (tc *TestContext) DELETE(path string) error {
	return tc.do(http.MethodDelete, path, nil)
}

func (tc *TestContext) do(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
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
	if tc.token != "" {
		req.Header.Set("Authorization", "Bearer "+tc.token)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) LastStatus() int {
	return tc.lastStatus
}

func (tc *TestContext) LastBody() []byte {
	return tc.lastBody
}

// ResponseField returns a top-level field of the last JSON response body.
func (tc *TestContext) ResponseField(field string) (any, error) {
	var payload map[string]any
	if err := json.Unmarshal(tc.lastBody, &payload); err != nil {
		return nil, fmt.Errorf("last response is not a JSON object: %w", err)
	}
	value, ok := payload[field]
	if !ok {
		return nil, fmt.Errorf("field %q not present in response: %s", field, tc.lastBody)
	}
	return value, nil
}

// ResponseStringField is ResponseField narrowed to strings.
func (tc *TestContext) ResponseStringField(field string) (string, error) {
	value, err := tc.ResponseField(field)
	if err != nil {
		return "", err
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("field %q is %T, not a string", field, value)
	}
	return s, nil
}

// ResponseIntField is ResponseField narrowed to whole numbers.
func (tc *TestContext) ResponseIntField(field string) (int, error) {
	value, err := tc.ResponseField(field)
	if err != nil {
		return 0, err
	}
	f, ok := value.(float64)
	if !ok {
		return 0, fmt.Errorf("field %q is %T, not a number", field, value)
	}
	return int(f), nil
}

// Remember stores a value under a name for later steps in the scenario.
func (tc *TestContext) Remember(name, value string) {
	tc.vars[name] = value
}

// Recall fetches a remembered value; it fails loudly on unknown names so a
// missing earlier step surfaces as the real cause.
func (tc *TestContext) Recall(name string) (string, error) {
	value, ok := tc.vars[name]
	if !ok {
		return "", fmt.Errorf("nothing remembered under %q", name)
	}
	return value, nil
}
