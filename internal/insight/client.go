// Package insight is the HTTP client for the insight data-sync service.
//
// Authentication follows the service's token scheme: a short-lived JWT
// access token sent as a bearer header, plus an opaque refresh token
// rotated on every refresh. A 401 response triggers one transparent
// refresh-and-retry; concurrent callers share a single refresh request.
package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/imvu-insight/datasync/internal/classify"
	"github.com/imvu-insight/datasync/internal/digest"
)

const apiPrefix = "/insight/api"

var (
	// ErrUnauthorized means the session is invalid and could not be
	// refreshed; the operator must log in again.
	ErrUnauthorized = errors.New("not authenticated")

	// ErrLoginFailed means the credentials were rejected.
	ErrLoginFailed = errors.New("invalid username or password")
)

// Client talks to one insight service instance. It is safe for
// concurrent use.
type Client struct {
	baseURL string
	hc      *http.Client
	log     *slog.Logger

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	onTokens     func(access, refresh string)

	refreshGroup singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithLogger attaches a structured logger for request diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithTokens seeds a previously saved session.
func WithTokens(access, refresh string) Option {
	return func(c *Client) {
		c.accessToken = access
		c.refreshToken = refresh
	}
}

// WithTokenCallback registers a hook invoked whenever the token pair
// changes, so callers can persist the rotated session.
func WithTokenCallback(fn func(access, refresh string)) Option {
	return func(c *Client) { c.onTokens = fn }
}

// New returns a client for the service at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: 30 * time.Second},
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tokens returns the current session token pair.
func (c *Client) Tokens() (access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken, c.refreshToken
}

func (c *Client) setTokens(access, refresh string) {
	c.mu.Lock()
	c.accessToken = access
	c.refreshToken = refresh
	fn := c.onTokens
	c.mu.Unlock()
	if fn != nil {
		fn(access, refresh)
	}
}

// ---------------------------------------------------------------------------
// Auth
// ---------------------------------------------------------------------------

// Login authenticates with a username and password. The password is
// hashed client-side; the plaintext never leaves the process.
func (c *Client) Login(ctx context.Context, username, password string) (*User, error) {
	body := loginRequest{
		Username:     username,
		PasswordHash: digest.Sum([]byte(password)),
	}

	var resp loginResponse
	if err := c.postJSON(ctx, apiPrefix+"/auth/login", body, &resp, false); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if !resp.Success || resp.User == nil {
		return nil, ErrLoginFailed
	}

	c.setTokens(resp.User.AccessToken, resp.User.RefreshToken)
	user := resp.User.User
	return &user, nil
}

// Me returns the authenticated account.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.getJSON(ctx, apiPrefix+"/auth/me", nil, &user); err != nil {
		return nil, fmt.Errorf("fetch current user: %w", err)
	}
	return &user, nil
}

// refreshSession exchanges the stored refresh token for a new token pair.
// Concurrent 401s collapse into a single refresh request; the rotated
// refresh token is committed exactly once.
func (c *Client) refreshSession(ctx context.Context) error {
	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		c.mu.Lock()
		token := c.refreshToken
		c.mu.Unlock()
		if token == "" {
			return nil, ErrUnauthorized
		}

		var resp refreshResponse
		if err := c.postJSON(ctx, apiPrefix+"/auth/refresh", refreshRequest{RefreshToken: token}, &resp, false); err != nil {
			return nil, fmt.Errorf("refresh session: %w", err)
		}
		if !resp.Success {
			return nil, ErrUnauthorized
		}

		c.setTokens(resp.AccessToken, resp.RefreshToken)
		return nil, nil
	})
	return err
}

// ---------------------------------------------------------------------------
// Data sync
// ---------------------------------------------------------------------------

// RecordByHash looks up the most recent upload with the given content
// hash. It returns nil when no record exists.
func (c *Client) RecordByHash(ctx context.Context, hash string) (*Record, error) {
	params := url.Values{"hash": {hash}}

	var resp byHashResponse
	if err := c.getJSON(ctx, apiPrefix+"/data-sync/by-hash", params, &resp); err != nil {
		return nil, fmt.Errorf("lookup record by hash: %w", err)
	}
	if !resp.Exists {
		return nil, nil
	}
	return resp.Record, nil
}

// ListRecords returns one page of upload records, newest first. A zero
// page or pageSize falls back to the server defaults. typ filters by
// data type when non-empty.
func (c *Client) ListRecords(ctx context.Context, page, pageSize int, typ classify.DataType) (*RecordList, error) {
	params := url.Values{}
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		params.Set("page_size", strconv.Itoa(pageSize))
	}
	if typ != "" {
		params.Set("type", typ.String())
	}

	var list RecordList
	if err := c.getJSON(ctx, apiPrefix+"/data-sync/list", params, &list); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return &list, nil
}

// DeleteRecord removes an upload record by ID.
func (c *Client) DeleteRecord(ctx context.Context, id int64) error {
	params := url.Values{"id": {strconv.FormatInt(id, 10)}}

	req, err := c.newRequest(ctx, http.MethodDelete, apiPrefix+"/data-sync/object", params, nil, "")
	if err != nil {
		return err
	}

	var resp deleteResponse
	if err := c.do(req, &resp, true); err != nil {
		return fmt.Errorf("delete record %d: %w", id, err)
	}
	if !resp.Deleted {
		return fmt.Errorf("delete record %d: not deleted", id)
	}
	return nil
}

// ImportFile submits file content to the import endpoint for the given
// data type as a multipart request.
func (c *Client) ImportFile(ctx context.Context, typ classify.DataType, fileName string, content []byte, overwrite, dryRun bool) (*ImportResult, error) {
	var endpoint string
	switch typ {
	case classify.Product:
		endpoint = apiPrefix + "/data-sync/product/import"
	case classify.Income:
		endpoint = apiPrefix + "/data-sync/income/import"
	default:
		return nil, fmt.Errorf("import file: unknown data type %q", typ)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("import file: build form: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("import file: build form: %w", err)
	}
	if err := w.WriteField("overwrite", strconv.FormatBool(overwrite)); err != nil {
		return nil, fmt.Errorf("import file: build form: %w", err)
	}
	if err := w.WriteField("dry_run", strconv.FormatBool(dryRun)); err != nil {
		return nil, fmt.Errorf("import file: build form: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("import file: build form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil, buf.Bytes(), w.FormDataContentType())
	if err != nil {
		return nil, err
	}

	var result ImportResult
	if err := c.do(req, &result, true); err != nil {
		return nil, fmt.Errorf("import %s file: %w", typ, err)
	}
	return &result, nil
}

// ---------------------------------------------------------------------------
// Transport plumbing
// ---------------------------------------------------------------------------

func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values, body []byte, contentType string) (*http.Request, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	// The service's request logging picks this up, so a failed CLI call can
	// be matched against server logs.
	req.Header.Set("X-Request-Id", uuid.NewString())
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, params, nil, "")
	if err != nil {
		return err
	}
	return c.do(req, out, true)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any, authed bool) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, nil, body, "application/json")
	if err != nil {
		return err
	}
	return c.do(req, out, authed)
}

// do runs one request. Authenticated requests that come back 401 trigger
// a shared session refresh and a single retry.
func (c *Client) do(req *http.Request, out any, authed bool) error {
	body, err := c.roundTrip(req, authed)
	if authed && errors.Is(err, ErrUnauthorized) {
		if rerr := c.refreshSession(req.Context()); rerr != nil {
			return rerr
		}
		retry := req.Clone(req.Context())
		if req.GetBody != nil {
			rc, gerr := req.GetBody()
			if gerr != nil {
				return fmt.Errorf("rebuild request body: %w", gerr)
			}
			retry.Body = rc
		}
		body, err = c.roundTrip(retry, authed)
	}
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) roundTrip(req *http.Request, authed bool) ([]byte, error) {
	if authed {
		c.mu.Lock()
		token := c.accessToken
		c.mu.Unlock()
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		c.log.Debug("request failed",
			"method", req.Method,
			"path", req.URL.Path,
			"status", resp.StatusCode,
		)
		return nil, &APIError{StatusCode: resp.StatusCode, Detail: errorDetail(body)}
	}
	return body, nil
}

// errorDetail extracts the service's error message from a failure body.
func errorDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	var s string
	if json.Unmarshal(payload.Detail, &s) == nil {
		return s
	}
	return string(payload.Detail)
}
