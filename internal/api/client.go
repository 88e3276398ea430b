package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pickline/internal/picking"
	"pickline/internal/services"
)

const userAgent = "Pickline-Go/0.1.0"

// Client talks to the picklined HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for baseURL. An empty token sends no
// Authorization header.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the server root the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CreateSession starts a session for pickerID.
func (c *Client) CreateSession(ctx context.Context, pickerID string, orderIDs []string) (string, error) {
	var resp CreateSessionResponse
	err := c.do(ctx, http.MethodPost, "/api/sessions", nil, CreateSessionRequest{PickerID: pickerID, OrderIDs: orderIDs}, &resp)
	return resp.SessionID, err
}

// ActiveSession fetches the session view the picker currently owns.
func (c *Client) ActiveSession(ctx context.Context, pickerID string, opts picking.ViewOptions) (*picking.SessionView, error) {
	query := url.Values{}
	query.Set("pickerId", pickerID)
	if opts.IncludeRemoved {
		query.Set("includeRemoved", "true")
	}
	if len(opts.Placement) > 0 {
		query.Set("placement", strings.Join(opts.Placement, ","))
	}
	var view picking.SessionView
	if err := c.do(ctx, http.MethodGet, "/api/sessions/active", query, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// ListSessions lists sessions, optionally filtered by status.
func (c *Client) ListSessions(ctx context.Context, statuses ...string) ([]SessionSummary, error) {
	query := url.Values{}
	for _, status := range statuses {
		query.Add("status", status)
	}
	var resp SessionListResponse
	if err := c.do(ctx, http.MethodGet, "/api/sessions", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// RegisterAction submits one picker action.
func (c *Client) RegisterAction(ctx context.Context, action picking.Action) (picking.ActionResult, error) {
	var resp picking.ActionResult
	err := c.do(ctx, http.MethodPost, "/api/actions", nil, action, &resp)
	return resp, err
}

// CompleteSession finishes a session into pending audit.
func (c *Client) CompleteSession(ctx context.Context, sessionID, pickerID string) error {
	return c.do(ctx, http.MethodPost, "/api/sessions/complete", nil, CompleteSessionRequest{SessionID: sessionID, PickerID: pickerID}, nil)
}

// CancelAssignment abandons the picker's current session.
func (c *Client) CancelAssignment(ctx context.Context, pickerID string) error {
	return c.do(ctx, http.MethodPost, "/api/sessions/cancel", nil, CancelAssignmentRequest{PickerID: pickerID}, nil)
}

// CancelSession cancels a session by id.
func (c *Client) CancelSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, "/api/admin/sessions/cancel", nil, CancelSessionRequest{SessionID: sessionID}, nil)
}

// RecordAuditOutcome resolves a pending audit.
func (c *Client) RecordAuditOutcome(ctx context.Context, sessionID, outcome string) error {
	return c.do(ctx, http.MethodPost, "/api/admin/sessions/audit", nil, AuditOutcomeRequest{SessionID: sessionID, Outcome: outcome}, nil)
}

// RemoveItem soft-deletes a product from a session.
func (c *Client) RemoveItem(ctx context.Context, req ItemOverrideRequest) error {
	return c.do(ctx, http.MethodPost, "/api/admin/items/remove", nil, req, nil)
}

// RestoreItem reverses RemoveItem.
func (c *Client) RestoreItem(ctx context.Context, req ItemOverrideRequest) error {
	return c.do(ctx, http.MethodPost, "/api/admin/items/restore", nil, req, nil)
}

// ForceCompleteItem fills outstanding demand for a product.
func (c *Client) ForceCompleteItem(ctx context.Context, req ItemOverrideRequest) (ForceCompleteResponse, error) {
	var resp ForceCompleteResponse
	err := c.do(ctx, http.MethodPost, "/api/admin/items/force-complete", nil, req, &resp)
	return resp, err
}

// SessionLog fetches the raw ledger of a session.
func (c *Client) SessionLog(ctx context.Context, sessionID string) ([]LedgerRow, error) {
	query := url.Values{}
	query.Set("sessionId", sessionID)
	var resp SessionLogResponse
	if err := c.do(ctx, http.MethodGet, "/api/sessions/log", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// ValidateCode checks a manually typed code.
func (c *Client) ValidateCode(ctx context.Context, input, expectedSKU string) (picking.CodeResult, error) {
	var resp picking.CodeResult
	err := c.do(ctx, http.MethodPost, "/api/codes/validate", nil, CodeValidateRequest{InputCode: input, ExpectedSKU: expectedSKU}, &resp)
	return resp, err
}

// Status fetches daemon status.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var resp DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "api", method+" "+path, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrTransient, "api", method+" "+path, "decode response", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	apiErr := &Error{Status: resp.StatusCode}
	var body ErrorResponse
	if err := json.Unmarshal(raw, &body); err == nil && (body.Error != "" || body.Code != "") {
		apiErr.Code = strings.TrimSpace(body.Code)
		apiErr.Message = body.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	if apiErr.Message == "" {
		apiErr.Message = "status " + strconv.Itoa(resp.StatusCode)
	}
	return apiErr
}
