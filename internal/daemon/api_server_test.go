package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pickline/internal/api"
	"pickline/internal/engine"
	"pickline/internal/logging"
	"pickline/internal/picking"
	"pickline/internal/services"
	"pickline/internal/testsupport"
)

func newTestServer(t *testing.T, token string) (*api.Client, *httptest.Server) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken(token))
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedPicker(t, st, "p1", "Pat")
	if err := st.UpsertBarcode(context.Background(), "777", "SKU-9"); err != nil {
		t.Fatalf("UpsertBarcode: %v", err)
	}
	source := testsupport.NewFakeOrders(
		testsupport.Order("1", "Jones", testsupport.Line("9", 2)),
		testsupport.Order("2", "Smith", testsupport.Line("9", 3), testsupport.Line("4", 1)),
	)
	eng := engine.New(st, source, nil, logging.NewNop())
	d, err := New(cfg, st, eng, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	server := httptest.NewServer(d.api.routes(token))
	t.Cleanup(server.Close)
	return api.NewClient(server.URL, token, 2*time.Second), server
}

func TestAPIServerSessionFlow(t *testing.T) {
	client, _ := newTestServer(t, "secret")
	ctx := context.Background()

	sessionID, err := client.CreateSession(ctx, "p1", []string{"1", "2"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := client.CreateSession(ctx, "p1", []string{"1"}); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	result, err := client.RegisterAction(ctx, picking.Action{SessionID: sessionID, OriginalProductID: "9", Kind: picking.ActionPicked, IdempotencyKey: "k1"})
	if err != nil || !result.OK || result.Duplicate {
		t.Fatalf("RegisterAction = %+v, %v", result, err)
	}
	again, err := client.RegisterAction(ctx, picking.Action{SessionID: sessionID, OriginalProductID: "9", Kind: picking.ActionPicked, IdempotencyKey: "k1"})
	if err != nil || !again.Duplicate {
		t.Fatalf("expected duplicate, got %+v, %v", again, err)
	}

	view, err := client.ActiveSession(ctx, "p1", picking.ViewOptions{Placement: []string{"4"}})
	if err != nil {
		t.Fatalf("ActiveSession: %v", err)
	}
	if view.Session.ID != sessionID || len(view.Items) != 2 || view.Items[0].ProductID != "4" {
		t.Fatalf("unexpected view %+v", view)
	}
	if item, _ := view.Find("9"); item.Required != 5 || item.Counts.Picked != 1 {
		t.Fatalf("unexpected merged item %+v", item)
	}

	if err := client.RemoveItem(ctx, api.ItemOverrideRequest{SessionID: sessionID, ProductID: "4", Actor: "lead", Reason: "damaged"}); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	view, err = client.ActiveSession(ctx, "p1", picking.ViewOptions{IncludeRemoved: true})
	if err != nil {
		t.Fatalf("ActiveSession: %v", err)
	}
	if item, ok := view.Find("4"); !ok || !item.Removed || item.Removal == nil || item.Removal.Actor != "lead" {
		t.Fatalf("expected removed item in view, got %+v", item)
	}
	if err := client.RestoreItem(ctx, api.ItemOverrideRequest{SessionID: sessionID, ProductID: "4", Actor: "lead"}); err != nil {
		t.Fatalf("RestoreItem: %v", err)
	}

	forced, err := client.ForceCompleteItem(ctx, api.ItemOverrideRequest{SessionID: sessionID, ProductID: "9", Actor: "lead"})
	if err != nil {
		t.Fatalf("ForceCompleteItem: %v", err)
	}
	if forced.Inserted != 4 || len(forced.Orders) != 2 {
		t.Fatalf("unexpected force-complete response %+v", forced)
	}

	rows, err := client.SessionLog(ctx, sessionID)
	if err != nil {
		t.Fatalf("SessionLog: %v", err)
	}
	if len(rows) != 7 || rows[0].IdempotencyKey != "k1" || rows[len(rows)-1].Source != string(picking.SourceForceComplete) {
		t.Fatalf("unexpected ledger rows %+v", rows)
	}

	code, err := client.ValidateCode(ctx, "777", "SKU-9")
	if err != nil || !code.Valid || code.MatchType != picking.MatchBarcode {
		t.Fatalf("ValidateCode = %+v, %v", code, err)
	}

	if err := client.CompleteSession(ctx, sessionID, "p1"); err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}
	_, err = client.RegisterAction(ctx, picking.Action{SessionID: sessionID, OriginalProductID: "9", Kind: picking.ActionShort})
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusGone || !errors.Is(err, services.ErrInvalidSession) {
		t.Fatalf("expected 410 invalid_session, got %v", err)
	}
	if err := client.RecordAuditOutcome(ctx, sessionID, "audited"); err != nil {
		t.Fatalf("RecordAuditOutcome: %v", err)
	}

	sessions, err := client.ListSessions(ctx, "audited")
	if err != nil || len(sessions) != 1 || sessions[0].ID != sessionID {
		t.Fatalf("ListSessions = %+v, %v", sessions, err)
	}
	if _, err := client.ActiveSession(ctx, "p1", picking.ViewOptions{}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found after finishing, got %v", err)
	}
	if err := client.CancelAssignment(ctx, "p1"); err != nil {
		t.Fatalf("expected idempotent cancel, got %v", err)
	}
}

func TestAPIServerRejectsMissingToken(t *testing.T) {
	_, server := newTestServer(t, "secret")

	resp, err := http.Get(server.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}
}

func TestAPIServerMapsErrorsToStatusCodes(t *testing.T) {
	_, server := newTestServer(t, "")

	cases := []struct {
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{http.MethodPost, "/api/actions", `{"sessionId":""}`, http.StatusBadRequest, services.CodeValidation},
		{http.MethodPost, "/api/actions", `{not json`, http.StatusBadRequest, services.CodeValidation},
		{http.MethodPost, "/api/actions", `{"sessionId":"nope","originalProductId":"9","kind":"picked"}`, http.StatusGone, services.CodeInvalidSession},
		{http.MethodGet, "/api/sessions/log?sessionId=nope", "", http.StatusNotFound, services.CodeNotFound},
		{http.MethodPost, "/api/sessions", `{"pickerId":"p1","orderIds":["404"]}`, http.StatusBadGateway, services.CodeExternalSystem},
		{http.MethodGet, "/api/actions", "", http.StatusMethodNotAllowed, "method_not_allowed"},
	}
	for _, tc := range cases {
		req, err := http.NewRequest(tc.method, server.URL+tc.path, strings.NewReader(tc.body))
		if err != nil {
			t.Fatalf("build request: %v", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", tc.method, tc.path, err)
		}
		var body api.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if resp.StatusCode != tc.status || body.Code != tc.code {
			t.Fatalf("%s %s: expected %d/%s, got %d/%s (%s)", tc.method, tc.path, tc.status, tc.code, resp.StatusCode, body.Code, body.Error)
		}
	}
}
