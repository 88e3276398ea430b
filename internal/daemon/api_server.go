package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pickline/internal/api"
	"pickline/internal/config"
	"pickline/internal/logging"
	"pickline/internal/picking"
	"pickline/internal/services"
)

const maxBodyBytes = 1 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Server.APIBind),
		logger: logger,
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(cfg.Server.APIToken),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes(token string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/active", s.handleActiveSession)
	mux.HandleFunc("/api/sessions/complete", s.handleCompleteSession)
	mux.HandleFunc("/api/sessions/cancel", s.handleCancelAssignment)
	mux.HandleFunc("/api/sessions/log", s.handleSessionLog)
	mux.HandleFunc("/api/actions", s.handleAction)
	mux.HandleFunc("/api/codes/validate", s.handleValidateCode)
	mux.HandleFunc("/api/admin/items/remove", s.handleRemoveItem)
	mux.HandleFunc("/api/admin/items/restore", s.handleRestoreItem)
	mux.HandleFunc("/api/admin/items/force-complete", s.handleForceComplete)
	mux.HandleFunc("/api/admin/sessions/cancel", s.handleCancelSession)
	mux.HandleFunc("/api/admin/sessions/audit", s.handleAuditOutcome)
	return requestIDMiddleware(authMiddleware(token, mux))
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return errors.New("server.api_bind is empty")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	status := s.daemon.Status(r.Context())
	sessions := make(map[string]int, len(status.Sessions))
	for key, count := range status.Sessions {
		sessions[string(key)] = count
	}
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:       status.Running,
		PID:           status.PID,
		DatabasePath:  status.DatabasePath,
		LockFilePath:  status.LockFilePath,
		Notifications: status.Notifications,
		Sessions:      sessions,
	})
}

// handleSessions lists sessions on GET and creates one on POST.
func (s *apiServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var statuses []picking.Status
		for _, value := range r.URL.Query()["status"] {
			status, ok := picking.ParseStatus(value)
			if !ok {
				s.writeFailure(w, r, services.Wrap(services.ErrValidation, "api", "list sessions", "unknown status "+value, nil))
				return
			}
			statuses = append(statuses, status)
		}
		sessions, err := s.daemon.engine.Sessions(r.Context(), statuses...)
		if err != nil {
			s.writeFailure(w, r, err)
			return
		}
		out := make([]api.SessionSummary, 0, len(sessions))
		for _, session := range sessions {
			out = append(out, api.FromSession(session))
		}
		s.writeJSON(w, http.StatusOK, api.SessionListResponse{Sessions: out})
	case http.MethodPost:
		var req api.CreateSessionRequest
		if !s.decode(w, r, &req) {
			return
		}
		id, err := s.daemon.engine.CreateSession(r.Context(), req.PickerID, req.OrderIDs)
		if err != nil {
			s.writeFailure(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, api.CreateSessionResponse{SessionID: id})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (s *apiServer) handleActiveSession(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	query := r.URL.Query()
	opts := picking.ViewOptions{
		IncludeRemoved: parseBool(query.Get("includeRemoved")),
		Placement:      splitList(query.Get("placement")),
	}
	view, err := s.daemon.engine.ActiveSession(r.Context(), query.Get("pickerId"), opts)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *apiServer) handleAction(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodPost) {
		return
	}
	var action picking.Action
	if !s.decode(w, r, &action) {
		return
	}
	result, err := s.daemon.engine.RegisterAction(r.Context(), action)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodPost) {
		return
	}
	var req api.CompleteSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.writeResult(w, r, s.daemon.engine.CompleteSession(r.Context(), req.SessionID, req.PickerID))
}

func (s *apiServer) handleCancelAssignment(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodPost) {
		return
	}
	var req api.CancelAssignmentRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.writeResult(w, r, s.daemon.engine.CancelAssignment(r.Context(), req.PickerID))
}

func (s *apiServer) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodPost) {
		return
	}
	var req api.CancelSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.writeResult(w, r, s.daemon.engine.CancelSession(r.Context(), req.SessionID))
}

func (s *apiServer) handleAuditOutcome(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodPost) {
		return
	}
	var req api.AuditOutcomeRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.writeResult(w, r, s.daemon.engine.RecordAuditOutcome(r.Context(), req.SessionID, req.Outcome))
}

func (s *apiServer) handleSessionLog(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	sessionID := strings.TrimSpace(r.URL.Query().Get("sessionId"))
	events, err := s.daemon.engine.SessionLog(r.Context(), sessionID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.SessionLogResponse{SessionID: sessionID, Events: api.FromEvents(events)})
}

func (s *apiServer) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodPost) {
		return
	}
	var req api.ItemOverrideRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.writeResult(w, r, s.daemon.engine.RemoveItem(r.Context(), req.SessionID, req.ProductID, req.Actor, req.Reason))
}

func (s *apiServer) handleRestoreItem(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodPost) {
		return
	}
	var req api.ItemOverrideRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.writeResult(w, r, s.daemon.engine.RestoreItem(r.Context(), req.SessionID, req.ProductID, req.Actor, req.Reason))
}

func (s *apiServer) handleForceComplete(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodPost) {
		return
	}
	var req api.ItemOverrideRequest
	if !s.decode(w, r, &req) {
		return
	}
	orders, err := s.daemon.engine.ForceCompleteItem(r.Context(), req.SessionID, req.ProductID, req.Actor)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	resp := api.ForceCompleteResponse{OK: true, Orders: orders}
	for _, order := range orders {
		resp.Inserted += order.Inserted
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleValidateCode(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodPost) {
		return
	}
	var req api.CodeValidateRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.daemon.engine.ValidateManualCode(r.Context(), req.InputCode, req.ExpectedSKU)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return false
	}
	return true
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		s.writeFailure(w, r, services.Wrap(services.ErrValidation, "api", "decode request", "", err))
		return false
	}
	return true
}

func (s *apiServer) writeResult(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.OKResponse{OK: true})
}

// writeFailure maps a marked error onto its status and logs server faults.
func (s *apiServer) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := services.HTTPStatus(err)
	logger := logging.WithContext(r.Context(), s.log()).With(
		logging.String("method", r.Method),
		logging.String("path", r.URL.Path),
		logging.Int("status", status),
	)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logger, "request failed", "api_request_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the database and order service"),
		)
	} else {
		logger.Debug("request rejected", logging.Error(err))
	}
	s.writeJSON(w, status, api.NewError(err))
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Code: code})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}

func parseBool(value string) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	return err == nil && parsed
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
