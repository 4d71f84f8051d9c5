package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmendiola/wagate/internal/app/outbound"
	"github.com/dmendiola/wagate/internal/app/session"
	"github.com/dmendiola/wagate/internal/domain"
	"github.com/dmendiola/wagate/internal/observability"
)

type Server struct {
	lifecycle  *session.Lifecycle
	dispatcher *outbound.Dispatcher
	regs       domain.RegistrationStore
	tokens     domain.TokenIssuer
}

func NewServer(
	lifecycle *session.Lifecycle,
	dispatcher *outbound.Dispatcher,
	regs domain.RegistrationStore,
	tokens domain.TokenIssuer,
) http.Handler {
	s := &Server{
		lifecycle:  lifecycle,
		dispatcher: dispatcher,
		regs:       regs,
		tokens:     tokens,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)

	// /api/register           → POST: start pairing, returns QR + token
	mux.HandleFunc("/api/register", s.handleRegister)

	// /api/status/{uid}       → GET
	// /api/disconnect/{uid}   → POST
	mux.HandleFunc("/api/status/", s.handleStatus)
	mux.HandleFunc("/api/disconnect/", s.handleDisconnect)

	// /api/send/chat          → POST
	// /api/send/media         → POST
	mux.HandleFunc("/api/send/chat", s.handleSendChat)
	mux.HandleFunc("/api/send/media", s.handleSendMedia)

	return chainMiddlewares(mux, withLogging, withCORS, withRequestID)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type registerRequest struct {
	UID string `json:"uid"`
}

type registerResponse struct {
	QRCode string `json:"qrCode"`
	Token  string `json:"token"`
}

type statusResponse struct {
	UID    string `json:"uid"`
	Status string `json:"status"`
}

type disconnectResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type sendChatRequest struct {
	Token string `json:"token"`
	UID   string `json:"uid"`
	To    string `json:"to"`
	Text  string `json:"text"`
}

type sendMediaRequest struct {
	Token string `json:"token"`
	UID   string `json:"uid"`
	To    string `json:"to"`
	URL   string `json:"url"`
	Type  string `json:"type,omitempty"`
}

type sendResponse struct {
	Status string `json:"status"`
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	uid := domain.UID(strings.TrimSpace(req.UID))
	if uid == "" {
		badRequest(w, "uid is required")
		return
	}

	if s.lifecycle.State(uid) == domain.StatusAuthenticated {
		badRequest(w, "uid is already authenticated")
		return
	}

	token, err := s.tokens.Issue(uid)
	if err != nil {
		internalError(w, r, err)
		return
	}

	qr, err := s.lifecycle.Create(r.Context(), uid)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			badRequest(w, err.Error())
		case errors.Is(err, domain.ErrQRTimeout):
			writeError(w, http.StatusGatewayTimeout, "pairing timed out before the code was scanned")
		default:
			internalError(w, r, err)
		}
		return
	}

	// Written after Create: superseding an old session wipes the uid's
	// previous registration as part of its teardown.
	now := time.Now()
	reg := &domain.Registration{
		UID:       uid,
		Token:     token,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if prev, getErr := s.regs.Get(r.Context(), uid); getErr == nil {
		reg.Authenticated = prev.Authenticated
		reg.CreatedAt = prev.CreatedAt
	}
	if err := s.regs.Put(r.Context(), reg); err != nil {
		internalError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, registerResponse{QRCode: qr, Token: token})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	uid := pathUID(r.URL.Path, "/api/status/")
	if uid == "" {
		badRequest(w, "uid is required")
		return
	}

	status := s.lifecycle.State(uid)
	writeSuccess(w, http.StatusOK, statusResponse{UID: string(uid), Status: string(status)})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	uid := pathUID(r.URL.Path, "/api/disconnect/")
	if uid == "" {
		badRequest(w, "uid is required")
		return
	}

	res := s.lifecycle.Disconnect(r.Context(), uid, false)
	writeJSON(w, http.StatusOK, disconnectResponse{Success: res.Found, Message: res.Message})
}

func (s *Server) handleSendChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req sendChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.UID == "" || req.To == "" || req.Text == "" {
		badRequest(w, "uid, to and text are required")
		return
	}

	uid := domain.UID(req.UID)
	if !s.authorize(r, req.Token, uid) {
		unauthorized(w)
		return
	}

	result, err := s.dispatcher.SendText(r.Context(), uid, req.To, req.Text)
	s.writeSendResult(w, r, result, err)
}

func (s *Server) handleSendMedia(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req sendMediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.UID == "" || req.To == "" || req.URL == "" {
		badRequest(w, "uid, to and url are required")
		return
	}

	uid := domain.UID(req.UID)
	if !s.authorize(r, req.Token, uid) {
		unauthorized(w)
		return
	}

	result, err := s.dispatcher.SendMedia(r.Context(), uid, req.To, req.URL, req.Type)
	s.writeSendResult(w, r, result, err)
}

// authorize checks the caller's token: it must be a valid credential for
// this uid and match the uid's current registration.
func (s *Server) authorize(r *http.Request, token string, uid domain.UID) bool {
	if token == "" {
		return false
	}
	tokenUID, err := s.tokens.Validate(token)
	if err != nil || tokenUID != uid {
		return false
	}
	reg, err := s.regs.Get(r.Context(), uid)
	if err != nil || reg.Token != token {
		return false
	}
	return true
}

func (s *Server) writeSendResult(w http.ResponseWriter, r *http.Request, result domain.SendResult, err error) {
	switch {
	case errors.Is(err, domain.ErrQuotaExceeded):
		writeError(w, http.StatusForbidden, "send quota exceeded")
	case errors.Is(err, domain.ErrAuth):
		unauthorized(w)
	case result == domain.SendSessionNotFound:
		writeJSON(w, http.StatusNotFound, sendResponse{Status: string(result)})
	case result == domain.SendOK:
		writeJSON(w, http.StatusOK, sendResponse{Status: string(result)})
	default:
		observability.LoggerFromContext(r.Context()).Error("send failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, sendResponse{Status: string(domain.SendFailed)})
	}
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func pathUID(path, prefix string) domain.UID {
	rest := strings.TrimPrefix(path, prefix)
	if rest == path || rest == "" || strings.Contains(rest, "/") {
		return ""
	}
	return domain.UID(rest)
}

type successEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type errorEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, successEnvelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorEnvelope{Success: false, Message: msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, msg)
}

func unauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "invalid token for uid")
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	observability.LoggerFromContext(r.Context()).Error("internal error", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
