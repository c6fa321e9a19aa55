package unlock

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/MrWong99/ringwatch/internal/observe"
)

// maxBody bounds the request body.
const maxBody = 4 << 10

// Validator checks and consumes one-time passwords.
type Validator interface {
	Validate(code string) bool
}

// request is the POST /unlock body.
type request struct {
	OTP string `json:"otp"`
}

// response is the JSON body of every /unlock reply.
type response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HandlerOption configures a [Handler].
type HandlerOption func(*Handler)

// WithMetrics records unlock attempts to m.
func WithMetrics(m *observe.Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) { h.log = l }
}

// Handler serves POST /unlock. Actuations are serialised so two valid codes
// never drive the lock concurrently.
type Handler struct {
	otps    Validator
	act     Actuator
	metrics *observe.Metrics
	log     *slog.Logger

	mu sync.Mutex
}

// NewHandler returns a Handler that validates codes with otps and unlocks
// with act.
func NewHandler(otps Validator, act Actuator, opts ...HandlerOption) *Handler {
	h := &Handler{otps: otps, act: act, log: slog.Default()}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register adds the POST /unlock route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /unlock", h)
}

// ServeHTTP implements [http.Handler].
//
//	400 body is not JSON or carries no code
//	401 code unknown, used or expired
//	500 actuator failed
//	200 door unlocked
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := observe.StartSpan(r.Context(), "unlock")
	defer span.End()
	log := observe.Logger(ctx, h.log)

	var req request
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(&req); err != nil {
		h.record(r, "bad_request")
		msg := "invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = "no JSON data provided"
		}
		h.reply(w, http.StatusBadRequest, "error", msg)
		return
	}
	if req.OTP == "" {
		h.record(r, "bad_request")
		h.reply(w, http.StatusBadRequest, "error", "OTP is required")
		return
	}
	if !h.otps.Validate(req.OTP) {
		h.record(r, "denied")
		log.Warn("unlock denied: invalid or expired OTP", "remote", r.RemoteAddr)
		h.reply(w, http.StatusUnauthorized, "error", "Invalid or expired OTP")
		return
	}

	h.mu.Lock()
	err := h.act.Unlock(ctx)
	h.mu.Unlock()
	if err != nil {
		h.record(r, "failed")
		observe.FailSpan(span, err)
		log.Error("unlock failed", "err", err)
		h.reply(w, http.StatusInternalServerError, "error", err.Error())
		return
	}

	h.record(r, "unlocked")
	log.Info("door unlocked", "remote", r.RemoteAddr)
	h.reply(w, http.StatusOK, "success", "unlocked")
}

func (h *Handler) record(r *http.Request, status string) {
	if h.metrics != nil {
		h.metrics.RecordUnlock(r.Context(), status)
	}
}

func (h *Handler) reply(w http.ResponseWriter, code int, status, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(response{Status: status, Message: msg})
}
