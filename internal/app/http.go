package app

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/MrWong99/ringwatch/internal/eventlog"
	"github.com/MrWong99/ringwatch/internal/health"
	"github.com/MrWong99/ringwatch/internal/observe"
	"github.com/MrWong99/ringwatch/internal/unlock"
)

// initHTTP registers every route and builds the server.
func (a *App) initHTTP() {
	a.mux = http.NewServeMux()

	unlock.NewHandler(a.otps, a.actuator,
		unlock.WithMetrics(a.metrics),
		unlock.WithLogger(a.log),
	).Register(a.mux)

	health.New(a.readinessChecks(), health.WithInfo(a.healthInfo)).Register(a.mux)

	if a.metricsHandler != nil {
		a.mux.Handle("GET /metrics", a.metricsHandler)
	}
	a.mux.Handle("GET /ws", a.hub)
	a.mux.HandleFunc("GET /events", a.handleEvents)

	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(a.mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Handler returns the application's HTTP handler including middleware.
func (a *App) Handler() http.Handler { return a.server.Handler }

// runner is implemented by sources that report whether capture is live.
type runner interface {
	Running() bool
}

func (a *App) readinessChecks() []health.Checker {
	return []health.Checker{
		{
			Name: "capture",
			Check: func(context.Context) error {
				if r, ok := a.source.(runner); ok && !r.Running() {
					return errCaptureStopped
				}
				return nil
			},
		},
		{
			Name:  "events",
			Check: func(ctx context.Context) error { return a.events.Ping(ctx) },
		},
	}
}

func (a *App) healthInfo() map[string]any {
	info := map[string]any{
		"mode":           a.coord.Mode(),
		"throttle":       a.coord.Throttle().String(),
		"active_otps":    a.otps.Active(),
		"stream_clients": a.hub.Clients(),
	}
	if ev := a.lastEvent.Load(); ev != nil {
		info["last_detection"] = ev.At
	}
	return info
}

// handleEvents lists recent detections, newest first. The optional limit
// query parameter caps the count.
func (a *App) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := a.events.Recent(r.Context(), limit)
	if err != nil {
		observe.Logger(r.Context(), a.log).Error("list events failed", "err", err)
		http.Error(w, "failed to list events", http.StatusInternalServerError)
		return
	}

	if entries == nil {
		entries = []eventlog.Entry{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"events": entries})
}
