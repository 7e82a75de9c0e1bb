package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/premarket-labs/spreadbot/internal/domain"
	"github.com/premarket-labs/spreadbot/internal/notify"
)

type handlers struct {
	recorder  *notify.Recorder
	muter     Muter
	producers []string
	engines   []string
	started   time.Time
}

// GET /api/health
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// alertView is the wire shape for one recorded alert.
type alertView struct {
	ID            string  `json:"id"`
	Kind          string  `json:"kind"`
	Token         string  `json:"token"`
	GrossPercent  float64 `json:"gross_spread_percent"`
	NetPercent    float64 `json:"net_spread_percent"`
	NotionalUSDT  float64 `json:"reference_notional_usdt"`
	Buy           string  `json:"buy"`
	Sell          string  `json:"sell"`
	UpdatedAtUnix int64   `json:"updated_at_ms"`
}

func newAlertView(a domain.Alert) alertView {
	core := a.Core()
	tv := a.TradeView()
	return alertView{
		ID:            core.ID,
		Kind:          a.Kind(),
		Token:         core.Token,
		GrossPercent:  core.GrossSpreadPercent,
		NetPercent:    core.NetSpreadPercent,
		NotionalUSDT:  core.ReferenceNotional,
		Buy:           tv.BuyLabel,
		Sell:          tv.SellLabel,
		UpdatedAtUnix: core.UpdatedAtMs,
	}
}

// GET /api/status
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	recent := make(map[string][]alertView)
	var tokens []string
	lastAlert := ""
	if h.recorder != nil {
		tokens = h.recorder.Tokens()
		for _, token := range tokens {
			views := []alertView{}
			for _, a := range h.recorder.Recent(token) {
				views = append(views, newAlertView(a))
			}
			recent[token] = views
		}
		if at := h.recorder.LastAlertAt(); !at.IsZero() {
			lastAlert = at.UTC().Format(time.RFC3339)
		}
	}

	muted := []string{}
	if h.muter != nil {
		muted = h.muter.MutedTokens()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"started_at":     h.started.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"producers":      h.producers,
		"engines":        h.engines,
		"tokens":         tokens,
		"recent_alerts":  recent,
		"last_alert_at":  lastAlert,
		"muted_tokens":   muted,
	})
}

// POST /api/mute/{token}
func (h *handlers) mute(w http.ResponseWriter, r *http.Request) {
	token := strings.ToUpper(r.PathValue("token"))
	if token == "" {
		writeError(w, http.StatusBadRequest, "missing token")
		return
	}
	if h.muter == nil {
		writeError(w, http.StatusServiceUnavailable, "telegram delivery disabled")
		return
	}
	h.muter.Mute(token)
	writeJSON(w, http.StatusOK, map[string]any{"muted": h.muter.MutedTokens()})
}

// DELETE /api/mute/{token}
func (h *handlers) unmute(w http.ResponseWriter, r *http.Request) {
	token := strings.ToUpper(r.PathValue("token"))
	if token == "" {
		writeError(w, http.StatusBadRequest, "missing token")
		return
	}
	if h.muter == nil {
		writeError(w, http.StatusServiceUnavailable, "telegram delivery disabled")
		return
	}
	h.muter.Unmute(token)
	writeJSON(w, http.StatusOK, map[string]any{"muted": h.muter.MutedTokens()})
}

// writeJSON marshals v and writes it with the given status code. A marshal
// failure falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
