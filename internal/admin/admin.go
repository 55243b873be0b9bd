// Package admin exposes an operator HTTP endpoint for emergency
// position flattening. Requests are authenticated with a TOTP code and
// the close-all flow requires a second confirmation call, so a single
// leaked request can never flatten the book on its own.
package admin

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"

	"savantbot/internal/model"
)

const confirmWindow = 30 * time.Second

// Config configures the admin server.
type Config struct {
	Addr       string // listen address, e.g. ":8070"
	TOTPSecret string // shared TOTP secret, base32
}

// Server handles panic-close requests.
type Server struct {
	cfg       Config
	positions model.PositionSource
	executor  model.OrderExecutor
	events    model.EventLogger

	mu      sync.Mutex
	pending string    // confirmation token, empty when no panic is pending
	expires time.Time // pending token deadline
}

// New creates the admin server.
func New(cfg Config, positions model.PositionSource, executor model.OrderExecutor, events model.EventLogger) *Server {
	return &Server{
		cfg:       cfg,
		positions: positions,
		executor:  executor,
		events:    events,
	}
}

// Handler returns the HTTP handler for mounting.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/panic", s.handlePanic)
	mux.HandleFunc("/panic/confirm", s.handleConfirm)
	return mux
}

// Serve starts the admin HTTP server and shuts it down with ctx.
func (s *Server) Serve(ctx context.Context) {
	srv := &http.Server{Addr: s.cfg.Addr, Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	go func() {
		log.Printf("[admin] serving on %s", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[admin] server error: %v", err)
		}
	}()
}

type panicRequest struct {
	Code string `json:"code"` // current TOTP code
}

type confirmRequest struct {
	Code  string `json:"code"`
	Token string `json:"token"`
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request, code string) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if s.cfg.TOTPSecret == "" {
		http.Error(w, "panic endpoint not configured", http.StatusServiceUnavailable)
		return false
	}
	if !totp.Validate(code, s.cfg.TOTPSecret) {
		log.Printf("[admin] rejected panic request from %s: bad TOTP", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

// handlePanic validates the TOTP code and returns a one-shot
// confirmation token together with the positions that would be closed.
func (s *Server) handlePanic(w http.ResponseWriter, r *http.Request) {
	var req panicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if !s.authorize(w, r, req.Code) {
		return
	}

	positions, err := s.positions.OpenPositions(r.Context())
	if err != nil {
		http.Error(w, "cannot read positions: "+err.Error(), http.StatusBadGateway)
		return
	}
	if len(positions) == 0 {
		writeJSON(w, map[string]any{"status": "flat", "message": "no open positions"})
		return
	}

	token := newToken()
	s.mu.Lock()
	s.pending = token
	s.expires = time.Now().Add(confirmWindow)
	s.mu.Unlock()

	log.Printf("[admin] panic requested, %d open position(s), awaiting confirmation", len(positions))
	writeJSON(w, map[string]any{
		"status":     "pending",
		"token":      token,
		"expires_in": confirmWindow.String(),
		"positions":  positions,
	})
}

// handleConfirm closes every open position at market.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if !s.authorize(w, r, req.Code) {
		return
	}

	s.mu.Lock()
	valid := s.pending != "" && req.Token == s.pending && time.Now().Before(s.expires)
	s.pending = ""
	s.mu.Unlock()
	if !valid {
		http.Error(w, "no pending panic or token expired", http.StatusConflict)
		return
	}

	positions, err := s.positions.OpenPositions(r.Context())
	if err != nil {
		http.Error(w, "cannot read positions: "+err.Error(), http.StatusBadGateway)
		return
	}

	closed := 0
	var failures []string
	for _, pos := range positions {
		// Selling closes longs; buying closes shorts.
		isBuy := pos.Direction == model.DirectionShort
		res, err := s.executor.MarketOrder(r.Context(), pos.Asset, isBuy, pos.Size)
		if err != nil || !res.OK {
			msg := pos.Asset
			if err != nil {
				msg += ": " + err.Error()
			} else {
				msg += ": " + res.Message
			}
			failures = append(failures, msg)
			continue
		}
		closed++

		ev := model.NewEvent(model.EventTradeExecuted, model.CloseDetails{
			Asset:  pos.Asset,
			Size:   pos.Size,
			ROE:    pos.ReturnOnEquity,
			Reason: "PANIC_CLOSE",
		})
		if err := s.events.LogEvent(r.Context(), ev); err != nil {
			log.Printf("[admin] event log error: %v", err)
		}
	}

	log.Printf("[admin] panic close executed: %d closed, %d failed", closed, len(failures))
	writeJSON(w, map[string]any{
		"status":   "done",
		"closed":   closed,
		"failures": failures,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
