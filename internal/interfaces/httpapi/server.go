package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"letterbox/internal/application"
	"letterbox/internal/domain"
	"letterbox/internal/infrastructure/telemetry"
)

type LetterSender interface {
	Send(ctx context.Context, recipient, message string) (domain.TransactionReceipt, error)
}

type LetterScanner interface {
	FetchRange(ctx context.Context, fromBlock, numBlocks uint64) ([]domain.Letter, error)
	Config() application.ScanConfig
}

type Inbox interface {
	Letters(ctx context.Context, filter application.LetterQueryFilter) ([]domain.StoredLetter, error)
	Rewind(ctx context.Context, fromBlock uint64) error
}

type AccountLister interface {
	Accounts(ctx context.Context) ([]domain.Address, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// Deps wires the server. Inbox and Store may be nil, in which case the inbox
// routes answer 503.
type Deps struct {
	Sender   LetterSender
	Scanner  LetterScanner
	Accounts AccountLister
	Inbox    Inbox
	Store    Pinger
	Metrics  *Metrics
}

type Server struct {
	deps      Deps
	metrics   *Metrics
	buildInfo BuildInfo
}

type sendRequest struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

type sendResponse struct {
	Receipt *domain.TransactionReceipt `json:"receipt,omitempty"`
	Error   string                     `json:"error,omitempty"`
	Kind    domain.Kind                `json:"kind,omitempty"`
}

func NewServer(deps Deps, buildInfo BuildInfo) (*Server, error) {
	if deps.Sender == nil || deps.Scanner == nil || deps.Accounts == nil {
		return nil, errors.New("http server dependencies must not be nil")
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Server{deps: deps, metrics: metrics, buildInfo: buildInfo}, nil
}

func (s *Server) MetricsObserver() *Metrics {
	return s.metrics
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("POST /letters", s.handleSend)
	mux.HandleFunc("GET /letters", s.handleScan)
	mux.HandleFunc("GET /inbox", s.handleInbox)
	mux.HandleFunc("POST /inbox/rewind", s.handleRewind)
	mux.HandleFunc("GET /accounts", s.handleAccounts)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /version", s.handleVersion)
	return mux
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	slog.Info("http api listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(ctx); err != nil {
			respondError(w, http.StatusServiceUnavailable, "inbox store not ready")
			return
		}
	}
	if _, err := s.deps.Accounts.Accounts(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "node not ready")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	if traceID := strings.TrimSpace(r.Header.Get("X-Trace-Id")); traceID != "" {
		if traced, ok := telemetry.ContextWithTraceID(ctx, traceID); ok {
			ctx = traced
		}
	}

	receipt, err := s.deps.Sender.Send(ctx, req.Recipient, req.Message)
	if err != nil {
		resp := sendResponse{Error: err.Error(), Kind: domain.KindOf(err)}
		if receipt.TxHash != "" {
			resp.Receipt = &receipt
		}
		respondJSON(w, statusForError(err), resp)
		return
	}
	respondJSON(w, http.StatusOK, sendResponse{Receipt: &receipt})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	defaults := s.deps.Scanner.Config()
	from, err := parseUintQuery(r, "from_block", defaults.FromBlock)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	num, err := parseUintQuery(r, "num_blocks", defaults.NumBlocks)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	letters, err := s.deps.Scanner.FetchRange(r.Context(), from, num)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, letters)
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	if s.deps.Inbox == nil {
		respondError(w, http.StatusServiceUnavailable, "inbox disabled")
		return
	}
	filter, err := parseLetterFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	letters, err := s.deps.Inbox.Letters(r.Context(), filter)
	if err != nil {
		if domain.KindOf(err) == "" {
			respondError(w, http.StatusInternalServerError, "query failed")
			return
		}
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, letters)
}

func (s *Server) handleRewind(w http.ResponseWriter, r *http.Request) {
	if s.deps.Inbox == nil {
		respondError(w, http.StatusServiceUnavailable, "inbox disabled")
		return
	}
	from, err := parseUintParam(r, "from_block")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Inbox.Rewind(r.Context(), from); err != nil {
		if domain.KindOf(err) == "" {
			respondError(w, http.StatusInternalServerError, "failed to update state")
			return
		}
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"from_block": from,
	})
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.deps.Accounts.Accounts(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	out := make([]string, 0, len(accounts))
	for _, account := range accounts {
		out = append(out, account.Hex())
	}
	respondJSON(w, http.StatusOK, map[string]any{"accounts": out})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.buildInfo)
}

func statusForError(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNoAccount:
		return http.StatusConflict
	case domain.KindTransaction:
		return http.StatusUnprocessableEntity
	case domain.KindConnection, domain.KindDecode:
		return http.StatusBadGateway
	case domain.KindConfiguration:
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func parseLetterFilter(r *http.Request) (application.LetterQueryFilter, error) {
	limit, err := parseLimit(r)
	if err != nil {
		return application.LetterQueryFilter{}, err
	}
	from, to, err := parseBlockRange(r)
	if err != nil {
		return application.LetterQueryFilter{}, err
	}
	return application.LetterQueryFilter{
		FromBlock: from,
		ToBlock:   to,
		Limit:     limit,
	}, nil
}

func parseLimit(r *http.Request) (int, error) {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			return 0, errors.New("invalid limit")
		}
		return value, nil
	}
	return 100, nil
}

func parseBlockRange(r *http.Request) (*uint64, *uint64, error) {
	fromRaw := r.URL.Query().Get("from_block")
	toRaw := r.URL.Query().Get("to_block")

	var from *uint64
	var to *uint64

	if fromRaw != "" {
		value, err := strconv.ParseUint(fromRaw, 10, 64)
		if err != nil {
			return nil, nil, errors.New("invalid from_block")
		}
		from = &value
	}
	if toRaw != "" {
		value, err := strconv.ParseUint(toRaw, 10, 64)
		if err != nil {
			return nil, nil, errors.New("invalid to_block")
		}
		to = &value
	}
	return from, to, nil
}

func parseUintQuery(r *http.Request, key string, defaultValue uint64) (uint64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return value, nil
}

// parseUintParam reads key from the query string, falling back to a JSON
// body of the form {"key": n}.
func parseUintParam(r *http.Request, key string) (uint64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			return 0, fmt.Errorf("%s is required", key)
		}
		valueAny, ok := payload[key]
		if !ok {
			return 0, fmt.Errorf("%s is required", key)
		}
		switch v := valueAny.(type) {
		case float64:
			if v < 0 {
				return 0, fmt.Errorf("invalid %s", key)
			}
			return uint64(v), nil
		case string:
			value, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid %s", key)
			}
			return value, nil
		default:
			return 0, fmt.Errorf("invalid %s", key)
		}
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return value, nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondDomainError(w http.ResponseWriter, err error) {
	respondJSON(w, statusForError(err), map[string]string{
		"error": err.Error(),
		"kind":  string(domain.KindOf(err)),
	})
}
