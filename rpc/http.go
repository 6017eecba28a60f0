package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"

	"rafflechain/core/state"
	"rafflechain/indexer"
	"rafflechain/native/lottery"
	"rafflechain/observability"
	"rafflechain/observability/logging"
	telemetry "rafflechain/observability/otel"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	shutdownTimeout = 10 * time.Second
	requestIDHeader = "X-Request-ID"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeUnauthorized   = -32001
	codeRateLimited    = -32020
)

type contextKey string

const ctxKeyRequestID contextKey = "rpc.request_id"

// Config carries the server options resolved from the node configuration.
type Config struct {
	Auth      AuthConfig
	RateLimit RateLimit
	// EnableFaucet exposes the mint registration and issuance methods used
	// by local and test networks.
	EnableFaucet bool
}

type Server struct {
	engine  *lottery.Engine
	state   *state.Manager
	journal *indexer.Journal
	hub     *Hub
	auth    *Authenticator
	limiter *RateLimiter
	logger  *slog.Logger
	faucet  bool
}

func NewServer(cfg Config, engine *lottery.Engine, st *state.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:  engine,
		state:   st,
		hub:     NewHub(),
		auth:    NewAuthenticator(cfg.Auth),
		limiter: NewRateLimiter(cfg.RateLimit),
		logger:  logger,
		faucet:  cfg.EnableFaucet,
	}
}

// SetJournal enables lottery_events. A nil journal disables it again.
func (s *Server) SetJournal(journal *indexer.Journal) { s.journal = journal }

// Hub returns the broadcaster feeding /ws/events. Register it with the
// engine emitter so subscribers see every committed event.
func (s *Server) Hub() *Hub { return s.hub }

// Handler builds the HTTP surface: JSON-RPC, health, metrics and the event
// stream.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/events", s.handleEventsWS)
	r.With(s.limiter.Middleware).Post("/rpc", s.handle)
	return otelhttp.NewHandler(r, "lottery-rpc")
}

// Serve listens on addr until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting JSON-RPC server", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// rpcWriter remembers the JSON-RPC error code written for the request so the
// dispatcher can report it to metrics and traces.
type rpcWriter struct {
	http.ResponseWriter
	code int
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if rw, ok := w.(*rpcWriter); ok {
		rw.code = code
	}
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// callerHandler serves a method that acts on behalf of the authenticated
// caller.
type callerHandler func(w http.ResponseWriter, r *http.Request, req *RPCRequest, caller [20]byte)

func (s *Server) withCaller(w http.ResponseWriter, r *http.Request, req *RPCRequest, next callerHandler) {
	caller, authErr := s.auth.Authenticate(r)
	if authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	next(w, r, req, caller)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	ctx, span := telemetry.Tracer().Start(r.Context(), "rpc."+req.Method)
	defer span.End()
	span.SetAttributes(attribute.String("rpc.method", req.Method))
	r = r.WithContext(ctx)

	rw := &rpcWriter{ResponseWriter: w}
	started := time.Now()
	s.dispatch(rw, r, req)
	elapsed := time.Since(started)

	observability.ModuleMetrics().Observe(req.Method, rw.code, elapsed)
	attrs := []any{
		slog.String("method", req.Method),
		slog.String("request_id", requestIDFrom(r.Context())),
		slog.Duration("duration", elapsed),
	}
	if rw.code != 0 {
		span.SetAttributes(attribute.Int("rpc.jsonrpc.error_code", rw.code))
		span.SetStatus(otelcodes.Error, "json-rpc error")
		attrs = append(attrs, slog.Int("code", rw.code))
	}
	s.logger.Debug("rpc request", attrs...)
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	switch req.Method {
	case "lottery_createFeeConfig":
		s.withCaller(w, r, req, s.handleCreateFeeConfig)
	case "lottery_updateFeeConfig":
		s.withCaller(w, r, req, s.handleUpdateFeeConfig)
	case "lottery_create":
		s.withCaller(w, r, req, s.handleCreateLottery)
	case "lottery_fundPrize":
		s.withCaller(w, r, req, s.handleFundPrize)
	case "lottery_open":
		s.withCaller(w, r, req, s.handleOpenLottery)
	case "lottery_buyTickets":
		s.withCaller(w, r, req, s.handleBuyTickets)
	case "lottery_reveal":
		s.withCaller(w, r, req, s.handleRevealWinners)
	case "lottery_claimPrize":
		s.withCaller(w, r, req, s.handleClaimPrize)
	case "lottery_collectProceeds":
		s.withCaller(w, r, req, s.handleCollectProceeds)
	case "lottery_get":
		s.handleGetLottery(w, r, req)
	case "lottery_getFeeConfig":
		s.handleGetFeeConfig(w, r, req)
	case "lottery_balance":
		s.handleBalance(w, r, req)
	case "lottery_list":
		s.handleListLotteries(w, r, req)
	case "lottery_events":
		s.handleListEvents(w, r, req)
	case "lottery_registerMint":
		if !s.faucet || s.state == nil {
			writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %s not found", req.Method), nil)
			return
		}
		s.withCaller(w, r, req, s.handleRegisterMint)
	case "lottery_mintTo":
		if !s.faucet || s.state == nil {
			writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %s not found", req.Method), nil)
			return
		}
		s.withCaller(w, r, req, s.handleMintTo)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %s not found", req.Method), nil)
	}
}

// logCaller records the actor behind a state-changing call.
func (s *Server) logCaller(r *http.Request, method string, caller [20]byte, lotteryID string) {
	s.logger.Info("lottery call",
		slog.String("method", method),
		slog.String("request_id", requestIDFrom(r.Context())),
		logging.MaskField("caller", formatAccount(caller)),
		logging.MaskField("lottery", lotteryID),
	)
}
