package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"predictchain/core/types"
	"predictchain/native/access"
	"predictchain/native/committee"
	"predictchain/native/market"
	"predictchain/native/platform"
	"predictchain/native/points"
	"predictchain/services/eventarchive"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	visitorTTL      = 10 * time.Minute
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeNotFound       = -32004
	codeRateLimited    = -32020
)

// Backend is the read surface of the ledger processor.
type Backend interface {
	PlatformConfig() (*platform.Config, error)
	Creators() (*access.Registry, error)
	Market(id uint64) (*market.Market, error)
	Markets(from uint64, limit int) ([]*market.Market, error)
	Prediction(marketID uint64, user [20]byte) (*market.Prediction, error)
	Proposal(marketID uint64) (*committee.Proposal, error)
	PointsStats(user [20]byte) (*points.UserStats, error)
	Redemption(id uint64) (*points.Redemption, error)
	Profile(user [20]byte) (*points.Profile, bool, error)
	Balance(addr [20]byte) (uint64, error)
	PointsBalance(addr [20]byte) (uint64, error)
	Events(from uint64, limit int) ([]*types.Event, error)
}

// Archive is the optional SQL event archive.
type Archive interface {
	Query(filter eventarchive.Filter) ([]eventarchive.Record, error)
}

// ServerConfig tunes the HTTP surface. A zero RateLimit disables limiting.
type ServerConfig struct {
	RateLimit     float64
	Burst         int
	MaxPageSize   int
	EnableMetrics bool
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type Server struct {
	backend Backend
	archive Archive
	cfg     ServerConfig
	logger  *slog.Logger
	now     func() time.Time
	tracing trace.TracerProvider

	mu       sync.Mutex
	visitors map[string]*visitor
}

func NewServer(backend Backend, cfg ServerConfig, logger *slog.Logger) *Server {
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		backend:  backend,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

// SetArchive enables the archive_query method.
func (s *Server) SetArchive(archive Archive) {
	s.archive = archive
}

// SetTracerProvider overrides the global provider used for request spans.
func (s *Server) SetTracerProvider(tp trace.TracerProvider) {
	s.tracing = tp
}

// Handler returns the router serving JSON-RPC on POST /, plus /healthz and,
// when enabled, /metrics. Every request except health checks gets a span.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.cfg.EnableMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Post("/", s.handle)
	})
	opts := []otelhttp.Option{
		otelhttp.WithFilter(func(req *http.Request) bool { return req.URL.Path != "/healthz" }),
	}
	if s.tracing != nil {
		opts = append(opts, otelhttp.WithTracerProvider(s.tracing))
	}
	return otelhttp.NewHandler(r, "marketd.rpc", opts...)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
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

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
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
	w.Header().Set("Content-Type", "application/json")
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

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
	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("rpc.system", "jsonrpc"),
		attribute.String("rpc.method", req.Method),
	)

	switch req.Method {
	case "platform_getConfig":
		s.handlePlatformConfig(w, req)
	case "access_getCreators":
		s.handleCreators(w, req)
	case "market_get":
		s.handleMarketGet(w, req)
	case "market_list":
		s.handleMarketList(w, req)
	case "market_getPrediction":
		s.handlePrediction(w, req)
	case "committee_getProposal":
		s.handleProposal(w, req)
	case "points_getStats":
		s.handlePointsStats(w, req)
	case "points_getRedemption":
		s.handleRedemption(w, req)
	case "points_getProfile":
		s.handleProfile(w, req)
	case "balance_get":
		s.handleBalance(w, req)
	case "events_list":
		s.handleEvents(w, req)
	case "archive_query":
		s.handleArchiveQuery(w, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil)
	}
}

// writeBackendError classifies ledger errors into not-found and internal.
func (s *Server) writeBackendError(w http.ResponseWriter, req *RPCRequest, err error) {
	switch {
	case errors.Is(err, market.ErrMarketNotFound),
		errors.Is(err, market.ErrPredictionNotFound),
		errors.Is(err, committee.ErrProposalNotFound),
		errors.Is(err, points.ErrRedemptionNotFound),
		errors.Is(err, points.ErrNotInitialized),
		errors.Is(err, committee.ErrNotConfigured),
		errors.Is(err, platform.ErrNotInitialized),
		errors.Is(err, access.ErrNotInitialized):
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, err.Error(), nil)
	default:
		s.logger.Error("rpc backend failure", slog.String("method", req.Method), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal error", nil)
	}
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.RateLimit > 0 && !s.allowSource(clientSource(r)) {
			writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowSource(source string) bool {
	if source == "" {
		source = "unknown"
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, v := range s.visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(s.visitors, key)
		}
	}
	v, ok := s.visitors[source]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.Burst)}
		s.visitors[source] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
