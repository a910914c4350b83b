package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"lendvault/observability"
	"lendvault/observability/logging"
	"lendvault/rpc/modules"
)

const (
	sourceRateLimit = rate.Limit(10) // mutating requests per second per source
	sourceRateBurst = 20
)

type Server struct {
	lending *modules.LendingModule
	log     *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	authToken string
}

func NewServer(lending *modules.LendingModule, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	token := strings.TrimSpace(os.Getenv("LENDVAULT_RPC_TOKEN"))
	return &Server{
		lending:   lending,
		log:       log,
		limiters:  make(map[string]*rate.Limiter),
		authToken: token,
	}
}

// Router assembles the HTTP surface: the JSON-RPC endpoint, the Prometheus
// scrape target, and a liveness probe.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Post("/", s.handle)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", "addr", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return server.ListenAndServe()
}

// requestID tags every request with a correlation identifier, honoring one
// supplied by the caller.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")
	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	started := time.Now()

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(recorder, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(recorder, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(recorder, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(recorder, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(recorder, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	s.dispatch(recorder, r, req)
	observability.ModuleMetrics().Observe(req.Method, recorder.status, time.Since(started))
	if recorder.status >= 400 {
		s.log.Warn("rpc request failed",
			"method", req.Method,
			"status", recorder.status,
			logging.MaskField("source", clientSource(r)),
		)
	}
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	switch req.Method {
	case "lend_supply":
		if !s.allowMutation(w, r, req) {
			return
		}
		s.handleLendSupply(w, r, req)
	case "lend_withdraw":
		if !s.allowMutation(w, r, req) {
			return
		}
		s.handleLendWithdraw(w, r, req)
	case "lend_setCollateral":
		if !s.allowMutation(w, r, req) {
			return
		}
		s.handleLendSetCollateral(w, r, req)
	case "lend_borrow":
		if !s.allowMutation(w, r, req) {
			return
		}
		s.handleLendBorrow(w, r, req)
	case "lend_repay":
		if !s.allowMutation(w, r, req) {
			return
		}
		s.handleLendRepay(w, r, req)
	case "lend_liquidate":
		if !s.allowMutation(w, r, req) {
			return
		}
		s.handleLendLiquidate(w, r, req)
	case "lend_getMarket":
		s.handleLendGetMarket(w, r, req)
	case "lend_getMarkets":
		s.handleLendGetMarkets(w, r, req)
	case "lend_getPosition":
		s.handleLendGetPosition(w, r, req)
	case "lend_getProtocolFees":
		s.handleLendGetProtocolFees(w, r, req)
	case "lend_listAsset":
		if !s.requireAdmin(w, r, req) {
			return
		}
		s.handleLendListAsset(w, r, req)
	case "lend_setPaused":
		if !s.requireAdmin(w, r, req) {
			return
		}
		s.handleLendSetPaused(w, r, req)
	case "lend_withdrawFees":
		if !s.requireAdmin(w, r, req) {
			return
		}
		s.handleLendWithdrawFees(w, r, req)
	case "oracle_setPrice":
		if !s.requireAdmin(w, r, req) {
			return
		}
		s.handleOracleSetPrice(w, r, req)
	case "oracle_setPrices":
		if !s.requireAdmin(w, r, req) {
			return
		}
		s.handleOracleSetPrices(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
	}
}

// allowMutation applies the per-source rate limit to state-changing methods.
func (s *Server) allowMutation(w http.ResponseWriter, r *http.Request, req *RPCRequest) bool {
	source := clientSource(r)
	if !s.limiter(source).Allow() {
		observability.ModuleMetrics().RecordRateLimited(req.Method)
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
		return false
	}
	return true
}

func (s *Server) limiter(source string) *rate.Limiter {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(sourceRateLimit, sourceRateBurst)
		s.limiters[source] = limiter
	}
	return limiter
}

func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request, req *RPCRequest) bool {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return false
	}
	return true
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
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
