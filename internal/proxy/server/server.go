// Package server implements the Proxy Server (§4.11): an HTTP listener
// that detects the calling package manager, evaluates policy for
// metadata/tarball requests, and forwards allowed traffic to the real
// upstream registry.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/depgate-dev/depgate/internal/domain"
	"github.com/depgate-dev/depgate/internal/proxy/cache"
	"github.com/depgate-dev/depgate/internal/proxy/evaluator"
	"github.com/depgate-dev/depgate/internal/proxy/parser"
	"github.com/depgate-dev/depgate/internal/proxy/upstream"
)

// Config configures one Server.
type Config struct {
	Host          string // default "127.0.0.1"; binding elsewhere requires AllowNonLoopback
	Port          int
	AllowNonLoopback bool
	DecisionMode  evaluator.Mode
}

// Server is the proxy's HTTP front end.
type Server struct {
	cfg       Config
	evaluator *evaluator.Evaluator
	upstream  *upstream.Client
	decisions *cache.DecisionCache
	responses *cache.ResponseCache
	httpSrv   *http.Server
	listener  net.Listener
}

// New builds a Server. It does not start listening; call Start.
func New(cfg Config, eval *evaluator.Evaluator, up *upstream.Client, decisions *cache.DecisionCache, responses *cache.ResponseCache) *Server {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.DecisionMode == "" {
		cfg.DecisionMode = evaluator.ModeBlock
	}
	s := &Server{cfg: cfg, evaluator: eval, upstream: up, decisions: decisions, responses: responses}
	mux := http.NewServeMux()
	mux.HandleFunc("/_depgate/health", s.handleHealth)
	mux.HandleFunc("/", s.handleProxy)
	s.httpSrv = &http.Server{Handler: withRequestID(mux)}
	return s
}

// requestIDHeader carries a per-request correlation ID so operators can
// grep a single request across the proxy's log lines.
const requestIDHeader = "X-Depgate-Request-Id"

type requestIDKey struct{}

// withRequestID stamps every request with a uuid (generated fresh unless
// the caller already supplied one) and echoes it back on the response.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Start binds the listener (on an ephemeral port when cfg.Port is 0,
// which `run` uses for its child-wrapping ephemeral proxy), prints the
// operator banner, and begins serving in a background goroutine.
func (s *Server) Start() error {
	if !isLoopback(s.cfg.Host) && !s.cfg.AllowNonLoopback {
		return errors.New("refusing to bind non-loopback address without --allow-non-loopback")
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("proxy: listen %s: %w", addr, err)
	}
	s.listener = ln

	s.printBanner()

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("proxy server stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound listener's address; valid only after Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown drains in-flight requests and releases the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func isLoopback(host string) bool {
	if host == "" || host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) printBanner() {
	addr := s.listener.Addr().String()
	fmt.Printf(`depgate proxy listening on http://%s (decision mode: %s)

Point your package manager at it, e.g.:
  npm config set registry http://%s/
  pip config set global.index-url http://%s/simple/
  dotnet nuget add source http://%s/v3/index.json -n depgate

`, addr, s.cfg.DecisionMode, addr, addr, addr)
}

type healthResponse struct {
	Status       string      `json:"status"`
	DecisionMode evaluator.Mode `json:"decision_mode"`
	Cache        cacheStats  `json:"cache"`
}

type cacheStats struct {
	DecisionHits      int64 `json:"decision_hits"`
	DecisionMisses    int64 `json:"decision_misses"`
	DecisionEvictions int64 `json:"decision_evictions"`
	ResponseHits      int64 `json:"response_hits"`
	ResponseMisses    int64 `json:"response_misses"`
	ResponseEvictions int64 `json:"response_evictions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ds := s.decisions.Stats()
	rs := s.responses.Stats()
	resp := healthResponse{
		Status:       "ok",
		DecisionMode: s.cfg.DecisionMode,
		Cache: cacheStats{
			DecisionHits: ds.Hits, DecisionMisses: ds.Misses, DecisionEvictions: ds.Evictions,
			ResponseHits: rs.Hits, ResponseMisses: rs.Misses, ResponseEvictions: rs.Evictions,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

type denyResponse struct {
	Error         string   `json:"error"`
	Package       string   `json:"package"`
	Version       string   `json:"version"`
	Registry      string   `json:"registry"`
	ViolatedRules []string `json:"violated_rules"`
	Message       string   `json:"message"`
}

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	hint := detectRegistryHint(r)
	pr := parser.Parse(r.URL.Path, hint)

	if pr.Unknown() && pr.PackageName != "" {
		http.Error(w, "could not parse request", http.StatusBadRequest)
		return
	}
	if pr.Unknown() {
		s.forward(w, r, hint, pr)
		return
	}

	if pr.IsMetadata || pr.IsTarball {
		respKey := r.Method + ":" + r.URL.Path
		if cache.IsCacheableRequest(r.Method, pr.IsTarball) {
			if entry, ok := s.responses.Get(respKey); ok {
				upstream.CopyForwardableResponseHeaders(w.Header(), entry.Header)
				w.WriteHeader(entry.StatusCode)
				_, _ = w.Write(entry.Body)
				return
			}
		}

		reqID := requestIDFrom(r.Context())

		result, err := s.evaluator.Evaluate(r.Context(), pr.RegistryType, pr.PackageName, pr.Version)
		if err != nil {
			slog.Error("policy evaluation failed", "request_id", reqID, "registry", pr.RegistryType, "package", pr.PackageName, "error", err)
			http.Error(w, "evaluation error", http.StatusBadGateway)
			return
		}

		if result.RawDecision == domain.Deny {
			logViolation(reqID, s.cfg.DecisionMode, pr, result)
		}

		if result.Decision == domain.Deny {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(denyResponse{
				Error:         "policy_violation",
				Package:       pr.PackageName,
				Version:       pr.Version,
				Registry:      string(pr.RegistryType),
				ViolatedRules: result.ViolatedRules,
				Message:       "request denied by policy",
			})
			return
		}
	}

	s.forward(w, r, pr.RegistryType, pr)
}

func logViolation(reqID string, mode evaluator.Mode, pr parser.ParsedRequest, result evaluator.Result) {
	switch mode {
	case evaluator.ModeWarn:
		slog.Warn("policy violation (decision mode warn: allowing)", "request_id", reqID, "registry", pr.RegistryType, "package", pr.PackageName, "version", pr.Version, "rules", result.ViolatedRules)
	case evaluator.ModeAudit:
		slog.Info("policy violation (decision mode audit: allowing)", "request_id", reqID, "registry", pr.RegistryType, "package", pr.PackageName, "version", pr.Version, "rules", result.ViolatedRules)
	default:
		slog.Info("policy violation (blocked)", "request_id", reqID, "registry", pr.RegistryType, "package", pr.PackageName, "version", pr.Version, "rules", result.ViolatedRules)
	}
}

func (s *Server) forward(w http.ResponseWriter, r *http.Request, eco domain.Ecosystem, pr parser.ParsedRequest) {
	var body []byte
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		body = b
	}

	resp, err := s.upstream.Forward(r.Method, eco, r.URL.Path, r.Header, body)
	if err != nil {
		slog.Error("upstream forward failed", "request_id", requestIDFrom(r.Context()), "registry", eco, "path", r.URL.Path, "error", err)
		http.Error(w, "upstream error", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	upstream.CopyForwardableResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return
	}
	_, _ = w.Write(respBody)

	if cache.IsCacheableRequest(r.Method, pr.IsTarball) && cache.IsCacheableResponse(resp.StatusCode, resp.Header) {
		hdr := http.Header{}
		upstream.CopyForwardableResponseHeaders(hdr, resp.Header)
		s.responses.Set(r.Method+":"+r.URL.Path, cache.ResponseEntry{StatusCode: resp.StatusCode, Header: hdr, Body: respBody})
	}
}

// detectRegistryHint implements §4.11 step 1: User-Agent, then Accept,
// then path prefixes.
func detectRegistryHint(r *http.Request) domain.Ecosystem {
	ua := strings.ToLower(r.Header.Get("User-Agent"))
	switch {
	case strings.Contains(ua, "npm") || strings.Contains(ua, "node"):
		return domain.Npm
	case strings.Contains(ua, "pip") || strings.Contains(ua, "python"):
		return domain.PyPI
	case strings.Contains(ua, "maven") || strings.Contains(ua, "gradle"):
		return domain.Maven
	case strings.Contains(ua, "nuget") || strings.Contains(ua, "dotnet"):
		return domain.NuGet
	}

	accept := strings.ToLower(r.Header.Get("Accept"))
	if strings.Contains(accept, "vnd.npm") {
		return domain.Npm
	}
	if strings.Contains(accept, "vnd.pypi") {
		return domain.PyPI
	}

	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/simple/") || strings.HasPrefix(path, "/pypi/"):
		return domain.PyPI
	case strings.HasPrefix(path, "/v3/") || strings.HasPrefix(path, "/v3-flatcontainer/"):
		return domain.NuGet
	}

	return ""
}
