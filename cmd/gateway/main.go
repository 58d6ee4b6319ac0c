// The gateway is the triage control plane: it evaluates classified
// alerts through the policy engine, serves the dashboard REST API over
// the rule tables and incidents, resolves pending approvals, and
// streams refresh events to connected dashboards.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tejasgit/zero-trust-agent/pkg/audit"
	"github.com/tejasgit/zero-trust-agent/pkg/engine"
	"github.com/tejasgit/zero-trust-agent/pkg/gate"
	"github.com/tejasgit/zero-trust-agent/pkg/httpx"
	"github.com/tejasgit/zero-trust-agent/pkg/ingest"
	"github.com/tejasgit/zero-trust-agent/pkg/metrics"
	"github.com/tejasgit/zero-trust-agent/pkg/ratelimit"
	"github.com/tejasgit/zero-trust-agent/pkg/store"
	"github.com/tejasgit/zero-trust-agent/pkg/stream"
	"github.com/tejasgit/zero-trust-agent/pkg/telemetry"
)

type Server struct {
	Store               store.Store
	Audit               audit.Sink
	Engine              *engine.Engine
	Ledger              *gate.Ledger
	Cache               store.Cache
	Metrics             *metrics.Registry
	Events              *stream.Hub
	Logger              *log.Logger
	MaxRequestBodyBytes int64
}

// Seams for startup tests.
var (
	logFatalf      = log.Fatalf
	initTelemetryG = telemetry.Init
	openDBFnG      = store.NewPostgresPool
	openRedisFnG   = store.NewRedis
	listenFnG      = func(server *http.Server) error { return server.ListenAndServe() }
	startIngestFnG = startIngest
)

func main() {
	if err := runGateway(initTelemetryG, openDBFnG, openRedisFnG, listenFnG, startIngestFnG); err != nil {
		logFatalf("gateway: %v", err)
	}
}

func runGateway(
	initTelemetry func(context.Context, string) (func(context.Context) error, error),
	openDB func(context.Context) (*pgxpool.Pool, error),
	openRedis func(context.Context) (*redis.Client, error),
	listen func(*http.Server) error,
	startIngestLoop func(context.Context, *Server),
) error {
	ctx := context.Background()
	shutdown, err := initTelemetry(ctx, "triage-gateway")
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	dbPool, err := openDB(ctx)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer dbPool.Close()

	redisClient, err := openRedis(ctx)
	if err != nil {
		log.Printf("redis unavailable, falling back to in-memory cache/limits: %v", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	s := newServer(ctx, store.NewPostgresStore(dbPool), &audit.Writer{DB: dbPool}, redisClient)

	if startIngestLoop != nil {
		startIngestLoop(ctx, s)
	}

	addr := env("ADDR", ":8080")
	log.Printf("gateway listening on %s", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: envDurationSec("HTTP_READ_HEADER_TIMEOUT_SEC", 5),
		ReadTimeout:       envDurationSec("HTTP_READ_TIMEOUT_SEC", 15),
		WriteTimeout:      envDurationSec("HTTP_WRITE_TIMEOUT_SEC", 30),
		IdleTimeout:       envDurationSec("HTTP_IDLE_TIMEOUT_SEC", 120),
	}
	if listen == nil {
		return errors.New("listen function required")
	}
	return listen(server)
}

// newServer wires storage, cache, engine, ledger, metrics and the
// event hub into one Server. Tests call it with memory backends.
func newServer(ctx context.Context, st store.Store, sink audit.Sink, redisClient *redis.Client) *Server {
	logger := log.New(os.Stderr, "gateway ", log.LstdFlags|log.Lmsgprefix)
	reg := metrics.NewRegistry()
	hub := stream.NewHub()

	cache := store.NewCache(ctx, redisClient)
	var limiter ratelimit.Limiter
	if redisClient != nil {
		limiter = ratelimit.NewRedis(redisClient, ratelimit.DefaultWindow)
	} else {
		limiter = ratelimit.NewInMemory(ratelimit.DefaultWindow)
	}

	eng := &engine.Engine{
		Store:   st,
		Cache:   cache,
		Audit:   sink,
		Limiter: limiter,
		Logger:  logger,
	}
	eng.OnDecision = func(out engine.Outcome) {
		reg.IncDecision(out.Result, out.Band)
		if out.Result == engine.ResultSuppressed {
			reg.IncSuppressed()
		}
		if out.Gate != nil {
			reg.IncGateOutcome(out.Gate.Outcome)
		}
		hub.Publish(stream.NewEvent(stream.EventDecision, out))
	}

	s := &Server{
		Store:               st,
		Audit:               sink,
		Engine:              eng,
		Cache:               cache,
		Metrics:             reg,
		Events:              hub,
		Logger:              logger,
		MaxRequestBodyBytes: int64(envInt("MAX_REQUEST_BODY_BYTES", 1<<20)),
	}
	s.Ledger = gate.NewLedger(func(res gate.Resolution) {
		reg.IncApprovalState(res.Status)
		if err := eng.ResolveApproval(context.Background(), res); err != nil {
			logger.Printf("approval resolution %s: %v", res.ID, err)
		}
		hub.Publish(stream.NewEvent(stream.EventApproval, res))
	})
	return s
}

func startIngest(ctx context.Context, s *Server) {
	cfg := ingest.ConfigFromEnv()
	if len(cfg.Brokers) == 0 {
		return
	}
	consumer, err := ingest.NewKafkaConsumer(cfg)
	if err != nil {
		s.Logger.Printf("kafka intake disabled: %v", err)
		return
	}
	loop := &ingest.Loop{
		Consumer:  consumer,
		Engine:    s.Engine,
		Logger:    s.Logger,
		OnMessage: s.Metrics.IncIngested,
	}
	go func() {
		defer consumer.Close()
		if err := loop.Run(ctx); err != nil {
			s.Logger.Printf("kafka intake stopped: %v", err)
		}
	}()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(httpx.CORSMiddleware(env("CORS_ALLOWED_ORIGINS", "")))
	r.Use(httpx.SecurityHeadersMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(telemetry.HTTPMiddleware("triage-gateway"))
	r.Use(s.limitRequestBodyMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, 200, map[string]string{"status": "ok", "service": "triage-gateway"})
	})
	r.Get("/metrics", s.Metrics.Handler())
	r.Get("/metrics/prometheus", s.Metrics.PrometheusHandler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/incidents", s.listIncidents)
		r.Post("/incidents", s.createIncident)
		r.Get("/incidents/{id}", s.getIncident)
		r.Patch("/incidents/{id}", s.patchIncident)
		r.Delete("/incidents/{id}", s.deleteIncident)
		r.Get("/incidents/{id}/audit", s.incidentAudit)

		r.Get("/audit", s.listAudit)

		r.Get("/settings", s.getSettings)
		r.Patch("/settings", s.patchSettings)

		r.Get("/escalation-rules", s.listEscalationRules)
		r.Post("/escalation-rules", s.createEscalationRule)
		r.Get("/escalation-rules/{id}", s.getEscalationRule)
		r.Patch("/escalation-rules/{id}", s.patchEscalationRule)
		r.Delete("/escalation-rules/{id}", s.deleteEscalationRule)

		r.Get("/gating-rules", s.listGatingRules)
		r.Post("/gating-rules", s.createGatingRule)
		r.Get("/gating-rules/{id}", s.getGatingRule)
		r.Patch("/gating-rules/{id}", s.patchGatingRule)
		r.Delete("/gating-rules/{id}", s.deleteGatingRule)

		r.Get("/suppression-rules", s.listSuppressionRules)
		r.Post("/suppression-rules", s.createSuppressionRule)
		r.Get("/suppression-rules/{id}", s.getSuppressionRule)
		r.Patch("/suppression-rules/{id}", s.patchSuppressionRule)
		r.Delete("/suppression-rules/{id}", s.deleteSuppressionRule)

		r.Get("/decision-matrix", s.listMatrix)
		r.Post("/decision-matrix", s.createMatrixEntry)
		r.Get("/decision-matrix/{id}", s.getMatrixEntry)
		r.Patch("/decision-matrix/{id}", s.patchMatrixEntry)
		r.Delete("/decision-matrix/{id}", s.deleteMatrixEntry)

		r.Get("/policies", s.listPolicies)
		r.Get("/policies/{id}", s.getPolicy)
		r.Patch("/policies/{id}", s.patchPolicy)

		r.Get("/sources", s.listSources)

		r.Post("/alerts/evaluate", s.evaluateAlert)

		r.Get("/approvals", s.listApprovals)
		r.Post("/approvals/{id}", s.resolveApproval)

		r.Get("/stream", s.streamEvents)
	})
	return r
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: 200}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)
		path := r.Method + " " + r.URL.Path
		s.Metrics.Observe(path, rec.code, elapsed)
		s.Metrics.ObserveLatency(path, elapsed)
	})
}

func (s *Server) limitRequestBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.MaxRequestBodyBytes > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.MaxRequestBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func actorFrom(r *http.Request) string {
	if actor := strings.TrimSpace(r.Header.Get("X-Actor")); actor != "" {
		return actor
	}
	return "dashboard"
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envDurationSec(k string, def int) time.Duration {
	return time.Second * time.Duration(envInt(k, def))
}
