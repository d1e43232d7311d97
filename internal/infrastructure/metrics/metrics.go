// Package metrics exposes Prometheus metrics for backup and restore operations.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/semmidev/dbkeeper/internal/domain"
)

// Metrics owns its registry so tests and multiple instances never collide
// on the global one.
type Metrics struct {
	registry *prometheus.Registry

	operations   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	artifactSize *prometheus.GaugeVec
	lastSuccess  *prometheus.GaugeVec
	uploads      *prometheus.CounterVec
	deletions    *prometheus.CounterVec

	now func() time.Time
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dbkeeper_operations_total",
			Help: "Backup and restore operations by engine and result.",
		}, []string{"operation", "engine", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dbkeeper_operation_duration_seconds",
			Help:    "Time taken by backup and restore operations.",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200},
		}, []string{"operation", "engine"}),
		artifactSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dbkeeper_backup_size_bytes",
			Help: "Size of the most recent backup artifact.",
		}, []string{"engine"}),
		lastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dbkeeper_backup_last_success_timestamp_seconds",
			Help: "Unix time of the last successful backup.",
		}, []string{"engine"}),
		uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dbkeeper_uploads_total",
			Help: "Artifact uploads to replication targets.",
		}, []string{"target", "status"}),
		deletions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dbkeeper_retention_deletions_total",
			Help: "Artifacts deleted by the retention policy.",
		}, []string{"location"}),
		now: time.Now,
	}
}

func (m *Metrics) ObserveOperation(op domain.Operation, engine domain.Engine, result string, elapsed time.Duration) {
	m.operations.WithLabelValues(string(op), string(engine), result).Inc()
	m.duration.WithLabelValues(string(op), string(engine)).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveArtifact(engine domain.Engine, sizeBytes int64) {
	m.artifactSize.WithLabelValues(string(engine)).Set(float64(sizeBytes))
	m.lastSuccess.WithLabelValues(string(engine)).Set(float64(m.now().Unix()))
}

func (m *Metrics) ObserveUpload(target string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.uploads.WithLabelValues(target, status).Inc()
}

func (m *Metrics) ObserveDeletions(location string, n int) {
	m.deletions.WithLabelValues(location).Add(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Server serves Handler until ctx ends.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Listen binds addr right away so a bad address fails at startup.
func (m *Metrics) Listen(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return &Server{
		ln: ln,
		srv: &http.Server{
			Handler:           m.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}, nil
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(s.ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
