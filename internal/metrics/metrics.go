// Package metrics exposes the Prometheus counters this system reports
// in place of the source's periodic log-line summaries (SPEC_FULL.md
// supplemental feature: metrics reporting).
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the counters the upload worker pool and connection
// accounting report against.
type Registry struct {
	UploadsSucceeded prometheus.Counter
	UploadsFailed    prometheus.Counter
	BytesUploaded    prometheus.Counter
	ActiveSessions   prometheus.Gauge
	reg              *prometheus.Registry
}

// New builds a Registry with every metric registered under the
// nebulaftp_ namespace.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		UploadsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nebulaftp", Name: "uploads_succeeded_total",
			Help: "Chunked uploads that completed and swapped to status=completed.",
		}),
		UploadsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nebulaftp", Name: "uploads_failed_total",
			Help: "Chunked uploads abandoned after exhausting retries.",
		}),
		BytesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nebulaftp", Name: "bytes_uploaded_total",
			Help: "Total bytes pushed to the blob backend.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nebulaftp", Name: "active_sessions",
			Help: "Currently connected FTP sessions.",
		}),
		reg: reg,
	}
	reg.MustRegister(r.UploadsSucceeded, r.UploadsFailed, r.BytesUploaded, r.ActiveSessions)
	return r
}

// UploadSucceeded satisfies upload.Metrics.
func (r *Registry) UploadSucceeded(bytes int64) {
	r.UploadsSucceeded.Inc()
	r.BytesUploaded.Add(float64(bytes))
}

// UploadFailed satisfies upload.Metrics.
func (r *Registry) UploadFailed() {
	r.UploadsFailed.Inc()
}

// SetActiveSessions satisfies ftpserver.SessionMetrics.
func (r *Registry) SetActiveSessions(n int) {
	r.ActiveSessions.Set(float64(n))
}

// Serve starts an HTTP server exposing /metrics on addr until ctx is
// cancelled. A blank addr disables the server entirely.
func (r *Registry) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
