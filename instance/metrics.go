package instance

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nabbar/reactor/chpool"
)

// ServeMetrics registers collectors and starts a /metrics HTTP server on
// cfg.AdminPort in the background. It is independent of the reactor's
// own poller-driven listeners since Prometheus scraping is a plain
// blocking HTTP server, matching how the teacher's admin surfaces run a
// separate net/http mux rather than routing scrape requests through the
// event loop.
func (i *Instance) ServeMetrics(collectors ...prometheus.Collector) error {
	if i.Config.AdminPort == 0 {
		return nil
	}
	reg := prometheus.NewRegistry()
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("registering metric: %w", err)
		}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf(":%d", i.Config.AdminPort)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			i.Log.WithError(err).Error("metrics server stopped")
		}
	}()
	i.Log.WithField("addr", addr).Info("metrics server listening")
	return nil
}

// PoolMetrics returns an unregistered chpool.Metrics set namespaced by the
// app name, for pools the application creates during InitChannel.
func (i *Instance) PoolMetrics() *chpool.Metrics {
	return chpool.NewMetrics(i.Config.AppName)
}
