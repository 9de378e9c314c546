package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// StartPrometheusExporter registers an otel Prometheus exporter as the
// global MeterProvider and serves /metrics on addr in the background.
// Used only when the CLI's optional -metrics-addr flag is set; most runs
// never call this and New()'s counters simply accumulate unexported.
func StartPrometheusExporter(addr string) (func() error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("metrics: create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() { _ = srv.ListenAndServe() }()

	return srv.Close, nil
}
