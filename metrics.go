package main

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sys/cpu"
)

type serverMetrics struct {
	registry        *prometheus.Registry
	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	cpuFeatures     *prometheus.GaugeVec
}

func newServerMetrics(reg *prometheus.Registry) *serverMetrics {
	m := &serverMetrics{
		registry: reg,
		requestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asset_http_requests_total",
				Help: "Total number of HTTP requests by route, method and status",
			}, []string{"route", "method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "asset_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			}, []string{"route"},
		),
		cpuFeatures: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "host_cpu_feature",
				Help: "CPU features of the host (1 = available)",
			}, []string{"feature"},
		),
	}
	reg.MustRegister(
		m.requestCount,
		m.requestDuration,
		m.cpuFeatures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	for feature, ok := range map[string]bool{
		"sse41":   cpu.X86.HasSSE41,
		"avx2":    cpu.X86.HasAVX2,
		"avx512f": cpu.X86.HasAVX512F,
		"asimd":   cpu.ARM64.HasASIMD,
	} {
		v := 0.0
		if ok {
			v = 1
		}
		m.cpuFeatures.WithLabelValues(feature).Set(v)
	}
	return m
}

func (s *AppState) addMonitoringRoutes(r *mux.Router) {
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

// middleware records every request under its route template, so shard names
// do not explode the label set.
func (m *serverMetrics) middleware(router *mux.Router, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		router.ServeHTTP(lrw, r)
		duration := time.Since(start)

		route := "unmatched"
		var match mux.RouteMatch
		if router.Match(r, &match) && match.Route != nil {
			if tpl, err := match.Route.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, lrw.statusCode, duration)
		m.requestCount.WithLabelValues(route, r.Method, strconv.Itoa(lrw.statusCode)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}
