package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Métricas HTTP registradas automaticamente no registro padrão do
// Prometheus via promauto.
var (
	// http_requests_total é um CONTADOR de requisições recebidas.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Número total de requisições HTTP recebidas.",
		},
		[]string{"method", "path", "code"},
	)

	// http_request_duration_seconds é um HISTOGRAMA de latência, bom para
	// percentis (p99, p95).
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duração das requisições HTTP em segundos.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "code"},
	)
)

// prometheusMiddleware coleta as métricas de cada requisição.
func prometheusMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// ResponseWriter customizado para capturar o status code da resposta.
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start).Seconds()
		statusCode := ww.Status()

		// Usa o padrão da rota (ex: /assinaturas/{userId}) para não criar
		// uma série por ID de usuário.
		routePattern := chi.RouteContext(r.Context()).RoutePattern()

		httpRequestsTotal.WithLabelValues(r.Method, routePattern, strconv.Itoa(statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, routePattern, strconv.Itoa(statusCode)).Observe(duration)
	})
}
