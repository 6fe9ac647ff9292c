package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rallytiming/internal/metrics"
)

// Routes builds the HTTP handler with middleware applied.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)

	v1 := r.PathPrefix("/v1").Subrouter()
	if s.Limiter != nil {
		v1.Use(s.Limiter.Middleware)
	}

	// Classification
	v1.HandleFunc("/events/{eventId:[0-9]+}/classification", s.ClassificationHandler).Methods(http.MethodGet)
	v1.HandleFunc("/events/{eventId:[0-9]+}/classification.xlsx", s.ClassificationXLSXHandler).Methods(http.MethodGet)

	// Results
	v1.HandleFunc("/events/{eventId:[0-9]+}/results", s.EventResultsHandler).Methods(http.MethodGet)
	v1.HandleFunc("/events/{eventId:[0-9]+}/results/import", s.ImportResultsHandler).Methods(http.MethodPost)
	v1.HandleFunc("/events/{eventId:[0-9]+}/elapsed-times", s.ElapsedTimesHandler).Methods(http.MethodPost)
	v1.HandleFunc("/stage-results", s.CreateResultHandler).Methods(http.MethodPost)
	v1.HandleFunc("/stage-results/{id:[0-9]+}", s.ResultByIDHandler).Methods(http.MethodPut, http.MethodDelete)
	v1.HandleFunc("/stage-results/{id:[0-9]+}/penalty", s.PenaltyHandler).Methods(http.MethodPut)

	// Event composition
	v1.HandleFunc("/events/{eventId:[0-9]+}/vehicles/{vehicleId:[0-9]+}", s.EntrantHandler).Methods(http.MethodPost, http.MethodDelete)
	v1.HandleFunc("/vehicles/{vehicleId:[0-9]+}/category", s.VehicleCategoryHandler).Methods(http.MethodPut)

	// Ops
	r.HandleFunc("/healthz", s.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.ReadyHandler).Methods(http.MethodGet)
	r.HandleFunc("/debug/info", s.DebugJSON).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeProblem(w, http.StatusNotFound, "Not Found", "", req.URL.Path)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeProblem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "", req.URL.Path)
	})
	return logMiddleware(r)
}
