package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Tutortoise/tumor-detection-service/assets"
	"github.com/Tutortoise/tumor-detection-service/config"
)

const greeting = "Hello, user!"

type AppState struct {
	Bundle  *assets.Bundle
	Debug   bool
	logger  *log.Logger
	metrics *serverMetrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := config.LoadServer()

	bundle, err := assets.Open(cfg.ModelDir, log.Default())
	if err != nil {
		log.Fatalf("Failed to open model bundle: %v", err)
	}
	log.Printf("Serving %d weight shards from %s", len(bundle.Shards()), bundle.Dir())

	state := &AppState{
		Bundle:  bundle,
		Debug:   cfg.Debug,
		logger:  log.Default(),
		metrics: newServerMetrics(prometheus.NewRegistry()),
	}

	srv := &http.Server{
		Handler:      newRouter(state),
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
	}

	log.Printf("Server is running at http://localhost:%d", cfg.Port)
	log.Fatal(srv.ListenAndServe())
}

// newRouter wires the asset routes. CORS wraps the whole router so that 404
// and 405 answers carry the headers as well.
func newRouter(state *AppState) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/model.json", state.handleTopology).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/{shard:group[0-9]+-shard[^/]*}", state.handleShard).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/", handleRoot).Methods(http.MethodGet, http.MethodHead)
	state.addMonitoringRoutes(r)

	return corsMiddleware(state.metrics.middleware(r, state.logger))
}

func (s *AppState) handleTopology(w http.ResponseWriter, r *http.Request) {
	path, ok := s.Bundle.Topology()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	http.ServeFile(w, r, path)
}

func (s *AppState) handleShard(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["shard"]
	path, ok := s.Bundle.Shard(name)
	if !ok {
		if s.Debug {
			s.logger.Printf("[DEBUG] Unknown shard requested: %q", name)
		}
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeFile(w, r, path)
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(greeting))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Range")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
