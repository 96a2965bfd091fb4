package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inkshelf/enricher/internal/enrich"
	"github.com/inkshelf/enricher/internal/model"
	"github.com/inkshelf/enricher/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the enrichment status and enqueue API",
	Long:  "Runs the incremental enrichment worker and exposes HTTP endpoints: GET /health, GET /status, POST /enqueue, POST /abort, POST /resume.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		sched, err := newScheduler(st, 0)
		if err != nil {
			return err
		}
		sched.StartIncremental(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(st, sched),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// newRouter builds the HTTP surface over the scheduler.
func newRouter(st store.Store, sched *enrich.Scheduler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"batch_active": sched.BatchActive(),
			"progress":     sched.Progress(),
			"failures":     sched.Failures(),
		})
	})

	r.Post("/enqueue", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.URL == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
			return
		}

		rec, err := st.FetchByURL(req.Context(), body.URL)
		if err != nil {
			zap.L().Error("enqueue: fetch failed", zap.String("url", body.URL), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "store lookup failed"})
			return
		}
		if rec == nil {
			rec = &model.Record{URL: body.URL}
		}

		if err := sched.Enqueue(model.EnrichmentJob{Record: *rec, Flags: model.AllSteps()}); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "url": body.URL})
	})

	r.Post("/abort", func(w http.ResponseWriter, req *http.Request) {
		sched.Abort()
		writeJSON(w, http.StatusOK, map[string]string{"status": "aborting"})
	})

	r.Post("/resume", func(w http.ResponseWriter, req *http.Request) {
		sched.Resume()
		writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
