package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin HTTP server",
	Long:  "Exposes backfill and sale-link runs over HTTP for internal tooling. No authorization; bind it to a private interface.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: buildRouter(env),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildRouter assembles the admin routes over an initialized env.
func buildRouter(env *env) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/agencies/{agencyID}/backfill", func(w http.ResponseWriter, req *http.Request) {
		agencyID, err := strconv.ParseInt(chi.URLParam(req, "agencyID"), 10, 64)
		if err != nil || agencyID == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid agency id"})
			return
		}

		table := req.URL.Query().Get("table")
		var report any
		if table == "" {
			report, err = env.orchestrator.RunAll(req.Context(), agencyID)
		} else {
			report, err = env.orchestrator.Run(req.Context(), agencyID, table)
		}
		if err != nil {
			zap.L().Error("serve: backfill failed", zap.Int64("agency_id", agencyID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	r.Post("/agencies/{agencyID}/salelink", func(w http.ResponseWriter, req *http.Request) {
		agencyID, err := strconv.ParseInt(chi.URLParam(req, "agencyID"), 10, 64)
		if err != nil || agencyID == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid agency id"})
			return
		}

		report, err := env.linker.BackfillSales(req.Context(), agencyID)
		if err != nil {
			zap.L().Error("serve: sale link failed", zap.Int64("agency_id", agencyID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
