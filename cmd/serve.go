package main

import (
	"context"
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

	"github.com/sells-group/deep-research/internal/cost"
	"github.com/sells-group/deep-research/internal/model"
	"github.com/sells-group/deep-research/internal/report"
	"github.com/sells-group/deep-research/internal/store"
)

var servePort int

// researcher runs a query end to end and produces a research run.
type researcher interface {
	Run(ctx context.Context, input model.Input) (*model.ResearchRun, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start an HTTP API for research queries and run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		exec, err := initExecutor()
		if err != nil {
			return err
		}

		r := newRouter(st, exec, initCalculator(), cfg.Research.MaxSources)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(context.Background()) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the HTTP routes over the given store, executor, and
// pricing calculator. defaultMaxSources applies when a request omits
// max_sources.
func newRouter(st store.Store, exec researcher, calc *cost.Calculator, defaultMaxSources int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/research", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Query      string `json:"query"`
			Workflow   string `json:"workflow"`
			MaxSources int    `json:"max_sources"`
			Synthesize bool   `json:"synthesize"`
			Tier       string `json:"tier"`
			NoSave     bool   `json:"no_save"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Query == "" {
			writeError(w, http.StatusBadRequest, "query is required")
			return
		}
		if body.MaxSources == 0 {
			body.MaxSources = defaultMaxSources
		}
		if body.Tier == "" {
			body.Tier = string(cost.TierFree)
		}

		run, err := exec.Run(req.Context(), model.Input{
			Query:        body.Query,
			WorkflowType: body.Workflow,
			MaxSources:   body.MaxSources,
			Synthesize:   body.Synthesize,
		})
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		fee := calc.Fee(run.Workflow, cost.Tier(body.Tier))

		if !body.NoSave {
			if err := st.SaveRun(req.Context(), run); err != nil {
				zap.L().Error("save run", zap.String("run_id", run.ID), zap.Error(err))
			}
			if err := st.SaveReport(req.Context(), run.ID, report.Markdown(run, fee)); err != nil {
				zap.L().Error("save report", zap.String("run_id", run.ID), zap.Error(err))
			}
		}

		zap.L().Info("research complete",
			zap.String("run_id", run.ID),
			zap.String("workflow", string(run.Workflow)),
			zap.Bool("success", run.Success),
		)

		writeJSON(w, http.StatusOK, report.Build(run, fee))
	})

	r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
		filter := store.RunFilter{
			Workflow: model.Workflow(req.URL.Query().Get("workflow")),
			Limit:    queryInt(req, "limit"),
			Offset:   queryInt(req, "offset"),
		}
		switch req.URL.Query().Get("success") {
		case "true":
			t := true
			filter.Success = &t
		case "false":
			f := false
			filter.Success = &f
		}

		runs, err := st.ListRuns(req.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
	})

	r.Get("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
		run, err := st.GetRun(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			if eris.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "run not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	r.Get("/runs/{id}/report", func(w http.ResponseWriter, req *http.Request) {
		md, err := st.GetReport(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			if eris.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "report not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, md) //nolint:errcheck
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(req *http.Request, key string) int {
	var n int
	fmt.Sscanf(req.URL.Query().Get(key), "%d", &n) //nolint:errcheck
	return n
}
