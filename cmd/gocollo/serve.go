package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/njchilds90/gocollo/config"
	"github.com/njchilds90/gocollo/examples"
	"github.com/njchilds90/gocollo/internal/ctxlog"
	"github.com/njchilds90/gocollo/ocp"
	"github.com/njchilds90/gocollo/symbolic"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// ============================================================
// Tool interface
// ============================================================

type toolRequest struct {
	Tool   string                 `json:"tool"`
	Params map[string]interface{} `json:"params"`
}

type toolResponse struct {
	Result interface{} `json:"result,omitempty"`
	String string      `json:"string,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// solveSummary is the result of the solve tool.
type solveSummary struct {
	Problem        string  `json:"problem"`
	Status         string  `json:"status"`
	Iterations     int     `json:"nlp_iterations"`
	Objective      float64 `json:"objective"`
	InitialTime    float64 `json:"initial_time"`
	FinalTime      float64 `json:"final_time"`
	MeshIterations int     `json:"mesh_iterations"`
	MaxMeshError   float64 `json:"max_mesh_error"`
	Converged      bool    `json:"converged"`
}

type toolSpec struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Params      map[string]string `json:"params,omitempty"`
}

var toolSchema = []toolSpec{
	{Name: "examples", Description: "List the bundled example problems"},
	{Name: "diff", Description: "Differentiate an expression tree", Params: map[string]string{
		"expr": "expression object", "var": "symbol name",
	}},
	{Name: "derivatives", Description: "Every function and derivative built for an example", Params: map[string]string{
		"example": "example name",
	}},
	{Name: "solve", Description: "Solve an example and summarise the final mesh iteration", Params: map[string]string{
		"example": "example name", "segments": "optional mesh segments", "points": "optional points per segment",
	}},
}

// server answers tool calls against one set of settings.
type server struct {
	settings config.Settings
	logger   *slog.Logger
}

func newServer(s config.Settings, logger *slog.Logger) http.Handler {
	srv := &server{settings: s, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("/tool", srv.handleTool)
	mux.HandleFunc("/schema", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, toolSchema)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *server) handleTool(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.With("request", uuid.NewString())
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Tool call panicked.", "panic", rec, "stack", string(debug.Stack()))
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req toolRequest
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, toolResponse{Error: err.Error()})
		return
	}
	if dec.More() {
		writeJSON(w, http.StatusBadRequest, toolResponse{Error: "invalid JSON: trailing data"})
		return
	}

	ctx := ctxlog.WithLogger(r.Context(), logger)
	start := time.Now()
	resp := s.call(ctx, req)
	logger.Info("Tool call handled.", "tool", req.Tool, "duration", time.Since(start), "error", resp.Error)
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) call(ctx context.Context, req toolRequest) toolResponse {
	getString := func(key string) (string, error) {
		v, ok := req.Params[key]
		if !ok {
			return "", fmt.Errorf("missing param: %s", key)
		}
		str, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("param %s must be a string", key)
		}
		return str, nil
	}
	getInt := func(key string, def int) (int, error) {
		v, ok := req.Params[key]
		if !ok {
			return def, nil
		}
		f, ok := v.(float64)
		if !ok || f != float64(int(f)) {
			return 0, fmt.Errorf("param %s must be an integer", key)
		}
		return int(f), nil
	}
	fail := func(err error) toolResponse { return toolResponse{Error: err.Error()} }

	switch req.Tool {
	case "examples":
		return toolResponse{Result: examples.Names()}

	case "diff":
		raw, ok := req.Params["expr"].(map[string]interface{})
		if !ok {
			return fail(errors.New("param expr must be an expression object"))
		}
		e, err := symbolic.FromJSON(raw)
		if err != nil {
			return fail(err)
		}
		v, err := getString("var")
		if err != nil {
			return fail(err)
		}
		d := symbolic.Simplify(symbolic.Diff(e, v))
		return toolResponse{Result: symbolic.EncodeJSON(d), String: d.String()}

	case "derivatives":
		name, err := getString("example")
		if err != nil {
			return fail(err)
		}
		p, err := examples.Lookup(name)
		if err != nil {
			return fail(err)
		}
		m, err := ocp.Compile(ctx, p, s.settings)
		if err != nil {
			return fail(err)
		}
		return toolResponse{Result: derivativeFunctions(m.Graph)}

	case "solve":
		name, err := getString("example")
		if err != nil {
			return fail(err)
		}
		p, err := examples.Lookup(name)
		if err != nil {
			return fail(err)
		}
		settings := s.settings
		if settings.DefaultSegments, err = getInt("segments", settings.DefaultSegments); err != nil {
			return fail(err)
		}
		if settings.DefaultPoints, err = getInt("points", settings.DefaultPoints); err != nil {
			return fail(err)
		}
		res, err := ocp.Solve(ctx, p, settings, nil)
		if err != nil {
			return fail(err)
		}
		sol := res.Final()
		return toolResponse{Result: solveSummary{
			Problem:        p.Name,
			Status:         sol.Status.Code.String(),
			Iterations:     sol.Status.Iterations,
			Objective:      res.Objective(),
			InitialTime:    sol.InitialTime(),
			FinalTime:      sol.FinalTime(),
			MeshIterations: len(res.Solutions),
			MaxMeshError:   sol.MaxMeshError(),
			Converged:      res.Converged,
		}}
	}
	return fail(fmt.Errorf("unknown tool: %q", req.Tool))
}

func newServeCmd(opts *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tools over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.settings(cmd)
			if err != nil {
				return err
			}
			logger := ctxlog.New(s.LogLevel, s.LogFormat, cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := &http.Server{
				Addr:              addr,
				Handler:           newServer(s, logger),
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       15 * time.Second,
				WriteTimeout:      5 * time.Minute,
				IdleTimeout:       60 * time.Second,
			}
			errc := make(chan error, 1)
			go func() { errc <- srv.ListenAndServe() }()
			logger.Info("Serving tools.", "addr", addr)

			select {
			case err := <-errc:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			logger.Info("Shutting down.")
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}
