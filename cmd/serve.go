package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dakiwatch/dakiwatch/internal/report"
)

var servePort int

// shutdownTimeout bounds how long in-flight requests may drain after a
// stop signal.
const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the status server (health, snapshots, report)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		mux := http.NewServeMux()

		mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		})

		mux.HandleFunc("GET /snapshots", func(w http.ResponseWriter, r *http.Request) {
			snapshots, err := st.ListSnapshots(r.Context())
			if err != nil {
				zap.L().Error("list snapshots", zap.Error(err))
				http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(snapshots)
		})

		mux.HandleFunc("GET /report", func(w http.ResponseWriter, r *http.Request) {
			snapshots, err := st.ListSnapshots(r.Context())
			if err != nil {
				zap.L().Error("list snapshots", zap.Error(err))
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			events, err := st.ListUnnotifiedEvents(r.Context())
			if err != nil {
				zap.L().Error("list events", zap.Error(err))
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			if err := report.New(snapshots, events, nil).WriteHTML(w); err != nil {
				zap.L().Error("render report", zap.Error(err))
			}
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			return eris.Wrap(err, "server listen")
		}

		zap.L().Info("starting server", zap.Int("port", port))
		return runServer(ctx, &http.Server{Handler: mux}, ln)
	},
}

// runServer serves on ln until ctx is done, then drains in-flight requests
// on a fresh timeout context. The signal context is already cancelled by
// then, so it cannot serve as the drain deadline.
func runServer(ctx context.Context, srv *http.Server, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server serve")
		}
		return nil
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
