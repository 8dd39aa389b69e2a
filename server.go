package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"codemate-server/config"
	"codemate-server/execution"
	"codemate-server/hub"
	"codemate-server/protocol"
	"codemate-server/registry"
	ws "codemate-server/websocket"
)

func setupLogger(cfg config.Config) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
}

// app is the process-scoped state: created at start, discarded at stop.
type app struct {
	hub     *hub.Hub
	names   *registry.Registry
	proxy   *execution.Proxy
	handler *protocol.Handler
	cfg     config.Config
}

func newApp(ctx context.Context, cfg config.Config) *app {
	a := &app{
		hub:   hub.New(),
		names: registry.New(),
		cfg:   cfg,
	}
	client := execution.NewClient(cfg.ExecURL, cfg.ExecTimeout)
	a.proxy = execution.NewProxy(ctx, client, a.hub, execution.Options{
		ClientID:     cfg.ExecClientID,
		ClientSecret: cfg.ExecClientSecret,
		Language:     cfg.ExecLanguage,
		VersionIndex: cfg.ExecVersionIndex,
		MaxInFlight:  cfg.ExecMaxInFlight,
	})
	a.handler = protocol.NewHandler(a.names, a.hub, a.proxy)
	return a
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", a.wsHandler(newUpgrader(a.cfg.AllowedOrigins)))
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/stats", a.statsHandler)
	return mux
}

func serve(ctx context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	execCtx, cancelExec := context.WithCancel(context.Background())
	a := newApp(execCtx, cfg)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: a.routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		cancelExec()
		if err != nil {
			slog.Error("server error", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	cancelExec()
	a.proxy.Wait()
	return nil
}

func newUpgrader(origins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(origins) == 0 {
				return true
			}
			return lo.Contains(origins, r.Header.Get("Origin"))
		},
	}
}

func (a *app) wsHandler(upgrader *websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("upgrade error", "error", err)
			return
		}

		wsConn := ws.NewConn(uuid.New().String(), conn, a.hub, a.handler, ws.Options{
			SendBuffer:     a.cfg.SendBuffer,
			MaxMessageSize: a.cfg.MaxMessageSize,
		})
		wsConn.Start()
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (a *app) statsHandler(w http.ResponseWriter, r *http.Request) {
	rooms, clients := a.hub.Stats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"rooms": rooms, "clients": clients, "names": a.names.Len()})
}
