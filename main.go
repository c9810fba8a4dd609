package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	db, err := openSQLite(sqliteDBPath())
	if err != nil {
		logError("main.db_open_failed", "path", sqliteDBPath(), "error", err)
		os.Exit(1)
	}
	defer db.Close()

	service := newService(db)

	// Items stranded mid-drain by a previous run go back to pending.
	if reset, err := service.store.ResetStale(); err != nil {
		logWarn("main.queue_reset_failed", "error", err)
	} else if reset > 0 {
		logInfo("main.queue_reset", "items", reset)
	}

	mux := http.NewServeMux()
	service.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              listenAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logInfo("main.listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logError("main.serve_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logInfo("main.shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logWarn("main.shutdown_forced", "error", err)
	}
}
