package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Serve runs the service's HTTP and metrics listeners until ctx is
// cancelled, then shuts both down gracefully.
func Serve(ctx context.Context, app *App, service string) error {
	// Submissions block on inference fan-in, so the write timeout has to
	// outlast the configured reply wait.
	writeTimeout := time.Duration(app.Config.InferenceWaitSeconds)*time.Second + 30*time.Second

	server := &http.Server{
		Addr:         ":" + app.Config.HTTPPort,
		Handler:      app.Handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:        ":" + app.Config.MetricsPort,
		Handler:     app.Metrics,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		app.Logger.Info("http_listening", "service", service, "port", app.Config.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		app.Logger.Info("metrics_listening", "service", service, "port", app.Config.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.Logger.Warn("http_shutdown_failed", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		app.Logger.Warn("metrics_shutdown_failed", "error", err)
	}
	return nil
}
