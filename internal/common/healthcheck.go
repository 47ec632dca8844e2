package common

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/khanghh/kadmin/internal/metrics"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const readinessTimeout = 2 * time.Second

// NewHealthCheckHandler serves /livez, /readyz and /metrics. rdb may be nil when the
// service runs without redis.
func NewHealthCheckHandler(rdb redis.UniversalClient, db *gorm.DB) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		sqlDB, err := db.DB()
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		if err := sqlDB.PingContext(ctx); err != nil {
			slog.Warn("Database not ready", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		if rdb != nil {
			if _, err := rdb.Ping(ctx).Result(); err != nil {
				slog.Warn("Redis not ready", "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// StartHealthCheckServer blocks until ctx is cancelled or the server fails.
func StartHealthCheckServer(ctx context.Context, addr string, rdb redis.UniversalClient, db *gorm.DB) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           NewHealthCheckHandler(rdb, db),
		ReadHeaderTimeout: readinessTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
