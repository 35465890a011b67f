package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nethesis/nethcti-server-sub001/internal/logger"
)

// Check - проверка готовности одной компоненты
type Check func(ctx context.Context) error

// NewRouter: /metrics в формате Prometheus и /healthz по всем проверкам
func NewRouter(checks map[string]Check, log logger.Logger) http.Handler {
	log = logger.OrDefault(log)
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		metrics.WritePrometheus(w, true)
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				log.Warnf("health check %s: %s", name, err)
				http.Error(w, name+" not ok", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return r
}

// публикация метрик
func ServeMetrics(ctx context.Context, addr string, h http.Handler, log logger.Logger) error {
	log = logger.OrDefault(log)
	// создаём структуру сервера только для возможности последующего Shutdown
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Пытаемся слушать порт, но если не получилось - проживём без метрик
	go func() {
		log.Infof("Starting metrics server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warnf("Metrics listen err:%+s", err)
		}
	}()

	// ждём сигнала завершения
	<-ctx.Done()

	// даём команду серверу завершиться в течение 5 сек иначе прибьём сами
	ctxShutDown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutDown); err != nil && err != http.ErrServerClosed {
		// по-хорошему не вышло
		log.Warnf("Metrics Shutdown Failed:%+s", err)
	}

	log.Infof("Metrics server stopped")
	return nil
}
