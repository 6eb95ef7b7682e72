package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	FeedBuildSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "feed_build_seconds",
		Help:    "Время построения ленты",
		Buckets: prometheus.DefBuckets,
	})
	FeedPostsRanked = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "feed_posts_ranked",
		Help: "Количество постов в последней собранной ленте",
	})

	ChatEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_events_total",
		Help: "События изменения сообщений по операциям",
	}, []string{"op"})

	ChatRebuildsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_rebuilds_total",
		Help: "Полные пересборки списка диалогов",
	})

	SignalsReceivedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signals_received_total",
		Help: "Принятые сигналы широковещательного канала",
	}, []string{"kind"})

	SignalsSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signals_sent_total",
		Help: "Отправленные сигналы широковещательного канала",
	}, []string{"kind"})

	ChangeFeedDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "changefeed_dropped_total",
		Help: "События изменений, отброшенные из-за переполнения буфера",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 25, 30, 35, 40, 45, 50, 55, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		FeedBuildSeconds,
		FeedPostsRanked,
		ChatEventsTotal,
		ChatRebuildsTotal,
		SignalsReceivedTotal,
		SignalsSentTotal,
		ChangeFeedDroppedTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveFeedBuild записывает длительность и размер собранной ленты.
func ObserveFeedBuild(start time.Time, posts int) {
	FeedBuildSeconds.Observe(time.Since(start).Seconds())
	FeedPostsRanked.Set(float64(posts))
}

// IncChatEvent увеличивает счётчик событий изменения сообщений.
func IncChatEvent(op string) {
	if op == "" {
		op = "unknown"
	}
	ChatEventsTotal.WithLabelValues(op).Inc()
}

// IncChatRebuild увеличивает счётчик полных пересборок диалогов.
func IncChatRebuild() {
	ChatRebuildsTotal.Inc()
}

// IncSignalReceived увеличивает счётчик принятых сигналов.
func IncSignalReceived(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	SignalsReceivedTotal.WithLabelValues(kind).Inc()
}

// IncSignalSent увеличивает счётчик отправленных сигналов.
func IncSignalSent(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	SignalsSentTotal.WithLabelValues(kind).Inc()
}

// IncChangeFeedDrop увеличивает счётчик отброшенных событий изменений.
func IncChangeFeedDrop() {
	ChangeFeedDroppedTotal.Inc()
}
