package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"clipstream-client/internal/adapters/authapi"
	"clipstream-client/internal/adapters/broadcast"
	"clipstream-client/internal/adapters/changefeed"
	"clipstream-client/internal/adapters/httpapi"
	"clipstream-client/internal/adapters/mediastore"
	"clipstream-client/internal/adapters/platformstore"
	"clipstream-client/internal/adapters/ranker"
	"clipstream-client/internal/domain"
	"clipstream-client/internal/infra/cache"
	"clipstream-client/internal/infra/config"
	"clipstream-client/internal/infra/db"
	httpinfra "clipstream-client/internal/infra/http"
	"clipstream-client/internal/infra/log"
	"clipstream-client/internal/infra/metrics"
	"clipstream-client/internal/infra/session"
	"clipstream-client/internal/usecase/chat"
	"clipstream-client/internal/usecase/feed"
	"clipstream-client/internal/usecase/social"
)

// sessionRefreshLead — за сколько до истечения access-токена сессия обновляется.
const sessionRefreshLead = 5 * time.Minute

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessions := session.NewFileStore(cfg.SessionFile)
	auth, err := authapi.New(cfg.Platform.AuthURL, cfg.Platform.APIKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("clientd: клиент аутентификации")
	}
	sess, err := loadSession(ctx, sessions, auth)
	if err != nil {
		logger.Fatal().Err(err).Msg("clientd: нет сессии, выполните login")
	}
	logger.Info().Stringer("viewer", sess.UserID).Msg("clientd: сессия загружена")

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("clientd: нет подключения к платформе")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	media, err := mediastore.New(cfg.Media.Endpoint, cfg.Media.AccessKey, cfg.Media.SecretKey, cfg.Media.Bucket, cfg.Media.UseSSL, cfg.Media.URLTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("clientd: хранилище медиа")
	}
	if err := media.EnsureBucket(ctx); err != nil {
		// бакетом владеет платформа, отказ политики здесь не фатален
		logger.Warn().Err(err).Msg("clientd: проверка бакета")
	}

	platform := platformstore.NewPostgres(pool)
	listener := changefeed.NewListener(pool, logger.With().Str("component", "changefeed").Logger())
	bus := broadcast.NewBus(redisClient, logger.With().Str("component", "broadcast").Logger())
	presence := broadcast.NewPresence(redisClient)

	feedSvc := feed.NewService(sess.UserID, platform, platform, platform, ranker.NewEngagement(), media, cache.NewRedis(redisClient), logger.With().Str("component", "feed").Logger(), cfg.Feed.Limit, cfg.Feed.URLCacheTTL)
	socialSvc := social.NewService(sess.UserID, platform, platform, platform)
	chatSession := chat.NewSession(sess.UserID, platform, listener, bus, presence, logger.With().Str("component", "chat").Logger(), chat.SessionConfig{
		HeartbeatEvery: cfg.Chat.HeartbeatEvery,
		PollEvery:      cfg.Chat.PollEvery,
	})
	chatSvc := chat.NewService(sess.UserID, chatSession, platform, bus, presence, logger.With().Str("component", "chat").Logger())

	if err := chatSession.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("clientd: запуск сессии чатов")
	}

	go refreshLoop(ctx, logger, sessions, auth, sess)

	srv := httpinfra.NewServer(logger.With().Str("component", "http").Logger())
	httpapi.NewHandler(sess.UserID, feedSvc, socialSvc, chatSvc, logger.With().Str("component", "api").Logger()).Routes(srv.Router)

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)
	go func() {
		if err := srv.Start(cfg.APIAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("clientd: HTTP сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("clientd: остановка")

	chatSession.Close()
	if err := bus.Close(); err != nil {
		logger.Error().Err(err).Msg("clientd: остановка шины сигналов")
	}
	if err := listener.Close(); err != nil {
		logger.Error().Err(err).Msg("clientd: остановка подписки на события")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// loadSession читает сессию с диска и при близком истечении сразу обновляет её.
// Отозванный refresh-токен означает, что нужен новый вход.
func loadSession(ctx context.Context, store domain.SessionStore, auth domain.AuthClient) (domain.Session, error) {
	sess, err := store.Load()
	if err != nil {
		return domain.Session{}, err
	}
	if !sess.ExpiresWithin(time.Now(), sessionRefreshLead) {
		return sess, nil
	}

	refreshed, err := auth.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		return domain.Session{}, fmt.Errorf("обновление сессии: %w", err)
	}
	if err := store.Save(refreshed); err != nil {
		return domain.Session{}, fmt.Errorf("сохранение сессии: %w", err)
	}
	return refreshed, nil
}

// refreshLoop продлевает сессию до истечения access-токена, чтобы перезапуск
// клиента не требовал нового входа. Сбой обновления не фатален: попытка
// повторяется через минуту, пока refresh-токен жив.
func refreshLoop(ctx context.Context, logger zerolog.Logger, store domain.SessionStore, auth domain.AuthClient, sess domain.Session) {
	for {
		wait := time.Until(sess.ExpiresAt.Add(-sessionRefreshLead))
		if wait < time.Minute {
			wait = time.Minute
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		refreshed, err := auth.Refresh(ctx, sess.RefreshToken)
		if err != nil {
			logger.Error().Err(err).Msg("clientd: обновление сессии")
			continue
		}
		if err := store.Save(refreshed); err != nil {
			logger.Error().Err(err).Msg("clientd: сохранение сессии")
		}
		sess = refreshed
	}
}
