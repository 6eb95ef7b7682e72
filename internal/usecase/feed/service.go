package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"clipstream-client/internal/domain"
	"clipstream-client/internal/infra/metrics"
)

const (
	defaultFeedLimit = 50
	defaultURLTTL    = 10 * time.Minute
)

// Service реализует построение ленты и действия зрителя над постами.
// Счётчики постов клиент не трогает: их поддерживают триггеры платформы.
type Service struct {
	viewer     uuid.UUID
	posts      domain.PostRepo
	social     domain.SocialRepo
	engagement domain.EngagementRepo
	ranker     domain.Ranker
	media      domain.MediaStore
	cache      domain.Cache
	log        zerolog.Logger
	limit      int
	urlTTL     time.Duration
}

// NewService создаёт сервис ленты.
func NewService(viewer uuid.UUID, posts domain.PostRepo, social domain.SocialRepo, engagement domain.EngagementRepo, ranker domain.Ranker, media domain.MediaStore, cache domain.Cache, logger zerolog.Logger, limit int, urlTTL time.Duration) *Service {
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	if urlTTL <= 0 {
		urlTTL = defaultURLTTL
	}
	return &Service{
		viewer:     viewer,
		posts:      posts,
		social:     social,
		engagement: engagement,
		ranker:     ranker,
		media:      media,
		cache:      cache,
		log:        logger,
		limit:      limit,
		urlTTL:     urlTTL,
	}
}

// BuildFeed собирает свежие посты и подписки зрителя, ранжирует их и
// подставляет ссылки воспроизведения. Сбой отдельной ссылки не ломает
// ленту: пост уходит без ссылки, плеер повторит запрос позже.
func (s *Service) BuildFeed(ctx context.Context) ([]domain.RankedPost, error) {
	start := time.Now()
	posts, err := s.posts.ListRecent(s.limit)
	if err != nil {
		return nil, fmt.Errorf("получение постов: %w", err)
	}
	followed, err := s.social.Following(s.viewer)
	if err != nil {
		return nil, fmt.Errorf("подписки зрителя: %w", err)
	}

	following := make(map[uuid.UUID]struct{}, len(followed))
	for _, id := range followed {
		following[id] = struct{}{}
	}

	ranked := s.ranker.Rank(posts, following, time.Now().UTC())
	metrics.ObserveFeedBuild(start, len(ranked))

	for i := range ranked {
		url, err := s.resolveURL(ctx, ranked[i].Post.MediaKey)
		if err != nil {
			s.log.Error().Err(err).Str("media_key", ranked[i].Post.MediaKey).Msg("feed: ссылка воспроизведения")
			continue
		}
		ranked[i].MediaURL = url
	}
	return ranked, nil
}

// RecordView фиксирует просмотр поста.
func (s *Service) RecordView(postID uuid.UUID) error {
	if postID == uuid.Nil {
		return fmt.Errorf("пустой пост: %w", domain.ErrInvalidInput)
	}
	if err := s.engagement.AddView(postID, s.viewer); err != nil {
		return fmt.Errorf("запись просмотра: %w", err)
	}
	return nil
}

// Like ставит лайк. Повторный лайк того же поста считается успехом.
func (s *Service) Like(postID uuid.UUID) error {
	if postID == uuid.Nil {
		return fmt.Errorf("пустой пост: %w", domain.ErrInvalidInput)
	}
	err := s.engagement.AddLike(postID, s.viewer)
	if errors.Is(err, domain.ErrDuplicate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("лайк: %w", err)
	}
	return nil
}

// Unlike снимает лайк.
func (s *Service) Unlike(postID uuid.UUID) error {
	if postID == uuid.Nil {
		return fmt.Errorf("пустой пост: %w", domain.ErrInvalidInput)
	}
	if err := s.engagement.RemoveLike(postID, s.viewer); err != nil {
		return fmt.Errorf("снятие лайка: %w", err)
	}
	return nil
}

// UploadPost загружает видео в хранилище и создаёт строку поста.
// Счётчики новой строки нулевые, их заполнит платформа.
func (s *Service) UploadPost(ctx context.Context, caption, contentType string, data []byte) (domain.VideoPost, error) {
	if len(data) == 0 {
		return domain.VideoPost{}, fmt.Errorf("пустое видео: %w", domain.ErrInvalidInput)
	}

	key := fmt.Sprintf("videos/%s/%s", s.viewer, uuid.New())
	if err := s.media.Put(ctx, key, contentType, data); err != nil {
		return domain.VideoPost{}, fmt.Errorf("загрузка видео: %w", err)
	}

	post := domain.VideoPost{
		OwnerID:   s.viewer,
		MediaKey:  key,
		Caption:   caption,
		CreatedAt: time.Now().UTC(),
	}
	saved, err := s.posts.CreatePost(post)
	if err != nil {
		return domain.VideoPost{}, fmt.Errorf("создание поста: %w", err)
	}
	return saved, nil
}

// resolveURL отдаёт подписанную ссылку из кэша или просит её у хранилища.
// TTL кэша меньше срока подписи, протухшая ссылка наружу не выходит.
func (s *Service) resolveURL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}

	cacheKey := "media_url:" + key
	if cached, err := s.cache.Get(cacheKey); err == nil && len(cached) > 0 {
		return string(cached), nil
	}

	url, err := s.media.ResolveURL(ctx, key)
	if err != nil {
		return "", err
	}
	if err := s.cache.Set(cacheKey, []byte(url), s.urlTTL); err != nil {
		s.log.Error().Err(err).Str("media_key", key).Msg("feed: кэш ссылок")
	}
	return url, nil
}
