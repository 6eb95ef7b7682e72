package feed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"clipstream-client/internal/adapters/ranker"
	"clipstream-client/internal/domain"
)

var (
	viewer = uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000002")
	author = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
)

type stubPosts struct {
	posts   []domain.VideoPost
	listErr error
	created []domain.VideoPost
}

func (s *stubPosts) ListRecent(limit int) ([]domain.VideoPost, error) {
	return s.posts, s.listErr
}

func (s *stubPosts) GetPost(id uuid.UUID) (domain.VideoPost, error) {
	for _, p := range s.posts {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.VideoPost{}, domain.ErrNotFound
}

func (s *stubPosts) CreatePost(post domain.VideoPost) (domain.VideoPost, error) {
	post.ID = uuid.New()
	s.created = append(s.created, post)
	return post, nil
}

type stubSocial struct {
	following []uuid.UUID
	err       error
}

func (s *stubSocial) Follow(follower, followee uuid.UUID) error   { return s.err }
func (s *stubSocial) Unfollow(follower, followee uuid.UUID) error { return s.err }
func (s *stubSocial) Following(user uuid.UUID) ([]uuid.UUID, error) {
	return s.following, s.err
}
func (s *stubSocial) IsFollowing(follower, followee uuid.UUID) (bool, error) {
	return false, s.err
}

type stubEngagement struct {
	views   []uuid.UUID
	likes   []uuid.UUID
	unlikes []uuid.UUID
	likeErr error
}

func (s *stubEngagement) AddView(post, viewer uuid.UUID) error {
	s.views = append(s.views, post)
	return nil
}

func (s *stubEngagement) AddLike(post, viewer uuid.UUID) error {
	if s.likeErr != nil {
		return s.likeErr
	}
	s.likes = append(s.likes, post)
	return nil
}

func (s *stubEngagement) RemoveLike(post, viewer uuid.UUID) error {
	s.unlikes = append(s.unlikes, post)
	return nil
}

type fakeMedia struct {
	mu       sync.Mutex
	resolves int
	puts     []string
	err      error
}

func (f *fakeMedia) Put(ctx context.Context, key, contentType string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, key)
	return f.err
}

func (f *fakeMedia) ResolveURL(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.resolves++
	return "https://cdn.local/" + key, nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) Set(key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Get(key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, errors.New("нет значения")
	}
	return v, nil
}

func newTestService(posts *stubPosts, social *stubSocial, engagement *stubEngagement, media *fakeMedia, cache domain.Cache) *Service {
	return NewService(viewer, posts, social, engagement, ranker.NewEngagement(), media, cache, zerolog.Nop(), 50, time.Minute)
}

func TestBuildFeedRanksAndHydrates(t *testing.T) {
	now := time.Now()
	followedPost := domain.VideoPost{ID: uuid.New(), OwnerID: author, MediaKey: "videos/a/1", Views: 50, Likes: 5, CreatedAt: now.Add(-2 * time.Hour)}
	otherPost := domain.VideoPost{ID: uuid.New(), OwnerID: uuid.New(), MediaKey: "videos/b/2", Views: 50, Likes: 5, CreatedAt: now.Add(-2 * time.Hour)}

	posts := &stubPosts{posts: []domain.VideoPost{otherPost, followedPost}}
	social := &stubSocial{following: []uuid.UUID{author}}
	svc := newTestService(posts, social, &stubEngagement{}, &fakeMedia{}, newMemCache())

	ranked, err := svc.BuildFeed(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("ожидали 2 поста, получили %d", len(ranked))
	}
	if ranked[0].Post.ID != followedPost.ID {
		t.Fatalf("пост подписки должен быть первым: %+v", ranked)
	}
	for _, rp := range ranked {
		if rp.MediaURL == "" {
			t.Fatalf("ссылка воспроизведения не подставлена: %+v", rp)
		}
	}
}

func TestBuildFeedCachesResolvedURLs(t *testing.T) {
	post := domain.VideoPost{ID: uuid.New(), OwnerID: author, MediaKey: "videos/a/1", CreatedAt: time.Now()}
	media := &fakeMedia{}
	svc := newTestService(&stubPosts{posts: []domain.VideoPost{post}}, &stubSocial{}, &stubEngagement{}, media, newMemCache())

	for i := 0; i < 2; i++ {
		if _, err := svc.BuildFeed(context.Background()); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}
	if media.resolves != 1 {
		t.Fatalf("ссылка должна браться из кэша, запросов %d", media.resolves)
	}
}

func TestBuildFeedSurvivesURLFailure(t *testing.T) {
	post := domain.VideoPost{ID: uuid.New(), OwnerID: author, MediaKey: "videos/a/1", CreatedAt: time.Now()}
	media := &fakeMedia{err: errors.New("хранилище недоступно")}
	svc := newTestService(&stubPosts{posts: []domain.VideoPost{post}}, &stubSocial{}, &stubEngagement{}, media, newMemCache())

	ranked, err := svc.BuildFeed(context.Background())
	if err != nil {
		t.Fatalf("сбой ссылки не должен ломать ленту: %v", err)
	}
	if ranked[0].MediaURL != "" {
		t.Fatalf("ссылка должна остаться пустой: %q", ranked[0].MediaURL)
	}
}

func TestBuildFeedPropagatesFetchError(t *testing.T) {
	posts := &stubPosts{listErr: domain.ErrUnavailable}
	svc := newTestService(posts, &stubSocial{}, &stubEngagement{}, &fakeMedia{}, newMemCache())

	if _, err := svc.BuildFeed(context.Background()); !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("ожидали ошибку недоступности: %v", err)
	}
}

func TestLikeDuplicateIsIdempotent(t *testing.T) {
	engagement := &stubEngagement{likeErr: domain.ErrDuplicate}
	svc := newTestService(&stubPosts{}, &stubSocial{}, engagement, &fakeMedia{}, newMemCache())

	if err := svc.Like(uuid.New()); err != nil {
		t.Fatalf("повторный лайк должен быть успехом: %v", err)
	}
}

func TestRecordViewValidates(t *testing.T) {
	engagement := &stubEngagement{}
	svc := newTestService(&stubPosts{}, &stubSocial{}, engagement, &fakeMedia{}, newMemCache())

	if err := svc.RecordView(uuid.Nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("пустой идентификатор должен отклоняться: %v", err)
	}
	if err := svc.RecordView(uuid.New()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(engagement.views) != 1 {
		t.Fatalf("просмотр не записан: %v", engagement.views)
	}
}

func TestUploadPost(t *testing.T) {
	posts := &stubPosts{}
	media := &fakeMedia{}
	svc := newTestService(posts, &stubSocial{}, &stubEngagement{}, media, newMemCache())

	saved, err := svc.UploadPost(context.Background(), "первое видео", "video/mp4", []byte("data"))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if saved.ID == uuid.Nil {
		t.Fatal("пост должен вернуться с идентификатором")
	}
	if len(media.puts) != 1 || !strings.HasPrefix(media.puts[0], "videos/"+viewer.String()+"/") {
		t.Fatalf("видео не загружено под ключом владельца: %v", media.puts)
	}
	if posts.created[0].MediaKey != media.puts[0] {
		t.Fatal("ключ видео в посте не совпадает с загруженным")
	}

	if _, err := svc.UploadPost(context.Background(), "пустое", "video/mp4", nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("пустое видео должно отклоняться: %v", err)
	}
}
