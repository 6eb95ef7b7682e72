package platformstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"clipstream-client/internal/domain"
	"clipstream-client/internal/infra/metrics"
)

// Postgres реализует репозитории домена поверх управляемой БД платформы.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.PostRepo       = (*Postgres)(nil)
	_ domain.MessageRepo    = (*Postgres)(nil)
	_ domain.SocialRepo     = (*Postgres)(nil)
	_ domain.EngagementRepo = (*Postgres)(nil)
	_ domain.ProfileRepo    = (*Postgres)(nil)
	_ domain.SettingsRepo   = (*Postgres)(nil)
)

// Коды SQLSTATE, значимые для клиента. 42501 платформа возвращает,
// когда запрос отвергает политика защиты строк.
const (
	codeUniqueViolation = "23505"
	codeRLSDenied       = "42501"
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// translate приводит ошибки драйвера к доменной таксономии.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeRLSDenied:
			return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, pgErr.Message)
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s", domain.ErrDuplicate, pgErr.ConstraintName)
		}
		// Класс 08 — ошибки соединения.
		if strings.HasPrefix(pgErr.Code, "08") {
			return fmt.Errorf("%w: %s", domain.ErrUnavailable, pgErr.Message)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	return err
}

func scanPost(row pgx.Row) (domain.VideoPost, error) {
	var (
		post    domain.VideoPost
		caption sql.NullString
	)
	err := row.Scan(&post.ID, &post.OwnerID, &post.MediaKey, &caption, &post.Views, &post.Likes, &post.Comments, &post.CreatedAt)
	if err != nil {
		return domain.VideoPost{}, err
	}
	if caption.Valid {
		post.Caption = caption.String
	}
	return post, nil
}

func scanMessage(row pgx.Row) (domain.Message, error) {
	var (
		msg      domain.Message
		mediaKey sql.NullString
	)
	err := row.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &mediaKey, &msg.Seen, &msg.CreatedAt)
	if err != nil {
		return domain.Message{}, err
	}
	if mediaKey.Valid {
		msg.MediaKey = mediaKey.String
	}
	return msg, nil
}

func scanProfile(row pgx.Row) (domain.Profile, error) {
	var (
		profile   domain.Profile
		fullName  sql.NullString
		bio       sql.NullString
		avatarKey sql.NullString
	)
	err := row.Scan(&profile.ID, &profile.Username, &fullName, &bio, &avatarKey, &profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return domain.Profile{}, err
	}
	if fullName.Valid {
		profile.FullName = fullName.String
	}
	if bio.Valid {
		profile.Bio = bio.String
	}
	if avatarKey.Valid {
		profile.AvatarKey = avatarKey.String
	}
	return profile, nil
}

// ListRecent возвращает свежие посты ленты, от новых к старым.
func (p *Postgres) ListRecent(limit int) ([]domain.VideoPost, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, owner_id, media_key, caption, views, likes, comments, created_at
FROM posts
ORDER BY created_at DESC
LIMIT $1
`, limit)
	metrics.ObserveNetworkRequest("platform-db", "posts_list_recent", "posts", start, err)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	var posts []domain.VideoPost
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, translate(err)
		}
		posts = append(posts, post)
	}
	return posts, translate(rows.Err())
}

// GetPost возвращает пост по идентификатору.
func (p *Postgres) GetPost(id uuid.UUID) (domain.VideoPost, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	post, err := scanPost(p.pool.QueryRow(ctx, `
SELECT id, owner_id, media_key, caption, views, likes, comments, created_at
FROM posts
WHERE id = $1
`, id))
	metrics.ObserveNetworkRequest("platform-db", "posts_get", "posts", start, err)
	if err != nil {
		return domain.VideoPost{}, translate(err)
	}
	return post, nil
}

// CreatePost сохраняет новый пост. Счётчики вовлечённости стартуют с нуля
// и дальше поддерживаются триггерами платформы.
func (p *Postgres) CreatePost(post domain.VideoPost) (domain.VideoPost, error) {
	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	created, err := scanPost(p.pool.QueryRow(ctx, `
INSERT INTO posts (id, owner_id, media_key, caption)
VALUES ($1, $2, $3, NULLIF($4, ''))
RETURNING id, owner_id, media_key, caption, views, likes, comments, created_at
`, post.ID, post.OwnerID, post.MediaKey, post.Caption))
	metrics.ObserveNetworkRequest("platform-db", "posts_insert", "posts", start, err)
	if err != nil {
		return domain.VideoPost{}, translate(err)
	}
	return created, nil
}

// ListForUser возвращает всю переписку пользователя, от новых к старым.
func (p *Postgres) ListForUser(user uuid.UUID) ([]domain.Message, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, sender_id, receiver_id, content, media_key, seen, created_at
FROM messages
WHERE sender_id = $1 OR receiver_id = $1
ORDER BY created_at DESC
`, user)
	metrics.ObserveNetworkRequest("platform-db", "messages_list", "messages", start, err)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	var msgs []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, translate(err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, translate(rows.Err())
}

// CreateMessage сохраняет сообщение и возвращает его в каноничном виде
// платформы: идентификатор и метка времени назначаются БД.
func (p *Postgres) CreateMessage(msg domain.Message) (domain.Message, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	created, err := scanMessage(p.pool.QueryRow(ctx, `
INSERT INTO messages (sender_id, receiver_id, content, media_key)
VALUES ($1, $2, $3, NULLIF($4, ''))
RETURNING id, sender_id, receiver_id, content, media_key, seen, created_at
`, msg.SenderID, msg.ReceiverID, msg.Content, msg.MediaKey))
	metrics.ObserveNetworkRequest("platform-db", "messages_insert", "messages", start, err)
	if err != nil {
		return domain.Message{}, translate(err)
	}
	return created, nil
}

// MarkSeenFrom помечает прочитанными входящие от peer и возвращает
// идентификаторы затронутых сообщений.
func (p *Postgres) MarkSeenFrom(peer, viewer uuid.UUID) ([]uuid.UUID, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
UPDATE messages
SET seen = true
WHERE sender_id = $1 AND receiver_id = $2 AND NOT seen
RETURNING id
`, peer, viewer)
	metrics.ObserveNetworkRequest("platform-db", "messages_mark_seen", "messages", start, err)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, translate(err)
		}
		ids = append(ids, id)
	}
	return ids, translate(rows.Err())
}

// Follow создаёт подписку. Повторная подписка возвращает ErrDuplicate.
func (p *Postgres) Follow(follower, followee uuid.UUID) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO follows (follower_id, followee_id)
VALUES ($1, $2)
`, follower, followee)
	metrics.ObserveNetworkRequest("platform-db", "follows_insert", "follows", start, err)
	return translate(err)
}

// Unfollow удаляет подписку. Отсутствующая подписка не считается ошибкой.
func (p *Postgres) Unfollow(follower, followee uuid.UUID) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
DELETE FROM follows
WHERE follower_id = $1 AND followee_id = $2
`, follower, followee)
	metrics.ObserveNetworkRequest("platform-db", "follows_delete", "follows", start, err)
	return translate(err)
}

// Following возвращает идентификаторы всех, на кого подписан пользователь.
func (p *Postgres) Following(user uuid.UUID) ([]uuid.UUID, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT followee_id FROM follows WHERE follower_id = $1
`, user)
	metrics.ObserveNetworkRequest("platform-db", "follows_list", "follows", start, err)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, translate(err)
		}
		ids = append(ids, id)
	}
	return ids, translate(rows.Err())
}

// IsFollowing сообщает, подписан ли follower на followee.
func (p *Postgres) IsFollowing(follower, followee uuid.UUID) (bool, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	var exists bool
	err := p.pool.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1 FROM follows WHERE follower_id = $1 AND followee_id = $2
)
`, follower, followee).Scan(&exists)
	metrics.ObserveNetworkRequest("platform-db", "follows_exists", "follows", start, err)
	if err != nil {
		return false, translate(err)
	}
	return exists, nil
}

// AddView фиксирует просмотр. Повторные просмотры считаются заново.
func (p *Postgres) AddView(post, viewer uuid.UUID) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO post_views (post_id, user_id)
VALUES ($1, $2)
`, post, viewer)
	metrics.ObserveNetworkRequest("platform-db", "post_views_insert", "post_views", start, err)
	return translate(err)
}

// AddLike ставит лайк. Повторный лайк возвращает ErrDuplicate.
func (p *Postgres) AddLike(post, viewer uuid.UUID) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO post_likes (post_id, user_id)
VALUES ($1, $2)
`, post, viewer)
	metrics.ObserveNetworkRequest("platform-db", "post_likes_insert", "post_likes", start, err)
	return translate(err)
}

// RemoveLike снимает лайк. Отсутствующий лайк не считается ошибкой.
func (p *Postgres) RemoveLike(post, viewer uuid.UUID) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
DELETE FROM post_likes
WHERE post_id = $1 AND user_id = $2
`, post, viewer)
	metrics.ObserveNetworkRequest("platform-db", "post_likes_delete", "post_likes", start, err)
	return translate(err)
}

// GetProfile возвращает профиль по идентификатору.
func (p *Postgres) GetProfile(id uuid.UUID) (domain.Profile, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	profile, err := scanProfile(p.pool.QueryRow(ctx, `
SELECT id, username, full_name, bio, avatar_key, created_at, updated_at
FROM profiles
WHERE id = $1
`, id))
	metrics.ObserveNetworkRequest("platform-db", "profiles_get", "profiles", start, err)
	if err != nil {
		return domain.Profile{}, translate(err)
	}
	return profile, nil
}

// UpdateProfile сохраняет профиль. Чужую строку политика защиты строк
// не отдаёт, и запрос завершается ErrNotFound.
func (p *Postgres) UpdateProfile(profile domain.Profile) (domain.Profile, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	updated, err := scanProfile(p.pool.QueryRow(ctx, `
UPDATE profiles
SET username = $2, full_name = NULLIF($3, ''), bio = NULLIF($4, ''), avatar_key = NULLIF($5, ''), updated_at = now()
WHERE id = $1
RETURNING id, username, full_name, bio, avatar_key, created_at, updated_at
`, profile.ID, profile.Username, profile.FullName, profile.Bio, profile.AvatarKey))
	metrics.ObserveNetworkRequest("platform-db", "profiles_update", "profiles", start, err)
	if err != nil {
		return domain.Profile{}, translate(err)
	}
	return updated, nil
}

// GetSettings возвращает настройки пользователя. До первого сохранения
// строки нет, и запрос завершается ErrNotFound.
func (p *Postgres) GetSettings(user uuid.UUID) (domain.UserSettings, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	var settings domain.UserSettings
	err := p.pool.QueryRow(ctx, `
SELECT user_id, private_account, notifications, autoplay, updated_at
FROM user_settings
WHERE user_id = $1
`, user).Scan(&settings.UserID, &settings.PrivateAccount, &settings.Notifications, &settings.Autoplay, &settings.UpdatedAt)
	metrics.ObserveNetworkRequest("platform-db", "settings_get", "user_settings", start, err)
	if err != nil {
		return domain.UserSettings{}, translate(err)
	}
	return settings, nil
}

// UpsertSettings сохраняет настройки, создавая строку при первом вызове.
func (p *Postgres) UpsertSettings(settings domain.UserSettings) (domain.UserSettings, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	var saved domain.UserSettings
	err := p.pool.QueryRow(ctx, `
INSERT INTO user_settings (user_id, private_account, notifications, autoplay)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE SET private_account = EXCLUDED.private_account, notifications = EXCLUDED.notifications, autoplay = EXCLUDED.autoplay, updated_at = now()
RETURNING user_id, private_account, notifications, autoplay, updated_at
`, settings.UserID, settings.PrivateAccount, settings.Notifications, settings.Autoplay).Scan(&saved.UserID, &saved.PrivateAccount, &saved.Notifications, &saved.Autoplay, &saved.UpdatedAt)
	metrics.ObserveNetworkRequest("platform-db", "settings_upsert", "user_settings", start, err)
	if err != nil {
		return domain.UserSettings{}, translate(err)
	}
	return saved, nil
}
