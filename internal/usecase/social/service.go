package social

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"clipstream-client/internal/domain"
)

var (
	// ErrSelfFollow возвращается при попытке подписаться на себя.
	ErrSelfFollow = errors.New("нельзя подписаться на себя")
	// ErrUserNotFound возвращается, когда целевой профиль не существует.
	ErrUserNotFound = errors.New("пользователь не найден")
)

const maxBioLength = 300

// Service управляет графом подписок, профилем и настройками зрителя.
// Граф читается и пишется через таблицу follows, она авторитетна.
type Service struct {
	viewer   uuid.UUID
	social   domain.SocialRepo
	profiles domain.ProfileRepo
	settings domain.SettingsRepo
}

// NewService создаёт сервис социального графа.
func NewService(viewer uuid.UUID, social domain.SocialRepo, profiles domain.ProfileRepo, settings domain.SettingsRepo) *Service {
	return &Service{viewer: viewer, social: social, profiles: profiles, settings: settings}
}

// Follow подписывает зрителя на пользователя. Повторная подписка успех.
func (s *Service) Follow(target uuid.UUID) error {
	if err := s.checkTarget(target); err != nil {
		return err
	}
	if _, err := s.profiles.GetProfile(target); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("получение профиля: %w", err)
	}

	err := s.social.Follow(s.viewer, target)
	if errors.Is(err, domain.ErrDuplicate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("подписка: %w", err)
	}
	return nil
}

// Unfollow снимает подписку. Отсутствующая подписка не ошибка.
func (s *Service) Unfollow(target uuid.UUID) error {
	if err := s.checkTarget(target); err != nil {
		return err
	}
	if err := s.social.Unfollow(s.viewer, target); err != nil {
		return fmt.Errorf("отписка: %w", err)
	}
	return nil
}

// Following возвращает идентификаторы пользователей, на которых подписан зритель.
func (s *Service) Following() ([]uuid.UUID, error) {
	ids, err := s.social.Following(s.viewer)
	if err != nil {
		return nil, fmt.Errorf("список подписок: %w", err)
	}
	return ids, nil
}

// IsFollowing сообщает, подписан ли зритель на пользователя.
func (s *Service) IsFollowing(target uuid.UUID) (bool, error) {
	if err := s.checkTarget(target); err != nil {
		return false, err
	}
	ok, err := s.social.IsFollowing(s.viewer, target)
	if err != nil {
		return false, fmt.Errorf("проверка подписки: %w", err)
	}
	return ok, nil
}

// Profile возвращает профиль пользователя.
func (s *Service) Profile(id uuid.UUID) (domain.Profile, error) {
	if id == uuid.Nil {
		id = s.viewer
	}
	profile, err := s.profiles.GetProfile(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Profile{}, ErrUserNotFound
		}
		return domain.Profile{}, fmt.Errorf("получение профиля: %w", err)
	}
	return profile, nil
}

// UpdateProfile обновляет профиль зрителя. Чужой профиль политика платформы
// отклонит и без этой проверки, но до сети такой запрос не доходит.
func (s *Service) UpdateProfile(profile domain.Profile) (domain.Profile, error) {
	if profile.ID != s.viewer {
		return domain.Profile{}, fmt.Errorf("чужой профиль: %w", domain.ErrPermissionDenied)
	}
	profile.Username = strings.TrimSpace(profile.Username)
	if profile.Username == "" {
		return domain.Profile{}, fmt.Errorf("пустое имя пользователя: %w", domain.ErrInvalidInput)
	}
	if len([]rune(profile.Bio)) > maxBioLength {
		return domain.Profile{}, fmt.Errorf("слишком длинное описание: %w", domain.ErrInvalidInput)
	}

	updated, err := s.profiles.UpdateProfile(profile)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("обновление профиля: %w", err)
	}
	return updated, nil
}

// Settings возвращает настройки зрителя. Первое обращение, пока строки ещё
// нет, отдаёт значения по умолчанию без ошибки.
func (s *Service) Settings() (domain.UserSettings, error) {
	settings, err := s.settings.GetSettings(s.viewer)
	if errors.Is(err, domain.ErrNotFound) {
		return defaultSettings(s.viewer), nil
	}
	if err != nil {
		return domain.UserSettings{}, fmt.Errorf("получение настроек: %w", err)
	}
	return settings, nil
}

// UpdateSettings сохраняет настройки зрителя.
func (s *Service) UpdateSettings(settings domain.UserSettings) (domain.UserSettings, error) {
	settings.UserID = s.viewer
	settings.UpdatedAt = time.Now().UTC()
	saved, err := s.settings.UpsertSettings(settings)
	if err != nil {
		return domain.UserSettings{}, fmt.Errorf("сохранение настроек: %w", err)
	}
	return saved, nil
}

func (s *Service) checkTarget(target uuid.UUID) error {
	if target == uuid.Nil {
		return fmt.Errorf("пустой пользователь: %w", domain.ErrInvalidInput)
	}
	if target == s.viewer {
		return ErrSelfFollow
	}
	return nil
}

func defaultSettings(user uuid.UUID) domain.UserSettings {
	return domain.UserSettings{
		UserID:        user,
		Notifications: true,
		Autoplay:      true,
	}
}
