package social

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"clipstream-client/internal/domain"
)

var (
	viewer = uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000002")
	target = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
)

type stubSocial struct {
	follows   []uuid.UUID
	unfollows []uuid.UUID
	followErr error
}

func (s *stubSocial) Follow(follower, followee uuid.UUID) error {
	if s.followErr != nil {
		return s.followErr
	}
	s.follows = append(s.follows, followee)
	return nil
}

func (s *stubSocial) Unfollow(follower, followee uuid.UUID) error {
	s.unfollows = append(s.unfollows, followee)
	return nil
}

func (s *stubSocial) Following(user uuid.UUID) ([]uuid.UUID, error) {
	return s.follows, nil
}

func (s *stubSocial) IsFollowing(follower, followee uuid.UUID) (bool, error) {
	for _, id := range s.follows {
		if id == followee {
			return true, nil
		}
	}
	return false, nil
}

type stubProfiles struct {
	profiles map[uuid.UUID]domain.Profile
	updated  []domain.Profile
}

func (s *stubProfiles) GetProfile(id uuid.UUID) (domain.Profile, error) {
	p, ok := s.profiles[id]
	if !ok {
		return domain.Profile{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *stubProfiles) UpdateProfile(profile domain.Profile) (domain.Profile, error) {
	s.updated = append(s.updated, profile)
	return profile, nil
}

type stubSettings struct {
	stored *domain.UserSettings
}

func (s *stubSettings) GetSettings(user uuid.UUID) (domain.UserSettings, error) {
	if s.stored == nil {
		return domain.UserSettings{}, domain.ErrNotFound
	}
	return *s.stored, nil
}

func (s *stubSettings) UpsertSettings(settings domain.UserSettings) (domain.UserSettings, error) {
	s.stored = &settings
	return settings, nil
}

func newTestService(social *stubSocial, profiles *stubProfiles, settings *stubSettings) *Service {
	if profiles == nil {
		profiles = &stubProfiles{profiles: map[uuid.UUID]domain.Profile{
			target: {ID: target, Username: "author"},
			viewer: {ID: viewer, Username: "viewer"},
		}}
	}
	if settings == nil {
		settings = &stubSettings{}
	}
	return NewService(viewer, social, profiles, settings)
}

func TestFollowValidates(t *testing.T) {
	svc := newTestService(&stubSocial{}, nil, nil)

	if err := svc.Follow(viewer); !errors.Is(err, ErrSelfFollow) {
		t.Fatalf("подписка на себя должна отклоняться: %v", err)
	}
	if err := svc.Follow(uuid.Nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("пустой пользователь должен отклоняться: %v", err)
	}
	if err := svc.Follow(uuid.New()); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("несуществующий пользователь должен отклоняться: %v", err)
	}
}

func TestFollowDuplicateIsIdempotent(t *testing.T) {
	social := &stubSocial{followErr: domain.ErrDuplicate}
	svc := newTestService(social, nil, nil)

	if err := svc.Follow(target); err != nil {
		t.Fatalf("повторная подписка должна быть успехом: %v", err)
	}
}

func TestFollowUnfollowFlow(t *testing.T) {
	social := &stubSocial{}
	svc := newTestService(social, nil, nil)

	if err := svc.Follow(target); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	ok, err := svc.IsFollowing(target)
	if err != nil || !ok {
		t.Fatalf("подписка не видна: ok=%v err=%v", ok, err)
	}
	ids, err := svc.Following()
	if err != nil || len(ids) != 1 || ids[0] != target {
		t.Fatalf("список подписок неверен: %v, %v", ids, err)
	}
	if err := svc.Unfollow(target); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(social.unfollows) != 1 {
		t.Fatalf("отписка не дошла до хранилища: %v", social.unfollows)
	}
}

func TestUpdateProfileGuards(t *testing.T) {
	svc := newTestService(&stubSocial{}, nil, nil)

	foreign := domain.Profile{ID: target, Username: "author"}
	if _, err := svc.UpdateProfile(foreign); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("чужой профиль должен отклоняться: %v", err)
	}

	empty := domain.Profile{ID: viewer, Username: "   "}
	if _, err := svc.UpdateProfile(empty); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("пустое имя должно отклоняться: %v", err)
	}
}

func TestSettingsFirstLookupReturnsDefaults(t *testing.T) {
	svc := newTestService(&stubSocial{}, nil, &stubSettings{})

	settings, err := svc.Settings()
	if err != nil {
		t.Fatalf("первое обращение не должно быть ошибкой: %v", err)
	}
	if settings.UserID != viewer {
		t.Fatalf("настройки не для зрителя: %+v", settings)
	}
	if !settings.Notifications || !settings.Autoplay {
		t.Fatalf("ожидали значения по умолчанию: %+v", settings)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	store := &stubSettings{}
	svc := newTestService(&stubSocial{}, nil, store)

	saved, err := svc.UpdateSettings(domain.UserSettings{PrivateAccount: true})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if saved.UserID != viewer || !saved.PrivateAccount {
		t.Fatalf("настройки сохранены неверно: %+v", saved)
	}

	got, err := svc.Settings()
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !got.PrivateAccount {
		t.Fatalf("сохранённые настройки не читаются: %+v", got)
	}
}
