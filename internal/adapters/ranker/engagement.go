package ranker

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"clipstream-client/internal/domain"
)

// Веса слагаемых оценки вовлечённости.
const (
	viewsWeight    = 0.3
	likesWeight    = 0.3
	commentsWeight = 0.2
	rateWeight     = 0.2
)

// EngagementRanker считает составную оценку релевантности поста:
// вовлечённость, умноженная на бусты подписки, свежести и трендовости.
type EngagementRanker struct{}

// NewEngagement создаёт ранжировщик ленты.
func NewEngagement() *EngagementRanker {
	return &EngagementRanker{}
}

// Rank оценивает посты и сортирует по убыванию итоговой оценки.
// Сортировка стабильна: при равных оценках сохраняется исходный порядок.
// Функция чистая, момент времени передаёт вызывающий.
func (r *EngagementRanker) Rank(posts []domain.VideoPost, following map[uuid.UUID]struct{}, now time.Time) []domain.RankedPost {
	items := make([]domain.RankedPost, 0, len(posts))
	for _, p := range posts {
		items = append(items, domain.RankedPost{Post: p, Score: r.Score(p, following, now)})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	return items
}

// Score возвращает итоговую оценку одного поста. Отрицательные счётчики
// считаются нулевыми, пост без владельца не получает буста подписки.
func (r *EngagementRanker) Score(p domain.VideoPost, following map[uuid.UUID]struct{}, now time.Time) float64 {
	views := clampCount(p.Views)
	likes := clampCount(p.Likes)
	comments := clampCount(p.Comments)

	rate := 0.0
	if views > 0 {
		rate = (likes + comments) / views
	}
	engagement := views*viewsWeight + likes*likesWeight + comments*commentsWeight + rate*100*rateWeight

	return engagement * followingBoost(p.OwnerID, following) * recencyBoost(now.Sub(p.CreatedAt)) * trendingBoost(p.Views)
}

func clampCount(n int64) float64 {
	if n < 0 {
		return 0
	}
	return float64(n)
}

func followingBoost(owner uuid.UUID, following map[uuid.UUID]struct{}) float64 {
	if owner == uuid.Nil {
		return 1.0
	}
	if _, ok := following[owner]; ok {
		return 1.5
	}
	return 1.0
}

func recencyBoost(age time.Duration) float64 {
	switch {
	case age < time.Hour:
		return 2.0
	case age < 24*time.Hour:
		return 1.5
	case age < 7*24*time.Hour:
		return 1.2
	default:
		return 1.0
	}
}

func trendingBoost(views int64) float64 {
	switch {
	case views > 1000:
		return 1.5
	case views > 500:
		return 1.3
	case views > 100:
		return 1.2
	default:
		return 1.0
	}
}
