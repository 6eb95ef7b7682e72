package domain

import "errors"

// Классификация ошибок платформы. Адаптеры переводят ошибки драйверов в эти
// значения на границе, чтобы сценарии не зависели от конкретного транспорта.
var (
	// ErrNoSession — нет активной сессии, требуется вход.
	ErrNoSession = errors.New("нет активной сессии")
	// ErrPermissionDenied — серверная политика доступа отклонила операцию.
	// Повторять бессмысленно.
	ErrPermissionDenied = errors.New("операция отклонена политикой доступа")
	// ErrNotFound — строка не найдена; для ряда операций это ожидаемый исход.
	ErrNotFound = errors.New("запись не найдена")
	// ErrDuplicate — строка уже существует.
	ErrDuplicate = errors.New("запись уже существует")
	// ErrUnavailable — платформа недоступна, сбой сети или таймаут.
	ErrUnavailable = errors.New("платформа недоступна")
	// ErrInvalidInput — входные данные не проходят проверку до обращения к платформе.
	ErrInvalidInput = errors.New("некорректные входные данные")
)
