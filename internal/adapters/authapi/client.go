package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"clipstream-client/internal/domain"
	"clipstream-client/internal/infra/metrics"
)

// Client обращается к токен-эндпоинту платформы. Подпись токенов проверяет
// сама платформа, клиент лишь извлекает открытые поля.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
}

var _ domain.AuthClient = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New создаёт клиента аутентификации.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	client := &Client{
		baseURL:    parsed,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// SignIn обменивает учётные данные на сессию.
func (c *Client) SignIn(ctx context.Context, email, password string) (domain.Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return domain.Session{}, domain.ErrInvalidInput
	}
	return c.token(ctx, "password", map[string]string{"email": email, "password": password})
}

// Refresh обменивает refresh-токен на свежую сессию.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (domain.Session, error) {
	if refreshToken == "" {
		return domain.Session{}, domain.ErrInvalidInput
	}
	return c.token(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         struct {
		ID uuid.UUID `json:"id"`
	} `json:"user"`
}

type apiError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
	Message     string `json:"msg"`
}

func (c *Client) token(ctx context.Context, grant string, payload map[string]string) (domain.Session, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.Session{}, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := *c.baseURL
	endpoint.Path = path.Join(endpoint.Path, "/auth/v1/token")
	q := endpoint.Query()
	q.Set("grant_type", grant)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return domain.Session{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveNetworkRequest("platform-auth", "token_"+grant, "token", start, err)
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return domain.Session{}, mapAPIError(resp)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return domain.Session{}, fmt.Errorf("decode response: %w", err)
	}
	return tr.toSession()
}

func (tr tokenResponse) toSession() (domain.Session, error) {
	if tr.AccessToken == "" || tr.RefreshToken == "" {
		return domain.Session{}, fmt.Errorf("неполный ответ токен-эндпоинта")
	}
	subject, expiresAt, err := parseClaims(tr.AccessToken)
	if err != nil {
		return domain.Session{}, err
	}
	userID := tr.User.ID
	if userID == uuid.Nil {
		userID = subject
	}
	if expiresAt.IsZero() && tr.ExpiresIn > 0 {
		expiresAt = time.Now().UTC().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return domain.Session{
		UserID:       userID,
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

// parseClaims извлекает subject и срок жизни токена доступа без проверки
// подписи: ключ подписи есть только у платформы.
func parseClaims(token string) (uuid.UUID, time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("разбор токена: %w", err)
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("subject токена: %w", err)
	}
	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return id, expiresAt, nil
}

func mapAPIError(resp *http.Response) error {
	var apiErr apiError
	data, readErr := io.ReadAll(resp.Body)
	if readErr == nil && len(data) > 0 {
		_ = json.Unmarshal(data, &apiErr)
	}
	msg := apiErr.Description
	if msg == "" {
		msg = apiErr.Message
	}
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	switch {
	// invalid_grant приходит на неверные учётные данные и отозванный refresh.
	case apiErr.Error == "invalid_grant":
		return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, msg)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, msg)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, msg)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status=%d %s", domain.ErrUnavailable, resp.StatusCode, msg)
	default:
		return fmt.Errorf("auth api: status=%d %s", resp.StatusCode, msg)
	}
}
