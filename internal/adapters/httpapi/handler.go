package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"clipstream-client/internal/domain"
	httpinfra "clipstream-client/internal/infra/http"
	"clipstream-client/internal/usecase/chat"
	"clipstream-client/internal/usecase/feed"
	"clipstream-client/internal/usecase/social"
)

// maxUploadBytes ограничивает тело запроса загрузки видео.
const maxUploadBytes = 64 << 20

// errInternal уходит клиенту вместо текста внутренней ошибки.
var errInternal = errors.New("internal error")

// Handler отдаёт локальный API для оболочки интерфейса. Все операции
// выполняются от имени зрителя текущей сессии.
type Handler struct {
	feed   *feed.Service
	social *social.Service
	chat   *chat.Service
	viewer uuid.UUID
	log    zerolog.Logger
}

// NewHandler создаёт обработчик локального API.
func NewHandler(viewer uuid.UUID, feedSvc *feed.Service, socialSvc *social.Service, chatSvc *chat.Service, logger zerolog.Logger) *Handler {
	return &Handler{feed: feedSvc, social: socialSvc, chat: chatSvc, viewer: viewer, log: logger}
}

// Routes регистрирует маршруты локального API.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/feed", h.getFeed)
		api.Post("/posts", h.uploadPost)
		api.Post("/posts/{id}/view", h.recordView)
		api.Post("/posts/{id}/like", h.like)
		api.Delete("/posts/{id}/like", h.unlike)

		api.Get("/conversations", h.conversations)
		api.Post("/conversations/{peer}/open", h.openConversation)
		api.Post("/conversations/{peer}/messages", h.sendMessage)
		api.Post("/conversations/{peer}/typing", h.typing)
		api.Post("/conversations/{peer}/call", h.startCall)
		api.Post("/conversations/{peer}/call/answer", h.answerCall)
		api.Delete("/conversations/{peer}/call", h.endCall)

		api.Get("/profile", h.ownProfile)
		api.Put("/profile", h.updateProfile)
		api.Get("/profiles/{id}", h.profileByID)
		api.Get("/settings", h.settings)
		api.Put("/settings", h.updateSettings)

		api.Get("/follows", h.following)
		api.Get("/follows/{id}", h.followCheck)
		api.Post("/follows/{id}", h.follow)
		api.Delete("/follows/{id}", h.unfollow)
		api.Get("/users/{id}/presence", h.presence)
	})
}

func (h *Handler) getFeed(w http.ResponseWriter, r *http.Request) {
	posts, err := h.feed.BuildFeed(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items := make([]postView, 0, len(posts))
	for _, p := range posts {
		items = append(items, newPostView(p))
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) uploadPost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, errors.New("file too large or invalid multipart form"))
		return
	}
	file, header, err := r.FormFile("video")
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, errors.New("missing video in request"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !isAllowedVideoType(contentType) {
		httpinfra.WriteError(w, http.StatusBadRequest, fmt.Errorf("unsupported media type: %s", contentType))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, errors.New("failed to read video"))
		return
	}

	post, err := h.feed.UploadPost(r.Context(), r.FormValue("caption"), contentType, data)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, newUploadedPostView(post))
}

func (h *Handler) recordView(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.feed.RecordView(id); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, statusOK())
}

func (h *Handler) like(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.feed.Like(id); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, statusOK())
}

func (h *Handler) unlike(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.feed.Unlike(id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) conversations(w http.ResponseWriter, r *http.Request) {
	views := h.chat.Conversations()
	items := make([]conversationView, 0, len(views))
	for _, v := range views {
		items = append(items, newConversationView(v))
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) openConversation(w http.ResponseWriter, r *http.Request) {
	peer, err := pathUUID(r, "peer")
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.chat.OpenConversation(r.Context(), peer); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, statusOK())
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	peer, err := pathUUID(r, "peer")
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	defer r.Body.Close()
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	msg, err := h.chat.SendMessage(peer, req.Content, req.MediaKey)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, newMessageView(msg))
}

func (h *Handler) typing(w http.ResponseWriter, r *http.Request) {
	peer, err := pathUUID(r, "peer")
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.chat.Typing(r.Context(), peer); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, statusOK())
}

func (h *Handler) startCall(w http.ResponseWriter, r *http.Request) {
	peer, err := pathUUID(r, "peer")
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.chat.StartCall(r.Context(), peer); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, statusOK())
}

func (h *Handler) answerCall(w http.ResponseWriter, r *http.Request) {
	peer, err := pathUUID(r, "peer")
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.chat.AnswerCall(r.Context(), peer); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, statusOK())
}

func (h *Handler) endCall(w http.ResponseWriter, r *http.Request) {
	peer, err := pathUUID(r, "peer")
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.chat.EndCall(r.Context(), peer); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ownProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.social.Profile(uuid.Nil)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, newProfileView(profile))
}

func (h *Handler) profileByID(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	profile, err := h.social.Profile(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, newProfileView(profile))
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	profile, err := h.social.UpdateProfile(domain.Profile{
		ID:        h.viewer,
		Username:  req.Username,
		FullName:  req.FullName,
		Bio:       req.Bio,
		AvatarKey: req.AvatarKey,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, newProfileView(profile))
}

func (h *Handler) settings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.social.Settings()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, newSettingsView(settings))
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	settings, err := h.social.UpdateSettings(domain.UserSettings{
		PrivateAccount: req.PrivateAccount,
		Notifications:  req.Notifications,
		Autoplay:       req.Autoplay,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, newSettingsView(settings))
}

func (h *Handler) following(w http.ResponseWriter, r *http.Request) {
	ids, err := h.social.Following()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"items": ids})
}

func (h *Handler) followCheck(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	ok, err := h.social.IsFollowing(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]bool{"following": ok})
}

func (h *Handler) follow(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.social.Follow(id); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, statusOK())
}

func (h *Handler) unfollow(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.social.Unfollow(id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) presence(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, err)
		return
	}
	state, err := h.chat.PeerPresence(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, newPresenceView(state))
}

// writeError переводит ошибку сценария в HTTP статус. Текст внутренней
// ошибки наружу не уходит: клиент получает фиксированное сообщение,
// подробности остаются в логе.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Str("request_id", httpinfra.RequestID(r)).Msg("api: внутренняя ошибка")
		httpinfra.WriteError(w, status, errInternal)
		return
	}
	httpinfra.WriteError(w, status, err)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, social.ErrSelfFollow):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, social.ErrUserNotFound), errors.Is(err, chat.ErrNoCall):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

func statusOK() map[string]string { return map[string]string{"status": "ok"} }

func isAllowedVideoType(contentType string) bool {
	switch contentType {
	case "video/mp4", "video/quicktime", "video/webm":
		return true
	}
	return false
}

type sendMessageRequest struct {
	Content  string `json:"content"`
	MediaKey string `json:"media_key"`
}

type updateProfileRequest struct {
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	Bio       string `json:"bio"`
	AvatarKey string `json:"avatar_key"`
}

type updateSettingsRequest struct {
	PrivateAccount bool `json:"private_account"`
	Notifications  bool `json:"notifications"`
	Autoplay       bool `json:"autoplay"`
}

type postView struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Caption   string    `json:"caption,omitempty"`
	MediaKey  string    `json:"media_key"`
	MediaURL  string    `json:"media_url,omitempty"`
	Views     int64     `json:"views"`
	Likes     int64     `json:"likes"`
	Comments  int64     `json:"comments"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

func newPostView(p domain.RankedPost) postView {
	return postView{
		ID:        p.Post.ID,
		OwnerID:   p.Post.OwnerID,
		Caption:   p.Post.Caption,
		MediaKey:  p.Post.MediaKey,
		MediaURL:  p.MediaURL,
		Views:     p.Post.Views,
		Likes:     p.Post.Likes,
		Comments:  p.Post.Comments,
		Score:     p.Score,
		CreatedAt: p.Post.CreatedAt,
	}
}

func newUploadedPostView(p domain.VideoPost) postView {
	return newPostView(domain.RankedPost{Post: p})
}

type messageView struct {
	ID         uuid.UUID `json:"id"`
	SenderID   uuid.UUID `json:"sender_id"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	Content    string    `json:"content,omitempty"`
	MediaKey   string    `json:"media_key,omitempty"`
	Seen       bool      `json:"seen"`
	CreatedAt  time.Time `json:"created_at"`
}

func newMessageView(m domain.Message) messageView {
	return messageView{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		MediaKey:   m.MediaKey,
		Seen:       m.Seen,
		CreatedAt:  m.CreatedAt,
	}
}

type conversationView struct {
	Peer        uuid.UUID   `json:"peer"`
	LastMessage messageView `json:"last_message"`
	Unread      int         `json:"unread"`
	Typing      bool        `json:"typing"`
	CallPhase   string      `json:"call_phase,omitempty"`
}

func newConversationView(v chat.ConversationView) conversationView {
	return conversationView{
		Peer:        v.Summary.Peer,
		LastMessage: newMessageView(v.Summary.LastMessage),
		Unread:      v.Summary.Unread,
		Typing:      v.Typing,
		CallPhase:   string(v.Call.Phase),
	}
}

type profileView struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	AvatarKey string    `json:"avatar_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newProfileView(p domain.Profile) profileView {
	return profileView{
		ID:        p.ID,
		Username:  p.Username,
		FullName:  p.FullName,
		Bio:       p.Bio,
		AvatarKey: p.AvatarKey,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

type settingsView struct {
	PrivateAccount bool      `json:"private_account"`
	Notifications  bool      `json:"notifications"`
	Autoplay       bool      `json:"autoplay"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func newSettingsView(s domain.UserSettings) settingsView {
	return settingsView{
		PrivateAccount: s.PrivateAccount,
		Notifications:  s.Notifications,
		Autoplay:       s.Autoplay,
		UpdatedAt:      s.UpdatedAt,
	}
}

type presenceView struct {
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

func newPresenceView(s domain.PresenceState) presenceView {
	v := presenceView{Online: s.Online}
	if !s.LastSeen.IsZero() {
		t := s.LastSeen
		v.LastSeen = &t
	}
	return v
}
