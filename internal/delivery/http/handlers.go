package http

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ilindan-dev/group-notifier/internal/domain/model"
	"github.com/ilindan-dev/group-notifier/internal/service"
	"github.com/ilindan-dev/group-notifier/internal/storage/media"
	"github.com/rs/zerolog"
)

// uploadFields are the multipart fields files are read from, in order.
var uploadFields = []string{"files", "media", "image"}

// formOverhead is the room left for text fields and part headers on top of the files.
const formOverhead = 1 << 20

// MediaStore persists uploaded files and removes them again on failure.
type MediaStore interface {
	Save(ctx context.Context, files []*multipart.FileHeader) ([]string, error)
	Remove(urls []string)
	Owns(url string) bool
}

type Handlers struct {
	service *service.NotificationService
	media   MediaStore
	// maxUpload bounds a multipart request body; zero disables the bound.
	maxUpload int64
	logger    zerolog.Logger
}

// NewHandlers creates a new instance of Handlers. Multipart bodies are capped
// at a full batch of maximum-size files plus the form fields.
func NewHandlers(service *service.NotificationService, store *media.Store, logger *zerolog.Logger) *Handlers {
	var maxUpload int64
	if store.MaxFiles() > 0 && store.MaxFileSize() > 0 {
		maxUpload = int64(store.MaxFiles())*store.MaxFileSize() + formOverhead
	}
	return newHandlers(service, store, maxUpload, logger)
}

func newHandlers(service *service.NotificationService, store MediaStore, maxUpload int64, logger *zerolog.Logger) *Handlers {
	return &Handlers{
		service:   service,
		media:     store,
		maxUpload: maxUpload,
		logger:    logger.With().Str("layer", "http_handler").Logger(),
	}
}

// RegisterRoutes sets up the routing for the notification API.
func (h *Handlers) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.GET("/groups", h.ListGroups)

		n := api.Group("/notifications")
		n.POST("", h.CreateNotification)
		n.POST("/send", h.SendNotification)
		n.GET("", h.ListNotifications)
		n.GET("/filter", h.FilterNotifications)
		n.GET("/photos", h.Photos)
		n.GET("/group/:groupName/history", h.GroupHistory)
		n.GET("/group/:groupName/photos", h.GroupPhotos)
		n.GET("/user/:userId/photos", h.UserPhotos)
		n.GET("/:id", h.GetNotificationByID)
		n.GET("/:id/interested", h.InterestedUsers)
		n.POST("/:id/respond", h.RespondToNotification)
		n.DELETE("/:id", h.CancelNotification)
	}
}

// CreateNotification handles a JSON creation request.
func (h *Handlers) CreateNotification(c *gin.Context) {
	var req CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn().Err(err).Msg("invalid request body")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	// Media is attached through /send; only files already stored here may be referenced.
	for _, u := range req.ImageURLs {
		if u = strings.TrimSpace(u); u != "" && !h.media.Owns(u) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "imageUrls: not an uploaded file: " + u})
			return
		}
	}

	notification, err := h.service.CreateNotification(c.Request.Context(), service.CreateParams{
		Title:         req.Title,
		Message:       req.Message,
		TargetGroups:  req.TargetGroups,
		IsInteractive: req.IsInteractive,
		MediaURLs:     req.ImageURLs,
		ScheduledFor:  req.ScheduledFor,
	})
	if err != nil {
		h.fail(c, err, "failed to create notification")
		return
	}

	c.JSON(http.StatusCreated, toNotificationResponse(notification))
}

// SendNotification handles a multipart creation request carrying media files.
func (h *Handlers) SendNotification(c *gin.Context) {
	if h.maxUpload > 0 {
		if c.Request.ContentLength > h.maxUpload {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})
			return
		}
		h.logger.Warn().Err(err).Msg("invalid multipart form")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid multipart form"})
		return
	}

	interactive, err := parseBool(formValue(form, "isInteractive"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "isInteractive: must be a boolean"})
		return
	}

	var groups []string
	for _, raw := range form.Value["targetGroups"] {
		groups = append(groups, model.SplitGroups(raw)...)
	}

	var files []*multipart.FileHeader
	for _, field := range uploadFields {
		files = append(files, form.File[field]...)
	}

	ctx := c.Request.Context()
	urls, err := h.media.Save(ctx, files)
	if err != nil {
		h.fail(c, err, "failed to store media")
		return
	}

	notification, err := h.service.CreateNotification(ctx, service.CreateParams{
		Title:         formValue(form, "title"),
		Message:       formValue(form, "message"),
		TargetGroups:  groups,
		IsInteractive: interactive,
		MediaURLs:     urls,
		ScheduledFor:  formValue(form, "scheduledFor"),
	})
	if err != nil {
		h.media.Remove(urls)
		h.fail(c, err, "failed to create notification")
		return
	}

	c.JSON(http.StatusCreated, toNotificationResponse(notification))
}

// RespondToNotification records a user's answer.
func (h *Handlers) RespondToNotification(c *gin.Context) {
	id, ok := h.uuidParam(c, "id", "invalid notification ID format")
	if !ok {
		return
	}

	var req RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	userID, err := uuid.Parse(strings.TrimSpace(req.UserID))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user ID format"})
		return
	}

	notification, err := h.service.RespondToNotification(c.Request.Context(), id, userID, req.Response)
	if err != nil {
		h.fail(c, err, "failed to record response")
		return
	}

	c.JSON(http.StatusOK, toNotificationResponse(notification))
}

// ListNotifications lists sent notifications, optionally for one group.
func (h *Handlers) ListNotifications(c *gin.Context) {
	items, err := h.service.ListNotifications(c.Request.Context(), strings.TrimSpace(c.Query("group")))
	if err != nil {
		h.fail(c, err, "failed to list notifications")
		return
	}
	c.JSON(http.StatusOK, toSummaryResponses(items))
}

// FilterNotifications lists notifications targeting any of the given groups.
func (h *Handlers) FilterNotifications(c *gin.Context) {
	var groups []string
	for _, raw := range c.QueryArray("groups") {
		groups = append(groups, model.SplitGroups(raw)...)
	}

	items, err := h.service.ListByGroups(c.Request.Context(), groups)
	if err != nil {
		h.fail(c, err, "failed to filter notifications")
		return
	}
	c.JSON(http.StatusOK, toSummaryResponses(items))
}

// GroupHistory lists a group's notifications with the requesting user's answers.
func (h *Handlers) GroupHistory(c *gin.Context) {
	var userID *uuid.UUID
	if raw := strings.TrimSpace(c.Query("userId")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user ID format"})
			return
		}
		userID = &id
	}

	items, err := h.service.ListByGroup(c.Request.Context(), c.Param("groupName"), userID)
	if err != nil {
		h.fail(c, err, "failed to get group history")
		return
	}
	c.JSON(http.StatusOK, toSummaryResponses(items))
}

// InterestedUsers lists the users who answered "available".
func (h *Handlers) InterestedUsers(c *gin.Context) {
	id, ok := h.uuidParam(c, "id", "invalid notification ID format")
	if !ok {
		return
	}

	users, err := h.service.InterestedUsers(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "failed to get interested users")
		return
	}
	c.JSON(http.StatusOK, toUserSummaries(users))
}

// GroupPhotos lists the media sent to a group.
func (h *Handlers) GroupPhotos(c *gin.Context) {
	sets, err := h.service.PhotosByGroup(c.Request.Context(), c.Param("groupName"))
	if err != nil {
		h.fail(c, err, "failed to get group photos")
		return
	}
	c.JSON(http.StatusOK, toPhotoSets(sets))
}

// Photos lists the media of all sent notifications, optionally for one group.
func (h *Handlers) Photos(c *gin.Context) {
	sets, err := h.service.Photos(c.Request.Context(), strings.TrimSpace(c.Query("group")))
	if err != nil {
		h.fail(c, err, "failed to get photos")
		return
	}
	c.JSON(http.StatusOK, toPhotoSets(sets))
}

// UserPhotos lists the media sent to the groups of a user.
func (h *Handlers) UserPhotos(c *gin.Context) {
	id, ok := h.uuidParam(c, "userId", "invalid user ID format")
	if !ok {
		return
	}

	sets, err := h.service.PhotosForUser(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "failed to get user photos")
		return
	}
	c.JSON(http.StatusOK, toPhotoSets(sets))
}

// GetNotificationByID handles the HTTP request to retrieve a notification.
func (h *Handlers) GetNotificationByID(c *gin.Context) {
	id, ok := h.uuidParam(c, "id", "invalid notification ID format")
	if !ok {
		return
	}

	notification, err := h.service.GetNotification(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "failed to retrieve notification")
		return
	}

	c.JSON(http.StatusOK, toNotificationResponse(notification))
}

// CancelNotification handles the HTTP request to cancel a notification.
func (h *Handlers) CancelNotification(c *gin.Context) {
	id, ok := h.uuidParam(c, "id", "invalid notification ID format")
	if !ok {
		return
	}

	cancelled, err := h.service.CancelNotification(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "failed to cancel notification")
		return
	}
	h.media.Remove(cancelled.MediaURLs)

	c.Status(http.StatusNoContent)
}

// ListGroups returns the allowed groups.
func (h *Handlers) ListGroups(c *gin.Context) {
	c.JSON(http.StatusOK, GroupsResponse{Groups: h.service.Groups()})
}

// fail maps a service or upload error to its status. Anything unexpected is
// logged and reported as a generic 500 with msg.
func (h *Handlers) fail(c *gin.Context, err error, msg string) {
	switch {
	case service.IsValidation(err):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrNotificationNotFound), errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrNotCancellable):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, media.ErrFileTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: err.Error()})
	case errors.Is(err, media.ErrUploadRejected):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msg})
	}
}

func (h *Handlers) uuidParam(c *gin.Context, name, msg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
		return uuid.Nil, false
	}
	return id, true
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// parseBool accepts the usual form spellings; empty is false.
func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return false, nil
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(raw))
}
