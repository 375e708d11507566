package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ilindan-dev/group-notifier/internal/config"
	"github.com/ilindan-dev/group-notifier/internal/domain/model"
	"github.com/ilindan-dev/group-notifier/internal/metrics"
	"github.com/ilindan-dev/group-notifier/internal/service"
	"github.com/ilindan-dev/group-notifier/internal/storage/media"
	"github.com/ilindan-dev/group-notifier/internal/storage/memory"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)

type testAPI struct {
	router  *gin.Engine
	repo    *memory.NotificationRepository
	users   *memory.UserRepository
	queue   *memory.Queue
	store   *media.Store
	metrics *metrics.Metrics
	alice   *model.User
	bob     *model.User
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	birthdate := time.Date(1990, 3, 4, 0, 0, 0, 0, time.UTC)
	a := &testAPI{
		alice: &model.User{ID: uuid.New(), FirstName: "Alice", LastName: "Martin", Birthdate: &birthdate, Groups: []string{"Jeunesse"}},
		bob:   &model.User{ID: uuid.New(), FirstName: "Bob", LastName: "Durand", Groups: []string{"Familles"}},
	}
	a.users = memory.NewUserRepository(a.alice, a.bob)
	a.repo = memory.NewNotificationRepository(a.users)
	a.queue = memory.NewQueue(time.Now)

	groups, err := model.NewGroups([]string{"Familles", "Jeunesse", "Enfance"})
	require.NoError(t, err)

	cfg := &config.Config{
		HTTP:      config.HTTPConfig{GinMode: gin.TestMode, MaxMultipartMem: 1 << 20},
		Scheduler: config.SchedulerConfig{Location: "UTC"},
		Upload: config.UploadConfig{
			Dir:          filepath.Join(t.TempDir(), "notification-images"),
			PublicPrefix: "/uploads/notification-images",
			MaxFileSize:  1024,
			MaxFiles:     3,
		},
	}
	logger := zerolog.Nop()

	svc := service.NewNotificationService(a.repo, a.users, a.queue, groups, cfg, &logger)
	a.store, err = media.NewStore(cfg, &logger)
	require.NoError(t, err)

	reg := metrics.NewRegistry()
	a.metrics = metrics.New(reg)
	a.router = NewRouter(cfg, NewHandlers(svc, a.store, &logger), a.store, reg, a.metrics, &logger)
	return a
}

func (a *testAPI) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

type formFile struct {
	field, name string
	data        []byte
}

func (a *testAPI) sendForm(t *testing.T, values map[string][]string, files ...formFile) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, vs := range values {
		for _, v := range vs {
			require.NoError(t, w.WriteField(k, v))
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/notifications/send", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (a *testAPI) createSent(t *testing.T, groups ...string) NotificationResponse {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/notifications", CreateNotificationRequest{
		Title: "Sortie", Message: "Rendez-vous à 14h", TargetGroups: groups, IsInteractive: true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[NotificationResponse](t, rec)
}

// storeFile places a file in the upload directory and returns its public URL.
func (a *testAPI) storeFile(t *testing.T, name string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(a.store.Dir(), name), pngBytes, 0o644))
	return a.store.PublicPrefix() + "/" + name
}

func storedFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestCreateNotification_JSON(t *testing.T) {
	a := newTestAPI(t)

	stored := a.storeFile(t, "affiche.png")
	rec := a.do(t, http.MethodPost, "/api/notifications", map[string]any{
		"title":        "Fête",
		"message":      "Samedi soir",
		"targetGroups": []string{"Jeunesse", "Familles"},
		"imageUrls":    []string{stored},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	raw := map[string]any{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	for _, key := range []string{"id", "title", "message", "targetGroups", "imageUrls", "isInteractive", "sentAt", "createdAt", "responses", "interestedCount"} {
		assert.Contains(t, raw, key)
	}
	assert.NotContains(t, raw, "scheduledFor", "immediate notifications carry no schedule")
	assert.Equal(t, []any{}, raw["responses"])

	resp := decode[NotificationResponse](t, rec)
	assert.Equal(t, []string{"Jeunesse", "Familles"}, resp.TargetGroups)
	assert.Equal(t, []string{stored}, resp.ImageURLs)
	assert.NotNil(t, resp.SentAt)
	require.Len(t, a.queue.Messages(), 1)
	assert.Equal(t, memory.KindAnnounce, a.queue.Messages()[0].Kind)
}

func TestCreateNotification_Scheduled(t *testing.T) {
	a := newTestAPI(t)

	when := time.Now().UTC().Add(2 * time.Hour).Truncate(time.Second)
	rec := a.do(t, http.MethodPost, "/api/notifications", CreateNotificationRequest{
		Title: "Réunion", Message: "Ordre du jour", TargetGroups: []string{"Enfance"},
		ScheduledFor: when.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[NotificationResponse](t, rec)
	assert.Nil(t, resp.SentAt)
	require.NotNil(t, resp.ScheduledFor)
	assert.True(t, when.Equal(*resp.ScheduledFor))
	require.Len(t, a.queue.Messages(), 1)
	assert.Equal(t, memory.KindDeliver, a.queue.Messages()[0].Kind)

	list := a.do(t, http.MethodGet, "/api/notifications", nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Empty(t, decode[[]NotificationSummaryResponse](t, list), "pending notifications are not listed")
}

func TestCreateNotification_Validation(t *testing.T) {
	a := newTestAPI(t)

	tests := []struct {
		name string
		body any
	}{
		{"missing title", CreateNotificationRequest{Message: "m", TargetGroups: []string{"Jeunesse"}}},
		{"missing message", CreateNotificationRequest{Title: "t", TargetGroups: []string{"Jeunesse"}}},
		{"no groups", CreateNotificationRequest{Title: "t", Message: "m"}},
		{"unknown group", CreateNotificationRequest{Title: "t", Message: "m", TargetGroups: []string{"Seniors"}}},
		{"bad schedule", CreateNotificationRequest{Title: "t", Message: "m", TargetGroups: []string{"Jeunesse"}, ScheduledFor: "demain"}},
		{"malformed body", "not an object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, http.MethodPost, "/api/notifications", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
		})
	}
	assert.Zero(t, a.repo.Len())
}

func TestSendNotification_Multipart(t *testing.T) {
	a := newTestAPI(t)

	rec := a.sendForm(t, map[string][]string{
		"title":         {"Photos"},
		"message":       {"Souvenirs du camp"},
		"targetGroups":  {"Jeunesse, Enfance"},
		"isInteractive": {"true"},
	}, formFile{"files", "camp.png", pngBytes}, formFile{"image", "feu.PNG", pngBytes})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[NotificationResponse](t, rec)
	assert.Equal(t, []string{"Jeunesse", "Enfance"}, resp.TargetGroups)
	assert.True(t, resp.IsInteractive)
	require.Len(t, resp.ImageURLs, 2)
	for _, u := range resp.ImageURLs {
		assert.True(t, strings.HasPrefix(u, "/uploads/notification-images/"), u)
	}
	assert.Len(t, storedFiles(t, a.store.Dir()), 2)

	served := httptest.NewRecorder()
	a.router.ServeHTTP(served, httptest.NewRequest(http.MethodGet, resp.ImageURLs[0], nil))
	assert.Equal(t, http.StatusOK, served.Code)
	assert.Equal(t, pngBytes, served.Body.Bytes())
}

func TestSendNotification_RemovesUploadsWhenCreateFails(t *testing.T) {
	a := newTestAPI(t)

	rec := a.sendForm(t, map[string][]string{
		"title":        {"Photos"},
		"message":      {"Souvenirs"},
		"targetGroups": {"Seniors"},
	}, formFile{"files", "camp.png", pngBytes})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, storedFiles(t, a.store.Dir()))
	assert.Zero(t, a.repo.Len())
}

func TestSendNotification_UploadErrors(t *testing.T) {
	a := newTestAPI(t)
	fields := map[string][]string{"title": {"t"}, "message": {"m"}, "targetGroups": {"Jeunesse"}}

	rec := a.sendForm(t, fields, formFile{"files", "doc.pdf", []byte("%PDF-1.4")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.sendForm(t, fields, formFile{"files", "big.png", append(pngBytes, make([]byte, 2048)...)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = a.sendForm(t, fields, formFile{"media", "clip.mp4", []byte("video")})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "videos are disabled")

	bad := a.sendForm(t, map[string][]string{"title": {"t"}, "message": {"m"}, "targetGroups": {"Jeunesse"}, "isInteractive": {"peut-être"}})
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	assert.Empty(t, storedFiles(t, a.store.Dir()))
	assert.Zero(t, a.repo.Len())
}

type failingStore struct {
	urls    []string
	removed []string
}

func (s *failingStore) Save(context.Context, []*multipart.FileHeader) ([]string, error) {
	return s.urls, nil
}

func (s *failingStore) Remove(urls []string) { s.removed = append(s.removed, urls...) }

func (s *failingStore) Owns(string) bool { return true }

func TestSendNotification_CompensatesOnStorageError(t *testing.T) {
	users := memory.NewUserRepository()
	repo := memory.NewNotificationRepository(users)
	repo.Err = errors.New("connection refused")
	groups, err := model.NewGroups([]string{"Jeunesse"})
	require.NoError(t, err)
	logger := zerolog.Nop()
	svc := service.NewNotificationService(repo, users, memory.NewQueue(time.Now), groups, &config.Config{}, &logger)

	store := &failingStore{urls: []string{"/uploads/a.png"}}
	gin.SetMode(gin.TestMode)
	router := gin.New()
	newHandlers(svc, store, 0, &logger).RegisterRoutes(router)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("title", "t"))
	require.NoError(t, w.WriteField("message", "m"))
	require.NoError(t, w.WriteField("targetGroups", "Jeunesse"))
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/notifications/send", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "failed to create notification", decode[ErrorResponse](t, rec).Error)
	assert.Equal(t, []string{"/uploads/a.png"}, store.removed)
}

func TestRespondToNotification(t *testing.T) {
	a := newTestAPI(t)
	n := a.createSent(t, "Jeunesse")
	target := "/api/notifications/" + n.ID.String() + "/respond"

	rec := a.do(t, http.MethodPost, target, RespondRequest{UserID: a.alice.ID.String(), Response: "Available"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[NotificationResponse](t, rec)
	assert.Equal(t, 1, resp.InterestedCount)
	require.Len(t, resp.Responses, 1)
	assert.Equal(t, "available", resp.Responses[0].Response)

	rec = a.do(t, http.MethodPost, target, RespondRequest{UserID: a.alice.ID.String(), Response: "not_available"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[NotificationResponse](t, rec)
	assert.Zero(t, resp.InterestedCount)
	require.Len(t, resp.Responses, 1, "a second answer replaces the first")
	assert.Equal(t, "not available", resp.Responses[0].Response)
}

func TestRespondToNotification_Errors(t *testing.T) {
	a := newTestAPI(t)
	n := a.createSent(t, "Jeunesse")
	target := "/api/notifications/" + n.ID.String() + "/respond"

	tests := []struct {
		name   string
		target string
		body   any
		want   int
	}{
		{"bad notification id", "/api/notifications/nope/respond", RespondRequest{UserID: a.alice.ID.String(), Response: "available"}, http.StatusBadRequest},
		{"bad user id", target, RespondRequest{UserID: "nope", Response: "available"}, http.StatusBadRequest},
		{"bad response", target, RespondRequest{UserID: a.alice.ID.String(), Response: "maybe"}, http.StatusBadRequest},
		{"unknown notification", "/api/notifications/" + uuid.NewString() + "/respond", RespondRequest{UserID: a.alice.ID.String(), Response: "available"}, http.StatusNotFound},
		{"unknown user", target, RespondRequest{UserID: uuid.NewString(), Response: "available"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestListAndFilterNotifications(t *testing.T) {
	a := newTestAPI(t)
	youth := a.createSent(t, "Jeunesse")
	families := a.createSent(t, "Familles")

	rec := a.do(t, http.MethodGet, "/api/notifications", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]NotificationSummaryResponse](t, rec), 2)

	rec = a.do(t, http.MethodGet, "/api/notifications?group=Jeunesse", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]NotificationSummaryResponse](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, youth.ID, list[0].ID)

	rec = a.do(t, http.MethodGet, "/api/notifications/filter?groups=Familles,Enfance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = decode[[]NotificationSummaryResponse](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, families.ID, list[0].ID)

	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/api/notifications?group=Seniors", nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/api/notifications/filter", nil).Code)
}

func TestGroupHistory(t *testing.T) {
	a := newTestAPI(t)
	n := a.createSent(t, "Jeunesse")
	a.createSent(t, "Jeunesse")
	rec := a.do(t, http.MethodPost, "/api/notifications/"+n.ID.String()+"/respond",
		RespondRequest{UserID: a.alice.ID.String(), Response: "available"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/notifications/group/Jeunesse/history?userId="+a.alice.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]NotificationSummaryResponse](t, rec)
	require.Len(t, list, 2)
	answered := 0
	for _, item := range list {
		if item.ID == n.ID {
			require.NotNil(t, item.UserResponse)
			assert.Equal(t, "available", *item.UserResponse)
			assert.Equal(t, 1, item.InterestedCount)
			answered++
		} else {
			assert.Nil(t, item.UserResponse)
		}
	}
	assert.Equal(t, 1, answered)

	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/api/notifications/group/Jeunesse/history?userId=x", nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/api/notifications/group/Seniors/history", nil).Code)
}

func TestInterestedUsers(t *testing.T) {
	a := newTestAPI(t)
	n := a.createSent(t, "Jeunesse", "Familles")
	for user, answer := range map[*model.User]string{a.alice: "available", a.bob: "not available"} {
		rec := a.do(t, http.MethodPost, "/api/notifications/"+n.ID.String()+"/respond",
			RespondRequest{UserID: user.ID.String(), Response: answer})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := a.do(t, http.MethodGet, "/api/notifications/"+n.ID.String()+"/interested", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decode[[]UserSummaryResponse](t, rec)
	require.Len(t, users, 1)
	assert.Equal(t, a.alice.ID, users[0].ID)
	require.NotNil(t, users[0].Birthdate)
	assert.Equal(t, "1990-03-04", *users[0].Birthdate)

	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/api/notifications/"+uuid.NewString()+"/interested", nil).Code)
}

func TestPhotos(t *testing.T) {
	a := newTestAPI(t)
	rec := a.sendForm(t, map[string][]string{
		"title": {"Photos"}, "message": {"Camp"}, "targetGroups": {"Jeunesse"},
	}, formFile{"files", "camp.png", pngBytes})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	a.createSent(t, "Jeunesse")

	rec = a.do(t, http.MethodGet, "/api/notifications/group/Jeunesse/photos", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sets := decode[[]PhotoSetResponse](t, rec)
	require.Len(t, sets, 1, "notifications without media are skipped")
	assert.Len(t, sets[0].ImageURL, 1)

	rec = a.do(t, http.MethodGet, "/api/notifications/user/"+a.alice.ID.String()+"/photos", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]PhotoSetResponse](t, rec), 1)

	rec = a.do(t, http.MethodGet, "/api/notifications/user/"+a.bob.ID.String()+"/photos", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]PhotoSetResponse](t, rec))

	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/api/notifications/user/"+uuid.NewString()+"/photos", nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/api/notifications/user/x/photos", nil).Code)
}

func TestGetAndCancelNotification(t *testing.T) {
	a := newTestAPI(t)
	sent := a.createSent(t, "Jeunesse")

	rec := a.do(t, http.MethodGet, "/api/notifications/"+sent.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sent.ID, decode[NotificationResponse](t, rec).ID)

	assert.Equal(t, http.StatusConflict, a.do(t, http.MethodDelete, "/api/notifications/"+sent.ID.String(), nil).Code)

	rec = a.do(t, http.MethodPost, "/api/notifications", CreateNotificationRequest{
		Title: "Plus tard", Message: "m", TargetGroups: []string{"Jeunesse"},
		ScheduledFor: time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	pending := decode[NotificationResponse](t, rec)

	assert.Equal(t, http.StatusNoContent, a.do(t, http.MethodDelete, "/api/notifications/"+pending.ID.String(), nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/api/notifications/"+pending.ID.String(), nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodDelete, "/api/notifications/"+pending.ID.String(), nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/api/notifications/not-a-uuid", nil).Code)
}

func TestGroupsHealthAndMetrics(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/groups", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Familles", "Jeunesse", "Enfance"}, decode[GroupsResponse](t, rec).Groups)

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/health", nil).Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.metrics.HTTPRequests.WithLabelValues(http.MethodGet, "/api/groups", "200")))

	a.do(t, http.MethodGet, "/nowhere", nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.metrics.HTTPRequests.WithLabelValues(http.MethodGet, unmatchedRoute, "404")))

	rec = a.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "group_notifier_http_requests_total")
}

func TestParseBool(t *testing.T) {
	for raw, want := range map[string]bool{"": false, "true": true, "1": true, "on": true, "YES": true, "false": false, "0": false, "off": false} {
		got, err := parseBool(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := parseBool("peut-être")
	assert.Error(t, err)
}

func TestCreateNotification_RejectsForeignImageURLs(t *testing.T) {
	a := newTestAPI(t)

	for _, u := range []string{
		"https://example.org/a.png",
		"/uploads/notification-images/missing.png",
		"/uploads/notification-images/../../etc/passwd",
	} {
		rec := a.do(t, http.MethodPost, "/api/notifications", CreateNotificationRequest{
			Title: "t", Message: "m", TargetGroups: []string{"Jeunesse"}, ImageURLs: []string{u},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code, u)
		assert.Contains(t, decode[ErrorResponse](t, rec).Error, "imageUrls", u)
	}
	assert.Zero(t, a.repo.Len())
}

func TestSendNotification_BodyLimit(t *testing.T) {
	users := memory.NewUserRepository()
	repo := memory.NewNotificationRepository(users)
	groups, err := model.NewGroups([]string{"Jeunesse"})
	require.NoError(t, err)
	logger := zerolog.Nop()
	svc := service.NewNotificationService(repo, users, memory.NewQueue(time.Now), groups, &config.Config{}, &logger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	newHandlers(svc, &failingStore{}, 4096, &logger).RegisterRoutes(router)

	form := func() (*bytes.Buffer, string) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		require.NoError(t, w.WriteField("title", "t"))
		require.NoError(t, w.WriteField("message", strings.Repeat("x", 8192)))
		require.NoError(t, w.WriteField("targetGroups", "Jeunesse"))
		require.NoError(t, w.Close())
		return &buf, w.FormDataContentType()
	}

	t.Run("declared length", func(t *testing.T) {
		body, contentType := form()
		req := httptest.NewRequest(http.MethodPost, "/api/notifications/send", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("unknown length", func(t *testing.T) {
		body, contentType := form()
		req := httptest.NewRequest(http.MethodPost, "/api/notifications/send", body)
		req.Header.Set("Content-Type", contentType)
		req.ContentLength = -1
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	assert.Zero(t, repo.Len())
}

func TestNewHandlers_BodyLimitFromStore(t *testing.T) {
	a := newTestAPI(t)
	logger := zerolog.Nop()
	h := NewHandlers(nil, a.store, &logger)
	assert.Equal(t, int64(3*1024+formOverhead), h.maxUpload)
}

func TestCancelNotification_RemovesMedia(t *testing.T) {
	a := newTestAPI(t)

	rec := a.sendForm(t, map[string][]string{
		"title":        {"Affiche"},
		"message":      {"Bientôt"},
		"targetGroups": {"Jeunesse"},
		"scheduledFor": {time.Now().UTC().Add(time.Hour).Format(time.RFC3339)},
	}, formFile{"files", "affiche.png", pngBytes})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	pending := decode[NotificationResponse](t, rec)
	require.Len(t, storedFiles(t, a.store.Dir()), 1)

	rec = a.do(t, http.MethodDelete, "/api/notifications/"+pending.ID.String(), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, storedFiles(t, a.store.Dir()))
}

func TestCancelNotification_KeepsMediaWhenRefused(t *testing.T) {
	a := newTestAPI(t)

	rec := a.sendForm(t, map[string][]string{
		"title": {"Photos"}, "message": {"Camp"}, "targetGroups": {"Jeunesse"},
	}, formFile{"files", "camp.png", pngBytes})
	require.Equal(t, http.StatusCreated, rec.Code)
	sent := decode[NotificationResponse](t, rec)

	assert.Equal(t, http.StatusConflict, a.do(t, http.MethodDelete, "/api/notifications/"+sent.ID.String(), nil).Code)
	assert.Len(t, storedFiles(t, a.store.Dir()), 1)
}

func TestAllPhotos(t *testing.T) {
	a := newTestAPI(t)
	for _, group := range []string{"Jeunesse", "Enfance"} {
		rec := a.sendForm(t, map[string][]string{
			"title": {"Photos"}, "message": {"Camp"}, "targetGroups": {group},
		}, formFile{"files", "camp.png", pngBytes})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	a.createSent(t, "Familles")

	rec := a.do(t, http.MethodGet, "/api/notifications/photos", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]PhotoSetResponse](t, rec), 2)

	rec = a.do(t, http.MethodGet, "/api/notifications/photos?group=Enfance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sets := decode[[]PhotoSetResponse](t, rec)
	require.Len(t, sets, 1)
	assert.Equal(t, []string{"Enfance"}, sets[0].TargetGroups)

	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/api/notifications/photos?group=Seniors", nil).Code)
}
