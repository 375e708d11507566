package media

import (
	"bytes"
	"context"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/ilindan-dev/group-notifier/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngBytes  = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)
	jpegBytes = append([]byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00"), make([]byte, 64)...)
	mp4Bytes  = append([]byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom"), make([]byte, 64)...)
)

type upload struct {
	name string
	data []byte
}

func headers(t *testing.T, files ...upload) []*multipart.FileHeader {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := w.CreateFormFile("files", f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["files"]
}

func newStore(t *testing.T, mutate func(*config.UploadConfig)) *Store {
	t.Helper()
	up := config.UploadConfig{
		Dir:          filepath.Join(t.TempDir(), "notification-images"),
		PublicPrefix: "/uploads/notification-images/",
		MaxFileSize:  1024,
		MaxFiles:     3,
		AllowVideo:   true,
	}
	if mutate != nil {
		mutate(&up)
	}
	logger := zerolog.Nop()
	s, err := NewStore(&config.Config{Upload: up}, &logger)
	require.NoError(t, err)
	return s
}

func storedFiles(t *testing.T, s *Store) []string {
	t.Helper()
	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestSave_StoresFilesAndReturnsURLs(t *testing.T) {
	s := newStore(t, nil)

	urls, err := s.Save(context.Background(), headers(t,
		upload{"affiche.PNG", pngBytes},
		upload{"photo.jpg", jpegBytes},
		upload{"clip.mp4", mp4Bytes},
	))
	require.NoError(t, err)
	require.Len(t, urls, 3)

	pattern := regexp.MustCompile(`^/uploads/notification-images/\d+-[0-9a-f-]{36}\.(png|jpg|mp4)$`)
	for _, u := range urls {
		assert.Regexp(t, pattern, u)
	}
	assert.True(t, strings.HasSuffix(urls[0], ".png"), "extension is lower-cased")

	name := strings.TrimPrefix(urls[1], "/uploads/notification-images/")
	data, err := os.ReadFile(filepath.Join(s.Dir(), name))
	require.NoError(t, err)
	assert.Equal(t, jpegBytes, data)
}

func TestSave_NoFiles(t *testing.T) {
	s := newStore(t, nil)

	urls, err := s.Save(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, urls)
}

func TestSave_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.UploadConfig)
		files   []upload
		wantErr error
	}{
		{"extension", nil, []upload{{"doc.pdf", []byte("%PDF-1.4")}}, ErrUploadRejected},
		{"content does not match", nil, []upload{{"fake.png", []byte("hello world")}}, ErrUploadRejected},
		{"image bytes as video", nil, []upload{{"clip.mp4", pngBytes}}, ErrUploadRejected},
		{"video disabled", func(u *config.UploadConfig) { u.AllowVideo = false }, []upload{{"clip.mp4", mp4Bytes}}, ErrUploadRejected},
		{"too large", func(u *config.UploadConfig) { u.MaxFileSize = 16 }, []upload{{"a.png", pngBytes}}, ErrFileTooLarge},
		{"too many", func(u *config.UploadConfig) { u.MaxFiles = 1 }, []upload{{"a.png", pngBytes}, {"b.png", pngBytes}}, ErrUploadRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t, tt.mutate)

			urls, err := s.Save(context.Background(), headers(t, tt.files...))

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, urls)
			assert.Empty(t, storedFiles(t, s))
		})
	}
}

func TestSave_RejectionRemovesEarlierFiles(t *testing.T) {
	s := newStore(t, nil)

	_, err := s.Save(context.Background(), headers(t,
		upload{"ok.png", pngBytes},
		upload{"bad.png", []byte("not an image")},
	))

	assert.ErrorIs(t, err, ErrUploadRejected)
	assert.Empty(t, storedFiles(t, s))
}

func TestSave_CancelledContext(t *testing.T) {
	s := newStore(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Save(ctx, headers(t, upload{"a.png", pngBytes}))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, storedFiles(t, s))
}

func TestRemove(t *testing.T) {
	s := newStore(t, nil)
	urls, err := s.Save(context.Background(), headers(t, upload{"a.png", pngBytes}, upload{"b.jpg", jpegBytes}))
	require.NoError(t, err)

	outside := filepath.Join(filepath.Dir(s.Dir()), "keep.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))

	s.Remove(append(urls, "/uploads/notification-images/../keep.txt", "/elsewhere/keep.txt", "/uploads/notification-images/missing.png"))

	assert.Empty(t, storedFiles(t, s))
	_, err = os.Stat(outside)
	assert.NoError(t, err, "paths escaping the directory are ignored")
}

func TestPublicPrefixIsNormalised(t *testing.T) {
	s := newStore(t, func(u *config.UploadConfig) { u.PublicPrefix = "media/" })
	assert.Equal(t, "/media", s.PublicPrefix())
	assert.Equal(t, int64(1024), s.MaxFileSize())
}

func TestOwns(t *testing.T) {
	s := newStore(t, nil)
	urls, err := s.Save(context.Background(), headers(t, upload{"a.png", pngBytes}))
	require.NoError(t, err)
	require.Len(t, urls, 1)

	assert.True(t, s.Owns(urls[0]))
	assert.Equal(t, 3, s.MaxFiles())

	require.NoError(t, os.Mkdir(filepath.Join(s.Dir(), "sub"), 0o755))
	for _, u := range []string{
		"https://example.org/a.png",
		"/uploads/notification-images/missing.png",
		"/uploads/notification-images/../keep.txt",
		"/uploads/notification-images/sub",
		"/uploads/notification-images/",
		strings.TrimPrefix(urls[0], "/uploads"),
	} {
		assert.False(t, s.Owns(u), u)
	}

	s.Remove(urls)
	assert.False(t, s.Owns(urls[0]))
}
