// Package media stores the files attached to notifications on local disk.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/ilindan-dev/group-notifier/internal/config"
	"github.com/rs/zerolog"
)

var (
	// ErrUploadRejected is returned for files of a type that is not accepted.
	ErrUploadRejected = errors.New("upload rejected")
	// ErrFileTooLarge is returned for files above the configured size.
	ErrFileTooLarge = errors.New("file too large")
)

type family string

const (
	familyImage family = "image"
	familyVideo family = "video"
)

var imageExtensions = map[string]family{
	".jpeg": familyImage,
	".jpg":  familyImage,
	".png":  familyImage,
}

var videoExtensions = map[string]family{
	".mp4": familyVideo,
	".mov": familyVideo,
	".avi": familyVideo,
	".mkv": familyVideo,
}

// accepted lists the sniffed MIME types of each family.
var accepted = map[family][]string{
	familyImage: {"image/jpeg", "image/png"},
	familyVideo: {"video/mp4", "video/quicktime", "video/x-msvideo", "video/x-matroska"},
}

// Store validates uploads and writes them under a directory served statically.
type Store struct {
	dir        string
	prefix     string
	maxSize    int64
	maxFiles   int
	extensions map[string]family
	now        func() time.Time
	logger     zerolog.Logger
}

// NewStore creates the upload directory if needed.
func NewStore(cfg *config.Config, logger *zerolog.Logger) (*Store, error) {
	up := cfg.Upload
	if err := os.MkdirAll(up.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("media: create upload dir %s: %w", up.Dir, err)
	}

	extensions := make(map[string]family, len(imageExtensions)+len(videoExtensions))
	for ext, f := range imageExtensions {
		extensions[ext] = f
	}
	if up.AllowVideo {
		for ext, f := range videoExtensions {
			extensions[ext] = f
		}
	}

	return &Store{
		dir:        up.Dir,
		prefix:     "/" + strings.Trim(up.PublicPrefix, "/"),
		maxSize:    up.MaxFileSize,
		maxFiles:   up.MaxFiles,
		extensions: extensions,
		now:        time.Now,
		logger:     logger.With().Str("layer", "media_store").Logger(),
	}, nil
}

// Dir is the directory files are written to.
func (s *Store) Dir() string { return s.dir }

// PublicPrefix is the URL path the directory is served under.
func (s *Store) PublicPrefix() string { return s.prefix }

// MaxFileSize is the per-file limit in bytes.
func (s *Store) MaxFileSize() int64 { return s.maxSize }

// MaxFiles is the per-request file count limit; zero means unlimited.
func (s *Store) MaxFiles() int { return s.maxFiles }

// Owns reports whether url points at a file this store has written.
func (s *Store) Owns(url string) bool {
	name, ok := s.fileName(url)
	if !ok {
		return false
	}
	info, err := os.Stat(filepath.Join(s.dir, name))
	return err == nil && info.Mode().IsRegular()
}

// Save validates and writes every file, returning their public URLs in order.
// Either all files are stored or none is.
func (s *Store) Save(ctx context.Context, files []*multipart.FileHeader) ([]string, error) {
	if s.maxFiles > 0 && len(files) > s.maxFiles {
		return nil, fmt.Errorf("%w: %d files, at most %d allowed", ErrUploadRejected, len(files), s.maxFiles)
	}

	urls := make([]string, 0, len(files))
	for _, fh := range files {
		if err := ctx.Err(); err != nil {
			s.Remove(urls)
			return nil, err
		}
		url, err := s.save(fh)
		if err != nil {
			s.logger.Warn().Err(err).Str("filename", fh.Filename).Int64("size", fh.Size).Msg("upload rejected")
			s.Remove(urls)
			return nil, err
		}
		urls = append(urls, url)
	}

	if len(urls) > 0 {
		s.logger.Info().Int("files", len(urls)).Msg("media stored")
	}
	return urls, nil
}

func (s *Store) save(fh *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	fam, ok := s.extensions[ext]
	if !ok {
		return "", fmt.Errorf("%w: extension %q of %s is not allowed", ErrUploadRejected, ext, fh.Filename)
	}
	if s.maxSize > 0 && fh.Size > s.maxSize {
		return "", fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrFileTooLarge, fh.Filename, fh.Size, s.maxSize)
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("media: open %s: %w", fh.Filename, err)
	}
	defer src.Close()

	mt, err := mimetype.DetectReader(src)
	if err != nil {
		return "", fmt.Errorf("media: sniff %s: %w", fh.Filename, err)
	}
	if !matches(mt, accepted[fam]) {
		return "", fmt.Errorf("%w: %s looks like %s, not an allowed %s", ErrUploadRejected, fh.Filename, mt.String(), fam)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("media: rewind %s: %w", fh.Filename, err)
	}

	name := fmt.Sprintf("%d-%s%s", s.now().UnixMilli(), uuid.NewString(), ext)
	target := filepath.Join(s.dir, name)
	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("media: create %s: %w", name, err)
	}

	limit := s.maxSize
	if limit <= 0 {
		limit = fh.Size
	}
	written, err := io.Copy(dst, io.LimitReader(src, limit+1))
	closeErr := dst.Close()
	switch {
	case err != nil:
		_ = os.Remove(target)
		return "", fmt.Errorf("media: write %s: %w", name, err)
	case closeErr != nil:
		_ = os.Remove(target)
		return "", fmt.Errorf("media: close %s: %w", name, closeErr)
	case s.maxSize > 0 && written > s.maxSize:
		_ = os.Remove(target)
		return "", fmt.Errorf("%w: %s exceeds %d bytes", ErrFileTooLarge, fh.Filename, s.maxSize)
	}

	return path.Join(s.prefix, name), nil
}

// Remove deletes stored files by URL. URLs outside the public prefix are ignored.
func (s *Store) Remove(urls []string) {
	for _, u := range urls {
		name, ok := s.fileName(u)
		if !ok {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Error().Err(err).Str("url", u).Msg("failed to remove media")
		}
	}
}

// fileName extracts the stored file name from a public URL.
func (s *Store) fileName(url string) (string, bool) {
	name, ok := strings.CutPrefix(url, s.prefix+"/")
	if !ok || name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", false
	}
	return name, true
}

func matches(mt *mimetype.MIME, want []string) bool {
	for _, w := range want {
		if mt.Is(w) {
			return true
		}
	}
	return false
}
