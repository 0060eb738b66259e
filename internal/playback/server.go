// Package playback serves finished render artifacts over HTTP with Range
// support.
package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when the artifact is missing or not a regular file.
var ErrNotFound = errors.New("artifact not found")

type PlaybackService interface {
	// ServeFile streams filePath. A non-empty downloadName sends it as an
	// attachment with that name.
	ServeFile(w http.ResponseWriter, r *http.Request, filePath, downloadName string) error
}

type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{logger: logger}
}

// ServeFile leaves the response untouched when it returns an error, so the
// caller can write its own error body.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, filePath, downloadName string) error {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if !stat.Mode().IsRegular() {
		return ErrNotFound
	}

	w.Header().Set("Content-Type", ContentType(filePath))
	if downloadName != "" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": downloadName}))
	}

	if s.logger != nil {
		s.logger.Debug("serving artifact",
			"file", filepath.Base(filePath),
			"size", stat.Size(),
			"range", r.Header.Get("Range"),
		)
	}

	http.ServeContent(w, r, stat.Name(), stat.ModTime(), file)
	return nil
}

// ContentType maps render artifacts to their media type.
func ContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4":
		return "video/mp4"
	case ".edl":
		return "text/plain; charset=utf-8"
	case ".srt":
		return "application/x-subrip"
	}
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
