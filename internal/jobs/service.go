package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/reelsmith/reelsmith-agent/internal/export"
)

// ErrInvalidRequest wraps every validation failure from SubmitRender.
var ErrInvalidRequest = errors.New("invalid render request")

// SubmitRequest describes a render to queue.
type SubmitRequest struct {
	AudioPath  string
	ClipsDir   string
	OutputName string
	Seed       uint64
	Caption    bool
}

type RenderService interface {
	SubmitRender(ctx context.Context, req SubmitRequest) (*Render, error)
	GetRender(ctx context.Context, id string) (*Render, error)
	ListRenders(ctx context.Context, limit int) ([]*Render, error)
	CountRenders(ctx context.Context) (map[string]int, error)
}

type Service struct {
	repo       Repository
	rendersDir string
	logger     *slog.Logger

	// serialises output path selection with the insert
	submitMu sync.Mutex
}

// NewService queues renders whose outputs land in rendersDir.
func NewService(repo Repository, rendersDir string, logger *slog.Logger) *Service {
	return &Service{repo: repo, rendersDir: rendersDir, logger: logger}
}

func (s *Service) SubmitRender(ctx context.Context, req SubmitRequest) (*Render, error) {
	if err := export.ValidateFile("audio_path", req.AudioPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.ClipsDir != "" && !filepath.IsAbs(req.ClipsDir) {
		return nil, fmt.Errorf("%w: clips_dir must be absolute", ErrInvalidRequest)
	}
	if err := export.ValidateDir("clips_dir", req.ClipsDir); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	id := NewID()
	name := export.OutputFileName(req.OutputName, "reel-"+id[:8])
	out := filepath.Join(s.rendersDir, name)
	taken, err := s.outputTaken(ctx, out)
	if err != nil {
		return nil, fmt.Errorf("failed to check output path: %w", err)
	}
	if taken {
		ext := filepath.Ext(name)
		out = filepath.Join(s.rendersDir, name[:len(name)-len(ext)]+"-"+id[:8]+ext)
	}

	now := time.Now()
	render := &Render{
		ID:         id,
		Status:     StatusPending,
		AudioPath:  req.AudioPath,
		ClipsDir:   req.ClipsDir,
		OutputPath: out,
		Seed:       req.Seed,
		Caption:    req.Caption,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateRender(ctx, render); err != nil {
		return nil, fmt.Errorf("failed to queue render: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("render queued", "render_id", id, "output", filepath.Base(out), "caption", req.Caption)
	}
	return render, nil
}

// outputTaken reports whether path exists on disk or belongs to another
// render that has not failed.
func (s *Service) outputTaken(ctx context.Context, path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return true, nil
	}
	return s.repo.OutputPathInUse(ctx, path)
}

func (s *Service) GetRender(ctx context.Context, id string) (*Render, error) {
	return s.repo.GetRender(ctx, id)
}

func (s *Service) ListRenders(ctx context.Context, limit int) ([]*Render, error) {
	return s.repo.ListRenders(ctx, limit)
}

func (s *Service) CountRenders(ctx context.Context) (map[string]int, error) {
	return s.repo.CountRenders(ctx)
}
