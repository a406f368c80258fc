package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrNoUpload = errors.New("no upload provided")

// Workspace is the private directory of one analysis run.
type Workspace struct {
	ID        string
	Dir       string
	Input     string
	Annotated string
}

// StillPath is where the JPEG of moment i is written.
func (w *Workspace) StillPath(i int) string {
	return filepath.Join(w.Dir, fmt.Sprintf("still_%d.jpg", i))
}

// Workspace returns the paths for run id without touching the filesystem.
func (c *Coach) Workspace(id string) *Workspace {
	dir := filepath.Join(c.cfg.Pipeline.WorkDir, id)
	return &Workspace{
		ID:        id,
		Dir:       dir,
		Input:     filepath.Join(dir, "input.mp4"),
		Annotated: filepath.Join(dir, "annotated.mp4"),
	}
}

type IngestResult struct {
	Workspace *Workspace
	Bytes     int64
}

// Ingest creates a fresh workspace and writes the upload into it. An empty id
// gets a random one.
func (c *Coach) Ingest(ctx context.Context, id string, file io.Reader) (*IngestResult, error) {
	if file == nil {
		return nil, ErrNoUpload
	}
	if id == "" {
		id = uuid.NewString()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ws := c.Workspace(id)
	if err := os.MkdirAll(ws.Dir, 0755); err != nil {
		c.logger.Error("Failed to create work directory", zap.String("dir", ws.Dir), zap.Error(err))
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	outFile, err := os.Create(ws.Input)
	if err != nil {
		return nil, fmt.Errorf("failed to create input file: %w", err)
	}
	n, err := io.Copy(outFile, file)
	if closeErr := outFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.RemoveAll(ws.Dir)
		c.logger.Error("Ingest failed", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to save upload: %w", err)
	}
	if n == 0 {
		os.RemoveAll(ws.Dir)
		return nil, ErrNoUpload
	}

	c.logger.Info("Ingest completed", zap.String("id", id), zap.String("local_path", ws.Input), zap.Int64("bytes", n))
	return &IngestResult{Workspace: ws, Bytes: n}, nil
}

// Cleanup removes the workspace directory.
func (c *Coach) Cleanup(ws *Workspace) {
	if err := os.RemoveAll(ws.Dir); err != nil {
		c.logger.Warn("Failed to remove work directory", zap.String("dir", ws.Dir), zap.Error(err))
	}
}
