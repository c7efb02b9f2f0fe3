// Package sink is where downloaded session files end up.
package sink

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/lazydrop/internal/filex"
)

// Sink stores one downloaded file and returns where it went.
type Sink interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// DirSink writes files into a local directory without overwriting existing ones.
type DirSink struct {
	dir string
}

func NewDirSink(dir string) (*DirSink, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, err
	}
	return &DirSink{dir: abs}, nil
}

func (s *DirSink) Dir() string { return s.dir }

func (s *DirSink) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	path := filex.UniquePath(s.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}

	if _, err := io.Copy(f, readerWithContext(ctx, r)); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
