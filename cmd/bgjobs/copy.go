package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nixpig/bgjobs/internal/background"
	"github.com/nixpig/bgjobs/internal/background/progress"
)

// copyFiles returns an operation that copies each of srcs into dir. A file
// that fails is reported against the operation and the rest still run.
func copyFiles(srcs []string, dir string) background.WorkFunc {
	return func(ctx context.Context, p *progress.State) {
		for _, src := range srcs {
			if ctx.Err() != nil {
				background.ReportError(ctx, fmt.Errorf("copy cancelled before %s", src))
				return
			}

			p.SetDescription("copying " + filepath.Base(src))
			p.Changed()

			if err := copyFile(src, filepath.Join(dir, filepath.Base(src))); err != nil {
				background.ReportError(ctx, err)
			}

			p.Advance(1)
			p.Changed()
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	if info.IsDir() {
		return fmt.Errorf("%s: is a directory", src)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}

	return nil
}
