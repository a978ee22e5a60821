package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/technocreatives/artefacta/internal/core"
	"github.com/technocreatives/artefacta/internal/safety"
)

// Filesystem is a core.Storage backed by a local directory. ListFiles is
// non-recursive and skips symlinks, so the `current` convenience symlink
// never shows up as a bogus artefact.
type Filesystem struct {
	root   string
	logger *slog.Logger
}

// NewFilesystem canonicalizes root and returns a Filesystem storage over
// it. root must already exist.
func NewFilesystem(root string, logger *slog.Logger) (*Filesystem, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("canonicalize local store root `%s`: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat local store root `%s`: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local store root `%s` is not a directory", abs)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(nil, nil))
	}
	return &Filesystem{root: abs, logger: logger}, nil
}

// ListFiles lists the non-recursive, non-symlink contents of the root.
func (f *Filesystem) ListFiles(ctx context.Context) ([]core.Entry, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("read dir `%s`: %w", f.root, err)
	}

	var out []core.Entry
	for _, de := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := de.Info()
		if err != nil {
			return nil, fmt.Errorf("stat dir entry `%s`: %w", de.Name(), err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			continue
		}
		if de.IsDir() {
			continue
		}
		full := filepath.Join(f.root, de.Name())
		entry, err := core.EntryFromPath(full, core.StorageLocal)
		if err != nil {
			return nil, fmt.Errorf("build entry for `%s`: %w", full, err)
		}
		out = append(out, entry)
	}
	return out, nil
}

// GetFile returns an InFilesystem handle for relativePath under root.
func (f *Filesystem) GetFile(ctx context.Context, relativePath string, progress core.ProgressFunc) (core.File, error) {
	full, err := safety.SafeJoinUnder(f.root, relativePath)
	if err != nil {
		full = filepath.Join(f.root, relativePath)
	}
	entry, err := core.EntryFromPath(full, core.StorageLocal)
	if err != nil {
		return core.File{}, fmt.Errorf("get `%s` from local store: %w", relativePath, err)
	}
	if progress != nil {
		progress(entry.Size, entry.Size)
	}
	return core.File{Entry: entry, InPath: full}, nil
}

// AddFile copies or materializes file's payload to target. target may be
// an absolute path, which MUST resolve within root, or a root-relative
// path.
func (f *Filesystem) AddFile(ctx context.Context, file core.File, target string, progress core.ProgressFunc) (core.Entry, error) {
	var destAbs string
	if filepath.IsAbs(target) {
		abs, err := safety.EnsureUnderRoot(f.root, target)
		if err != nil {
			return core.Entry{}, fmt.Errorf("%w: target `%s` escapes local store root", core.ErrStorageMisuse, target)
		}
		destAbs = abs
	} else {
		abs, err := safety.SafeJoinUnder(f.root, target)
		if err != nil {
			return core.Entry{}, fmt.Errorf("invalid target `%s`: %w", target, err)
		}
		destAbs = abs
	}

	if err := os.MkdirAll(filepath.Dir(destAbs), 0o755); err != nil {
		return core.Entry{}, fmt.Errorf("create parent dir for `%s`: %w", destAbs, err)
	}

	pf, err := core.CreatePartialFile(destAbs)
	if err != nil {
		return core.Entry{}, fmt.Errorf("open `%s` for write: %w", destAbs, err)
	}

	var written int64
	if !file.IsInline() {
		src, err := os.Open(file.InPath)
		if err != nil {
			pf.Abort()
			return core.Entry{}, fmt.Errorf("open source `%s`: %w", file.InPath, err)
		}
		defer src.Close()
		buf := make([]byte, 256*1024)
		for {
			n, rerr := src.Read(buf)
			if n > 0 {
				if _, werr := pf.Write(buf[:n]); werr != nil {
					pf.Abort()
					return core.Entry{}, fmt.Errorf("write `%s`: %w", destAbs, werr)
				}
				written += int64(n)
				if progress != nil {
					progress(written, file.Entry.Size)
				}
			}
			if rerr != nil {
				if errors.Is(rerr, io.EOF) {
					break
				}
				pf.Abort()
				return core.Entry{}, fmt.Errorf("read source `%s`: %w", file.InPath, rerr)
			}
		}
	} else {
		if _, err := pf.Write(file.Bytes); err != nil {
			pf.Abort()
			return core.Entry{}, fmt.Errorf("write `%s`: %w", destAbs, err)
		}
		written = int64(len(file.Bytes))
		if progress != nil {
			progress(written, written)
		}
	}

	if err := pf.Finish(); err != nil {
		return core.Entry{}, fmt.Errorf("finalize `%s`: %w", destAbs, err)
	}
	return core.Entry{Storage: core.StorageLocal, Path: destAbs, Size: written}, nil
}

// IsLocal always reports true for Filesystem.
func (f *Filesystem) IsLocal() bool { return true }

// LocalPath returns the storage root.
func (f *Filesystem) LocalPath() (string, bool) { return f.root, true }
