package core

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// PartialFile is a scoped acquisition of a filesystem destination with
// guaranteed release: writes are routed to a temporary sibling of the
// destination, and only an explicit Finish atomically renames it onto
// finalPath. If Finish is never called, Abort (or a defer guard) removes
// the temp file, so a crash mid-write never leaves a half-written file
// visible to a directory listing.
type PartialFile struct {
	finalPath string
	tempPath  string
	file      *os.File
	finished  bool
}

// CreatePartialFile opens a temporary sibling of finalPath and returns a
// handle for writing to it.
func CreatePartialFile(finalPath string) (*PartialFile, error) {
	dir := filepath.Dir(finalPath)
	base := filepath.Base(finalPath)
	tempPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.partial", base, uuid.NewString()))

	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create temp file `%s`: %w", tempPath, err)
	}

	return &PartialFile{
		finalPath: finalPath,
		tempPath:  tempPath,
		file:      f,
	}, nil
}

// Write implements io.Writer, routing bytes to the temp file.
func (p *PartialFile) Write(b []byte) (int, error) {
	return p.file.Write(b)
}

// Finish closes the temp file and atomically renames it onto the final
// path. After Finish returns successfully, the PartialFile is spent: any
// further Write fails.
func (p *PartialFile) Finish() error {
	if p.finished {
		return fmt.Errorf("partial file for `%s` already finished", p.finalPath)
	}
	if err := p.file.Close(); err != nil {
		return fmt.Errorf("close temp file `%s`: %w", p.tempPath, err)
	}
	if err := os.Rename(p.tempPath, p.finalPath); err != nil {
		return fmt.Errorf("rename `%s` to `%s`: %w", p.tempPath, p.finalPath, err)
	}
	p.finished = true
	return nil
}

// Abort closes the temp file (if still open) and removes it without
// touching finalPath. Safe to call after Finish (a no-op in that case) and
// safe to call multiple times.
func (p *PartialFile) Abort() {
	if p.finished {
		return
	}
	p.finished = true
	_ = p.file.Close()
	_ = os.Remove(p.tempPath)
}

// Size reports the final on-disk size of finalPath. Only meaningful after
// a successful Finish.
func (p *PartialFile) Size() (int64, error) {
	info, err := os.Stat(p.finalPath)
	if err != nil {
		return 0, fmt.Errorf("stat `%s`: %w", p.finalPath, err)
	}
	return info.Size(), nil
}
