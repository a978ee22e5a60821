package core

import (
	"fmt"
	"os"
	"path/filepath"
)

// StorageKind identifies which storage an Entry lives in, without the
// caller having to hold a reference to the storage itself.
type StorageKind int

const (
	StorageUnknown StorageKind = iota
	StorageLocal
	StorageRemote
)

func (k StorageKind) String() string {
	switch k {
	case StorageLocal:
		return "local"
	case StorageRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Entry is a structural descriptor of a stored artefact: which storage it
// lives in, its storage-relative path (a canonical filesystem path for
// Filesystem storage, an object key for S3), and its byte size. Size is the
// stored (post-compression) length.
type Entry struct {
	Storage StorageKind
	Path    string
	Size    int64
}

// Equal compares Entry values structurally.
func (e Entry) Equal(other Entry) bool {
	return e.Storage == other.Storage && e.Path == other.Path && e.Size == other.Size
}

// EntryFromPath canonicalizes path and stats it to build an Entry for the
// given storage kind. Used by filesystem storage implementations when
// listing or adding files.
func EntryFromPath(path string, kind StorageKind) (Entry, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Entry{}, fmt.Errorf("canonicalize `%s`: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Entry{}, fmt.Errorf("stat `%s`: %w", abs, err)
	}
	return Entry{Storage: kind, Path: abs, Size: info.Size()}, nil
}

// File is a handle returned from a storage fetch. Exactly one of InPath or
// Bytes is populated: InFilesystem fetches leave the payload on disk and
// set InPath; Inline fetches (typical of remote storage) set Bytes.
type File struct {
	Entry  Entry
	InPath string
	Bytes  []byte
}

// IsInline reports whether the payload was materialized in memory rather
// than left on disk.
func (f File) IsInline() bool {
	return f.InPath == ""
}

// CopyToLocal materializes an Inline File to disk at destPath via
// PartialFile, so the rest of the caller's pipeline can treat every File
// uniformly as a filesystem path afterward. If f is already on disk, this
// is a plain rename-free copy skip: the existing path is returned.
func (f File) CopyToLocal(destPath string) (string, error) {
	if !f.IsInline() {
		return f.InPath, nil
	}
	pf, err := CreatePartialFile(destPath)
	if err != nil {
		return "", fmt.Errorf("materialize inline file to `%s`: %w", destPath, err)
	}
	if _, err := pf.Write(f.Bytes); err != nil {
		pf.Abort()
		return "", fmt.Errorf("write inline file to `%s`: %w", destPath, err)
	}
	if err := pf.Finish(); err != nil {
		return "", fmt.Errorf("finish inline file write to `%s`: %w", destPath, err)
	}
	return destPath, nil
}
