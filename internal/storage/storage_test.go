package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/technocreatives/artefacta/internal/core"
)

var (
	_ core.Storage = (*Filesystem)(nil)
	_ core.Storage = (*S3)(nil)
)

func TestFilesystemListGetAddRoundtrip(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFilesystem(dir, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	entry, err := fs.AddFile(ctx, core.File{Bytes: []byte("hello")}, "build1.tar.zst", nil)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Size != 5 {
		t.Errorf("got size %d, want 5", entry.Size)
	}

	entries, err := fs.ListFiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	got, err := fs.GetFile(ctx, "build1.tar.zst", nil)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(got.InPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("got %q", data)
	}
}

func TestFilesystemListSkipsSymlinks(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFilesystem(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := fs.AddFile(ctx, core.File{Bytes: []byte("x")}, "build1.tar.zst", nil); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(dir, "build1.tar.zst"), filepath.Join(dir, "current")); err != nil {
		t.Fatal(err)
	}

	entries, err := fs.ListFiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected symlink to be skipped, got %d entries", len(entries))
	}
}

func TestFilesystemAddFileRejectsEscapingTarget(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFilesystem(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	outside := t.TempDir()

	_, err = fs.AddFile(context.Background(), core.File{Bytes: []byte("x")}, filepath.Join(outside, "evil.tar.zst"), nil)
	if err == nil {
		t.Fatal("expected an error adding a file outside the storage root")
	}
}

func TestKeyUnder(t *testing.T) {
	cases := []struct {
		prefix, rel, want string
	}{
		{"", "build1.tar.zst", "build1.tar.zst"},
		{"/artefacta/", "build1.tar.zst", "artefacta/build1.tar.zst"},
		{"artefacta", "build1.tar.zst", "artefacta/build1.tar.zst"},
	}
	for _, tc := range cases {
		if got := keyUnder(tc.prefix, tc.rel); got != tc.want {
			t.Errorf("keyUnder(%q, %q) = %q, want %q", tc.prefix, tc.rel, got, tc.want)
		}
	}
}
