package core

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPartialFileFinishRenamesAtomically(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "build1.tar.zst")

	pf, err := CreatePartialFile(final)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pf.Write([]byte("hello world")); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(final); !os.IsNotExist(err) {
		t.Fatalf("final path should not exist before Finish, stat err=%v", err)
	}

	if err := pf.Finish(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(final)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello world" {
		t.Errorf("got %q", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected exactly one file in dir after Finish, got %d", len(entries))
	}
}

// TestPartialFileAbortAfterWriteFailureLeavesNoFinalFile simulates the
// failure path CalculatePatch and AddBuildFromPatch both take when Diff or
// the compressed write of the patched build errors out partway through
// writing to the PartialFile: the
// underlying file is closed out from under it (standing in for a disk
// error or a killed process), the next Write fails, and the caller's
// Abort() must still leave no trace at finalPath.
func TestPartialFileAbortAfterWriteFailureLeavesNoFinalFile(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "build1-build2.patch.zst")

	pf, err := CreatePartialFile(final)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pf.Write([]byte("some bytes written before the failure")); err != nil {
		t.Fatal(err)
	}

	// Stand in for the underlying write failing mid-stream.
	_ = pf.file.Close()
	if _, err := pf.Write([]byte("more bytes")); err == nil {
		t.Fatal("expected Write to fail after the underlying file was closed")
	}

	pf.Abort()

	if _, err := os.Stat(final); !os.IsNotExist(err) {
		t.Fatalf("final path should not exist after a failed write is aborted, stat err=%v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no files left in dir after aborting a failed write, got %d", len(entries))
	}
}

func TestPartialFileAbortLeavesNoFinalFile(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "build1.tar.zst")

	pf, err := CreatePartialFile(final)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pf.Write([]byte("partial")); err != nil {
		t.Fatal(err)
	}
	pf.Abort()

	if _, err := os.Stat(final); !os.IsNotExist(err) {
		t.Fatalf("final path should not exist after Abort, stat err=%v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no files left in dir after Abort, got %d", len(entries))
	}
}
