package core_test

import (
	"bytes"
	"context"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/technocreatives/artefacta/internal/core"
	"github.com/technocreatives/artefacta/internal/storage"
)

func newLocalRemote(t *testing.T) (local, remote *storage.Filesystem, localDir, remoteDir string) {
	t.Helper()
	localDir = t.TempDir()
	remoteDir = t.TempDir()
	local, err := storage.NewFilesystem(localDir, nil)
	if err != nil {
		t.Fatal(err)
	}
	remote, err = storage.NewFilesystem(remoteDir, nil)
	if err != nil {
		t.Fatal(err)
	}
	return local, remote, localDir, remoteDir
}

func writeCompressedBuild(t *testing.T, dir, name string, payload []byte) {
	t.Helper()
	out, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()
	enc, err := core.Compress(out, core.TestCompressionLevel)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := enc.Write(payload); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
}

func writeRawFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

// Scenario 1: install from remote.
func TestScenarioInstallFromRemote(t *testing.T) {
	local, remote, localDir, _ := newLocalRemote(t)
	ctx := context.Background()

	remoteDirPath, _ := remote.LocalPath()
	writeCompressedBuild(t, remoteDirPath, "build1.tar.zst", []byte("build one bytes"))
	writeCompressedBuild(t, remoteDirPath, "build2.tar.zst", []byte("build two bytes, totally different"))

	idx, err := core.New(ctx, local, remote)
	if err != nil {
		t.Fatal(err)
	}

	entry, err := idx.GetBuild(ctx, core.MustParseVersion("build2"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(localDir, "build2.tar.zst")); err != nil {
		t.Errorf("expected build2.tar.zst to exist locally: %v", err)
	}
	if entry.Path != filepath.Join(localDir, "build2.tar.zst") {
		t.Errorf("unexpected entry path: %s", entry.Path)
	}
}

// Scenario 2: upgrade via a cheap patch chain, without re-downloading the
// final build directly.
func TestScenarioUpgradeViaPatchChain(t *testing.T) {
	local, remote, localDir, _ := newLocalRemote(t)
	ctx := context.Background()
	remoteDirPath, _ := remote.LocalPath()

	// Incompressible bytes keep each compressed build far larger than the
	// two small patches, so the planner picks the patch chain.
	b1 := make([]byte, 10000)
	rand.New(rand.NewSource(1)).Read(b1)
	b2 := append(append([]byte{}, b1...), []byte("extra-for-build-2")...)
	b3 := append(append([]byte{}, b2...), []byte("extra-for-build-3")...)

	writeCompressedBuild(t, remoteDirPath, "build1.tar.zst", b1)
	writeCompressedBuild(t, remoteDirPath, "build2.tar.zst", b2)
	writeCompressedBuild(t, remoteDirPath, "build3.tar.zst", b3)
	writeCompressedBuild(t, localDir, "build1.tar.zst", b1)

	// Synthesize the two patches directly against a throwaway local-only
	// index, then seed them into remote, mirroring "create-patch" + "sync".
	seedLocal, err := storage.NewFilesystem(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	seedRemote, err := storage.NewFilesystem(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	seedDir, _ := seedLocal.LocalPath()
	writeCompressedBuild(t, seedDir, "build1.tar.zst", b1)
	writeCompressedBuild(t, seedDir, "build2.tar.zst", b2)
	writeCompressedBuild(t, seedDir, "build3.tar.zst", b3)
	seedIdx, err := core.New(ctx, seedLocal, seedRemote)
	if err != nil {
		t.Fatal(err)
	}
	if err := seedIdx.CalculatePatch(ctx, core.MustParseVersion("build1"), core.MustParseVersion("build2")); err != nil {
		t.Fatal(err)
	}
	if err := seedIdx.CalculatePatch(ctx, core.MustParseVersion("build2"), core.MustParseVersion("build3")); err != nil {
		t.Fatal(err)
	}

	copyFile(t, filepath.Join(seedDir, "build1-build2.patch.zst"), filepath.Join(remoteDirPath, "build1-build2.patch.zst"))
	copyFile(t, filepath.Join(seedDir, "build2-build3.patch.zst"), filepath.Join(remoteDirPath, "build2-build3.patch.zst"))

	idx, err := core.New(ctx, local, remote)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := idx.UpgradeToBuild(ctx, core.MustParseVersion("build1"), core.MustParseVersion("build3")); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"build1-build2.patch.zst", "build2-build3.patch.zst", "build3.tar.zst"} {
		if _, err := os.Stat(filepath.Join(localDir, name)); err != nil {
			t.Errorf("expected %s to exist locally after upgrade: %v", name, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(localDir, "build3.tar.zst"))
	if err != nil {
		t.Fatal(err)
	}
	decompressed, err := core.Decompress(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decompressed, b3) {
		t.Errorf("reconstructed build3 bytes do not match original")
	}
}

// Scenario 3: a corrupt patch must not block installing the target build
// directly.
func TestScenarioBrokenPatchFallsBackToDirectDownload(t *testing.T) {
	local, remote, localDir, _ := newLocalRemote(t)
	ctx := context.Background()
	remoteDirPath, _ := remote.LocalPath()

	b1 := []byte("build one bytes")
	b2 := []byte("build two bytes, unrelated content entirely")

	writeCompressedBuild(t, remoteDirPath, "build1.tar.zst", b1)
	writeCompressedBuild(t, remoteDirPath, "build2.tar.zst", b2)
	writeRawFile(t, remoteDirPath, "build1-build2.patch.zst", []byte("this is not a valid patch"))
	writeCompressedBuild(t, localDir, "build1.tar.zst", b1)

	idx, err := core.New(ctx, local, remote)
	if err != nil {
		t.Fatal(err)
	}

	entry, err := idx.UpgradeToBuild(ctx, core.MustParseVersion("build1"), core.MustParseVersion("build2"))
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(entry.Path)
	if err != nil {
		t.Fatal(err)
	}
	decompressed, err := core.Decompress(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decompressed, b2) {
		t.Errorf("expected build2 bytes from direct download fallback")
	}
}

// Scenario 4: create a patch locally, then sync uploads it to remote.
func TestScenarioCreatePatchAndSync(t *testing.T) {
	local, remote, localDir, remoteDir := newLocalRemote(t)
	ctx := context.Background()

	writeCompressedBuild(t, localDir, "build1.tar.zst", []byte("build one bytes"))
	writeCompressedBuild(t, localDir, "build2.tar.zst", []byte("build two bytes, different"))

	idx, err := core.New(ctx, local, remote)
	if err != nil {
		t.Fatal(err)
	}

	if err := idx.CalculatePatch(ctx, core.MustParseVersion("build1"), core.MustParseVersion("build2")); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(localDir, "build1-build2.patch.zst")); err != nil {
		t.Fatalf("expected patch to exist locally: %v", err)
	}

	if err := idx.Push(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(remoteDir, "build1-build2.patch.zst")); err != nil {
		t.Errorf("expected patch to exist on remote after sync: %v", err)
	}
}

// Scenario 5: a local build whose remote counterpart differs in size is
// kept as-is, but a warning mentioning the drift is logged.
func TestScenarioSizeDriftWarning(t *testing.T) {
	local, remote, localDir, _ := newLocalRemote(t)
	ctx := context.Background()
	remoteDirPath, _ := remote.LocalPath()

	writeRawFile(t, localDir, "build1.tar.zst", []byte("lorem ipsum"))
	writeRawFile(t, remoteDirPath, "build1.tar.zst", []byte("dolor sit amet"))

	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))

	idx, err := core.New(ctx, local, remote, core.WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}

	entry, err := idx.GetBuild(ctx, core.MustParseVersion("build1"))
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(entry.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "lorem ipsum" {
		t.Errorf("expected local copy to be kept, got %q", data)
	}
	if !strings.Contains(logBuf.String(), "size on remote differs") {
		t.Errorf("expected a warning mentioning size drift, got log: %s", logBuf.String())
	}
}

func copyFile(t *testing.T, src, dst string) {
	t.Helper()
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		t.Fatal(err)
	}
}
