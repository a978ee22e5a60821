package core

import (
	"errors"
	"testing"
)

func entryAt(path string, size int64) Entry {
	return Entry{Storage: StorageLocal, Path: path, Size: size}
}

func TestUpdateFromFileListIsIdempotent(t *testing.T) {
	entries := []Entry{
		entryAt("build1.tar.zst", 100),
		entryAt("build2.tar.zst", 200),
		entryAt("build1-build2.patch.zst", 10),
		entryAt("current", 0), // symlink-like entry, must be ignored like a non-artefact
	}

	once := NewPatchGraph(nil)
	if err := once.UpdateFromFileList(entries, StorageLocal); err != nil {
		t.Fatal(err)
	}

	twice := NewPatchGraph(nil)
	if err := twice.UpdateFromFileList(entries, StorageLocal); err != nil {
		t.Fatal(err)
	}
	if err := twice.UpdateFromFileList(entries, StorageLocal); err != nil {
		t.Fatal(err)
	}

	if len(once.AllBuilds()) != len(twice.AllBuilds()) {
		t.Errorf("build count differs after repeated update: %d vs %d", len(once.AllBuilds()), len(twice.AllBuilds()))
	}
	if len(once.AllPatches()) != len(twice.AllPatches()) {
		t.Errorf("patch count differs after repeated update: %d vs %d", len(once.AllPatches()), len(twice.AllPatches()))
	}
}

func TestLocalityInvariantAfterMutations(t *testing.T) {
	v1 := MustParseVersion("build1")
	v2 := MustParseVersion("build2")

	pg := NewPatchGraph(nil)
	if err := pg.AddBuild(v1, entryAt("build1.tar.zst", 100), StorageLocal); err != nil {
		t.Fatal(err)
	}
	if err := pg.AddBuild(v2, entryAt("build2.tar.zst", 50), StorageRemote); err != nil {
		t.Fatal(err)
	}
	if err := pg.AddPatch(v1, v2, entryAt("build1-build2.patch.zst", 5), StorageLocal); err != nil {
		t.Fatal(err)
	}

	for _, b := range pg.AllBuilds() {
		if !b.HasLocal() && !b.HasRemote() {
			t.Errorf("build %s has neither local nor remote entry", b.Version)
		}
	}
	for _, p := range pg.AllPatches() {
		if !p.HasLocal() && !p.HasRemote() {
			t.Errorf("patch %s->%s has neither local nor remote entry", p.From, p.To)
		}
	}
}

func TestFindUpgradePathPrefersCheaperPatchChain(t *testing.T) {
	v1 := MustParseVersion("build1")
	v2 := MustParseVersion("build2")

	pg := NewPatchGraph(nil)
	if err := pg.AddBuild(v1, entryAt("build1.tar.zst", 1000), StorageLocal); err != nil {
		t.Fatal(err)
	}
	if err := pg.AddBuild(v2, entryAt("build2.tar.zst", 1000), StorageRemote); err != nil {
		t.Fatal(err)
	}
	if err := pg.AddPatch(v1, v2, entryAt("build1-build2.patch.zst", 10), StorageRemote); err != nil {
		t.Fatal(err)
	}

	plan, err := pg.FindUpgradePath(v1, v2)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Kind != UpgradeApplyPatches {
		t.Errorf("expected UpgradeApplyPatches when patch chain (10) << build size (1000), got %v", plan.Kind)
	}
}

func TestFindUpgradePathFallsBackToInstallWhenPatchesCostMore(t *testing.T) {
	v1 := MustParseVersion("build1")
	v2 := MustParseVersion("build2")

	pg := NewPatchGraph(nil)
	if err := pg.AddBuild(v1, entryAt("build1.tar.zst", 100), StorageLocal); err != nil {
		t.Fatal(err)
	}
	if err := pg.AddBuild(v2, entryAt("build2.tar.zst", 100), StorageRemote); err != nil {
		t.Fatal(err)
	}
	if err := pg.AddPatch(v1, v2, entryAt("build1-build2.patch.zst", 9999), StorageRemote); err != nil {
		t.Fatal(err)
	}

	plan, err := pg.FindUpgradePath(v1, v2)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Kind != UpgradeInstallBuild {
		t.Errorf("expected UpgradeInstallBuild when patch chain costs more than the build itself, got %v", plan.Kind)
	}
}

func TestFindUpgradePathNoRouteFallsBackToInstall(t *testing.T) {
	v1 := MustParseVersion("build1")
	v2 := MustParseVersion("build2")

	pg := NewPatchGraph(nil)
	if err := pg.AddBuild(v1, entryAt("build1.tar.zst", 100), StorageLocal); err != nil {
		t.Fatal(err)
	}
	if err := pg.AddBuild(v2, entryAt("build2.tar.zst", 100), StorageRemote); err != nil {
		t.Fatal(err)
	}

	plan, err := pg.FindUpgradePath(v1, v2)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Kind != UpgradeInstallBuild {
		t.Errorf("expected UpgradeInstallBuild with no patch route, got %v", plan.Kind)
	}
}

func TestPatchesNeededUnknownBuild(t *testing.T) {
	pg := NewPatchGraph(nil)
	_, _, err := pg.PatchesNeeded(MustParseVersion("nope"), MustParseVersion("also-nope"))
	if !errors.Is(err, ErrUnknownBuild) {
		t.Fatalf("expected ErrUnknownBuild, got %v", err)
	}
}
