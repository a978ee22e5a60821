package core

import (
	"fmt"
	"path/filepath"
	"strings"
)

// FileName returns the base name of path with its last two extensions
// stripped (one if it has only one), so `build1.tar.zst` yields `build1`
// and `build1-build2.patch.zst` yields `build1-build2`. The second
// extension is stripped whatever it is, not only `.tar`.
func FileName(path string) (string, error) {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		return "", fmt.Errorf("no file stem for %q", path)
	}
	// Strip a second extension, e.g. the `.tar` in `build1.tar.zst`.
	if ext := filepath.Ext(stem); ext != "" {
		stem = strings.TrimSuffix(stem, ext)
	}
	if stem == "" {
		return "", fmt.Errorf("no file stem for %q", path)
	}
	return stem, nil
}

// BuildPathFromVersion returns the canonical build file name for v.
func BuildPathFromVersion(v Version) string {
	return v.String() + ".tar.zst"
}

// BuildVersionFromPath parses the Version out of a build file path.
func BuildVersionFromPath(path string) (Version, error) {
	name, err := FileName(path)
	if err != nil {
		return Version{}, fmt.Errorf("get name of %q: %w", path, err)
	}
	v, err := ParseVersion(name)
	if err != nil {
		return Version{}, fmt.Errorf("parse name %q from path %q as version: %w", name, path, err)
	}
	return v, nil
}

// PatchVersionsFromPath parses the (from, to) Versions out of a patch file
// path. It tries the two-part `from-to` split first, and falls back to the
// `from---to` split for versions that themselves contain `-`.
func PatchVersionsFromPath(path string) (from, to Version, err error) {
	name, err := FileName(path)
	if err != nil {
		return Version{}, Version{}, fmt.Errorf("get name of %q: %w", path, err)
	}

	if parts := strings.Split(name, "-"); len(parts) == 2 {
		f, ferr := ParseVersion(parts[0])
		if ferr != nil {
			return Version{}, Version{}, fmt.Errorf("parse `from` of patch name %q: %w", name, ferr)
		}
		t, terr := ParseVersion(parts[1])
		if terr != nil {
			return Version{}, Version{}, fmt.Errorf("parse `to` of patch name %q: %w", name, terr)
		}
		return f, t, nil
	}

	if parts := strings.SplitN(name, "---", 2); len(parts) == 2 {
		f, ferr := ParseVersion(parts[0])
		if ferr != nil {
			return Version{}, Version{}, fmt.Errorf("parse `from` of patch name %q: %w", name, ferr)
		}
		t, terr := ParseVersion(parts[1])
		if terr != nil {
			return Version{}, Version{}, fmt.Errorf("parse `to` of patch name %q: %w", name, terr)
		}
		return f, t, nil
	}

	return Version{}, Version{}, fmt.Errorf("patch file name %q does not follow the `<from>-<to>` or `<from>---<to>` pattern", name)
}

// PatchFileName returns the canonical (uncompressed) patch file name for
// the from -> to relation. It uses the `---` separator only when needed to
// keep the two endpoints unambiguous.
func PatchFileName(from, to Version) string {
	if strings.Contains(from.String(), "-") || strings.Contains(to.String(), "-") {
		return fmt.Sprintf("%s---%s.patch", from, to)
	}
	return fmt.Sprintf("%s-%s.patch", from, to)
}

// PatchStoragePath returns the compressed patch file name (with codec
// suffix) used as the storage key.
func PatchStoragePath(from, to Version) string {
	return PatchFileName(from, to) + ".zst"
}
