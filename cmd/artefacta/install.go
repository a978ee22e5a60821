package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/technocreatives/artefacta/internal/core"
)

func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install <version>",
		Short: "Ensure a build is present locally and point `current` at it",
		Long: `Ensure the given version is present in the local store, upgrading from
whatever build `+"`current`"+` already points at via the cheapest available patch
chain when one is cheaper than downloading the build directly. Then point
the `+"`current`"+` symlink at it. If `+"`current`"+` already points at this version, install
does nothing.`,
		Example: `  artefacta install build2
  artefacta install wtf-0.1.1`,
		Args: cobra.ExactArgs(1),
		RunE: installRun,
	}
	return cmd
}

func installRun(cmd *cobra.Command, args []string) error {
	if globalIndex == nil {
		return fmt.Errorf("index not initialized")
	}
	target, err := core.ParseVersion(args[0])
	if err != nil {
		return commandFailed(err)
	}

	currentPath := filepath.Join(globalCfg.Local, "current")
	currentVersion, hasCurrent := readCurrentSymlink(currentPath)

	if hasCurrent && currentVersion.Equal(target) {
		logger.Info("current already points at requested version", "version", target)
		return nil
	}

	var entry core.Entry
	if hasCurrent {
		entry, err = globalIndex.UpgradeToBuild(cmd.Context(), currentVersion, target)
	} else {
		entry, err = globalIndex.GetBuild(cmd.Context(), target)
	}
	if err != nil {
		return commandFailed(fmt.Errorf("install `%s`: %w", target, err))
	}

	if err := pointCurrentAt(currentPath, entry.Path); err != nil {
		return commandFailed(err)
	}

	logger.Info("installed", "version", target, "path", entry.Path)
	return nil
}

// readCurrentSymlink resolves the `current` symlink at path, if any, to the
// Version it names.
func readCurrentSymlink(path string) (core.Version, bool) {
	target, err := os.Readlink(path)
	if err != nil {
		return core.Version{}, false
	}
	v, err := core.BuildVersionFromPath(target)
	if err != nil {
		return core.Version{}, false
	}
	return v, true
}

// pointCurrentAt atomically repoints the `current` symlink at symlinkPath
// to target, replacing any existing link.
func pointCurrentAt(symlinkPath, target string) error {
	tmp := symlinkPath + ".new"
	_ = os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("create `current` symlink: %w", err)
	}
	if err := os.Rename(tmp, symlinkPath); err != nil {
		return fmt.Errorf("point `current` at `%s`: %w", target, err)
	}
	return nil
}
