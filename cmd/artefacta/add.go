package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/technocreatives/artefacta/internal/core"
)

var (
	addUpload        bool
	addCalcPatchFrom string
)

func newAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Import an existing archive as a Build",
		Long: `Import an existing compressed build archive into the local store. With
--calc-patch-from, also synthesize a patch from the named version to the
newly added build.`,
		Example: `  artefacta add ./build2.tar.zst
  artefacta add ./build2.tar.zst --upload
  artefacta add ./build2.tar.zst --calc-patch-from build1`,
		Args: cobra.ExactArgs(1),
		RunE: addRun,
	}

	cmd.Flags().BoolVar(&addUpload, "upload", false, "also upload the new build to remote")
	cmd.Flags().StringVar(&addCalcPatchFrom, "calc-patch-from", "", "synthesize a patch from this version to the newly added build")

	return cmd
}

func addRun(cmd *cobra.Command, args []string) error {
	if globalIndex == nil {
		return fmt.Errorf("index not initialized")
	}
	path := args[0]

	if _, err := os.Stat(path); err != nil {
		return withExitCode(2, fmt.Errorf("input file `%s`: %w", path, err))
	}

	entry, err := globalIndex.AddLocalBuild(cmd.Context(), path)
	if err != nil {
		return commandFailed(fmt.Errorf("add `%s`: %w", path, err))
	}
	logger.Info("added build", "path", entry.Path, "size", entry.Size)

	if addCalcPatchFrom != "" {
		from, err := core.ParseVersion(addCalcPatchFrom)
		if err != nil {
			return commandFailed(err)
		}
		to, err := core.BuildVersionFromPath(entry.Path)
		if err != nil {
			return commandFailed(err)
		}
		if err := globalIndex.CalculatePatch(cmd.Context(), from, to); err != nil {
			return commandFailed(fmt.Errorf("calc patch `%s`->`%s`: %w", from, to, err))
		}
		logger.Info("synthesized patch", "from", from, "to", to)
	}

	if addUpload {
		if err := globalIndex.Push(cmd.Context()); err != nil {
			return commandFailed(fmt.Errorf("upload: %w", err))
		}
		logger.Info("uploaded local-only builds and patches")
	}

	return nil
}
