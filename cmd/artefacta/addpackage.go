package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/technocreatives/artefacta/internal/core"
	"github.com/technocreatives/artefacta/internal/packager"
)

var addPackageUpload bool

func newAddPackageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-package <version> <path>",
		Short: "Package a directory or file and add it as a Build",
		Long: `Package path (a directory tree or a single file) with the deterministic
archiver into a compressed {version}.tar.zst in a temp directory, then add
it the same way "add" would.`,
		Example: `  artefacta add-package build2 ./dist
  artefacta add-package build2 ./dist --upload`,
		Args: cobra.ExactArgs(2),
		RunE: addPackageRun,
	}
	cmd.Flags().BoolVar(&addPackageUpload, "upload", false, "also upload the new build to remote")
	return cmd
}

func addPackageRun(cmd *cobra.Command, args []string) error {
	if globalIndex == nil {
		return fmt.Errorf("index not initialized")
	}
	version, err := core.ParseVersion(args[0])
	if err != nil {
		return commandFailed(err)
	}
	srcPath := args[1]
	if _, err := os.Stat(srcPath); err != nil {
		return withExitCode(2, fmt.Errorf("input path `%s`: %w", srcPath, err))
	}

	tmpDir, err := os.MkdirTemp("", "artefacta-package-")
	if err != nil {
		return commandFailed(fmt.Errorf("create temp directory: %w", err))
	}
	defer os.RemoveAll(tmpDir)

	archivePath := filepath.Join(tmpDir, core.BuildPathFromVersion(version))
	out, err := os.Create(archivePath)
	if err != nil {
		return commandFailed(fmt.Errorf("create archive `%s`: %w", archivePath, err))
	}

	level := core.CompressionLevel(globalCfg.Compression, logger)
	enc, err := core.Compress(out, level)
	if err != nil {
		out.Close()
		return commandFailed(fmt.Errorf("open archive compressor: %w", err))
	}
	if err := packager.Package(srcPath, enc); err != nil {
		enc.Close()
		out.Close()
		return commandFailed(fmt.Errorf("package `%s`: %w", srcPath, err))
	}
	if err := enc.Close(); err != nil {
		out.Close()
		return commandFailed(fmt.Errorf("finish archive compression: %w", err))
	}
	if err := out.Close(); err != nil {
		return commandFailed(fmt.Errorf("close archive: %w", err))
	}

	entry, err := globalIndex.AddLocalBuild(cmd.Context(), archivePath)
	if err != nil {
		return commandFailed(fmt.Errorf("add packaged build `%s`: %w", version, err))
	}
	logger.Info("packaged and added build", "version", version, "path", entry.Path, "size", entry.Size)

	if addPackageUpload {
		if err := globalIndex.Push(cmd.Context()); err != nil {
			return commandFailed(fmt.Errorf("upload: %w", err))
		}
		logger.Info("uploaded local-only builds and patches")
	}
	return nil
}
