package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "sync",
		Short:   "Upload local-only builds and patches to remote",
		Example: `  artefacta sync`,
		Args:    cobra.NoArgs,
		RunE:    syncRun,
	}
}

func syncRun(cmd *cobra.Command, args []string) error {
	if globalIndex == nil {
		return fmt.Errorf("index not initialized")
	}
	if err := globalIndex.Push(cmd.Context()); err != nil {
		return commandFailed(fmt.Errorf("sync: %w", err))
	}
	logger.Info("sync complete")
	return nil
}
