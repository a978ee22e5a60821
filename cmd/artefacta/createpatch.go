package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/technocreatives/artefacta/internal/core"
)

func newCreatePatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "create-patch <from> <to>",
		Short:   "Synthesize a binary patch between two known builds",
		Example: `  artefacta create-patch build1 build2`,
		Args:    cobra.ExactArgs(2),
		RunE:    createPatchRun,
	}
	return cmd
}

func createPatchRun(cmd *cobra.Command, args []string) error {
	if globalIndex == nil {
		return fmt.Errorf("index not initialized")
	}
	from, err := core.ParseVersion(args[0])
	if err != nil {
		return commandFailed(err)
	}
	to, err := core.ParseVersion(args[1])
	if err != nil {
		return commandFailed(err)
	}
	if from.Equal(to) {
		return commandFailed(fmt.Errorf("create-patch: `from` and `to` must differ"))
	}

	if err := globalIndex.CalculatePatch(cmd.Context(), from, to); err != nil {
		return commandFailed(fmt.Errorf("create-patch `%s`->`%s`: %w", from, to, err))
	}
	logger.Info("created patch", "from", from, "to", to)
	return nil
}
