package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newDebugCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "debug",
		Short:   "Dump the known build/patch graph to stderr",
		Example: `  artefacta debug`,
		Args:    cobra.NoArgs,
		RunE:    debugRun,
	}
}

func debugRun(cmd *cobra.Command, args []string) error {
	if globalIndex == nil {
		return fmt.Errorf("index not initialized")
	}

	fmt.Fprintln(os.Stderr, "builds:")
	for _, b := range globalIndex.AllBuilds() {
		fmt.Fprintf(os.Stderr, "  %s  local=%v remote=%v\n", b.Version, b.HasLocal(), b.HasRemote())
	}

	fmt.Fprintln(os.Stderr, "patches:")
	for _, p := range globalIndex.AllPatches() {
		fmt.Fprintf(os.Stderr, "  %s -> %s  local=%v remote=%v\n", p.From, p.To, p.HasLocal(), p.HasRemote())
	}

	return nil
}
