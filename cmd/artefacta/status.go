package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statusRecent int

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "status",
		Short:   "Summarize known builds/patches and recent activity",
		Example: `  artefacta status
  artefacta status --recent 20`,
		Args: cobra.NoArgs,
		RunE: statusRun,
	}
	cmd.Flags().IntVar(&statusRecent, "recent", 10, "number of recent journal entries to show")
	return cmd
}

func statusRun(cmd *cobra.Command, args []string) error {
	if globalIndex == nil {
		return fmt.Errorf("index not initialized")
	}

	builds := globalIndex.AllBuilds()
	patches := globalIndex.AllPatches()

	var localBuilds, remoteBuilds int
	var totalSize int64
	for _, b := range builds {
		if b.HasLocal() {
			localBuilds++
			totalSize += b.Local.Size
		}
		if b.HasRemote() {
			remoteBuilds++
		}
	}

	fmt.Printf("builds: %d known (%d local, %d remote), %s local\n",
		len(builds), localBuilds, remoteBuilds, humanize.Bytes(uint64(totalSize)))
	fmt.Printf("patches: %d known\n", len(patches))

	if globalJournal == nil {
		return nil
	}
	entries, err := globalJournal.Recent(cmd.Context(), statusRecent)
	if err != nil {
		return commandFailed(fmt.Errorf("read journal: %w", err))
	}
	if len(entries) == 0 {
		return nil
	}

	fmt.Println("recent activity:")
	for _, e := range entries {
		fmt.Printf("  [%s] %s %s -> %s: %s\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Kind, e.FromVersion, e.ToVersion, e.Message)
	}
	return nil
}
