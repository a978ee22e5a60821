package main

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/technocreatives/artefacta/internal/core"
)

var (
	autoPatchRepoRoot string
	autoPatchPrefix   string
)

func newAutoPatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auto-patch <current>",
		Short: "Create patches from the best prior tags to the current tag",
		Long: `Read the git tag list from --repo-root (default the working directory) and
run the TagHeuristic to find the best candidate prior tags to patch from,
then create a patch from each candidate to current. The heuristic compares
current and the tags as given; --prefix is prepended to both endpoints only
when naming the versions of the resulting patch.`,
		Example: `  artefacta auto-patch 0.1.1
  artefacta auto-patch --prefix wtf- 0.1.1
  artefacta auto-patch --repo-root ../game-client 0.1.1`,
		Args: cobra.ExactArgs(1),
		RunE: autoPatchRun,
	}
	cmd.Flags().StringVar(&autoPatchRepoRoot, "repo-root", ".", "git repository to read tags from")
	cmd.Flags().StringVar(&autoPatchPrefix, "prefix", "", "prefix shared by all build versions, e.g. `wtf-`")
	return cmd
}

func autoPatchRun(cmd *cobra.Command, args []string) error {
	if globalIndex == nil {
		return fmt.Errorf("index not initialized")
	}
	current := args[0]

	tags, err := gitTags(autoPatchRepoRoot)
	if err != nil {
		return commandFailed(fmt.Errorf("list git tags in `%s`: %w", autoPatchRepoRoot, err))
	}

	candidates := core.FindTagsToPatch(current, tags)
	if len(candidates) == 0 {
		logger.Warn("no candidate tags found to patch from", "current", current)
		return nil
	}

	to, err := core.ParseVersion(autoPatchPrefix + current)
	if err != nil {
		return commandFailed(err)
	}

	for _, tag := range candidates {
		from, err := core.ParseVersion(autoPatchPrefix + tag)
		if err != nil {
			logger.Warn("skipping candidate tag: invalid version", "tag", tag, "error", err)
			continue
		}
		if err := globalIndex.CalculatePatch(cmd.Context(), from, to); err != nil {
			logger.Warn("failed to create patch for candidate tag", "from", from, "to", to, "error", err)
			continue
		}
		logger.Info("created patch", "from", from, "to", to)
	}
	return nil
}

// gitTags shells out to `git tag` in repoRoot and returns the non-empty
// lines of its output. The core package only ever sees the resulting
// []string; it has no knowledge of git.
func gitTags(repoRoot string) ([]string, error) {
	cmd := exec.Command("git", "tag")
	cmd.Dir = repoRoot
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	var tags []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			tags = append(tags, line)
		}
	}
	return tags, nil
}
