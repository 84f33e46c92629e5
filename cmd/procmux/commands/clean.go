package commands

import (
	"github.com/spf13/cobra"
)

var cleanCtx string

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Sweep orphaned backend references",
	Long: `Remove references whose owning context process or backend process is
gone, terminating still-running backends of dead contexts.`,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().StringVar(&cleanCtx, "ctx", "", "Limit the sweep to one context (default: all)")
}

func runClean(cmd *cobra.Command, args []string) error {
	d, err := buildDeps()
	if err != nil {
		return err
	}
	d.manager.SweepOrphans(cleanCtx)
	return nil
}
