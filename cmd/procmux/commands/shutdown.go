package commands

import (
	"github.com/spf13/cobra"
)

var (
	shutdownCaller string
	shutdownCtx    string
	shutdownToken  string
)

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Release a caller's backend reference",
	Long: `Remove the reference held by a caller. The backend process is
terminated only when this was its last reference. Unknown references and
wrong tokens are ignored.`,
	RunE: runShutdown,
}

func init() {
	shutdownCmd.Flags().StringVar(&shutdownCaller, "caller", "", "Caller id the reference belongs to")
	shutdownCmd.Flags().StringVar(&shutdownCtx, "ctx", "", "Owning context process id")
	shutdownCmd.Flags().StringVar(&shutdownToken, "token", "", "Auth token printed at start")
}

func runShutdown(cmd *cobra.Command, args []string) error {
	d, err := buildDeps()
	if err != nil {
		return err
	}
	return d.manager.Shutdown(shutdownCtx, shutdownCaller, shutdownToken)
}
