package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	startCaller   string
	startCtx      string
	startIsolated bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start or alias a backend for a session",
	Long: `Start a backend server for a caller, or alias the existing one when a
backend already serves the caller's group. Prints the server descriptor,
including the auth token needed to shut the reference down later.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&startCaller, "caller", "", "Caller id (generated when omitted)")
	startCmd.Flags().StringVar(&startCtx, "ctx", "", "Owning context process id (default: parent pid)")
	startCmd.Flags().BoolVar(&startIsolated, "isolated", false, "Give this caller its own backend instead of the shared one")
}

func runStart(cmd *cobra.Command, args []string) error {
	d, err := buildDeps()
	if err != nil {
		return err
	}

	caller := startCaller
	if caller == "" {
		caller = uuid.NewString()
	}
	ctxID := startCtx
	if ctxID == "" {
		ctxID = strconv.Itoa(os.Getppid())
	}

	server, err := d.manager.StartForKernelSession(cmd.Context(), caller, ctxID, !startIsolated)
	if err != nil {
		return err
	}
	if server.Failed() {
		return fmt.Errorf("backend start failed: %s", strings.Join(server.Errors, ": "))
	}

	out, err := json.MarshalIndent(server, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(out))
	return nil
}
