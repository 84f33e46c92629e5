package commands

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"procmux/internal/adapter/token"
	"procmux/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the manager daemon",
	Long: `Start the HTTP front that authenticates requests, routes them to the
right backend and keeps backend lifetimes bound to the owning context
process. A default shared backend is started on boot.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	d, err := buildDeps()
	if err != nil {
		return err
	}
	cfg := d.cfg

	parentCtx := cfg.Server.ParentCtx
	if parentCtx == "" {
		parentCtx = strconv.Itoa(os.Getppid())
	}
	authToken := cfg.Server.AuthToken
	if authToken == "" {
		authToken, err = token.NewRandomGenerator().Generate()
		if err != nil {
			return err
		}
		d.logger.Info("minted daemon auth token", "token", authToken)
	}

	state := web.NewState(d.repo, d.logger)
	srv := web.NewServer(web.Options{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		AuthToken:       authToken,
		ParentCtx:       parentCtx,
		DataDir:         cfg.Storage.DataDir,
		BaseURLPrefix:   cfg.Backend.BaseURLPrefix,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, d.manager, state, d.procs, d.logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}
