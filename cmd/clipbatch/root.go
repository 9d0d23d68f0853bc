package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"clipbatch/internal/config"
)

// commandContext carries lazily-loaded configuration and the daemon client
// shared by all subcommands.
type commandContext struct {
	configFlag *string
	serverFlag *string
	ownerFlag  *string

	cfg *config.Config
}

func newCommandContext(configFlag, serverFlag, ownerFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		serverFlag: serverFlag,
		ownerFlag:  ownerFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, _, _, err := config.Load(strings.TrimSpace(*c.configFlag))
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) client() (*daemonClient, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	base := strings.TrimSpace(*c.serverFlag)
	if base == "" {
		base = "http://" + cfg.Paths.APIBind
	}
	owner := strings.TrimSpace(*c.ownerFlag)
	if owner == "" {
		owner = strings.TrimSpace(os.Getenv("CLIPBATCH_OWNER"))
	}
	if owner == "" {
		return nil, fmt.Errorf("no owner identity: pass --owner or set CLIPBATCH_OWNER")
	}
	return newDaemonClient(base, owner, cfg.Paths.APIToken), nil
}

func newRootCommand() *cobra.Command {
	var configFlag string
	var serverFlag string
	var ownerFlag string

	ctx := newCommandContext(&configFlag, &serverFlag, &ownerFlag)

	rootCmd := &cobra.Command{
		Use:           "clipbatch",
		Short:         "Batch video-processing queue CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "Daemon API base URL (default from config api_bind)")
	rootCmd.PersistentFlags().StringVar(&ownerFlag, "owner", "", "Owner identity for job operations (or CLIPBATCH_OWNER)")

	rootCmd.AddCommand(newJobCommand(ctx))
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}
