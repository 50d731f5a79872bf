package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/netvoice/tracker/internal/tracker"
	"github.com/netvoice/tracker/internal/tracker/config"
	"github.com/netvoice/tracker/pkg/log"
)

type WatchOptions struct {
	ConfigFilePath string
}

func DefaultWatchOptions() *WatchOptions {
	return &WatchOptions{
		ConfigFilePath: config.DefaultConfigFile,
	}
}

func NewCmdWatch() *cobra.Command {
	o := DefaultWatchOptions()
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the live reconciliation loop and the local status server.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.Run(cmd.Context())
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *WatchOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVar(&o.ConfigFilePath, "config", o.ConfigFilePath, "Path to the tracker's configuration file.")
}

func (o *WatchOptions) Run(ctx context.Context) error {
	cfg := config.NewDefault()
	if err := cfg.ParseConfigFile(o.ConfigFilePath); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := log.InitLog(log.AtomicLevelFor(cfg.LogLevel))
	defer func() { _ = logger.Sync() }()
	undo := zap.ReplaceGlobals(logger)
	defer undo()

	t, err := tracker.New(cfg)
	if err != nil {
		return err
	}
	return t.Run(ctx)
}
