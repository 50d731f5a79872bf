package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	api "github.com/netvoice/tracker/api/v1alpha1"
)

type RollbackOptions struct {
	GlobalOptions

	Confirm bool
	Reason  string
}

func DefaultRollbackOptions() *RollbackOptions {
	return &RollbackOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdRollback() *cobra.Command {
	o := DefaultRollbackOptions()
	cmd := &cobra.Command{
		Use:   "rollback ID",
		Short: "Roll back a deployed change. Destructive; requires --confirm.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *RollbackOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.BoolVar(&o.Confirm, "confirm", o.Confirm, "Confirm the rollback. Without this flag nothing is sent.")
	fs.StringVar(&o.Reason, "reason", o.Reason, "Reason recorded with the rollback.")
}

func (o *RollbackOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if !o.Confirm {
		return fmt.Errorf("rollback is destructive: re-run with --confirm to execute")
	}
	return nil
}

func (o *RollbackOptions) Run(ctx context.Context, args []string) error {
	c := o.Client()

	if err := c.Rollback(ctx, args[0], api.OperationRollback{Confirm: true, Reason: o.Reason}); err != nil {
		return fmt.Errorf("rolling back: %w", err)
	}
	fmt.Printf("rollback of operation %s requested\n", args[0])
	return nil
}
