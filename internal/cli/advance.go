package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type AdvanceOptions struct {
	GlobalOptions
}

func DefaultAdvanceOptions() *AdvanceOptions {
	return &AdvanceOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdAdvance() *cobra.Command {
	o := DefaultAdvanceOptions()
	cmd := &cobra.Command{
		Use:   "advance ID",
		Short: "Ask the service to proceed past a manually gated stage.",
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

func (o *AdvanceOptions) Run(ctx context.Context, args []string) error {
	c := o.Client()

	if err := c.Advance(ctx, args[0]); err != nil {
		return fmt.Errorf("advancing operation: %w", err)
	}
	fmt.Printf("operation %s advancing\n", args[0])
	return nil
}
