package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	api "github.com/netvoice/tracker/api/v1alpha1"
)

type ApproveOptions struct {
	GlobalOptions

	Reject  bool
	Comment string
}

func DefaultApproveOptions() *ApproveOptions {
	return &ApproveOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdApprove() *cobra.Command {
	o := DefaultApproveOptions()
	cmd := &cobra.Command{
		Use:   "approve ID",
		Short: "Record the human decision for an operation waiting at the approval stage.",
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

func (o *ApproveOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.BoolVar(&o.Reject, "reject", o.Reject, "Reject instead of approving.")
	fs.StringVar(&o.Comment, "comment", o.Comment, "Optional comment recorded with the decision.")
}

func (o *ApproveOptions) Run(ctx context.Context, args []string) error {
	c := o.Client()

	if err := c.Approve(ctx, args[0], api.OperationApproval{Approved: !o.Reject, Comment: o.Comment}); err != nil {
		return fmt.Errorf("recording decision: %w", err)
	}
	if o.Reject {
		fmt.Printf("operation %s rejected\n", args[0])
		return nil
	}
	fmt.Printf("operation %s approved\n", args[0])
	return nil
}
