package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	api "github.com/netvoice/tracker/api/v1alpha1"
	"github.com/netvoice/tracker/internal/tracker/client"
)

type StartOptions struct {
	GlobalOptions

	UseCase string
	LabId   string
	Force   bool
}

func DefaultStartOptions() *StartOptions {
	return &StartOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdStart() *cobra.Command {
	o := DefaultStartOptions()
	cmd := &cobra.Command{
		Use:   "start TEXT",
		Short: "Start a new operation from a spoken command transcript.",
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

func (o *StartOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.StringVar(&o.UseCase, "use-case", o.UseCase, "Name of the workflow template to execute.")
	fs.StringVar(&o.LabId, "lab-id", o.LabId, "Lab targeted by the change.")
	fs.BoolVar(&o.Force, "force", o.Force, "Override a protocol mismatch and keep the chosen use case.")
}

func (o *StartOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if o.UseCase == "" {
		return fmt.Errorf("--use-case is required")
	}
	return nil
}

func (o *StartOptions) Run(ctx context.Context, args []string) error {
	c := o.Client()

	op, err := c.Start(ctx, api.OperationCreate{
		Text:    args[0],
		UseCase: o.UseCase,
		LabId:   o.LabId,
		Force:   o.Force,
	})
	if err != nil {
		mismatch := &client.MismatchError{}
		if errors.As(err, &mismatch) {
			printMismatch(mismatch, o.UseCase)
			return fmt.Errorf("use case contested, not started")
		}
		return fmt.Errorf("starting operation: %w", err)
	}

	fmt.Printf("started operation %s (use case %s, status %s)\n", op.Id, op.UseCaseName, op.Status)
	return nil
}

func printMismatch(m *client.MismatchError, useCase string) {
	fmt.Printf("the service judged %q unlikely to match the input: %s\n", useCase, m.Message)
	fmt.Printf("suggested use case: %s (confidence %.2f)\n", m.SuggestedUseCase, m.Confidence)
	if len(m.MatchedKeywords) > 0 {
		fmt.Printf("matched keywords: %s\n", strings.Join(m.MatchedKeywords, ", "))
	}
	fmt.Printf("retry with --use-case %s, or keep %q with --force\n", m.SuggestedUseCase, useCase)
}
