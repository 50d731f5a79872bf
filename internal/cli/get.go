package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thoas/go-funk"
	"sigs.k8s.io/yaml"

	api "github.com/netvoice/tracker/api/v1alpha1"
)

const (
	jsonFormat = "json"
	yamlFormat = "yaml"

	OperationKind = "operation"
)

var (
	legalOutputTypes = []string{jsonFormat, yamlFormat}
)

type GetOptions struct {
	GlobalOptions

	Output string
	Status string
	Limit  int
}

func DefaultGetOptions() *GetOptions {
	return &GetOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdGet() *cobra.Command {
	o := DefaultGetOptions()
	cmd := &cobra.Command{
		Use:   "get (TYPE | TYPE/ID)",
		Short: "Display one or many operations.",
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

func (o *GetOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
	fs.StringVar(&o.Status, "status", o.Status, "Filter operations by status.")
	fs.IntVar(&o.Limit, "limit", o.Limit, "Maximum number of operations to list.")
}

func (o *GetOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if len(o.Output) > 0 && !funk.Contains(legalOutputTypes, o.Output) {
		return fmt.Errorf("output format must be one of (%s)", strings.Join(legalOutputTypes, ", "))
	}
	return nil
}

func (o *GetOptions) Run(ctx context.Context, args []string) error {
	c := o.Client()

	kind, id, err := parseKindId(args[0])
	if err != nil {
		return err
	}
	if kind != OperationKind {
		return fmt.Errorf("unsupported resource kind: %s", kind)
	}

	if id != "" {
		op, err := c.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("reading %s/%s: %w", kind, id, err)
		}
		return printResponse(op, o.Output, *op)
	}

	params := api.ListOperationsParams{}
	if o.Status != "" {
		status := api.OperationStatus(o.Status)
		params.Status = &status
	}
	if o.Limit > 0 {
		params.Limit = &o.Limit
	}
	ops, err := c.List(ctx, params)
	if err != nil {
		return fmt.Errorf("listing %ss: %w", kind, err)
	}
	return printResponse(ops, o.Output, ops...)
}

func parseKindId(arg string) (string, string, error) {
	parts := strings.SplitN(arg, "/", 2)
	kind := singular(parts[0])
	if len(parts) == 1 {
		return kind, "", nil
	}
	if parts[1] == "" {
		return "", "", fmt.Errorf("invalid resource reference %q", arg)
	}
	return kind, parts[1], nil
}

func singular(kind string) string {
	return strings.TrimSuffix(kind, "s")
}

func printResponse(response interface{}, output string, ops ...api.Operation) error {
	switch output {
	case jsonFormat:
		marshalled, err := json.Marshal(response)
		if err != nil {
			return fmt.Errorf("marshalling resource: %w", err)
		}
		fmt.Printf("%s\n", string(marshalled))
		return nil
	case yamlFormat:
		marshalled, err := yaml.Marshal(response)
		if err != nil {
			return fmt.Errorf("marshalling resource: %w", err)
		}
		fmt.Printf("%s\n", string(marshalled))
		return nil
	default:
		return printOperationsTable(ops...)
	}
}

func printOperationsTable(ops ...api.Operation) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, '\t', 0)
	fmt.Fprintln(w, "ID\tUSE CASE\tSTATUS\tSTAGE\tCREATED")
	for _, op := range ops {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", op.Id, op.UseCaseName, op.Status, op.CurrentStage, op.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}
