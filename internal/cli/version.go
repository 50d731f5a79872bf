package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// This variable is set during build time.
var version = "dev"

func NewCmdVersion() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the tracker version.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tracker version %s (%s/%s)\n", version, runtime.GOOS, runtime.GOARCH)
		},
	}
	return cmd
}
