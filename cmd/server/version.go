package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/photonchat/photon/pkg/version"
)

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, version.String())
				return
			}
			fmt.Fprintf(out, "photon %s\n", version.Full())
			fmt.Fprintf(out, "  Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
	cmd.Flags().BoolVarP(&short, "short", "s", false, "print only the version")
	return cmd
}
