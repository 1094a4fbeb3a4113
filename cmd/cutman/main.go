// Command cutman runs the Cutman git-hosting server and its operator CLI,
// grounded on the teacher's cmd/ephemeral and cmd/eph entrypoints: a
// cobra root with a serve subcommand and an admin subcommand tree.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "cutman",
		Short: "A self-hostable git hosting server",
		Long:  "Cutman hosts bare git repositories over smart HTTP and Git-LFS behind a single-binary server with a scoped token permission model.",
	}

	root.PersistentFlags().String("config", "server.toml", "path to the server configuration file")

	root.AddCommand(newServeCmd())
	root.AddCommand(newAdminCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		code := exitUsageError
		if ee, ok := err.(*exitError); ok {
			code = ee.code
		}
		os.Exit(code)
	}
}
