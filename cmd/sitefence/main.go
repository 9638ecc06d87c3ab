// sitefence blocks a list of websites on the local machine through a managed
// hosts file section and a packet-filter anchor kept in sync by resolution.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/p4th0r/sitefence/internal/cli"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	rootCmd := cli.NewRootCmd(version)
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "[sitefence] Error: %v\n", err)
		if errors.Is(err, cli.ErrCanceled) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
