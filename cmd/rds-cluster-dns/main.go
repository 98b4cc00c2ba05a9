package main

import (
	"fmt"
	"os"

	"github.com/netguru/rds-cluster-dns/cmd/rds-cluster-dns/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cmd.ExitCode(err))
	}
}
