package main

import (
	"fmt"
	"os"

	"github.com/golang/glog"

	"sharing/internal/cli"
)

func main() {
	defer glog.Flush()

	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		glog.Flush()
		os.Exit(1)
	}
}
