package cli

import (
	"flag"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands
type RootOptions struct {
	Server          string
	Token           string
	ClassFile       string
	PluginID        string
	InteractiveName string
	Format          string
	Timeout         time.Duration
}

// ValidFormats defines the allowed output formats
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the sharectl command tree
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "sharectl",
		Short: "Share work and comments with classmates from the terminal",
		Long: `sharectl joins a class sharing session on a sharestore server and lets you
inspect the roster, share or unshare work, and exchange comments.

Session commands need --server and a portal --token; the token carries the
portal domain, class and offering, and --class supplies the roster names.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Server, "server", "ws://localhost:8080/ws", "sharestore websocket URL")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", "", "portal token for the current student")
	cmd.PersistentFlags().StringVar(&opts.ClassFile, "class", "", "YAML class roster (class_hash, students)")
	cmd.PersistentFlags().StringVar(&opts.PluginID, "plugin", "1", "plugin instance id")
	cmd.PersistentFlags().StringVar(&opts.InteractiveName, "interactive", "", "interactive name shown in the header")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "time limit for connecting and each change")

	// glog registers -v, -logtostderr and friends on the standard flag set
	cmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	cmd.AddCommand(NewDemoCommand(opts))
	cmd.AddCommand(NewRosterCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewShareCommand(opts))
	cmd.AddCommand(NewUnshareCommand(opts))
	cmd.AddCommand(NewCommentCommand(opts))
	cmd.AddCommand(NewDeleteCommentCommand(opts))
	cmd.AddCommand(NewReadCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
