package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sharing/internal/auth"
	"sharing/internal/docstore"
	"sharing/internal/share"
	"sharing/pkg/types"
)

// NewRosterCommand prints the class roster once
func NewRosterCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "roster",
		Short: "Show who is sharing and how many comments they have",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), opts, func(ctx context.Context, s *session) error {
				state := s.engine.State()
				if err := printState(cmd.OutOrStdout(), opts.Format, state); err != nil {
					return err
				}
				if opts.Format == "text" {
					return printComments(cmd.OutOrStdout(), state, s.engine.DisplayName)
				}
				return nil
			})
		},
	}
}

// WatchOptions holds flags for the watch command
type WatchOptions struct {
	*RootOptions
	Count int
}

// NewWatchCommand prints the roster on every change until interrupted
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow roster changes live",
		Long: `Prints the roster now and again after every change made by anyone in the class.
Stops on Ctrl-C, after --count updates, or when the connection to the server ends.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts)
		},
	}
	cmd.Flags().IntVar(&opts.Count, "count", 0, "stop after this many updates (0 = until interrupted)")
	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	states := make(chan *types.ClassShareState, 16)
	unsubscribe := s.engine.Subscribe(func(state *types.ClassShareState) {
		select {
		case states <- state:
		default:
			// the printer is behind; it will catch up with a later state
		}
	})
	defer unsubscribe()

	printed := 0
	for {
		select {
		case state := <-states:
			if err := printState(cmd.OutOrStdout(), opts.Format, state); err != nil {
				return err
			}
			printed++
			if opts.Count > 0 && printed >= opts.Count {
				return nil
			}
		case <-s.client.Done():
			return s.client.Err()
		case <-ctx.Done():
			return nil
		}
	}
}

// NewDemoCommand runs a demo session, in process unless --server is set explicitly
func NewDemoCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Show the demo classroom",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var (
				engine *share.Engine
				err    error
			)
			if cmd.Flags().Changed("server") {
				var s *session
				if s, err = dialAndInit(ctx, opts, types.DemoParams{}); err != nil {
					return err
				}
				defer s.Close()
				engine = s.engine
			} else {
				backend := docstore.NewMemoryBackend()
				defer backend.Close()
				engine = share.NewEngine(docstore.NewClient(backend, auth.NewAuthenticator("")))
				defer engine.Close()
				initCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
				defer cancel()
				err = engine.Init(initCtx, types.DemoParams{})
			}
			if err != nil {
				return fmt.Errorf("demo failed: %w", err)
			}

			state := engine.State()
			if err := printState(cmd.OutOrStdout(), opts.Format, state); err != nil {
				return err
			}
			if opts.Format == "text" {
				return printComments(cmd.OutOrStdout(), state, engine.DisplayName)
			}
			return nil
		},
	}
}
