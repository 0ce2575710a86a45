package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"sharing/pkg/types"
)

// NewShareCommand shares the current student's work
func NewShareCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "share <iframe-url>",
		Short: "Share your work with the class",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), opts, func(ctx context.Context, s *session) error {
				if err := s.engine.Share(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "shared %s\n", args[0])
				return nil
			})
		},
	}
}

// NewUnshareCommand withdraws the current student's work
func NewUnshareCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unshare",
		Short: "Stop sharing your work; comments are kept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), opts, func(ctx context.Context, s *session) error {
				if err := s.engine.Unshare(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "unshared")
				return nil
			})
		},
	}
}

// NewCommentCommand posts a comment to a classmate
func NewCommentCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "comment <recipient-id> <message>",
		Short: "Comment on a classmate's work",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), opts, func(ctx context.Context, s *session) error {
				if _, ok := s.engine.State().Student(args[0]); !ok {
					return fmt.Errorf("%w: %s", ErrUnknownStudent, args[0])
				}
				if err := s.engine.PostComment(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "comment sent to %s\n", args[0])
				return nil
			})
		},
	}
}

// NewDeleteCommentCommand removes one of the current student's comments
func NewDeleteCommentCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-comment <recipient-id> <time-ms>",
		Short: "Delete a comment you sent",
		Long: `Deletes the comment you sent to <recipient-id> at <time-ms> (Unix milliseconds,
as shown by "roster --format json").`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid time %q: %w", args[1], err)
			}
			return withSession(cmd.Context(), opts, func(ctx context.Context, s *session) error {
				comment, ok := findSentComment(s.engine.State(), s.engine.CurrentUserID(), args[0], at)
				if !ok {
					return fmt.Errorf("no comment to %s at %d", args[0], at)
				}
				if err := s.engine.DeleteComment(ctx, comment); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "comment deleted")
				return nil
			})
		},
	}
}

func findSentComment(state *types.ClassShareState, sender, recipient string, at int64) (types.CommentReceived, bool) {
	student, ok := state.Student(recipient)
	if !ok {
		return types.CommentReceived{}, false
	}
	for _, c := range student.CommentsReceived {
		if c.Sender == sender && c.Time == at {
			return c, true
		}
	}
	return types.CommentReceived{}, false
}

// NewReadCommand marks a classmate's comments as read
func NewReadCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "read <sender-id>",
		Short: "Mark comments from a classmate as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), opts, func(ctx context.Context, s *session) error {
				unread := s.engine.State().UnreadCount(args[0])
				if err := s.engine.MarkCommentsRead(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "marked %d comment(s) from %s as read\n", unread, args[0])
				return nil
			})
		},
	}
}
