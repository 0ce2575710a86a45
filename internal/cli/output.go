package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"sharing/pkg/types"
)

// printState writes the roster as a table, or the whole view model as JSON
func printState(w io.Writer, format string, state *types.ClassShareState) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	}

	if state == nil {
		_, err := fmt.Fprintln(w, "no state yet")
		return err
	}

	if state.InteractiveName != "" {
		fmt.Fprintf(w, "%s (%s)\n", state.InteractiveName, state.Type)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tSTUDENT\tNAME\tSHARED\tCOMMENTS\tUNREAD")
	for _, s := range state.Students {
		marker := ""
		if s.IsCurrentUser {
			marker = "*"
		}
		shared := "-"
		if s.IframeURL != nil {
			shared = *s.IframeURL
		}
		unread := ""
		if !s.IsCurrentUser {
			unread = fmt.Sprint(state.UnreadCount(s.UserID))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", marker, s.UserID, s.DisplayName, shared, len(s.CommentsReceived), unread)
	}
	return tw.Flush()
}

// printComments lists the comments the current user received
func printComments(w io.Writer, state *types.ClassShareState, names func(string) string) error {
	me := state.CurrentUser()
	if me == nil || len(me.CommentsReceived) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FROM\tTIME\tMESSAGE")
	for _, c := range me.CommentsReceived {
		from := names(c.Sender)
		if from == "" {
			from = c.Sender
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", from, time.UnixMilli(c.Time).UTC().Format(time.RFC3339), c.Message)
	}
	return tw.Flush()
}
