package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"rungchat/internal/store"
	"rungchat/internal/transcript"

	"github.com/spf13/cobra"
)

var (
	historyLimit        int
	historyConversation string
	historyList         bool
)

// historyCmd shows recorded conversations
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded conversations",
	Long: `Prints the most recent recorded messages, oldest first.

Examples:
  rung history --list             # one line per conversation
  rung history --limit 20
  rung history --conversation <id>`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "Number of messages to show")
	historyCmd.Flags().StringVar(&historyConversation, "conversation", "", "Only show this conversation")
	historyCmd.Flags().BoolVar(&historyList, "list", false, "List conversations instead of messages")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if cfg.History.DatabasePath == "" {
		return errors.New("no history database configured")
	}
	h, err := store.Open(cfg.History.DatabasePath)
	if err != nil {
		return err
	}
	defer h.Close()

	out := cmd.OutOrStdout()
	if historyList {
		convs, err := h.Conversations()
		if err != nil {
			return err
		}
		if len(convs) == 0 {
			fmt.Fprintln(out, "No conversations recorded.")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CONVERSATION\tMESSAGES\tSTARTED\tLAST")
		for _, c := range convs {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", c.ID, c.Messages,
				c.Started.Local().Format("2006-01-02 15:04"), c.Last.Local().Format("2006-01-02 15:04"))
		}
		return tw.Flush()
	}

	entries, err := h.Recent(historyConversation, historyLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No messages recorded.")
		return nil
	}
	current := ""
	for _, e := range entries {
		if e.ConversationID != current {
			current = e.ConversationID
			fmt.Fprintf(out, "--- %s ---\n", current)
		}
		fmt.Fprint(out, formatMessage(transcript.Message{
			Sender:          e.Sender,
			Kind:            e.Kind,
			Text:            e.Text,
			DurationSeconds: e.DurationSeconds,
		}))
	}
	return nil
}
