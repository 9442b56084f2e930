package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"rungchat/internal/dispatch"
	"rungchat/internal/session"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var choices []int

// askCmd sends one message
var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Send one message to the assistant",
	Long: `Sends a message and prints the reply. Generated artifacts are written to
the download directory.

When the assistant answers with options, they are printed numbered from 1.
Pass --choice to pick one; repeat it to answer follow-up options in order.

Example:
  rung ask "motor start/stop rung with seal-in" --choice 1`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

// attachCmd sends a file with an optional message
var attachCmd = &cobra.Command{
	Use:   "attach [file] [message]",
	Short: "Send a file (Excel plan, L5X, UDT) to the assistant",
	Long: `Uploads a file together with an optional message. An Excel plan is
converted to an .L5X project which is written to the download directory.

Example:
  rung attach plan.xlsx
  rung attach Motor_UDT.L5X "what should I do with this" --choice 2`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runAttach,
}

func init() {
	for _, c := range []*cobra.Command{askCmd, attachCmd} {
		c.Flags().IntSliceVar(&choices, "choice", nil, "Option to pick when the assistant offers options (1-based, repeatable)")
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, err := newApp(cfg, savedPrinter(cmd.OutOrStdout()))
	if err != nil {
		return err
	}
	defer a.close()

	stop := printTranscript(cmd.OutOrStdout(), a.disp.Log())
	defer stop()

	text := strings.Join(args, " ")
	logger.Debug("Sending chat message", zap.Int("chars", len(text)))
	if _, err := a.disp.SendChat(ctx, text); err != nil {
		return err
	}
	return followChoices(ctx, cmd.OutOrStdout(), a.disp, choices)
}

func runAttach(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read attachment: %w", err)
	}
	var text string
	if len(args) > 1 {
		text = args[1]
	}

	a, err := newApp(cfg, savedPrinter(cmd.OutOrStdout()))
	if err != nil {
		return err
	}
	defer a.close()

	stop := printTranscript(cmd.OutOrStdout(), a.disp.Log())
	defer stop()

	name := filepath.Base(args[0])
	logger.Debug("Sending attachment", zap.String("file", name), zap.Int("bytes", len(data)))
	if _, err := a.disp.SendWithAttachment(ctx, text, session.Attachment{Name: name, Data: data}); err != nil {
		return err
	}
	return followChoices(ctx, cmd.OutOrStdout(), a.disp, choices)
}

// savedPrinter reports written artifacts on w.
func savedPrinter(w io.Writer) func(string) {
	return func(path string) {
		fmt.Fprintf(w, "Saved %s\n", path)
	}
}

// followChoices answers presented options with picks, one per round.
func followChoices(ctx context.Context, w io.Writer, d *dispatch.Dispatcher, picks []int) error {
	for _, pick := range picks {
		c, ok := d.Presented()
		if !ok {
			return errors.New("no options to choose from")
		}
		if pick < 1 || pick > len(c.Options) {
			return fmt.Errorf("choice %d out of range 1-%d", pick, len(c.Options))
		}
		if err := d.Choose(ctx, c.ID, pick-1); err != nil {
			return err
		}
	}
	if _, ok := d.Presented(); ok {
		fmt.Fprintln(w, "Pick an option with --choice N.")
	}
	return nil
}
