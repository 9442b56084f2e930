package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var saveName string

// saveCmd converts rung code into an .L5X file
var saveCmd = &cobra.Command{
	Use:   "save [code-file|-]",
	Short: "Convert rung code into an .L5X file",
	Long: `Sends rung code to the backend and writes the generated .L5X file to the
download directory. Use "-" to read the code from stdin.

Without --name the file is called generated_rung_<UTC timestamp>.L5X.`,
	Args: cobra.ExactArgs(1),
	RunE: runSave,
}

// uploadDocCmd uploads a reference document
var uploadDocCmd = &cobra.Command{
	Use:   "upload-doc [file]",
	Short: "Upload a reference document for the assistant to draw on",
	Args:  cobra.ExactArgs(1),
	RunE:  runUploadDoc,
}

func init() {
	saveCmd.Flags().StringVarP(&saveName, "name", "n", "", "Filename for the generated artifact")
}

func runSave(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	var code []byte
	var err error
	if args[0] == "-" {
		code, err = io.ReadAll(cmd.InOrStdin())
	} else {
		code, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read code: %w", err)
	}

	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}
	defer a.close()

	logger.Debug("Persisting code", zap.Int("bytes", len(code)), zap.String("name", saveName))
	res, err := a.disp.PersistGeneratedArtifact(ctx, string(code), saveName)
	if err != nil {
		return fmt.Errorf("save failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", res.SavedPath)
	return nil
}

func runUploadDoc(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}
	defer a.close()

	name := filepath.Base(args[0])
	fmt.Fprintf(cmd.OutOrStdout(), "Uploading %q...\n", name)
	out, err := a.disp.UploadDocument(ctx, name, data)
	fmt.Fprintln(cmd.OutOrStdout(), out.Message)
	return err
}
