package main

import (
	"context"
	"fmt"

	"rungchat/cmd/rung/ui"
	"rungchat/internal/config"
	"rungchat/internal/logging"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// runInteractive starts the chat TUI and keeps the config hot-reloaded.
func runInteractive(cmd *cobra.Command) error {
	var program *tea.Program
	notify := func(msg tea.Msg) {
		if program != nil {
			program.Send(msg)
		}
	}

	a, err := newApp(cfg, func(path string) { notify(ui.SavedMsg{Path: path}) })
	if err != nil {
		return err
	}
	defer a.close()

	model := ui.New(ui.Options{
		Dispatcher:     a.disp,
		Theme:          cfg.UX.Theme,
		RenderMarkdown: cfg.UX.RenderMarkdown,
		BackendURL:     cfg.Backend.BaseURL,
		Version:        cfg.Version,
	})
	defer model.Close()
	program = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
		if err := next.Validate(); err != nil {
			logger.Warn("ignoring invalid config change", zap.Error(err))
			return
		}
		if err := logging.Initialize(next.Logging.Options()); err != nil {
			logger.Warn("failed to re-apply logging config", zap.Error(err))
		}
		logging.Config("config reloaded from %s", configPath)
		notify(ui.ConfigReloadedMsg{Config: next})
	})
	if err != nil {
		logger.Debug("config watcher unavailable", zap.Error(err))
	} else {
		defer watcher.Stop()
		if err := watcher.Start(ctx); err != nil {
			logger.Debug("config watcher not started", zap.Error(err))
		}
	}

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("chat interface failed: %w", err)
	}
	return nil
}
