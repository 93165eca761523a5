// Package main provides the cognito CLI.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	session "github.com/koscakluka/cognito-session/core"
	"github.com/koscakluka/cognito-session/core/transport"
	"github.com/koscakluka/cognito-session/core/transport/httpstream"
	"github.com/koscakluka/cognito-session/core/transport/websocket"
	"github.com/koscakluka/cognito-session/internal/config"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var version = "0.1.0"

// globalFlags override values from the config file and environment.
type globalFlags struct {
	configPath string
	baseURL    string
	mode       string
	reportMode string
	transport  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "cognito",
		Short: "Drive a multi-agent research pipeline from the terminal",
		Long: `cognito starts research runs on a planning, research and analysis
pipeline, streams their progress and, in gated mode, asks for approval of the
research plan before any research is done.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default ~/.cognito/config.toml)")
	rootCmd.PersistentFlags().StringVar(&flags.baseURL, "base-url", "", "research API base URL")
	rootCmd.PersistentFlags().StringVar(&flags.mode, "mode", "", "approval mode: gated or autonomous")
	rootCmd.PersistentFlags().StringVar(&flags.reportMode, "report-mode", "", "report mode: replace or append")
	rootCmd.PersistentFlags().StringVar(&flags.transport, "transport", "", "transport: http or websocket")

	rootCmd.AddCommand(
		askCmd(flags),
		tuiCmd(flags),
		replayCmd(flags),
		schemaCmd(),
	)
	return rootCmd
}

// loadConfig reads the config file and applies flag overrides.
func (f *globalFlags) loadConfig() (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if f.baseURL != "" {
		cfg.Server.BaseURL = f.baseURL
	}
	if f.mode != "" {
		cfg.Session.Mode = f.mode
	}
	if f.reportMode != "" {
		cfg.Session.ReportMode = f.reportMode
	}
	if f.transport != "" {
		cfg.Server.Transport = f.transport
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newTransport(cfg config.Config) transport.Transport {
	if cfg.Transport() == config.TransportWebsocket {
		return websocket.New(cfg.SocketURL())
	}
	return httpstream.New(cfg.BaseURL(), httpstream.WithPaths(cfg.Server.StartPath, cfg.Server.ApprovePath))
}

func sessionOptions(cfg config.Config) ([]session.Option, error) {
	mode, err := session.ParseMode(cfg.Session.Mode)
	if err != nil {
		return nil, err
	}
	reportMode, err := session.ParseReportMode(cfg.Session.ReportMode)
	if err != nil {
		return nil, err
	}
	opts := []session.Option{session.WithMode(mode), session.WithReportMode(reportMode)}
	if cfg.Session.MaxLineBytes > 0 {
		opts = append(opts, session.WithMaxLineBytes(cfg.Session.MaxLineBytes))
	}
	return opts, nil
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// terminalWidth returns the width of w when it is a terminal, or 0.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}
