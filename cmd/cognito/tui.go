package main

import (
	tea "github.com/charmbracelet/bubbletea"
	session "github.com/koscakluka/cognito-session/core"
	"github.com/koscakluka/cognito-session/internal/tui"
	"github.com/spf13/cobra"
)

func tuiCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Start the interactive terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			opts, err := sessionOptions(cfg)
			if err != nil {
				return err
			}

			c := session.New(newTransport(cfg), opts...)
			defer c.Close()

			model := tui.NewModel(cmd.Context(), c)
			defer model.Close()

			p := tea.NewProgram(model,
				tea.WithAltScreen(),
				tea.WithContext(cmd.Context()),
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(cmd.OutOrStdout()),
			)
			_, err = p.Run()
			return err
		},
	}
}
