package main

import (
	"time"

	"github.com/koscakluka/cognito-session/core/replay"
	"github.com/spf13/cobra"
)

func replayCmd(flags *globalFlags) *cobra.Command {
	var (
		addr      string
		gated     bool
		tokens    bool
		noise     bool
		chunkSize int
		delay     time.Duration
		ttl       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Serve a scripted research pipeline for local use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("addr") {
				addr = cfg.ReplayAddr()
			}
			if !cmd.Flags().Changed("chunk-size") {
				chunkSize = cfg.Replay.ChunkSize
			}
			if !cmd.Flags().Changed("delay") {
				delay = cfg.ReplayChunkDelay()
			}

			script := replay.DefaultScript()
			script.Gated = gated
			script.Tokens = tokens
			script.Noise = noise

			server := replay.New(
				replay.WithScript(script),
				replay.WithChunkSize(chunkSize),
				replay.WithChunkDelay(delay),
				replay.WithPendingTTL(ttl),
			)
			cmd.Printf("replaying on http://%s (gated=%v tokens=%v)\n", addr, gated, tokens)
			return server.ListenAndServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address")
	cmd.Flags().BoolVar(&gated, "gated", true, "pause for plan approval")
	cmd.Flags().BoolVar(&tokens, "tokens", false, "stream the report as token records")
	cmd.Flags().BoolVar(&noise, "noise", false, "interleave lines clients must skip")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "split responses into writes of this many bytes")
	cmd.Flags().DurationVar(&delay, "delay", 0, "pause between writes")
	cmd.Flags().DurationVar(&ttl, "pending-ttl", 30*time.Minute, "forget threads left at the approval gate after this long")
	return cmd
}
