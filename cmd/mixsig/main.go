package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "mixsig",
	Short: "Mixed-signal analysis for relationship chat exports",
	Long: `mixsig parses exported chat logs, encrypts them at rest and scores
communication patterns (initiation, reply latency, warm-cold cycles,
boundary language, dropped plans, affection-distance contradictions).

Reports describe patterns; they do not diagnose people or predict outcomes.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the mixsig version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("mixsig " + version)
		},
	})
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// redactedKeys are attribute keys whose values may carry message content.
var redactedKeys = map[string]bool{
	"text":         true,
	"message_text": true,
	"excerpt":      true,
	"raw_content":  true,
}

func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if redactedKeys[a.Key] {
		return slog.String(a.Key, "[redacted]")
	}
	return a
}

func newLogHandler(w io.Writer, level string) slog.Handler {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl, ReplaceAttr: redactAttr})
}

func setupLogging(level string) {
	slog.SetDefault(slog.New(newLogHandler(os.Stdout, level)))
}
