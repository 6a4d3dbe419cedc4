package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/mixsig/internal/analysis"
	"github.com/MikeSquared-Agency/mixsig/internal/config"
	"github.com/MikeSquared-Agency/mixsig/internal/features"
	"github.com/MikeSquared-Agency/mixsig/internal/parsing"
)

var (
	analyzePlatform string
	analyzeTZ       string
	analyzeTopN     int
	analyzeJSON     bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze FILE",
	Short: "Analyze a chat export locally with the heuristic engine",
	Long: `Parse a chat export and print its mixed-signal report. Nothing is
stored and no network calls are made.

Examples:
  mixsig analyze chat.txt --platform whatsapp --tz Europe/Berlin
  mixsig analyze export.json --platform generic --json`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVar(&analyzePlatform, "platform", parsing.PlatformWhatsApp, "Export format: whatsapp, imessage or generic")
	analyzeCmd.Flags().StringVar(&analyzeTZ, "tz", "UTC", "IANA timezone for timestamps without an offset")
	analyzeCmd.Flags().IntVar(&analyzeTopN, "top-n", 0, "Moments of ambiguity to keep (default AMBIGUITY_TOP_N)")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Output the report as JSON")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if analyzeTopN > 0 {
		cfg.AmbiguityTopN = analyzeTopN
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	report, err := analyzeExport(f, cfg, strings.ToLower(analyzePlatform), analyzeTZ)
	if err != nil {
		return err
	}

	if analyzeJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	fmt.Fprint(cmd.OutOrStdout(), renderReport(report))
	return nil
}

func analyzeExport(r io.Reader, cfg config.Config, platform, tz string) (analysis.Report, error) {
	chat, err := parsing.Parse(r, platform, tz)
	if err != nil {
		return analysis.Report{}, fmt.Errorf("parse export: %w", err)
	}
	pipeline, err := buildPipeline(cfg)
	if err != nil {
		return analysis.Report{}, err
	}
	return pipeline.Run(toFeatureMessages(chat)), nil
}

// toFeatureMessages assigns sequential IDs and derives sender IDs the same
// way participants are normalised when stored.
func toFeatureMessages(chat *parsing.Chat) []features.Message {
	msgs := make([]features.Message, len(chat.Messages))
	for i, m := range chat.Messages {
		msgs[i] = features.Message{
			ID:         strconv.Itoa(i + 1),
			Timestamp:  m.Timestamp,
			SenderID:   strings.ToLower(strings.TrimSpace(m.Sender)),
			SenderName: m.Sender,
			Text:       m.Text,
		}
	}
	return msgs
}
