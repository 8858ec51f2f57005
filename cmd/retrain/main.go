package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-intent-chat-be/internal/config"
	"ai-intent-chat-be/pkg/ai/dataset"
	"ai-intent-chat-be/pkg/chatbot"
	"ai-intent-chat-be/pkg/events"
	pktNats "ai-intent-chat-be/pkg/nats"
	"ai-intent-chat-be/pkg/unclassified"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const collectorDurable = "unclassified-collector"

var (
	locale    string
	auto      bool
	threshold float64
)

var rootCmd = &cobra.Command{
	Use:   "retrain",
	Short: "Retrain the intent dataset from unclassified messages",
	Long: `Assign messages the classifier could not place to intents.

Each message of {UNCLASSIFIED_DIR}/{locale}.csv is assigned interactively, or
by the classifier itself with --auto. Assigned messages are appended to the
intent files and the processed log is removed.`,
	RunE: runRetrain,
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect unclassified messages published on NATS into the local log",
	RunE:  runCollect,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&locale, "locale", "l", "", "locale to retrain (default $LOCALE)")
	rootCmd.Flags().BoolVarP(&auto, "auto", "a", false, "assign intents automatically without prompting")
	rootCmd.Flags().Float64VarP(&threshold, "threshold", "t", 0.6, "minimum similarity for --auto")
	rootCmd.AddCommand(collectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runRetrain(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	if locale == "" {
		locale = cfg.Ai.Locale
	}

	r := &retrainer{
		store:   dataset.NewStore(cfg.Ai.DatasetDir, cfg.Ai.DefaultLocale),
		log:     unclassified.NewFileLog(cfg.Ai.UnclassifiedDir),
		aliases: chatbot.NewDefaultRegistry(chatbot.DefaultOptions()).Aliases(),
		out:     cmd.OutOrStdout(),
	}
	summary, err := r.run(cmd.Context(), locale, auto, threshold, promptAssigner(cmd.InOrStdin(), cmd.OutOrStdout()))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d processed, %d skipped\n", summary.Processed, summary.Skipped)
	return nil
}

func runCollect(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	if cfg.App.NatsURL == "" {
		return fmt.Errorf("NATS_URL is not set")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		return err
	}
	defer sub.Close()

	log := unclassified.NewFileLog(cfg.Ai.UnclassifiedDir)
	err = sub.Subscribe(ctx, events.UNCLASSIFIED_MESSAGE, collectorDurable, func(ctx context.Context, ev events.Event) error {
		rec := recordFromEvent(ev, cfg.Ai.Locale)
		if err := log.Log(ctx, rec); err != nil {
			return err
		}
		color.Cyan("[%s] %s (%.3f)", rec.Locale, rec.Message, rec.Score)
		return nil
	})
	if err != nil {
		return err
	}

	color.Green("Collecting into %s, press Ctrl+C to stop", cfg.Ai.UnclassifiedDir)
	<-ctx.Done()
	return nil
}

// recordFromEvent converts a bus event back into a log record. A locale that
// cannot name a log file is replaced by fallbackLocale.
func recordFromEvent(ev events.Event, fallbackLocale string) unclassified.Record {
	payload := ev.Payload()
	rec := unclassified.Record{Locale: fallbackLocale, Timestamp: ev.Timestamp()}
	if v, ok := payload["message"].(string); ok {
		rec.Message = v
	}
	if v, ok := payload["locale"].(string); ok && unclassified.ValidLocale(v) {
		rec.Locale = v
	}
	if v, ok := payload["score"].(float64); ok {
		rec.Score = v
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	return rec
}
