package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"ai-intent-chat-be/pkg/ai/dataset"
	"ai-intent-chat-be/pkg/ai/intent"
	"ai-intent-chat-be/pkg/unclassified"

	"github.com/fatih/color"
)

// Assigner picks an intent for message among intents. An empty result skips
// the message.
type Assigner func(message string, intents []string) (string, error)

// Summary reports what one retraining run did.
type Summary struct {
	Processed int
	Assigned  map[string]int
	Skipped   int
}

type retrainer struct {
	store   *dataset.Store
	log     *unclassified.FileLog
	aliases map[string][]string
	out     io.Writer
}

// run assigns every logged message of locale to an intent, writes the touched
// intent files and removes the processed log. With auto set the classifier
// decides and messages scoring below threshold are skipped; otherwise ask is
// consulted for each message.
func (r *retrainer) run(ctx context.Context, locale string, auto bool, threshold float64, ask Assigner) (*Summary, error) {
	records, err := r.log.Read(locale)
	if err != nil {
		return nil, err
	}
	summary := &Summary{Assigned: map[string]int{}}
	if len(records) == 0 {
		fmt.Fprintf(r.out, "No unclassified data found for %s.\n", locale)
		return summary, nil
	}

	ds, err := r.store.LoadFiles(locale)
	if err != nil {
		return nil, err
	}

	var engine *intent.Engine
	if auto {
		enriched, err := r.store.Load(locale, r.aliases)
		if err != nil {
			return nil, err
		}
		engine = intent.NewEngine(enriched, nil)
	}

	fmt.Fprintf(r.out, "Processing %d unclassified messages...\n", len(records))
	touched := map[string]bool{}
	for _, rec := range records {
		message := strings.TrimSpace(rec.Message)
		if message == "" {
			continue
		}
		summary.Processed++
		fmt.Fprintf(r.out, "\n%s\n", color.CyanString("%s", message))

		var name string
		if auto {
			result := engine.Detect(ctx, message)
			score := math.Round(result.BestScore*1000) / 1000
			if !result.Accepted() || score < threshold {
				fmt.Fprintln(r.out, color.YellowString("Skipped (low similarity: %.3f).", score))
				summary.Skipped++
				continue
			}
			name = result.BestIntent
			fmt.Fprintln(r.out, color.YellowString("Auto-assigned intent '%s' (score: %.3f)", name, score))
		} else {
			name, err = ask(message, ds.Intents())
			if err != nil {
				return nil, err
			}
		}

		set, ok := ds.Find(name)
		if name == "" || !ok {
			fmt.Fprintln(r.out, color.YellowString("Skipped."))
			summary.Skipped++
			continue
		}
		set.Examples = append(set.Examples, message)
		touched[name] = true
		summary.Assigned[name]++
		fmt.Fprintln(r.out, color.GreenString("Added to intent '%s'", name))
	}

	for _, set := range ds.Sets {
		if !touched[set.Intent] {
			continue
		}
		if err := r.store.Save(ds.Locale, set); err != nil {
			return nil, err
		}
	}
	if err := r.log.Remove(locale); err != nil {
		return nil, err
	}

	color.New(color.FgGreen, color.Bold).Fprintln(r.out, "Retraining complete. Intents updated and unclassified data cleared.")
	return summary, nil
}

// promptAssigner asks on out and reads the answer from in: an intent number,
// an intent name, or an empty line to skip.
func promptAssigner(in io.Reader, out io.Writer) Assigner {
	reader := bufio.NewReader(in)
	return func(_ string, intents []string) (string, error) {
		for i, name := range intents {
			fmt.Fprintf(out, "  [%d] %s\n", i, name)
		}
		fmt.Fprint(out, "Assign intent (or press Enter to skip): ")

		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", err
		}
		answer := strings.TrimSpace(line)
		if answer == "" {
			return "", nil
		}
		if i, err := strconv.Atoi(answer); err == nil && i >= 0 && i < len(intents) {
			return intents[i], nil
		}
		for _, name := range intents {
			if strings.EqualFold(name, answer) {
				return name, nil
			}
		}
		fmt.Fprintln(out, color.RedString("Unknown intent %q.", answer))
		return "", nil
	}
}
