package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"ai-intent-chat-be/internal/config"
	"ai-intent-chat-be/internal/pkg/logger"
	"ai-intent-chat-be/internal/repository/file"
	"ai-intent-chat-be/pkg/ai/dataset"
	"ai-intent-chat-be/pkg/ai/intent"
	"ai-intent-chat-be/pkg/ai/pipeline"
	"ai-intent-chat-be/pkg/chatbot"
	"ai-intent-chat-be/pkg/store"
	"ai-intent-chat-be/pkg/unclassified"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var (
	wsURL     string
	sessionID string
	timezone  string
	name      string
	pace      time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Chat with the intent handlers from the terminal",
	Long: `Send one message and print the streamed answer.

Without --ws the message runs through a local pipeline using the configured
dataset and session directory. With --ws it is sent to a running realtime
server, e.g. --ws ws://localhost:8081.`,
	RunE: runChat,
}

func init() {
	rootCmd.Flags().StringVar(&wsURL, "ws", "", "realtime server URL")
	rootCmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id to resume")
	rootCmd.Flags().StringVar(&timezone, "timezone", "", "timezone stored in the session memory")
	rootCmd.Flags().StringVar(&name, "name", "", "your name, stored in the session memory")
	rootCmd.Flags().DurationVar(&pace, "pace", 150*time.Millisecond, "pause between printed events in local mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	message := strings.Join(args, " ")
	if message == "" {
		fmt.Fprint(cmd.OutOrStdout(), "Ask your question: ")
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}
		message = strings.TrimSpace(line)
	}

	memory := map[string]interface{}{}
	if timezone != "" {
		memory[store.MemoryTimezone] = timezone
	}
	if name != "" {
		memory[store.MemoryName] = name
	}

	if wsURL != "" {
		return chatRemote(cmd.Context(), cmd.OutOrStdout(), wsURL, sessionID, message, memory)
	}
	return chatLocal(cmd.Context(), cmd.OutOrStdout(), message, memory)
}

func chatLocal(ctx context.Context, out io.Writer, message string, memory map[string]interface{}) error {
	cfg := config.Load()

	opts := chatbot.DefaultOptions()
	opts.AssistantName = cfg.Ai.AssistantName
	opts.WordDelay = cfg.Stream.HandlerWordDelay
	registry := chatbot.NewDefaultRegistry(opts)

	ds, err := dataset.NewStore(cfg.Ai.DatasetDir, cfg.Ai.DefaultLocale).Load(cfg.Ai.Locale, registry.Aliases())
	if err != nil {
		return err
	}
	sessions := file.NewSessionRepository(cfg.Session.Dir)
	engine := intent.NewEngine(ds, unclassified.NewFileLog(cfg.Ai.UnclassifiedDir))
	p := pipeline.NewStreamPipeline(engine, registry, sessions, logger.NewNopLogger(),
		pipeline.WithDefaultTimezone(cfg.Session.DefaultTimezone))

	sess, err := sessions.Load(ctx, store.ResolveSessionID(sessionID))
	if err != nil {
		return err
	}
	memory[store.MemoryLocale] = ds.Locale

	for ev := range p.Handle(ctx, pipeline.Request{Message: message, Context: memory}, sess) {
		render(out, ev)
		if !chatbot.Pace(ctx, pace) {
			break
		}
	}
	fmt.Fprintln(out, color.HiBlackString("session %s", sess.ID))
	return nil
}

func chatRemote(ctx context.Context, out io.Writer, rawURL, session, message string, memory map[string]interface{}) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if session != "" {
		q := u.Query()
		q.Set("sessionId", session)
		u.RawQuery = q.Encode()
	}

	fmt.Fprintln(out, color.CyanString("Connecting to %s ...", u.String()))
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	inbound := map[string]interface{}{"message": message}
	if len(memory) > 0 {
		inbound["context"] = memory
	}
	if err := conn.WriteJSON(inbound); err != nil {
		return err
	}

	for {
		var ev chatbot.Event
		if err := conn.ReadJSON(&ev); err != nil {
			fmt.Fprintln(out, color.RedString("Connection error: %v", err))
			return err
		}
		render(out, ev)
		if ev.Terminal() {
			break
		}
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	fmt.Fprintln(out, color.HiBlackString("Connection closed."))
	return nil
}

// render prints one event in the colour of its type.
func render(out io.Writer, ev chatbot.Event) {
	switch ev.Type {
	case chatbot.EventStatus:
		fmt.Fprintln(out, color.YellowString("%s", ev.Text))
	case chatbot.EventChunk:
		fmt.Fprintln(out, color.GreenString("%s", ev.Text))
	case chatbot.EventError:
		if ev.Data != nil {
			fmt.Fprintln(out, color.RedString("%s (%v)", ev.Text, ev.Data))
		} else {
			fmt.Fprintln(out, color.RedString("%s", ev.Text))
		}
	case chatbot.EventDone:
		fmt.Fprintln(out, color.New(color.FgGreen, color.Bold).Sprint("Done."))
	case chatbot.EventWelcome:
		fmt.Fprintln(out, color.CyanString("%s", ev.Text))
	default:
		fmt.Fprintln(out, ev.Text)
	}
}
