// Package pipeline turns one user message into a stream of events: classify,
// resolve a handler, forward its output, keep the session history current.
package pipeline

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"ai-intent-chat-be/internal/metric"
	"ai-intent-chat-be/internal/pkg/logger"
	"ai-intent-chat-be/internal/repository/contract"
	"ai-intent-chat-be/pkg/ai/intent"
	"ai-intent-chat-be/pkg/chatbot"
	"ai-intent-chat-be/pkg/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const module = "StreamPipeline"

const (
	TextEmptyMessage = "Empty message"
	TextNoIntent     = "No intent detected"
)

// Request is one inbound user turn.
type Request struct {
	Message string
	// Context is merged into the session memory before classification.
	Context map[string]interface{}
}

// StreamPipeline is shared by every transport. It holds no per-session state;
// callers own the session they pass to Handle.
type StreamPipeline struct {
	engine          *intent.Engine
	registry        *chatbot.Registry
	sessions        contract.SessionRepository
	logger          logger.ILogger
	metrics         *metric.Metrics
	tracer          trace.Tracer
	defaultTimezone string
	now             func() time.Time
}

// Option configures a StreamPipeline.
type Option func(*StreamPipeline)

func WithMetrics(m *metric.Metrics) Option {
	return func(p *StreamPipeline) { p.metrics = m }
}

// WithDefaultTimezone sets the memory timezone used when a session has none.
func WithDefaultTimezone(tz string) Option {
	return func(p *StreamPipeline) { p.defaultTimezone = tz }
}

func WithClock(now func() time.Time) Option {
	return func(p *StreamPipeline) { p.now = now }
}

// NewStreamPipeline wires the pipeline. sessions may be nil, in which case
// nothing is persisted.
func NewStreamPipeline(
	engine *intent.Engine,
	registry *chatbot.Registry,
	sessions contract.SessionRepository,
	log logger.ILogger,
	opts ...Option,
) *StreamPipeline {
	p := &StreamPipeline{
		engine:          engine,
		registry:        registry,
		sessions:        sessions,
		logger:          log,
		tracer:          otel.Tracer("ai-intent-chat-be/pipeline"),
		defaultTimezone: "Europe/Berlin",
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Engine exposes the classifier for read-only callers such as listings.
func (p *StreamPipeline) Engine() *intent.Engine {
	return p.engine
}

// Registry exposes the handler registry.
func (p *StreamPipeline) Registry() *chatbot.Registry {
	return p.registry
}

// Handle runs one turn against sess and yields the resulting events lazily.
// The session is mutated in place and persisted when the run finishes, also
// when the consumer stops early. The sequence ends with exactly one done or
// error event unless the consumer stops first.
func (p *StreamPipeline) Handle(ctx context.Context, req Request, sess *store.Session) iter.Seq[chatbot.Event] {
	return func(yield func(chatbot.Event) bool) {
		message := strings.TrimSpace(req.Message)
		if message == "" {
			yield(chatbot.Error(TextEmptyMessage))
			return
		}

		start := p.now()
		ctx, span := p.tracer.Start(ctx, "pipeline.Handle", trace.WithAttributes(
			attribute.String("session.id", sess.ID),
		))
		label := "none"
		defer func() {
			p.persist(ctx, sess)
			p.metrics.ObservePipeline(label, p.now().Sub(start).Seconds())
			span.End()
		}()

		sess.Merge(req.Context)
		if sess.String(store.MemoryTimezone) == "" && p.defaultTimezone != "" {
			sess.Memory[store.MemoryTimezone] = p.defaultTimezone
		}

		res := p.engine.Detect(ctx, message)
		p.metrics.RecordClassification(string(res.Status))
		span.SetAttributes(
			attribute.String("intent.status", string(res.Status)),
			attribute.Float64("intent.score", res.BestScore),
		)

		sess.Memory[store.MemoryLastMessage] = message
		if !res.Accepted() {
			delete(sess.Memory, store.MemoryLastIntent)
			yield(chatbot.Event{
				Type: chatbot.EventError,
				Text: TextNoIntent,
				Data: map[string]interface{}{"score": res.BestScore, "alternatives": res.Alternatives},
			})
			return
		}
		label = res.BestIntent
		sess.Memory[store.MemoryLastIntent] = res.BestIntent
		span.SetAttributes(attribute.String("intent.name", res.BestIntent))

		handler, ok := p.registry.Resolve(res.BestIntent)
		if !ok {
			yield(chatbot.Error(fmt.Sprintf("No model registered for intent '%s'", res.BestIntent)))
			return
		}

		sess.History = store.AppendHistory(sess.History, store.HistoryEntry{
			Timestamp: p.now(),
			Role:      store.RoleUser,
			Message:   message,
			Intent:    res.BestIntent,
		}, store.HistoryLimit)

		failure, stopped := p.forward(ctx, handler, message, sess, yield)
		if stopped {
			return
		}
		if failure != "" {
			span.SetStatus(codes.Error, failure)
			return
		}
		yield(chatbot.Done(map[string]string{"sessionId": sess.ID}))
	}
}

// forward streams the handler's events to yield. It returns the failure text
// when the run ended in an error event, and stopped when the consumer or the
// context ended the run.
func (p *StreamPipeline) forward(
	ctx context.Context,
	handler chatbot.Handler,
	message string,
	sess *store.Session,
	yield func(chatbot.Event) bool,
) (failure string, stopped bool) {
	snapshot := sess.Clone()
	assistantOpen := false
	inYield := false

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if inYield {
			panic(r)
		}
		failure = fmt.Sprint(r)
		p.logger.Error(module, "Handler panicked", map[string]interface{}{
			"session_id": sess.ID,
			"panic":      failure,
		})
		stopped = !yield(chatbot.Error(failure))
	}()

	emit := func(ev chatbot.Event) bool {
		inYield = true
		ok := yield(ev)
		inYield = false
		return ok
	}

	for ev, err := range handler.Stream(ctx, message, snapshot) {
		if err != nil {
			if ctx.Err() != nil {
				return "", true
			}
			p.logger.Warn(module, "Handler failed", map[string]interface{}{
				"session_id": sess.ID,
				"error":      err.Error(),
			})
			return err.Error(), !emit(chatbot.Error(err.Error()))
		}

		switch ev.Type {
		case chatbot.EventDone:
			continue
		case chatbot.EventError:
			return ev.Text, !emit(ev)
		case chatbot.EventChunk:
			p.recordAssistant(sess, ev.Text, &assistantOpen)
		}

		if !emit(ev) {
			return "", true
		}
	}
	if ctx.Err() != nil {
		return "", true
	}
	return "", false
}

// recordAssistant keeps a single assistant entry per run, created by the
// first chunk and extended by every later one.
func (p *StreamPipeline) recordAssistant(sess *store.Session, text string, open *bool) {
	if text == "" {
		return
	}
	if *open && len(sess.History) > 0 {
		last := &sess.History[len(sess.History)-1]
		last.Message = strings.TrimSpace(last.Message + " " + text)
		return
	}
	sess.History = store.AppendHistory(sess.History, store.HistoryEntry{
		Timestamp: p.now(),
		Role:      store.RoleAssistant,
		Message:   text,
	}, store.HistoryLimit)
	*open = true
}

func (p *StreamPipeline) persist(ctx context.Context, sess *store.Session) {
	if p.sessions == nil {
		return
	}
	if err := p.sessions.Save(context.WithoutCancel(ctx), sess); err != nil {
		p.metrics.RecordSessionSaveFailure()
		p.logger.Error(module, "Failed to save session", map[string]interface{}{
			"session_id": sess.ID,
			"error":      err.Error(),
		})
	}
}
