// Package intent scores a message against labeled example phrases using
// cosine similarity over word-frequency vectors.
package intent

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"ai-intent-chat-be/pkg/ai/dataset"
	"ai-intent-chat-be/pkg/unclassified"
)

const (
	// MinSimilarity is the floor an example must exceed to count at all.
	MinSimilarity = 0.2
	// AcceptThreshold is the best score needed for a confident match.
	AcceptThreshold = 0.4

	epsilon = 1e-8
)

// Status of a classification
type Status string

const (
	StatusAccepted     Status = "accepted"
	StatusUncertain    Status = "uncertain"
	StatusUnclassified Status = "unclassified"
)

// Alternative is one retained intent with its share of the total score.
type Alternative struct {
	Intent string  `json:"intent"`
	Score  float64 `json:"score"`
}

// Result of classifying one message. BestIntent is empty unless Status is
// StatusAccepted.
type Result struct {
	BestIntent   string        `json:"intent,omitempty"`
	BestScore    float64       `json:"score"`
	Alternatives []Alternative `json:"alternatives"`
	Status       Status        `json:"status"`
}

// Accepted reports whether a confident intent was found.
func (r Result) Accepted() bool {
	return r.Status == StatusAccepted
}

// Classify scores message against every example set. It is a pure function;
// ties keep the order of sets.
func Classify(message string, sets []dataset.ExampleSet) Result {
	msgVec := Vectorize(strings.ToLower(strings.TrimSpace(message)))

	type scored struct {
		intent string
		score  float64
	}
	var scores []scored
	for _, set := range sets {
		best := 0.0
		for _, example := range set.Examples {
			sim := cosine(msgVec, Vectorize(strings.ToLower(example)))
			if sim > MinSimilarity && sim > best {
				best = sim
			}
		}
		if best > 0 {
			scores = append(scores, scored{set.Intent, best})
		}
	}

	if len(scores) == 0 {
		return Result{Status: StatusUnclassified, Alternatives: []Alternative{}}
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	sum := 0.0
	for _, s := range scores {
		sum += s.score
	}
	alternatives := make([]Alternative, len(scores))
	for i, s := range scores {
		alternatives[i] = Alternative{Intent: s.intent, Score: s.score / sum}
	}

	res := Result{
		BestScore:    scores[0].score,
		Alternatives: alternatives,
		Status:       StatusUncertain,
	}
	if res.BestScore >= AcceptThreshold {
		res.BestIntent = scores[0].intent
		res.Status = StatusAccepted
	}
	return res
}

// Vectorize builds a word-frequency vector from the letter and number runs of
// text. Every other character is dropped before splitting on whitespace.
func Vectorize(text string) map[string]int {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, text)

	vec := make(map[string]int)
	for _, w := range strings.Fields(cleaned) {
		vec[w]++
	}
	return vec
}

// Similarity is the cosine similarity of the word vectors of a and b.
func Similarity(a, b string) float64 {
	return cosine(Vectorize(a), Vectorize(b))
}

func cosine(a, b map[string]int) float64 {
	var dot, normA, normB float64
	for w, c := range a {
		dot += float64(c * b[w])
		normA += float64(c * c)
	}
	for _, c := range b {
		normB += float64(c * c)
	}
	return dot / (math.Sqrt(normA)*math.Sqrt(normB) + epsilon)
}

// Engine classifies against a loaded dataset and records every message it
// could not place with confidence.
type Engine struct {
	dataset *dataset.Dataset
	sink    unclassified.Sink
	now     func() time.Time
	onError func(error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the timestamp source of logged records.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithErrorHandler receives sink failures; logging never fails classification.
func WithErrorHandler(fn func(error)) Option {
	return func(e *Engine) { e.onError = fn }
}

// NewEngine creates an engine. sink may be nil.
func NewEngine(ds *dataset.Dataset, sink unclassified.Sink, opts ...Option) *Engine {
	e := &Engine{dataset: ds, sink: sink, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Locale of the loaded dataset.
func (e *Engine) Locale() string {
	return e.dataset.Locale
}

// Dataset returns the loaded dataset.
func (e *Engine) Dataset() *dataset.Dataset {
	return e.dataset
}

// Detect classifies message and logs it when no confident intent was found.
func (e *Engine) Detect(ctx context.Context, message string) Result {
	res := Classify(message, e.dataset.Sets)
	if res.Accepted() || e.sink == nil {
		return res
	}
	err := e.sink.Log(ctx, unclassified.Record{
		Message:   strings.ToLower(strings.TrimSpace(message)),
		Score:     res.BestScore,
		Locale:    e.dataset.Locale,
		Timestamp: e.now(),
	})
	if err != nil && e.onError != nil {
		e.onError(err)
	}
	return res
}
