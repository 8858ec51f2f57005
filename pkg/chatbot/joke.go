package chatbot

import (
	"context"
	"iter"
	"math/rand/v2"
	"time"

	"ai-intent-chat-be/pkg/store"
)

var jokes = []string{
	"Why do Java developers wear glasses? Because they don't C#!",
	"I told my computer I needed a break... and it froze.",
	"Why did the web developer leave the restaurant? Because of the bad table layout.",
	"There are 10 types of people in the world: those who understand binary and those who don't.",
	"Debugging: Being the detective in a crime movie where you are also the murderer.",
	"Why did the AI cross the road? To optimize the chicken's path to the other side.",
	"I just got fired from the keyboard factory. They said I wasn't putting in enough shifts.",
	"The cloud is just someone else's computer ☁️",
	"Never trust an atom, they make up everything!",
	"I would tell you a UDP joke, but you might not get it.",
}

// Joke tells a short clean joke.
type Joke struct {
	delay time.Duration
	pick  func(n int) int
}

// NewJoke creates the handler. pick chooses an index in [0, n); nil means random.
func NewJoke(delay time.Duration, pick func(n int) int) *Joke {
	if pick == nil {
		pick = rand.IntN
	}
	return &Joke{delay: delay, pick: pick}
}

func (h *Joke) Respond(context.Context, string, *store.Session) (string, error) {
	return jokes[h.pick(len(jokes))], nil
}

func (h *Joke) Stream(ctx context.Context, message string, sess *store.Session) iter.Seq2[Event, error] {
	return once(ctx, h.delay, func() (string, error) {
		return h.Respond(ctx, message, sess)
	})
}
