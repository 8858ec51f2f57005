package chatbot

import "time"

// Options tunes the built-in handlers.
type Options struct {
	// WordDelay is the pause between streamed words.
	WordDelay time.Duration
	// ClockLookupDelay is the pause between the time handler's status and answer.
	ClockLookupDelay time.Duration
	AssistantName    string
	Now              func() time.Time
	PickJoke         func(n int) int
}

// DefaultOptions mirrors the production pacing.
func DefaultOptions() Options {
	return Options{
		WordDelay:        80 * time.Millisecond,
		ClockLookupDelay: clockLookupDelay,
		AssistantName:    DefaultAssistantName,
	}
}

// DefaultDefinitions declares the built-in intents.
func DefaultDefinitions(opts Options) []Definition {
	return []Definition{
		{
			Intent: "salutation",
			Aliases: []string{
				"hi", "hello", "hey", "hiya", "howdy", "yo", "good morning",
				"good afternoon", "good evening", "greetings", "salutations",
				"what's up", "hi there", "hello there", "hey there",
			},
			Description: "Generates a warm, personalized greeting for the user.",
			Handler:     NewSalutation(opts.WordDelay, opts.Now),
		},
		{
			Intent:      "joke",
			Aliases:     []string{"tell me a joke", "make me laugh", "funny", "humor", "another one"},
			Description: "Tells a short, clean joke to lighten the mood.",
			Handler:     NewJoke(opts.WordDelay, opts.PickJoke),
		},
		{
			Intent: "memory",
			Aliases: []string{
				"what was my last question", "do you remember", "what did i say",
				"recall last message", "remember what i said", "what did i ask",
				"can you remember", "what was my previous question", "what did we talk about",
			},
			Description: "Recalls the user's last messages or conversation history.",
			Handler:     NewMemory(opts.WordDelay),
		},
		{
			Intent:      "time",
			Aliases:     []string{"clock", "hour", "current time"},
			Description: "Tells the current time.",
			Handler:     NewClock(opts.ClockLookupDelay, opts.Now),
		},
		{
			Intent:      "weather",
			Aliases:     []string{"temperature", "forecast"},
			Description: "Gives a short weather report for the user's city.",
			Handler:     NewWeather(opts.WordDelay),
		},
		{
			Intent:      "identity",
			Aliases:     []string{"who are you", "your name", "identify yourself", "what is your name", "who am i talking to"},
			Description: "Introduces the AI and responds to questions about its identity.",
			Handler:     NewIdentity(opts.AssistantName, opts.WordDelay),
		},
	}
}

// NewDefaultRegistry registers every built-in handler.
func NewDefaultRegistry(opts Options) *Registry {
	r := NewRegistry()
	for _, def := range DefaultDefinitions(opts) {
		r.MustRegister(def)
	}
	return r
}
