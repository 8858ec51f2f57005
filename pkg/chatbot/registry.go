package chatbot

import (
	"fmt"
	"strings"
)

// Definition declares one intent and the handler that answers it.
type Definition struct {
	Intent      string   `json:"intent"`
	Aliases     []string `json:"aliases"`
	Description string   `json:"description,omitempty"`
	Handler     Handler  `json:"-"`
}

// Registry maps intent names and aliases to handlers. It is filled once at
// startup and read concurrently afterwards without locking.
type Registry struct {
	defs    []Definition
	byName  map[string]int
	byAlias map[string]int
}

func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]int),
		byAlias: make(map[string]int),
	}
}

// Register adds a handler under intent and its aliases.
func (r *Registry) Register(def Definition) error {
	name := strings.ToLower(strings.TrimSpace(def.Intent))
	if name == "" {
		return fmt.Errorf("intent name is required")
	}
	if def.Handler == nil {
		return fmt.Errorf("intent %q has no handler", name)
	}
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("intent %q already registered", name)
	}

	def.Intent = name
	def.Aliases = append([]string(nil), def.Aliases...)
	r.defs = append(r.defs, def)
	idx := len(r.defs) - 1
	r.byName[name] = idx
	for _, alias := range def.Aliases {
		key := strings.ToLower(strings.TrimSpace(alias))
		if key == "" {
			continue
		}
		if _, taken := r.byAlias[key]; !taken {
			r.byAlias[key] = idx
		}
	}
	return nil
}

// MustRegister panics on a registration error. Meant for startup wiring.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Resolve finds a handler by canonical intent name, then by alias.
func (r *Registry) Resolve(name string) (Handler, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if idx, ok := r.byName[key]; ok {
		return r.defs[idx].Handler, true
	}
	if idx, ok := r.byAlias[key]; ok {
		return r.defs[idx].Handler, true
	}
	return nil, false
}

// Aliases returns intent -> alias phrases for dataset enrichment.
func (r *Registry) Aliases() map[string][]string {
	out := make(map[string][]string, len(r.defs))
	for _, def := range r.defs {
		out[def.Intent] = append([]string(nil), def.Aliases...)
	}
	return out
}

// Definitions returns every registration in order.
func (r *Registry) Definitions() []Definition {
	return append([]Definition(nil), r.defs...)
}
