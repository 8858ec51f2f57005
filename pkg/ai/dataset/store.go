// Package dataset loads the labeled example phrases that the intent
// classifier scores messages against.
//
// Files live under {baseDir}/{locale}/intent-{name}.json (or .yaml/.yml) and
// hold either an object {"intent", "examples", "description"} or a bare list
// of example phrases. When a locale has no files the default locale is used.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ai-intent-chat-be/pkg/apperror"

	"gopkg.in/yaml.v3"
)

const filePrefix = "intent-"

// ExampleSet is the labeled example list of one intent.
type ExampleSet struct {
	Intent      string   `json:"intent" yaml:"intent"`
	Examples    []string `json:"examples" yaml:"examples"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// Dataset is every example set of one locale.
type Dataset struct {
	Locale string
	Sets   []ExampleSet
}

// Intents returns the intent names in load order.
func (d *Dataset) Intents() []string {
	out := make([]string, len(d.Sets))
	for i, s := range d.Sets {
		out[i] = s.Intent
	}
	return out
}

// Find returns the set for intent.
func (d *Dataset) Find(intent string) (*ExampleSet, bool) {
	for i := range d.Sets {
		if d.Sets[i].Intent == intent {
			return &d.Sets[i], true
		}
	}
	return nil, false
}

// Store reads and writes dataset files on disk.
type Store struct {
	baseDir       string
	defaultLocale string
}

// NewStore creates a store rooted at baseDir.
func NewStore(baseDir, defaultLocale string) *Store {
	return &Store{baseDir: baseDir, defaultLocale: defaultLocale}
}

// Load reads the dataset of locale (or the default locale) and merges the
// alias phrases of registered handlers into the matching intents.
func (s *Store) Load(locale string, aliases map[string][]string) (*Dataset, error) {
	ds, err := s.LoadFiles(locale)
	if err != nil {
		return nil, err
	}
	ds.Sets = Enrich(ds.Sets, aliases)

	for _, set := range ds.Sets {
		if len(set.Examples) == 0 {
			return nil, apperror.New(apperror.KindInvalidDatasetFormat, "dataset.Load",
				fmt.Sprintf("intent %q has no examples", set.Intent))
		}
	}
	return ds, nil
}

// LoadFiles reads the dataset files only, without alias enrichment.
func (s *Store) LoadFiles(locale string) (*Dataset, error) {
	files, err := s.files(locale)
	if err != nil {
		return nil, err
	}
	used := locale
	if len(files) == 0 && locale != s.defaultLocale {
		files, err = s.files(s.defaultLocale)
		if err != nil {
			return nil, err
		}
		used = s.defaultLocale
	}
	if len(files) == 0 {
		return nil, apperror.New(apperror.KindDatasetNotFound, "dataset.Load",
			fmt.Sprintf("no dataset files for locale %q or fallback %q", locale, s.defaultLocale))
	}

	ds := &Dataset{Locale: used}
	seen := make(map[string]bool)
	for _, file := range files {
		set, err := readFile(file)
		if err != nil {
			return nil, err
		}
		if seen[set.Intent] {
			return nil, apperror.New(apperror.KindInvalidDatasetFormat, "dataset.Load",
				fmt.Sprintf("intent %q declared twice (%s)", set.Intent, filepath.Base(file)))
		}
		seen[set.Intent] = true
		set.Examples = dedupe(set.Examples)
		ds.Sets = append(ds.Sets, set)
	}
	return ds, nil
}

// Save writes set as {baseDir}/{locale}/intent-{name}.json, replacing any
// existing file for that intent.
func (s *Store) Save(locale string, set ExampleSet) error {
	dir := filepath.Join(s.baseDir, locale)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create dataset dir: %w", err)
	}
	data, err := json.MarshalIndent(set, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal intent %s: %w", set.Intent, err)
	}
	path := filepath.Join(dir, filePrefix+set.Intent+".json")
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func (s *Store) files(locale string) ([]string, error) {
	if locale == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(filepath.Join(s.baseDir, locale))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read dataset dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), filePrefix) {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".json", ".yaml", ".yml":
			files = append(files, filepath.Join(s.baseDir, locale, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// fileFormat distinguishes a missing examples key from an empty list.
type fileFormat struct {
	Intent      string    `json:"intent" yaml:"intent"`
	Examples    *[]string `json:"examples" yaml:"examples"`
	Description string    `json:"description" yaml:"description"`
}

func readFile(path string) (ExampleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ExampleSet{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	unmarshal := json.Unmarshal
	if ext := filepath.Ext(path); ext == ".yaml" || ext == ".yml" {
		unmarshal = yaml.Unmarshal
	}

	name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), filePrefix), filepath.Ext(path))
	invalid := func(reason string) error {
		return apperror.New(apperror.KindInvalidDatasetFormat, "dataset.Load",
			fmt.Sprintf("invalid dataset format in %s: %s", filepath.Base(path), reason))
	}

	var obj fileFormat
	if err := unmarshal(data, &obj); err == nil {
		if obj.Examples == nil {
			return ExampleSet{}, invalid("missing examples list")
		}
		intent := strings.TrimSpace(obj.Intent)
		if intent == "" {
			intent = name
		}
		return ExampleSet{Intent: intent, Examples: *obj.Examples, Description: obj.Description}, nil
	}

	var list []string
	if err := unmarshal(data, &list); err == nil {
		return ExampleSet{Intent: name, Examples: list}, nil
	}
	return ExampleSet{}, invalid("expected an object with examples or a list of phrases")
}

// Enrich merges alias phrases into the matching example sets. Intents known
// only through aliases are appended in name order so loading is deterministic.
func Enrich(sets []ExampleSet, aliases map[string][]string) []ExampleSet {
	out := make([]ExampleSet, len(sets))
	index := make(map[string]int, len(sets))
	for i, set := range sets {
		set.Examples = append([]string(nil), set.Examples...)
		out[i] = set
		index[set.Intent] = i
	}

	names := make([]string, 0, len(aliases))
	for intent := range aliases {
		names = append(names, intent)
	}
	sort.Strings(names)

	for _, intent := range names {
		i, ok := index[intent]
		if !ok {
			out = append(out, ExampleSet{Intent: intent})
			i = len(out) - 1
			index[intent] = i
		}
		out[i].Examples = dedupe(append(out[i].Examples, aliases[intent]...))
	}
	return out
}

// dedupe drops blank and case-insensitive duplicate phrases, keeping the
// first spelling seen.
func dedupe(phrases []string) []string {
	seen := make(map[string]bool, len(phrases))
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		key := strings.ToLower(p)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}
