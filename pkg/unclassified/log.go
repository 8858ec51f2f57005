// Package unclassified records messages the classifier could not place with
// confidence, so they can be reassigned to intents later.
package unclassified

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

var header = []string{"message", "score", "timestamp"}

// localePattern admits names like en_GB or pt-BR; a locale becomes part of a
// file name.
var localePattern = regexp.MustCompile(`^[A-Za-z]{2,8}([_-][A-Za-z0-9]{1,8})*$`)

// ErrInvalidLocale is returned for a locale that cannot name a log file.
var ErrInvalidLocale = errors.New("unclassified: invalid locale")

// ValidLocale reports whether locale is safe to use as a log file name.
func ValidLocale(locale string) bool {
	return localePattern.MatchString(locale)
}

// Record is one row of the log.
type Record struct {
	Message   string    `json:"message"`
	Score     float64   `json:"score"`
	Locale    string    `json:"locale"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives unclassified or uncertain messages.
type Sink interface {
	Log(ctx context.Context, rec Record) error
}

// FileLog appends rows to {dir}/{locale}.csv.
type FileLog struct {
	dir string
	mu  sync.Mutex
}

// NewFileLog creates a log rooted at dir. The directory is created lazily.
func NewFileLog(dir string) *FileLog {
	return &FileLog{dir: dir}
}

// Path returns the log file of locale.
func (l *FileLog) Path(locale string) string {
	return filepath.Join(l.dir, locale+".csv")
}

// Log appends rec. Blank messages are ignored.
func (l *FileLog) Log(_ context.Context, rec Record) error {
	msg := strings.TrimSpace(rec.Message)
	if msg == "" {
		return nil
	}
	if !ValidLocale(rec.Locale) {
		return fmt.Errorf("%w: %q", ErrInvalidLocale, rec.Locale)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create unclassified dir: %w", err)
	}
	f, err := os.OpenFile(l.Path(rec.Locale), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open unclassified log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			return err
		}
	}
	if err := w.Write([]string{
		msg,
		strconv.FormatFloat(math.Round(rec.Score*10000)/10000, 'f', -1, 64),
		rec.Timestamp.Format(time.RFC3339),
	}); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// Read returns every row logged for locale. A missing file yields no rows.
func (l *FileLog) Read(locale string) ([]Record, error) {
	if !ValidLocale(locale) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLocale, locale)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.Path(locale))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var out []Record
	first := true
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse unclassified log: %w", err)
		}
		if first {
			first = false
			if len(row) > 0 && strings.TrimPrefix(row[0], "\ufeff") == header[0] {
				continue
			}
		}
		rec := Record{Locale: locale}
		if len(row) > 0 {
			rec.Message = row[0]
		}
		if len(row) > 1 {
			rec.Score, _ = strconv.ParseFloat(row[1], 64)
		}
		if len(row) > 2 {
			rec.Timestamp, _ = time.Parse(time.RFC3339, row[2])
		}
		out = append(out, rec)
	}
	return out, nil
}

// Remove deletes the processed log of locale.
func (l *FileLog) Remove(locale string) error {
	if !ValidLocale(locale) {
		return fmt.Errorf("%w: %q", ErrInvalidLocale, locale)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	err := os.Remove(l.Path(locale))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// MultiSink fans a record out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Log(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Log(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
