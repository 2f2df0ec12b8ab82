// Package events writes structured diagnostic events. Events always go to
// stderr in the CLI; stdout belongs to the stdio transport.
package events

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

type Emitter interface {
	Emit(level, event string, data map[string]interface{})
}

// Func adapts a plain function to Emitter.
type Func func(level, event string, data map[string]interface{})

func (f Func) Emit(level, event string, data map[string]interface{}) {
	if f != nil {
		f(level, event, data)
	}
}

// Discard drops every event.
var Discard Emitter = Func(func(string, string, map[string]interface{}) {})

// NDJSON writes one {ts, level, event, data} object per line.
type NDJSON struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
	now     func() time.Time
}

func NewNDJSON(w io.Writer, verbose bool) *NDJSON {
	return &NDJSON{w: w, verbose: verbose, now: time.Now}
}

func (e *NDJSON) Emit(level, event string, data map[string]interface{}) {
	if e == nil || e.w == nil || (level == LevelDebug && !e.verbose) {
		return
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	out := map[string]interface{}{
		"ts":    e.now().UTC().Format(time.RFC3339Nano),
		"level": level,
		"event": event,
		"data":  data,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	_ = json.NewEncoder(e.w).Encode(out)
}

// Text writes human-readable lines through a log.Logger.
type Text struct {
	logger  *log.Logger
	verbose bool
}

func NewText(w io.Writer, verbose bool) *Text {
	return &Text{logger: log.New(w, "", log.LstdFlags), verbose: verbose}
}

func (e *Text) Emit(level, event string, data map[string]interface{}) {
	if e == nil || e.logger == nil || (level == LevelDebug && !e.verbose) {
		return
	}
	e.logger.Printf("%s %s%s", strings.ToUpper(level), event, formatFields(data))
}

func formatFields(data map[string]interface{}) string {
	if len(data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		switch v := data[k].(type) {
		case string:
			if strings.ContainsAny(v, " \t\n\"=") {
				b.WriteString(fmt.Sprintf("%q", v))
			} else {
				b.WriteString(v)
			}
		default:
			b.WriteString(fmt.Sprint(v))
		}
	}
	return b.String()
}

// New picks the NDJSON or text emitter by format name ("json" or "text").
func New(format string, w io.Writer, verbose bool) Emitter {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json", "ndjson":
		return NewNDJSON(w, verbose)
	default:
		return NewText(w, verbose)
	}
}

// Or returns e, or Discard when e is nil.
func Or(e Emitter) Emitter {
	if e == nil {
		return Discard
	}
	return e
}
