package soundscape

import (
	"errors"
	"fmt"
	"time"

	"github.com/cbegin/soundscape-go/internal/logger"
)

// Severity classifies a Diagnostic.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	// SeverityResolution marks an action skipped because its target could
	// not be located when it fired.
	SeverityResolution
	// SeverityResource marks a node that could not be instantiated and was
	// omitted or replaced by a fallback.
	SeverityResource
	// SeverityFatal marks an audio failure that stopped the engine.
	SeverityFatal
)

var severityNames = [...]string{"info", "warning", "resolution", "resource", "fatal"}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// Diagnostic is a runtime notice for the host.
type Diagnostic struct {
	Severity Severity
	Source   string // node, event or component the notice is about
	Message  string
	LoadID   string
	Time     time.Time
}

func (d Diagnostic) String() string {
	if d.Source == "" {
		return fmt.Sprintf("%s: %s", d.Severity, d.Message)
	}
	return fmt.Sprintf("%s: %s: %s", d.Severity, d.Source, d.Message)
}

// Watch returns a channel that receives diagnostics. The channel is
// buffered (cap 8); diagnostics are dropped while it is full. Only the most
// recent Watch channel receives them.
func (e *Engine) Watch() <-chan Diagnostic {
	ch := make(chan Diagnostic, 8)
	e.watchMu.Lock()
	e.watch = ch
	e.watchMu.Unlock()
	return ch
}

// emit logs d and offers it to the watcher. Control path only.
func (e *Engine) emit(sev Severity, source, loadID, msg string) {
	d := Diagnostic{Severity: sev, Source: source, Message: msg, LoadID: loadID, Time: time.Now()}
	fields := logger.Fields{"source": source, "load_id": loadID, "severity": sev.String()}
	switch sev {
	case SeverityInfo:
		logger.Info(d.Message, fields)
	case SeverityFatal:
		logger.Error("audio engine stopped", errors.New(msg), fields)
	default:
		logger.Warn(d.Message, fields)
	}

	e.watchMu.Lock()
	ch := e.watch
	e.watchMu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- d:
	default:
	}
}
