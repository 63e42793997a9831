package errors

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/conneroisu/sitepipe/internal/logging"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Report is what a stage hands to a Reporter when a file fails.
type Report struct {
	Stage     string
	Path      string
	Message   string
	Err       error
	Timestamp time.Time
}

// Reporter receives per-file failures from pipeline stages. Implementations
// must never terminate the process.
type Reporter interface {
	Report(ctx context.Context, err error)
}

// NewReport converts err into a Report. Errors that are not StageErrors are
// attributed to the fallback stage.
func NewReport(fallbackStage string, err error) Report {
	r := Report{
		Stage:     fallbackStage,
		Message:   err.Error(),
		Err:       err,
		Timestamp: time.Now(),
	}
	if se, ok := AsStageError(err); ok {
		if se.Stage != "" {
			r.Stage = se.Stage
		}
		r.Path = se.Path
		r.Message = se.Message()
	}
	return r
}

// ConsoleReporter logs failures and rings the terminal bell.
type ConsoleReporter struct {
	logger logging.Logger
	bell   io.Writer
	title  cases.Caser
	mutex  sync.Mutex
}

// NewConsoleReporter creates a reporter writing the bell to bell (os.Stderr
// when nil).
func NewConsoleReporter(logger logging.Logger, bell io.Writer) *ConsoleReporter {
	if bell == nil {
		bell = os.Stderr
	}
	return &ConsoleReporter{
		logger: logger.WithComponent("errors"),
		bell:   bell,
		title:  cases.Title(language.English),
	}
}

// Report logs err with its stage and path and emits an audible alert.
func (r *ConsoleReporter) Report(ctx context.Context, err error) {
	if err == nil {
		return
	}
	report := NewReport("pipeline", err)

	// cases.Caser is not safe for concurrent use.
	r.mutex.Lock()
	title := r.title.String(report.Stage)
	r.mutex.Unlock()

	r.logger.Error(ctx, err, title+" failed",
		"stage", report.Stage,
		"path", report.Path,
		"message", report.Message,
	)
	_, _ = io.WriteString(r.bell, "\a")
}

// Collector records every report. It is safe for concurrent use.
type Collector struct {
	reports []Report
	next    Reporter
	mutex   sync.RWMutex
}

// NewCollector creates a collector that forwards to next when next is non-nil.
func NewCollector(next Reporter) *Collector {
	return &Collector{
		reports: make([]Report, 0),
		next:    next,
	}
}

// Report records err and forwards it.
func (c *Collector) Report(ctx context.Context, err error) {
	if err == nil {
		return
	}
	c.mutex.Lock()
	c.reports = append(c.reports, NewReport("pipeline", err))
	c.mutex.Unlock()

	if c.next != nil {
		c.next.Report(ctx, err)
	}
}

// Reports returns a copy of all collected reports.
func (c *Collector) Reports() []Report {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	result := make([]Report, len(c.reports))
	copy(result, c.reports)
	return result
}

// ByStage returns the reports of one stage.
func (c *Collector) ByStage(stage string) []Report {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	var out []Report
	for _, r := range c.reports {
		if r.Stage == stage {
			out = append(out, r)
		}
	}
	return out
}

// Count returns the number of collected reports.
func (c *Collector) Count() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.reports)
}

// Clear drops all collected reports.
func (c *Collector) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.reports = c.reports[:0]
}
