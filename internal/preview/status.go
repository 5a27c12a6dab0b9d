package preview

import (
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	ansiReset = "\x1b[0m"
	ansiGreen = "\x1b[32m"
	ansiRed   = "\x1b[31m"
)

// statusPrinter writes one user-facing line per conversion.
type statusPrinter struct {
	mu    sync.Mutex
	out   io.Writer
	color bool
	now   func() time.Time
}

func newStatusPrinter(out io.Writer, color bool) *statusPrinter {
	if out == nil {
		out = io.Discard
	}

	return &statusPrinter{out: out, color: color, now: time.Now}
}

func (p *statusPrinter) converted(trigger string, elapsed time.Duration) {
	p.line(trigger, p.paint(ansiGreen, "OK"), fmt.Sprintf("(%s)", elapsed.Round(time.Millisecond)))
}

func (p *statusPrinter) failed(trigger string, err error) {
	p.line(trigger, p.paint(ansiRed, "ERROR"), err.Error())
}

func (p *statusPrinter) line(trigger, state, detail string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "[%s] %s → %s %s\n", p.now().Format("15:04:05"), trigger, state, detail)
}

func (p *statusPrinter) notice(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *statusPrinter) paint(code, s string) string {
	if !p.color {
		return s
	}

	return code + s + ansiReset
}
