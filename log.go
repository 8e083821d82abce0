package found

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Lvl is a log severity, ordered the way go-ethereum's log15-derived
// logger orders them: lower is more severe.
type Lvl int

const (
	LvlCrit Lvl = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
)

func (l Lvl) String() string {
	switch l {
	case LvlCrit:
		return "CRIT"
	case LvlError:
		return "ERROR"
	case LvlWarn:
		return "WARN"
	case LvlInfo:
		return "INFO"
	case LvlDebug:
		return "DEBUG"
	default:
		return "?"
	}
}

var levelColor = map[Lvl]int{
	LvlCrit:  35, // magenta
	LvlError: 31, // red
	LvlWarn:  33, // yellow
	LvlInfo:  32, // green
	LvlDebug: 36, // cyan
}

// Logger writes leveled, key-value-annotated lines, coloring the level
// tag when its output is a terminal (spec's ambient stack carries this
// the way the teacher's own log package does, via go-isatty/go-colorable
// rather than a bare log.Printf).
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	color  bool
	level  Lvl
	ctx    []interface{}
}

// Root is the package-level logger every store logs through by default.
var Root = NewLogger(os.Stderr)

// NewLogger wraps w, auto-detecting ANSI color support the way
// go-colorable/go-isatty do for a real terminal.
func NewLogger(w io.Writer) *Logger {
	color := false
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		w = colorable.NewColorable(f)
		color = true
	}
	return &Logger{out: w, color: color, level: LvlInfo}
}

// SetLevel sets the minimum severity that is actually written.
func (l *Logger) SetLevel(lvl Lvl) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = lvl
}

// With returns a derived Logger that prepends ctx to every subsequent
// call's key-value pairs, the way log15's Logger.New does.
func (l *Logger) With(ctx ...interface{}) *Logger {
	merged := make([]interface{}, 0, len(l.ctx)+len(ctx))
	merged = append(merged, l.ctx...)
	merged = append(merged, ctx...)
	return &Logger{out: l.out, color: l.color, level: l.level, ctx: merged}
}

func (l *Logger) log(lvl Lvl, msg string, ctx []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lvl > l.level {
		return
	}
	tag := lvl.String()
	if l.color {
		tag = fmt.Sprintf("\x1b[%dm%-5s\x1b[0m", levelColor[lvl], tag)
	}
	fmt.Fprintf(l.out, "%s [%s] %s", time.Now().Format("01-02|15:04:05.000"), tag, msg)
	all := append(append([]interface{}{}, l.ctx...), ctx...)
	for i := 0; i+1 < len(all); i += 2 {
		fmt.Fprintf(l.out, " %v=%v", all[i], all[i+1])
	}
	fmt.Fprintln(l.out)
}

func (l *Logger) Crit(msg string, ctx ...interface{})  { l.log(LvlCrit, msg, ctx) }
func (l *Logger) Error(msg string, ctx ...interface{}) { l.log(LvlError, msg, ctx) }
func (l *Logger) Warn(msg string, ctx ...interface{})  { l.log(LvlWarn, msg, ctx) }
func (l *Logger) Info(msg string, ctx ...interface{})  { l.log(LvlInfo, msg, ctx) }
func (l *Logger) Debug(msg string, ctx ...interface{}) { l.log(LvlDebug, msg, ctx) }
