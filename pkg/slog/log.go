// Package slog is a simple logger with level printers that prepend a colorized
// level tag and append the code location of the call site, and a paired
// checker that logs and reports whether an error is non-nil.
package slog

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/gookit/color"
)

const (
	Off = iota
	Fatal
	Error
	Warn
	Info
	Debug
	Trace
)

func init() {
	switch strings.ToUpper(os.Getenv("CONNECTR_LOG")) {
	case "TRACE":
		SetLogLevel(Trace)
	case "DEBUG":
		SetLogLevel(Debug)
	case "INFO":
		SetLogLevel(Info)
	case "WARN":
		SetLogLevel(Warn)
	case "ERROR":
		SetLogLevel(Error)
	case "FATAL":
		SetLogLevel(Fatal)
	case "0", "OFF", "FALSE":
		SetLogLevel(Off)
	default:
		SetLogLevel(Info)
	}
}

type (
	// Ln prints lists of interfaces with spaces in between
	Ln func(a ...interface{})
	// F prints like fmt.Printf surrounded by log details
	F func(format string, a ...interface{})
	// S prints a spew.Sdump for an interface slice
	S func(a ...interface{})
	// C accepts a function so that the extra computation can be avoided if
	// it is not being viewed
	C func(closure func() string)
	// Chk prints if there is an error and returns true if so
	Chk func(e error) bool
	// Err constructs an error via fmt.Errorf, prints it, and returns it
	Err func(format string, a ...interface{}) error

	LevelPrinter struct {
		Ln
		F
		S
		C
		Chk
		Err
	}
	LevelSpec struct {
		ID        int
		Name      string
		Colorizer func(a ...interface{}) string
	}
)

var (
	currentLevel atomic.Int32

	// LevelSpecs specifies the id, string name and color-printing function
	LevelSpecs = []LevelSpec{
		{Off, "   ", color.Bit24(0, 0, 0, false).Sprint},
		{Fatal, "FTL", color.Bit24(128, 0, 0, false).Sprint},
		{Error, "ERR", color.Bit24(255, 0, 0, false).Sprint},
		{Warn, "WRN", color.Bit24(0, 255, 0, false).Sprint},
		{Info, "INF", color.Bit24(255, 255, 0, false).Sprint},
		{Debug, "DBG", color.Bit24(0, 125, 255, false).Sprint},
		{Trace, "TRC", color.Bit24(125, 0, 255, false).Sprint},
	}
)

// Log is a set of log printers for the various levels.
type Log struct {
	F, E, W, I, D, T LevelPrinter
}

// Check is the set of error checkers corresponding to the log levels.
type Check struct {
	F, E, W, I, D, T Chk
}

func SetLogLevel(l int) { currentLevel.Store(int32(l)) }

func GetLogLevel() (l int) { return int(currentLevel.Load()) }

// GetStd returns a logger writing to stderr, for package-level declaration.
func GetStd() (l *Log) {
	l, _ = New(os.Stderr)
	return
}

// New returns a Log and Check pair writing to the given writer.
func New(writer io.Writer) (l *Log, c *Check) {
	l = &Log{
		F: getPrinter(Fatal, writer),
		E: getPrinter(Error, writer),
		W: getPrinter(Warn, writer),
		I: getPrinter(Info, writer),
		D: getPrinter(Debug, writer),
		T: getPrinter(Trace, writer),
	}
	c = &Check{
		F: l.F.Chk,
		E: l.E.Chk,
		W: l.W.Chk,
		I: l.I.Chk,
		D: l.D.Chk,
		T: l.T.Chk,
	}
	return
}

func joinStrings(a ...any) (s string) {
	for i := range a {
		s += fmt.Sprint(a[i])
		if i < len(a)-1 {
			s += " "
		}
	}
	return
}

// GetLoc returns the file:line of the caller at the given stack height.
func GetLoc(skip int) (output string) {
	_, file, line, _ := runtime.Caller(skip)
	output = color.Bit24(0, 128, 255, false).Sprint(file, ":", line)
	return
}

func emit(l int32, writer io.Writer, text string, loc string) {
	if int(l) > GetLogLevel() {
		return
	}
	fmt.Fprintf(writer,
		"%s %s %s %s\n",
		timeStamp(),
		LevelSpecs[l].Colorizer(LevelSpecs[l].Name),
		text,
		loc,
	)
}

func timeStamp() string {
	return time.Now().Format("15:04:05.000000")
}

func getPrinter(l int32, writer io.Writer) LevelPrinter {
	return LevelPrinter{
		Ln: func(a ...interface{}) {
			emit(l, writer, joinStrings(a...), GetLoc(2))
		},
		F: func(format string, a ...interface{}) {
			emit(l, writer, fmt.Sprintf(format, a...), GetLoc(2))
		},
		S: func(a ...interface{}) {
			emit(l, writer, spew.Sdump(a...), GetLoc(2))
		},
		C: func(closure func() string) {
			if int(l) > GetLogLevel() {
				return
			}
			emit(l, writer, closure(), GetLoc(2))
		},
		Chk: func(e error) bool {
			if e != nil {
				emit(l, writer, e.Error(), GetLoc(2))
				return true
			}
			return false
		},
		Err: func(format string, a ...interface{}) error {
			emit(l, writer, fmt.Sprintf(format, a...), GetLoc(2))
			return fmt.Errorf(format, a...)
		},
	}
}
