package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/go-logr/logr"
)

var (
	infoColor  = color.New(color.FgGreen).SprintFunc()
	debugColor = color.New(color.FgCyan).SprintFunc()
	traceColor = color.New(color.FgYellow).SprintFunc()
	errorColor = color.New(color.FgRed).SprintFunc()
)

// TextSink implements logr.LogSink with colored, human-readable output.
// It is an alternative to the funcr sink the udfcheck and udfcreate
// commands wire for -v/-vv; library callers get the discarding
// Default() logger instead.
type TextSink struct {
	writer       io.Writer
	minVerbosity int
	name         string
	keyValues    []interface{}
	mutex        sync.Mutex
	callDepth    int
}

// NewTextSink builds a sink writing to writer (os.Stdout if nil) that
// only emits messages at or below minVerbosity.
func NewTextSink(writer io.Writer, minVerbosity int) *TextSink {
	if writer == nil {
		writer = os.Stdout
	}
	return &TextSink{writer: writer, minVerbosity: minVerbosity}
}

func (s *TextSink) Init(info logr.RuntimeInfo) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.callDepth = info.CallDepth
}

func (s *TextSink) Enabled(level int) bool {
	return level <= s.minVerbosity
}

func (s *TextSink) Info(level int, msg string, keysAndValues ...interface{}) {
	if !s.Enabled(level) {
		return
	}
	s.log(false, level, msg, keysAndValues...)
}

func (s *TextSink) Error(err error, msg string, keysAndValues ...interface{}) {
	all := append(append([]interface{}{}, keysAndValues...), "error", err)
	s.log(true, 0, msg, all...)
}

func (s *TextSink) WithValues(keysAndValues ...interface{}) logr.LogSink {
	merged := append(append([]interface{}{}, s.keyValues...), keysAndValues...)
	return &TextSink{writer: s.writer, minVerbosity: s.minVerbosity, name: s.name, keyValues: merged}
}

func (s *TextSink) WithName(name string) logr.LogSink {
	newName := name
	if s.name != "" {
		newName = fmt.Sprintf("%s.%s", s.name, name)
	}
	return &TextSink{writer: s.writer, minVerbosity: s.minVerbosity, name: newName, keyValues: append([]interface{}{}, s.keyValues...)}
}

func (s *TextSink) V(level int) logr.LogSink {
	return &TextSink{writer: s.writer, minVerbosity: s.minVerbosity, name: s.name, keyValues: append([]interface{}{}, s.keyValues...)}
}

func (s *TextSink) log(isError bool, level int, msg string, keysAndValues ...interface{}) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var label string
	if isError {
		label = errorColor("[ERROR]") + " "
	} else {
		switch level {
		case LevelInfo:
			label = infoColor("[INFO]") + " "
		case LevelDebug:
			label = debugColor("[DEBUG]") + " "
		case LevelTrace:
			label = traceColor("[TRACE]") + " "
		default:
			label = fmt.Sprintf("[LEVEL %d] ", level)
		}
	}

	fullMsg := msg
	if s.name != "" {
		fullMsg = fmt.Sprintf("[%s] %s", s.name, msg)
	}
	fmt.Fprintln(s.writer, label+fullMsg)

	for i := 0; i < len(keysAndValues)-1; i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprintf("key%d", i/2)
		}
		fmt.Fprintf(s.writer, "  %s: %v\n", key, keysAndValues[i+1])
	}
}

// NewTextLogger returns a *Logger backed by a TextSink at the given
// verbosity (0 = info-only, 1 = debug, 2 = trace).
func NewTextLogger(writer io.Writer, verbosity int) *Logger {
	return NewLogger(logr.New(NewTextSink(writer, verbosity)))
}
