package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

var (
	mu        sync.Mutex
	log       *WriteDaily
	errorsLog *WriteDaily
	eventsLog *WriteDaily
	onLog     func(s string)

	// Output is where Logf() prints, in addition to log files.
	// nil disables printing.
	Output io.Writer = os.Stdout

	// if true, Verbosef() will log messages
	Verbose bool
)

type Config struct {
	// directory where log files are stored. Each log type
	// (regular, errors, events) gets its own subdirectory.
	// Empty means no log files.
	Dir string
	// called for every Logf() call
	OnLog func(s string)
}

// Init configures log files and callbacks. Without Init(), Logf()
// only prints to Output and events are dropped.
func Init(config *Config) {
	mu.Lock()
	defer mu.Unlock()

	onLog = config.OnLog
	if config.Dir == "" {
		return
	}
	dir := config.Dir
	log = NewWriteDaily(filepath.Join(dir, "log"))
	errorsLog = NewWriteDaily(filepath.Join(dir, "errors"))
	eventsLog = NewWriteDaily(filepath.Join(dir, "events"))
}

// Close closes log files. It's safe to log after Close().
func Close() {
	mu.Lock()
	defer mu.Unlock()

	for _, w := range []**WriteDaily{&log, &errorsLog, &eventsLog} {
		_ = (*w).Close()
		*w = nil
	}
	onLog = nil
}

func getLogs() (*WriteDaily, *WriteDaily, func(string)) {
	mu.Lock()
	defer mu.Unlock()
	return log, errorsLog, onLog
}

func Logf(s string, args ...any) {
	if len(args) > 0 {
		s = fmt.Sprintf(s, args...)
	}
	if Output != nil {
		fmt.Fprint(Output, s)
	}
	w, _, cb := getLogs()
	_ = w.WriteString(s)
	if cb != nil {
		cb(s)
	}
}

func Verbosef(format string, args ...any) {
	if !Verbose {
		return
	}
	Logf(format, args...)
}

func GetCallstackFrames(skip int) []string {
	var callers [32]uintptr
	n := runtime.Callers(skip+1, callers[:])
	frames := runtime.CallersFrames(callers[:n])
	var cs []string
	for {
		frame, more := frames.Next()
		cs = append(cs, frame.File+":"+strconv.Itoa(frame.Line))
		if !more {
			break
		}
	}
	return cs
}

func GetCallstack(skip int) string {
	frames := GetCallstackFrames(skip + 1)
	return strings.Join(frames, "\n")
}

// Errorf logs an error message along with the callstack.
// It also goes to the errors log.
func Errorf(s string, args ...any) {
	if len(args) > 0 {
		s = fmt.Sprintf(s, args...)
	}
	cs := GetCallstack(2)
	s = fmt.Sprintf("%s\n%s\n", s, cs)
	Logf("%s", s)
	_, errs, _ := getLogs()
	_ = errs.WriteString(s)
}

// if err != nil, log and return true
// IfErrf(err) => logs err.Error()
// IfErrf(err, "error is: %v", err) => logs message formatted
func IfErrf(err error, a ...any) bool {
	if err == nil {
		return false
	}
	if len(a) == 0 {
		Errorf("%s", err.Error())
		return true
	}
	s, ok := a[0].(string)
	if !ok {
		s = fmt.Sprintf("%s", a[0])
	}
	if len(a) > 1 {
		s = fmt.Sprintf(s, a[1:]...)
	}
	Errorf("%s", s)
	return true
}
