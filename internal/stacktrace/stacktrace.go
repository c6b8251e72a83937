package stacktrace

import (
	"strconv"
	"strings"

	"github.com/ThatSaxyDev/telling-logger-go/internal/domain"
)

// Parse extracts structured frames from raw goroutine stack text as produced
// by runtime/debug.Stack. It is a pure function: unparseable lines are
// skipped and never produce an error. A frame is emitted only when file,
// line and method could all be determined.
func Parse(raw string) []domain.StackFrame {
	lines := strings.Split(raw, "\n")
	var frames []domain.StackFrame

	for i := 0; i < len(lines)-1; i++ {
		fn := strings.TrimSpace(lines[i])
		loc := lines[i+1]
		if fn == "" || strings.HasPrefix(fn, "goroutine ") {
			continue
		}
		// Location lines are tab-indented "file.go:123 +0x45".
		if !strings.HasPrefix(loc, "\t") {
			continue
		}

		file, line, ok := parseLocation(strings.TrimSpace(loc))
		if !ok {
			continue
		}

		class, method := splitFunction(fn)
		if method == "" {
			continue
		}

		frames = append(frames, domain.StackFrame{
			File:   file,
			Line:   line,
			Method: method,
			Class:  class,
		})
		i++ // consume the location line
	}

	return frames
}

// parseLocation splits "path/file.go:123 +0x45" into path and line number.
func parseLocation(loc string) (string, int, bool) {
	if idx := strings.IndexByte(loc, ' '); idx >= 0 {
		loc = loc[:idx]
	}
	colon := strings.LastIndexByte(loc, ':')
	if colon <= 0 {
		return "", 0, false
	}
	line, err := strconv.Atoi(loc[colon+1:])
	if err != nil {
		return "", 0, false
	}
	return loc[:colon], line, true
}

// splitFunction separates "pkg/path.(*Type).Method(...)" into the package
// qualifier and the bare method name.
func splitFunction(fn string) (class, method string) {
	if idx := strings.IndexByte(fn, '('); idx >= 0 && strings.HasSuffix(fn, ")") {
		// Trim the argument list, keeping receiver parentheses intact.
		if open := strings.LastIndexByte(fn, '('); open > 0 {
			fn = fn[:open]
		}
	}
	dot := strings.LastIndexByte(fn, '.')
	if dot < 0 {
		return "", fn
	}
	return fn[:dot], fn[dot+1:]
}
