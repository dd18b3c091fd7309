package sanitize

import (
	"errors"
	"strings"

	"github.com/shelfline/flightrec/model"
)

const (
	maxStackBytes = 3000
	rawBodyDepth  = 3
)

// modulePrefix identifies this codebase's own stack frames. Frames from
// dependency code are filtered out of stored stacks.
const modulePrefix = "github.com/shelfline/flightrec"

// FormatError converts any error into the structured ErrorInfo shape stored
// alongside failed traces, steps, and details. It never fails: a nil error
// yields a well-formed "unknown error" record.
func FormatError(err error) model.ErrorInfo {
	if err == nil {
		return model.ErrorInfo{Message: "unknown error"}
	}

	info := model.ErrorInfo{Message: err.Error()}
	if info.Message == "" {
		info.Message = "unknown error"
	}

	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		info.Code = coded.ErrorCode()
	}
	var env *model.ErrorEnvelope
	if errors.As(err, &env) && info.Code == "" {
		info.Code = env.Code
	}

	var statused interface{ HTTPStatus() int }
	if errors.As(err, &statused) {
		info.HTTPStatus = statused.HTTPStatus()
	}

	var bodied interface{ ResponseBody() any }
	if errors.As(err, &bodied) {
		info.Raw = Sanitize(bodied.ResponseBody(), rawBodyDepth)
	}

	return info
}

// FormatPanic converts a recovered panic value and its captured stack into
// an ErrorInfo. Dependency and runtime frames are filtered so the stored
// stack points at this codebase's own code, and the total length is capped.
func FormatPanic(recovered any, stack []byte) model.ErrorInfo {
	info := model.ErrorInfo{Message: "unknown error"}
	switch v := recovered.(type) {
	case error:
		info = FormatError(v)
	case string:
		if v != "" {
			info.Message = v
		}
	default:
		if v != nil {
			info.Message = "panic: non-error value"
		}
	}
	info.Stack = FilterStack(string(stack))
	return info
}

// FilterStack keeps stack lines that reference this module's own packages
// (plus their tab-indented file location lines) and drops frames from
// dependencies and the runtime. The result is capped at maxStackBytes.
func FilterStack(stack string) string {
	if stack == "" {
		return ""
	}
	lines := strings.Split(stack, "\n")
	var kept []string
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if !strings.Contains(line, modulePrefix) {
			continue
		}
		kept = append(kept, line)
		// A function name line is followed by its file location line,
		// which carries a filesystem path rather than the module path.
		if !strings.HasPrefix(line, "\t") && i+1 < len(lines) && strings.HasPrefix(lines[i+1], "\t") {
			kept = append(kept, lines[i+1])
			i++
		}
	}
	filtered := strings.Join(kept, "\n")
	if filtered == "" {
		// Nothing matched (panic inside a dependency); keep the head of the
		// raw stack instead of losing it entirely.
		filtered = stack
	}
	if len(filtered) > maxStackBytes {
		filtered = filtered[:maxStackBytes] + stringSuffix
	}
	return filtered
}

// HTTPError is a minimal upstream-call error carrying the provider status
// code and a snapshot of the response body. Automations wrap failed outbound
// calls in this type so FormatError can recover provider context.
type HTTPError struct {
	Message string
	Status  int
	Code    string
	Body    any
}

// Error implements the error interface.
func (e *HTTPError) Error() string { return e.Message }

// HTTPStatus returns the upstream HTTP status code.
func (e *HTTPError) HTTPStatus() int { return e.Status }

// ErrorCode returns the provider error code, if any.
func (e *HTTPError) ErrorCode() string { return e.Code }

// ResponseBody returns the captured upstream response body.
func (e *HTTPError) ResponseBody() any { return e.Body }
