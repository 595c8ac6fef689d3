// Package printer writes the CLI's human-facing messages. Errors carry a
// title, an explanation and numbered suggestions; the returned error holds
// only the title so cobra can exit non-zero without printing it twice.
package printer

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

var (
	mu     sync.Mutex
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// SetOutput redirects messages. Nil arguments restore the process streams.
func SetOutput(out, errOut io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	stdout, stderr = out, errOut
}

// DisableColor turns off ANSI colors, e.g. for NO_COLOR or non-terminal output.
func DisableColor() {
	color.NoColor = true
}

func streams() (io.Writer, io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	return stdout, stderr
}

// Success prints a green message prefixed with a checkmark.
func Success(format string, a ...any) {
	out, _ := streams()
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	green.Fprint(out, msg)
}

// Info prints a plain message.
func Info(format string, a ...any) {
	out, _ := streams()
	fmt.Fprintf(out, format, a...)
}

// Warning prints a yellow message to stderr.
func Warning(format string, a ...any) {
	_, errOut := streams()
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		msg = "⚠️  " + msg
	}
	yellow.Fprint(errOut, msg)
}

// Step prints a cyan progress line for multi-stage commands.
func Step(format string, a ...any) {
	out, _ := streams()
	cyan.Fprintf(out, "→ %s", fmt.Sprintf(format, a...))
}

// Field prints an indented "key: value" line.
func Field(key string, value any) {
	out, _ := streams()
	faint.Fprintf(out, "  %s: ", key)
	fmt.Fprintf(out, "%v\n", value)
}

// Error prints a formatted error to stderr and returns an error holding
// only the title.
func Error(title string, explanation string, suggestions []string) error {
	return ErrorWithContext(title, explanation, nil, suggestions)
}

// ErrorWithContext is Error with key/value details printed between the
// explanation and the suggestions. Keys are printed in sorted order.
func ErrorWithContext(title string, explanation string, context map[string]string, suggestions []string) error {
	_, errOut := streams()

	red.Fprintf(errOut, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(errOut, "%s\n", explanation)
	}

	if len(context) > 0 {
		keys := make([]string, 0, len(context))
		for k := range context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintln(errOut)
		for _, k := range keys {
			fmt.Fprintf(errOut, "  %s: %s\n", k, context[k])
		}
	}

	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(errOut, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(errOut, "\nEither:\n")
		for i, s := range suggestions {
			fmt.Fprintf(errOut, "  %d. %s\n", i+1, s)
		}
	}

	return fmt.Errorf("%s", title)
}
