package output

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/ALT-F4-LLC/haul/internal/render"
)

// Writer is the single output channel of a haul command. JSON mode puts one
// envelope on Stdout and nothing else; human mode prints results to Stdout
// and notices to Stderr.
type Writer struct {
	JSONMode  bool
	QuietMode bool
	Stdout    io.Writer
	Stderr    io.Writer
}

func New(jsonMode, quietMode bool) *Writer {
	return &Writer{
		JSONMode:  jsonMode,
		QuietMode: quietMode,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	}
}

// Success writes data in a success envelope, or message in human mode.
func (w *Writer) Success(data any, message string) {
	if w.JSONMode {
		writeJSONSuccess(w.Stdout, data, message)
		return
	}
	writeHumanSuccess(w.Stdout, message)
}

// Result is Success for commands with a one-line headline and a longer
// breakdown (kind tables, action summaries). The breakdown is only built in
// human mode and is dropped in quiet mode.
func (w *Writer) Result(data any, headline string, detail func() string) {
	if w.JSONMode {
		writeJSONSuccess(w.Stdout, data, headline)
		return
	}
	msg := headline
	if detail != nil && !w.QuietMode {
		if d := detail(); d != "" {
			if msg != "" {
				msg += "\n"
			}
			msg += d
		}
	}
	writeHumanSuccess(w.Stdout, msg)
}

// Error writes err and returns the exit code for code.
func (w *Writer) Error(err error, code ErrorCode) int {
	if w.JSONMode {
		writeJSONError(w.Stdout, err, code)
	} else {
		writeHumanError(w.Stderr, err)
	}
	return ExitCodeForError(code)
}

// Fail renders err with the code CodeFor assigns to it.
func (w *Writer) Fail(err error) int {
	return w.Error(err, CodeFor(err))
}

type noticeStyle struct {
	icon  string
	label string
	color lipgloss.Color
	bold  bool
}

var (
	infoNotice = noticeStyle{icon: "ℹ", color: lipgloss.Color("8")}
	warnNotice = noticeStyle{icon: "⚠", label: "Warning:", color: lipgloss.Color("3"), bold: true}
)

func (w *Writer) notice(s noticeStyle, msg string) {
	if !render.ColorsEnabled() {
		if s.label != "" {
			msg = s.label + " " + msg
		}
		fmt.Fprintln(w.Stderr, msg)
		return
	}
	style := lipgloss.NewStyle().Foreground(s.color).Bold(s.bold)
	parts := style.Render(s.icon)
	if s.label != "" {
		parts += " " + style.Render(s.label)
		fmt.Fprintf(w.Stderr, "%s %s\n", parts, msg)
		return
	}
	fmt.Fprintf(w.Stderr, "%s %s\n", parts, style.Render(msg))
}

// Info writes progress to Stderr. Quiet and JSON modes drop it.
func (w *Writer) Info(format string, args ...any) {
	if w.QuietMode || w.JSONMode {
		return
	}
	w.notice(infoNotice, fmt.Sprintf(format, args...))
}

// Warn writes a warning to Stderr. Only JSON mode drops it.
func (w *Writer) Warn(format string, args ...any) {
	if w.JSONMode {
		return
	}
	w.notice(warnNotice, fmt.Sprintf(format, args...))
}
