package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/sirupsen/logrus"
)

// PrettyFormatter renders "15:04:05 LEVEL message key=value" lines.
type PrettyFormatter struct {
	// DisableColors strips level and field colors.
	DisableColors bool
}

func (f *PrettyFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer

	b.WriteString(e.Time.Format(time.TimeOnly))
	b.WriteByte(' ')
	b.WriteString(f.colorizeLevel(e.Level))
	b.WriteByte(' ')
	b.WriteString(strings.TrimSuffix(e.Message, "\n"))

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(f.render(color.FgGray, k))
		fmt.Fprintf(&b, "=%v", e.Data[k])
	}
	b.WriteByte('\n')

	return b.Bytes(), nil
}

func (f *PrettyFormatter) colorizeLevel(level logrus.Level) string {
	var c color.Color
	var name string

	switch level {
	case logrus.TraceLevel, logrus.DebugLevel:
		c = color.FgBlue
		name = "DEBUG"
	case logrus.InfoLevel:
		c = color.FgGreen
		name = "INFO"
	case logrus.WarnLevel:
		c = color.FgYellow
		name = "WARN"
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		c = color.FgRed
		name = "ERROR"
	default:
		c = color.FgGray
		name = strings.ToUpper(level.String())
	}

	return f.render(c, fmt.Sprintf("%-5s", name))
}

func (f *PrettyFormatter) render(c color.Color, s string) string {
	if f.DisableColors {
		return s
	}
	return c.Render(s)
}

// New returns a logger writing pretty lines to out at the given level.
func New(out io.Writer, level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&PrettyFormatter{})
	l.SetLevel(ParseLevel(level))
	return l
}

func NewLogger() *logrus.Logger {
	return New(os.Stdout, "info")
}

// ParseLevel falls back to info for unknown names.
func ParseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
