package logger

import (
	"bytes"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrettyFormatterLine(t *testing.T) {
	f := &PrettyFormatter{DisableColors: true}
	entry := &logrus.Entry{
		Time:    time.Date(2024, 5, 1, 13, 4, 5, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "peer left",
		Data:    logrus.Fields{"peer": "bob", "cid": "c1"},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "13:04:05 WARN  peer left cid=c1 peer=bob\n", string(out))
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn")
	l.SetFormatter(&PrettyFormatter{DisableColors: true})

	l.Info("hidden")
	l.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "WARN  shown")
}

func TestParseLevelFallback(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("loud"))
}
