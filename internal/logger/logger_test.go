package logger

import (
	"bytes"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testFunctions() []func() {
	return []func(){
		func() { Tracef("trace %s", "example") },
		func() { Debugf("debug %s", "example") },
		func() { Infof("info %s", "example") },
		func() { Warnf("warn %s", "example") },
		func() { Errorf("error %s", "example") },
	}
}

func captureAtLevel(t *testing.T, format string, level Level) []string {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetFormat(format)
	SetLevel(level)

	var out []string
	for _, f := range testFunctions() {
		f()
		out = append(out, buf.String())
		buf.Reset()
	}
	return out
}

func TestTextFormatGatesBySeverity(t *testing.T) {
	out := captureAtLevel(t, "text", LevelError)
	assert.Empty(t, out[0])
	assert.Empty(t, out[1])
	assert.Empty(t, out[2])
	assert.Empty(t, out[3])
	assert.Regexp(t, regexp.MustCompile(`severity=ERROR`), out[4])
}

func TestTraceLevelEmitsEverything(t *testing.T) {
	out := captureAtLevel(t, "text", LevelTrace)
	assert.Regexp(t, regexp.MustCompile(`severity=TRACE`), out[0])
	assert.Regexp(t, regexp.MustCompile(`severity=DEBUG`), out[1])
	assert.Regexp(t, regexp.MustCompile(`severity=INFO`), out[2])
	assert.Regexp(t, regexp.MustCompile(`severity=WARNING`), out[3])
	assert.Regexp(t, regexp.MustCompile(`severity=ERROR`), out[4])
}

func TestOffLevelEmitsNothing(t *testing.T) {
	out := captureAtLevel(t, "text", LevelOff)
	for _, line := range out {
		assert.Empty(t, line)
	}
}

func TestJSONFormatEmitsSeverityField(t *testing.T) {
	out := captureAtLevel(t, "json", LevelInfo)
	assert.Regexp(t, regexp.MustCompile(`"severity":"INFO"`), out[2])
}
