package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestDebugToggle(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	defer SetDebug(false)

	SetDebug(false)
	Debugf("hidden %d", 1)
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("debug line printed with debug off: %q", buf.String())
	}

	SetDebug(true)
	Debugf("shown %d", 2)
	if !strings.Contains(buf.String(), "shown 2") {
		t.Fatalf("debug line missing with debug on: %q", buf.String())
	}
}

func TestWithField(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	WithField("board", 3).Info("enumerated")
	out := buf.String()
	if !strings.Contains(out, "board=3") || !strings.Contains(out, "enumerated") {
		t.Fatalf("unexpected output %q", out)
	}
}
