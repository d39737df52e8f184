package applog

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogWritesBothSinks(t *testing.T) {
	t.Parallel()

	var file, term bytes.Buffer
	l := New(Options{File: &file, Term: &term, TermEnabled: true})
	l.Logf(KindInfo, "hello %s", "world")

	for _, out := range []string{file.String(), term.String()} {
		if !strings.Contains(out, "[INFO] hello world") {
			t.Fatalf("log line missing: %q", out)
		}
	}
}

func TestLogColorOnlyOnTerm(t *testing.T) {
	t.Parallel()

	var file, term bytes.Buffer
	l := New(Options{File: &file, Term: &term, TermEnabled: true, TermColor: true})
	l.Log(KindError, "boom")

	if strings.Contains(file.String(), "\x1b[") {
		t.Fatalf("file sink must stay uncolored: %q", file.String())
	}
	if !strings.Contains(term.String(), "\x1b[") {
		t.Fatalf("term sink missing color codes: %q", term.String())
	}
}

func TestLogSkipsBlankMessages(t *testing.T) {
	t.Parallel()

	var file bytes.Buffer
	l := New(Options{File: &file})
	l.Log(KindInfo, "   \n")
	if file.Len() != 0 {
		t.Fatalf("blank message written: %q", file.String())
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	t.Parallel()

	var l *Logger
	l.Logf(KindInfo, "no sink")
	if err := l.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()

	if got := Preview("  line one\nline   two  ", 80); got != "line one line two" {
		t.Fatalf("whitespace not collapsed: %q", got)
	}
	long := strings.Repeat("x", 100)
	got := Preview(long, 40)
	if len(got) > 40 || !strings.HasSuffix(got, "(truncated)") {
		t.Fatalf("long input not truncated: %q", got)
	}
	if got := Preview("anything", 0); got != "" {
		t.Fatalf("non-positive max must yield empty, got %q", got)
	}
}
