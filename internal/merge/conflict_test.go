package merge

import (
	"strings"
	"testing"
)

func TestHasConflictMarkers(t *testing.T) {
	conflicted := "a\n<<<<<<< HEAD\nours\n=======\ntheirs\n>>>>>>> branch\nb\n"
	if !HasConflictMarkers(conflicted) {
		t.Error("markers not detected")
	}
	if HasConflictMarkers("plain\ncontent\n") {
		t.Error("false positive on plain content")
	}
	// Markers must start the line.
	if HasConflictMarkers("x <<<<<<< not a marker\n") {
		t.Error("mid-line marker detected")
	}
}

func TestResolveKeepIncoming(t *testing.T) {
	in := strings.Join([]string{
		"header",
		"<<<<<<< HEAD",
		"our line",
		"=======",
		"their line",
		">>>>>>> overstory/builder-1/t-1",
		"footer",
	}, "\n")

	out, err := ResolveKeepIncoming(in)
	if err != nil {
		t.Fatal(err)
	}
	want := "header\ntheir line\nfooter"
	if out != want {
		t.Errorf("resolved:\n%s\nwant:\n%s", out, want)
	}
}

func TestResolveKeepIncomingMultipleBlocks(t *testing.T) {
	in := strings.Join([]string{
		"<<<<<<< HEAD",
		"a1",
		"=======",
		"b1",
		">>>>>>> x",
		"middle",
		"<<<<<<< HEAD",
		"a2",
		"=======",
		"b2",
		">>>>>>> x",
	}, "\n")

	out, err := ResolveKeepIncoming(in)
	if err != nil {
		t.Fatal(err)
	}
	if out != "b1\nmiddle\nb2" {
		t.Errorf("resolved: %q", out)
	}
}

func TestResolveKeepIncomingErrors(t *testing.T) {
	if _, err := ResolveKeepIncoming("no markers here\n"); err == nil {
		t.Error("marker-free content accepted")
	}

	unterminated := "<<<<<<< HEAD\nours\n=======\ntheirs\n"
	if _, err := ResolveKeepIncoming(unterminated); err == nil {
		t.Error("unterminated block accepted")
	}

	malformed := "<<<<<<< HEAD\nours\n>>>>>>> x\n"
	if _, err := ResolveKeepIncoming(malformed); err == nil {
		t.Error("theirs-before-base accepted")
	}
}
