package tools

import (
	"errors"
	"testing"
)

func TestWrapTagsMarker(t *testing.T) {
	err := Wrap(ErrConfiguration, "optimizer", "jpegoptim", "binary not found", nil)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration marker: %v", err)
	}
	if Retryable(err) {
		t.Fatal("configuration errors must not be retryable")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("exit status 1")
	err := Wrap(ErrExternalTool, "variant", "cwebp", "conversion failed", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause: %v", err)
	}
	if !Retryable(err) {
		t.Fatal("external tool errors should be retryable")
	}
}

func TestWrapNilMarkerDefaultsTransient(t *testing.T) {
	err := Wrap(nil, "", "", "something", nil)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient default: %v", err)
	}
}

func TestExpandArgs(t *testing.T) {
	args := ExpandArgs(
		[]string{"-q", "{quality}", "{src}", "-o", "{dst}"},
		map[string]string{"{quality}": "80", "{src}": "/tmp/in.jpg", "{dst}": "/tmp/out.webp"},
	)
	want := []string{"-q", "80", "/tmp/in.jpg", "-o", "/tmp/out.webp"}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("arg %d = %q, want %q", i, args[i], want[i])
		}
	}
}
