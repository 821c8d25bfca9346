package services

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("connection reset")
	err := Wrap(ErrTransient, "sources", "search", "request failed", base)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if !strings.Contains(err.Error(), "sources: search") {
		t.Fatalf("missing component detail: %v", err)
	}
}

func TestWrapNilMarkerDefaultsTransient(t *testing.T) {
	err := Wrap(nil, "hub", "save", "", errors.New("boom"))
	if !IsTransient(err) {
		t.Fatalf("expected transient default, got %v", err)
	}
}

func TestIsTransientRejectsValidation(t *testing.T) {
	err := Wrap(ErrValidation, "schema", "deserialize", "bad value", nil)
	if IsTransient(err) {
		t.Fatalf("validation errors must not be transient: %v", err)
	}
}
