package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestGetCode(t *testing.T) {
	t.Parallel()

	err := New(CodeCycleDetected, "link would create a cycle")
	if GetCode(err) != CodeCycleDetected {
		t.Fatalf("expected cycle code, got %s", GetCode(err))
	}
	if GetCode(errors.New("plain")) != CodeUnknown {
		t.Fatal("expected unknown code for plain error")
	}
}

func TestGetCodeThroughWrapping(t *testing.T) {
	t.Parallel()

	inner := New(CodeNotFound, "task missing")
	wrapped := fmt.Errorf("load task: %w", inner)
	if !IsCode(wrapped, CodeNotFound) {
		t.Fatal("expected NOT_FOUND through fmt.Errorf wrapping")
	}
}

func TestWrapExposesCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	err := Wrap(CodeStorageContention, "append failed", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be reachable via errors.Is")
	}
}
