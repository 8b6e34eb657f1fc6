package errs

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"
)

var (
	errConnectivity = errors.New("remote store unavailable")
	errDisk         = errors.New("disk I/O error")
)

func TestErrorChainStringsFollowsMultiWrap(t *testing.T) {
	err := Wrap(fmt.Errorf("read requests: %w: %w", errConnectivity, errDisk), "list requests")

	chain := ErrorChainStrings(err)
	want := []string{
		"list requests: read requests: remote store unavailable: disk I/O error",
		"read requests: remote store unavailable: disk I/O error",
		"remote store unavailable",
		"disk I/O error",
	}
	if len(chain) != len(want) {
		t.Fatalf("chain = %q", chain)
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Fatalf("chain[%d] = %q, want %q", i, chain[i], want[i])
		}
	}
}

func TestWithStackCapturesOnce(t *testing.T) {
	root := WithStack(errDisk)
	again := WithStack(Wrap(root, "query documents"))

	var se *StackError
	if !errors.As(again, &se) || len(se.Stack()) == 0 {
		t.Fatalf("stack missing on %v", again)
	}
	if _, ok := again.(*StackError); ok {
		t.Fatalf("WithStack re-wrapped an error that already had a stack")
	}
	if !errors.Is(again, errDisk) {
		t.Fatalf("errors.Is lost the root cause")
	}
}

func TestLoggableIncludesStack(t *testing.T) {
	value := Loggable(WithStack(errDisk)).LogValue()
	if value.Kind() != slog.KindGroup {
		t.Fatalf("kind = %v", value.Kind())
	}
	keys := map[string]bool{}
	for _, attr := range value.Group() {
		keys[attr.Key] = true
	}
	for _, key := range []string{"message", "chain", "stack"} {
		if !keys[key] {
			t.Fatalf("missing %q in %v", key, value.Group())
		}
	}
	if got := Loggable(nil).LogValue(); len(got.Group()) != 0 {
		t.Fatalf("nil error group = %v", got.Group())
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "x") != nil || Wrapf(nil, "x %d", 1) != nil || WithStack(nil) != nil {
		t.Fatalf("nil errors must stay nil")
	}
}
