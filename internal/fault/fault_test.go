package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := New(KindNotFound, "stream %q not found", "s1")
	if KindOf(err) != KindNotFound {
		t.Fatalf("kind = %s", KindOf(err))
	}
	wrapped := fmt.Errorf("handler: %w", err)
	if KindOf(wrapped) != KindNotFound {
		t.Fatalf("wrapped kind = %s", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Fatal("plain errors must default to Internal")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, KindIo, "flute write")
	if !errors.Is(err, cause) {
		t.Fatal("cause lost")
	}
	if KindOf(err) != KindIo {
		t.Fatalf("kind = %s", KindOf(err))
	}
	if Wrap(nil, KindIo, "noop") != nil {
		t.Fatal("wrapping nil must return nil")
	}
}

func TestIsKind(t *testing.T) {
	err := New(KindDeadlineExpired, "frame 9 late")
	if !IsKind(err, KindDeadlineExpired) {
		t.Fatal("IsKind failed on matching kind")
	}
	if IsKind(err, KindBackpressure) {
		t.Fatal("IsKind matched wrong kind")
	}
	if IsKind(nil, KindInternal) {
		t.Fatal("IsKind on nil must be false")
	}
}
