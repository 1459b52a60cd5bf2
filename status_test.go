package osal

import (
	"errors"
	"testing"
)

func TestStatusString(t *testing.T) {
	cases := []struct {
		status Status
		want   string
	}{
		{StatusOk, "ok"},
		{StatusNullPointer, "null_pointer"},
		{StatusInvalidParam, "invalid_param"},
		{StatusTimeout, "timeout"},
		{StatusNoMemory, "no_memory"},
		{StatusIsr, "isr_context"},
		{StatusFull, "full"},
		{StatusEmpty, "empty"},
		{StatusBusy, "busy"},
		{StatusNotInit, "not_initialized"},
		{StatusCorrupted, "corrupted"},
		{StatusStackOverflow, "stack_overflow"},
		{Status(200), "status(200)"},
	}
	for _, tc := range cases {
		if got := tc.status.String(); got != tc.want {
			t.Errorf("Status(%d).String() = %q, want %q", tc.status, got, tc.want)
		}
	}
}

func TestStatusErr(t *testing.T) {
	if err := StatusOk.Err(); err != nil {
		t.Fatalf("StatusOk.Err() = %v, want nil", err)
	}

	err := StatusTimeout.Err()
	if err == nil {
		t.Fatal("StatusTimeout.Err() = nil")
	}
	if !errors.Is(err, StatusTimeout.Err()) {
		t.Fatal("errors.Is should match same status")
	}
	if errors.Is(err, StatusFull.Err()) {
		t.Fatal("errors.Is should not match a different status")
	}
}

func TestErrorfFormatting(t *testing.T) {
	err := Errorf(StatusInvalidParam, "queue.Send", "item size %d != %d", 8, 4)
	want := "queue.Send: invalid_param - item size 8 != 4"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	wrapped := &Error{Status: StatusNoMemory, Op: "mem.Alloc", Cause: errors.New("pool exhausted")}
	if got := wrapped.Error(); got != "mem.Alloc: no_memory (caused by: pool exhausted)" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(wrapped, StatusNoMemory.Err()) {
		t.Fatal("wrapped error should match its status")
	}
}

func TestKindString(t *testing.T) {
	names := map[Kind]string{
		KindTask:      "task",
		KindMutex:     "mutex",
		KindSemaphore: "semaphore",
		KindQueue:     "queue",
		KindEvent:     "event",
		KindTimer:     "timer",
		Kind(99):      "unknown",
	}
	for kind, want := range names {
		if kind.String() != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, kind.String(), want)
		}
	}
	if !KindQueue.Valid() {
		t.Fatal("KindQueue should be valid")
	}
	if Kind(99).Valid() {
		t.Fatal("Kind(99) should be invalid")
	}
}
