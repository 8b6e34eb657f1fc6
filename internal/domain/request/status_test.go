package request

import (
	"errors"
	"testing"
)

func TestParseStatus(t *testing.T) {
	testCases := []struct {
		input string
		want  Status
	}{
		{input: "submitted", want: StatusSubmitted},
		{input: "inProgress", want: StatusInProgress},
		{input: "in_progress", want: StatusInProgress},
		{input: "On Hold", want: StatusOnHold},
		{input: " DELAYED ", want: StatusDelayed},
	}

	for _, testCase := range testCases {
		got, err := ParseStatus(testCase.input)
		if err != nil {
			t.Fatalf("ParseStatus(%q) error = %v", testCase.input, err)
		}
		if got != testCase.want {
			t.Fatalf("ParseStatus(%q) = %q, want %q", testCase.input, got, testCase.want)
		}
	}

	if _, err := ParseStatus("closed"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("ParseStatus(closed) error = %v, want ErrInvalidStatus", err)
	}
}

func TestParsePriority(t *testing.T) {
	if got, err := ParsePriority("Medium"); err != nil || got != PriorityModerate {
		t.Fatalf("ParsePriority(Medium) = %q, %v", got, err)
	}
	if _, err := ParsePriority("urgent"); !errors.Is(err, ErrInvalidPriority) {
		t.Fatalf("ParsePriority(urgent) error = %v", err)
	}
}

func TestParseLookupKind(t *testing.T) {
	for input, want := range map[string]LookupKind{
		"building":   LookupBuilding,
		"Rooms":      LookupRoom,
		"categories": LookupCategory,
	} {
		got, err := ParseLookupKind(input)
		if err != nil || got != want {
			t.Fatalf("ParseLookupKind(%q) = %q, %v", input, got, err)
		}
	}
}

func TestRequestNoRoundTrip(t *testing.T) {
	if got := FormatRequestNo(30); got != "REQ-00030" {
		t.Fatalf("FormatRequestNo(30) = %q", got)
	}
	seq, ok := ParseRequestNo("req-00041")
	if !ok || seq != 41 {
		t.Fatalf("ParseRequestNo(req-00041) = %d, %v", seq, ok)
	}
	if _, ok := ParseRequestNo("TICKET-1"); ok {
		t.Fatalf("ParseRequestNo(TICKET-1) expected ok=false")
	}
}
