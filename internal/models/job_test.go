package models

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusPending, JobStatusProcessing, true},
		{JobStatusPending, JobStatusCompleted, false},
		{JobStatusPending, JobStatusFailed, true},
		{JobStatusPending, JobStatusCancelled, true},
		{JobStatusProcessing, JobStatusPending, true},
		{JobStatusProcessing, JobStatusCompleted, true},
		{JobStatusProcessing, JobStatusFailed, true},
		{JobStatusProcessing, JobStatusCancelled, true},
		{JobStatusCompleted, JobStatusPending, false},
		{JobStatusFailed, JobStatusPending, true},
		{JobStatusFailed, JobStatusProcessing, false},
		{JobStatusCancelled, JobStatusPending, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	terminal := []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	nonTerminal := []JobStatus{JobStatusPending, JobStatusProcessing}
	for _, s := range nonTerminal {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

// No state reachable from a terminal status: every outgoing edge from a
// terminal row in the table is absent.
func TestNoTransitionsOutOfTerminalStates(t *testing.T) {
	for _, from := range []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusCancelled} {
		for _, to := range []JobStatus{JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed, JobStatusCancelled} {
			if from == JobStatusFailed && to == JobStatusPending {
				continue // explicit user retry is the one documented exception
			}
			if CanTransition(from, to) {
				t.Errorf("unexpected edge %s -> %s out of terminal state", from, to)
			}
		}
	}
}

func TestSetConfigRoundTrip(t *testing.T) {
	var j Job
	cfg := JoinConfig{FileIDs: []int64{1, 2, 3}, ReEncode: true}
	if err := j.SetConfig(cfg); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	if j.Type != JobTypeJoin {
		t.Fatalf("Type = %s, want JOIN", j.Type)
	}

	decoded, err := j.Config()
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	got, ok := decoded.(JoinConfig)
	if !ok {
		t.Fatalf("decoded type = %T, want JoinConfig", decoded)
	}
	if len(got.FileIDs) != 3 || got.FileIDs[0] != 1 {
		t.Errorf("FileIDs = %v, want [1 2 3]", got.FileIDs)
	}
	if !got.ReEncode {
		t.Errorf("ReEncode = false, want true")
	}
}

func TestInt64SliceValueRoundTrip(t *testing.T) {
	s := Int64Slice{3, 1, 2}
	v, err := s.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	var out Int64Slice
	if err := out.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(out) != 3 || out[0] != 3 || out[2] != 2 {
		t.Errorf("round-tripped = %v, want [3 1 2]", out)
	}
}

func TestInt64SliceScanNil(t *testing.T) {
	var out Int64Slice = Int64Slice{1}
	if err := out.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if out != nil {
		t.Errorf("Scan(nil) should clear the slice, got %v", out)
	}
}
