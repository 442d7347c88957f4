package store

import "testing"

func TestStatusValid(t *testing.T) {
	valid := []Status{StatusPending, StatusProcessing, StatusDone, StatusError}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("Status(%q).Valid() = false, want true", s)
		}
	}

	invalid := []Status{"", "queued", "PENDING", "failed"}
	for _, s := range invalid {
		if s.Valid() {
			t.Errorf("Status(%q).Valid() = true, want false", s)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"pending to processing", StatusPending, StatusProcessing, true},
		{"processing to done", StatusProcessing, StatusDone, true},
		{"processing to error", StatusProcessing, StatusError, true},
		{"error to pending", StatusError, StatusPending, true},
		{"pending to done", StatusPending, StatusDone, false},
		{"pending to error", StatusPending, StatusError, false},
		{"done to processing", StatusDone, StatusProcessing, false},
		{"done to pending", StatusDone, StatusPending, false},
		{"done to error", StatusDone, StatusError, false},
		{"error to processing", StatusError, StatusProcessing, false},
		{"error to done", StatusError, StatusDone, false},
		{"processing to pending", StatusProcessing, StatusPending, false},
		{"same status", StatusPending, StatusPending, false},
		{"unknown target", StatusPending, Status("archived"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTransitionSources(t *testing.T) {
	tests := []struct {
		to   Status
		want []Status
	}{
		{StatusProcessing, []Status{StatusPending}},
		{StatusDone, []Status{StatusProcessing}},
		{StatusError, []Status{StatusProcessing}},
		{StatusPending, []Status{StatusError}},
	}

	for _, tt := range tests {
		got := TransitionSources(tt.to)
		if len(got) != len(tt.want) {
			t.Fatalf("TransitionSources(%q) = %v, want %v", tt.to, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("TransitionSources(%q)[%d] = %q, want %q", tt.to, i, got[i], tt.want[i])
			}
		}
	}

	if got := TransitionSources(Status("archived")); got != nil {
		t.Errorf("TransitionSources(unknown) = %v, want nil", got)
	}
}

func TestTransitionSourcesCopies(t *testing.T) {
	got := TransitionSources(StatusDone)
	got[0] = Status("mutated")

	again := TransitionSources(StatusDone)
	if again[0] != StatusProcessing {
		t.Errorf("TransitionSources returned shared slice, got %q after mutation", again[0])
	}
}
