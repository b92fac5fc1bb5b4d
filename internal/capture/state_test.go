package capture

import (
	"errors"
	"testing"
)

func TestTransitions(t *testing.T) {
	cases := []struct {
		from State
		on   Action
		want State
	}{
		{Idle, ActionStart, Recording},
		{Stopped, ActionStart, Recording},
		{Recording, ActionPause, Paused},
		{Paused, ActionResume, Recording},
		{Recording, ActionStop, Stopped},
		{Paused, ActionStop, Stopped},
		{Recording, ActionFail, Idle},
	}
	for _, tc := range cases {
		got, err := Transition(tc.from, tc.on)
		if err != nil {
			t.Fatalf("%s while %s: %v", tc.on, tc.from, err)
		}
		if got != tc.want {
			t.Fatalf("%s while %s: expected %s, got %s", tc.on, tc.from, tc.want, got)
		}
	}
}

func TestIllegalTransitions(t *testing.T) {
	cases := []struct {
		from State
		on   Action
	}{
		{Idle, ActionStop},
		{Idle, ActionPause},
		{Recording, ActionStart},
		{Paused, ActionStart},
		{Paused, ActionPause},
		{Recording, ActionResume},
		{Stopped, ActionStop},
		{Stopped, ActionPause},
	}
	for _, tc := range cases {
		got, err := Transition(tc.from, tc.on)
		if !errors.Is(err, ErrIllegalTransition) {
			t.Fatalf("%s while %s: expected ErrIllegalTransition, got %v", tc.on, tc.from, err)
		}
		if got != tc.from {
			t.Fatalf("illegal transition must keep state %s, got %s", tc.from, got)
		}
	}
}

func TestControlsFor(t *testing.T) {
	idle := ControlsFor(Idle)
	if !idle.RecordEnabled || idle.StopEnabled || idle.PauseEnabled || !idle.UploadEnabled {
		t.Fatalf("unexpected idle controls %+v", idle)
	}
	if ControlsFor(Stopped) != idle {
		t.Fatalf("stopped controls should match idle")
	}

	rec := ControlsFor(Recording)
	if rec.RecordEnabled || !rec.StopEnabled || !rec.PauseEnabled || rec.UploadEnabled {
		t.Fatalf("unexpected recording controls %+v", rec)
	}
	if rec.PauseLabel != LabelPause {
		t.Fatalf("expected %s, got %s", LabelPause, rec.PauseLabel)
	}
	if ControlsFor(Paused).PauseLabel != LabelResume {
		t.Fatalf("paused label should be %s", LabelResume)
	}
}
