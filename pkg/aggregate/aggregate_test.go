package aggregate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/bar"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers"
)

func show(id int, texts ...string) producers.Update {
	blocks := make([]bar.Block, len(texts))
	for i, t := range texts {
		blocks[i] = bar.Block{FullText: t}
	}
	return producers.Update{ID: id, Result: bar.Show(blocks...)}
}

func hide(id int) producers.Update {
	return producers.Update{ID: id, Result: bar.Hide()}
}

func texts(f bar.Frame) []string {
	out := []string{}
	for _, b := range f {
		out = append(out, b.FullText)
	}
	return out
}

func TestOrderFollowsConfiguration(t *testing.T) {
	a := New([]string{"a", "b", "c"})

	a.Apply(show(2, "C"))
	a.Apply(show(0, "A"))
	frame, changed := a.Apply(show(1, "B"))
	if !changed {
		t.Fatal("expected change")
	}
	if diff := cmp.Diff([]string{"A", "B", "C"}, texts(frame)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestHiddenContributesNothing(t *testing.T) {
	a := New([]string{"a", "b", "c"})
	a.Apply(show(0, "A"))
	a.Apply(show(1, "B"))
	a.Apply(show(2, "C"))

	frame, changed := a.Apply(hide(1))
	if !changed {
		t.Fatal("hiding a visible block should change the frame")
	}
	if diff := cmp.Diff([]string{"A", "C"}, texts(frame)); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}

	// B reappears in its own slot.
	frame, _ = a.Apply(show(1, "B2"))
	if diff := cmp.Diff([]string{"A", "B2", "C"}, texts(frame)); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}
}

func TestOneProducerDoesNotMoveAnother(t *testing.T) {
	a := New([]string{"disk", "temp"})
	a.Apply(show(0, "/", "/home"))
	frame, _ := a.Apply(show(1, "CPU"))
	if frame[2].FullText != "CPU" {
		t.Fatalf("frame = %v", texts(frame))
	}
	frame, _ = a.Apply(show(0, "/"))
	if diff := cmp.Diff([]string{"/", "CPU"}, texts(frame)); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}
}

func TestIdenticalUpdateSuppressed(t *testing.T) {
	a := New([]string{"a"})
	if _, changed := a.Apply(show(0, "A")); !changed {
		t.Fatal("first show should change")
	}
	if _, changed := a.Apply(show(0, "A")); changed {
		t.Error("identical update should not change the frame")
	}
	if _, changed := a.Apply(producers.Update{ID: 0, Result: bar.NoChange()}); changed {
		t.Error("unchanged result should not change the frame")
	}
}

func TestLastHideEmitsEmptyFrame(t *testing.T) {
	a := New([]string{"a"})
	a.Apply(show(0, "A"))

	frame, changed := a.Apply(hide(0))
	if !changed {
		t.Fatal("hiding the last block should emit")
	}
	if frame == nil || len(frame) != 0 {
		t.Errorf("frame = %#v, want empty non-nil frame", frame)
	}

	if _, changed := a.Apply(hide(0)); changed {
		t.Error("second hide should not emit")
	}
}

func TestHideAtStartupSilent(t *testing.T) {
	a := New([]string{"a", "b"})
	if _, changed := a.Apply(hide(0)); changed {
		t.Error("hide before anything was shown should not emit")
	}
}

func TestNameStamped(t *testing.T) {
	a := New([]string{"cpu_temp", "disk"})
	frame, _ := a.Apply(producers.Update{ID: 1, Result: bar.Show(
		bar.Block{FullText: "/", Name: "spoofed", Instance: "/"},
	)})
	if frame[0].Name != "disk" {
		t.Errorf("Name = %q, want disk", frame[0].Name)
	}
	if frame[0].Instance != "/" {
		t.Errorf("Instance = %q", frame[0].Instance)
	}
}

func TestUnknownIDIgnored(t *testing.T) {
	a := New([]string{"a"})
	if _, changed := a.Apply(show(5, "X")); changed {
		t.Error("out-of-range id should be ignored")
	}
	if _, changed := a.Apply(show(-1, "X")); changed {
		t.Error("negative id should be ignored")
	}
}

func TestFrameIsACopy(t *testing.T) {
	a := New([]string{"a"})
	frame, _ := a.Apply(show(0, "A"))
	frame[0].FullText = "mutated"
	if got := a.Frame()[0].FullText; got != "A" {
		t.Errorf("internal frame mutated: %q", got)
	}
}

func TestRunEmitsChangedFrames(t *testing.T) {
	a := New([]string{"a", "b"})
	updates := make(chan producers.Update, 8)
	var frames [][]string

	updates <- show(0, "A")
	updates <- show(1, "B")
	updates <- show(1, "B")
	close(updates)

	err := a.Run(context.Background(), updates, func(f bar.Frame) error {
		frames = append(frames, texts(f))
		return nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// The queued burst is merged into one frame.
	want := [][]string{{"A", "B"}}
	if diff := cmp.Diff(want, frames); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestRunStopsOnEmitError(t *testing.T) {
	a := New([]string{"a"})
	updates := make(chan producers.Update, 1)
	updates <- show(0, "A")

	boom := errors.New("broken pipe")
	err := a.Run(context.Background(), updates, func(bar.Frame) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	a := New([]string{"a"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, make(chan producers.Update), func(bar.Frame) error { return nil }) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
