package volume

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/bar"
)

type fakeMixer struct {
	vol    int
	muted  bool
	getErr error
	sets   []int
}

func (m *fakeMixer) Get(context.Context) (int, bool, error) { return m.vol, m.muted, m.getErr }

func (m *fakeMixer) SetVolume(_ context.Context, v int) error {
	m.vol = v
	m.sets = append(m.sets, v)
	return nil
}

func (m *fakeMixer) SetMute(_ context.Context, muted bool) error {
	m.muted = muted
	return nil
}

type failingMixer struct {
	fakeMixer
}

func (m *failingMixer) SetVolume(context.Context, int) error { return errors.New("amixer: exit status 1") }

func TestVerbs(t *testing.T) {
	pal := bar.DefaultPalette()
	tests := []struct {
		name      string
		start     int
		muted     bool
		verb      string
		wantVol   int
		wantMuted bool
	}{
		{"render", 40, false, "", 40, false},
		{"up", 40, false, "up", 45, false},
		{"down", 40, false, "down", 35, false},
		{"up clamps", 98, false, "up", 100, false},
		{"down clamps", 3, false, "down", 0, false},
		{"mute toggles on", 40, false, "mute", 40, true},
		{"mute toggles off", 40, true, "mute", 40, false},
		{"unmute", 40, true, "unmute", 40, false},
		{"unmute when unmuted", 40, false, "unmute", 40, false},
		{"set", 40, false, "set 70", 70, false},
		{"set percent", 40, false, "set 15%", 15, false},
		{"set clamps", 40, false, "set 150", 100, false},
		{"unknown verb", 40, false, "louder", 40, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMixer{vol: tt.start, muted: tt.muted}
			p := New("alsa", 0, Config{}, m, pal)
			res, err := p.Activate(context.Background(), tt.verb)
			if err != nil {
				t.Fatalf("Activate failed: %v", err)
			}
			if m.vol != tt.wantVol || m.muted != tt.wantMuted {
				t.Errorf("mixer = %d muted=%v, want %d muted=%v", m.vol, m.muted, tt.wantVol, tt.wantMuted)
			}
			b := res.Blocks[0]
			wantColor := pal.Normal
			if tt.wantMuted {
				wantColor = pal.Critical
			}
			if b.Color != wantColor {
				t.Errorf("color = %q, want %q", b.Color, wantColor)
			}
			if !strings.HasPrefix(b.FullText, "♪:") {
				t.Errorf("FullText = %q", b.FullText)
			}
		})
	}
}

func TestText(t *testing.T) {
	p := New("alsa", 0, Config{}, &fakeMixer{vol: 7}, bar.DefaultPalette())
	res, _ := p.Activate(context.Background(), "")
	if got := res.Blocks[0].FullText; got != "♪:  7%" {
		t.Errorf("FullText = %q", got)
	}
}

func TestCustomStep(t *testing.T) {
	m := &fakeMixer{vol: 50}
	p := New("alsa", 0, Config{Step: 10}, m, bar.DefaultPalette())
	_, _ = p.Activate(context.Background(), "up")
	if m.vol != 60 {
		t.Errorf("vol = %d, want 60", m.vol)
	}
}

func TestBadSetLevel(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	m := &fakeMixer{vol: 50}
	p := New("alsa", 0, Config{}, m, bar.DefaultPalette(), WithLogger(logger))
	res, err := p.Activate(context.Background(), "set loud")
	if err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if res.Kind != bar.Updated || len(m.sets) != 0 {
		t.Fatalf("kind=%v sets=%v, want updated with no writes", res.Kind, m.sets)
	}
	if got := res.Blocks[0].FullText; got != "♪: 50%" {
		t.Errorf("FullText = %q", got)
	}
	if !strings.Contains(logs.String(), "ignoring malformed verb") {
		t.Errorf("malformed verb not logged: %q", logs.String())
	}
}

func TestSetFailureHides(t *testing.T) {
	m := &failingMixer{fakeMixer: fakeMixer{vol: 50}}
	p := New("alsa", 0, Config{}, m, bar.DefaultPalette())
	res, err := p.Activate(context.Background(), "set 40")
	if err == nil || res.Kind != bar.Hidden {
		t.Errorf("kind=%v err=%v, want hidden with error", res.Kind, err)
	}
}

func TestMixerError(t *testing.T) {
	p := New("alsa", 0, Config{}, &fakeMixer{getErr: errors.New("no card")}, bar.DefaultPalette())
	res, err := p.Activate(context.Background(), "up")
	if err == nil || res.Kind != bar.Hidden {
		t.Errorf("kind=%v err=%v", res.Kind, err)
	}
}

func TestClamp(t *testing.T) {
	for in, want := range map[int]int{-5: 0, 0: 0, 55: 55, 100: 100, 130: 100} {
		if got := Clamp(in); got != want {
			t.Errorf("Clamp(%d) = %d, want %d", in, got, want)
		}
	}
}

const sgetOutput = `Simple mixer control 'Master',0
  Capabilities: pvolume pswitch pswitch-joined
  Playback channels: Front Left - Front Right
  Limits: Playback 0 - 65536
  Mono:
  Front Left: Playback 49152 [75%] [on]
  Front Right: Playback 49152 [75%] [on]
`

func TestParseSget(t *testing.T) {
	vol, muted, err := parseSget(sgetOutput)
	if err != nil {
		t.Fatalf("parseSget failed: %v", err)
	}
	if vol != 75 || muted {
		t.Errorf("got %d muted=%v, want 75 unmuted", vol, muted)
	}

	_, muted, _ = parseSget(strings.ReplaceAll(sgetOutput, "[on]", "[off]"))
	if !muted {
		t.Error("expected muted")
	}

	if _, _, err := parseSget("Simple mixer control 'Master',0\n"); !errors.Is(err, ErrNoLevel) {
		t.Errorf("err = %v, want ErrNoLevel", err)
	}
}

type recordingCommander struct {
	out   string
	calls [][]string
}

func (r *recordingCommander) Output(_ context.Context, argv []string) (string, error) {
	r.calls = append(r.calls, argv)
	return r.out, nil
}

func (r *recordingCommander) Run(context.Context, string) error { return nil }

func TestAmixerCommands(t *testing.T) {
	rc := &recordingCommander{out: sgetOutput}
	a := NewAmixer(Config{Card: 1}, rc)

	if _, _, err := a.Get(context.Background()); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	_ = a.SetVolume(context.Background(), 30)
	_ = a.SetMute(context.Background(), true)

	want := []string{
		"amixer -c 1 sget Master",
		"amixer -q -c 1 sset Master 30%",
		"amixer -q -c 1 sset Master mute",
	}
	if len(rc.calls) != len(want) {
		t.Fatalf("calls = %d, want %d", len(rc.calls), len(want))
	}
	for i, w := range want {
		if got := strings.Join(rc.calls[i], " "); got != w {
			t.Errorf("call %d = %q, want %q", i, got, w)
		}
	}
}
