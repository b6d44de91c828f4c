package volume

import (
	"context"
	"errors"
	"regexp"
	"strconv"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/shell"
)

const defaultChannel = "Master"

// ErrNoLevel is returned when mixer output carries no volume level.
var ErrNoLevel = errors.New("no volume level in mixer output")

// Amixer drives an ALSA simple mixer control through the amixer tool.
type Amixer struct {
	channel string
	card    string
	cmd     shell.Commander
}

// NewAmixer returns a Mixer for cfg's channel and card.
func NewAmixer(cfg Config, cmd shell.Commander) *Amixer {
	ch := cfg.Channel
	if ch == "" {
		ch = defaultChannel
	}
	if cmd == nil {
		cmd = shell.Exec{}
	}
	return &Amixer{channel: ch, card: strconv.Itoa(cfg.Card), cmd: cmd}
}

// amixer sget prints one line per channel, e.g.
//
//	Front Left: Playback 49151 [75%] [-12.00dB] [on]
var (
	levelRE  = regexp.MustCompile(`\[(\d{1,3})%\]`)
	switchRE = regexp.MustCompile(`\[(on|off)\]`)
)

// Get reads the first channel's level and switch.
func (a *Amixer) Get(ctx context.Context) (int, bool, error) {
	out, err := a.cmd.Output(ctx, []string{"amixer", "-c", a.card, "sget", a.channel})
	if err != nil {
		return 0, false, err
	}
	return parseSget(out)
}

func parseSget(out string) (int, bool, error) {
	m := levelRE.FindStringSubmatch(out)
	if m == nil {
		return 0, false, ErrNoLevel
	}
	vol, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false, err
	}
	muted := false
	if s := switchRE.FindStringSubmatch(out); s != nil {
		muted = s[1] == "off"
	}
	return vol, muted, nil
}

// SetVolume sets every channel of the control to volume percent.
func (a *Amixer) SetVolume(ctx context.Context, volume int) error {
	_, err := a.cmd.Output(ctx, []string{"amixer", "-q", "-c", a.card, "sset", a.channel, strconv.Itoa(volume) + "%"})
	return err
}

// SetMute switches the control off (muted) or on.
func (a *Amixer) SetMute(ctx context.Context, muted bool) error {
	state := "unmute"
	if muted {
		state = "mute"
	}
	_, err := a.cmd.Output(ctx, []string{"amixer", "-q", "-c", a.card, "sset", a.channel, state})
	return err
}
