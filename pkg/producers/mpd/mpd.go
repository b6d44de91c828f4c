// Package mpd provides the now-playing producer. It polls a Music Player
// Daemon for the current song, shows it only while playback is running, and
// forwards playback verbs to the daemon.
package mpd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/bar"
)

// Verbs understood by the now-playing producer.
const (
	VerbToggle = "toggle"
	VerbPlay   = "play"
	VerbPause  = "pause"
	VerbStop   = "stop"
	VerbNext   = "next"
	VerbPrev   = "prev"
)

const (
	defaultHost = "localhost"
	defaultPort = 6600
)

// Config controls a now-playing producer. Socket, when set, takes precedence
// over Host and Port.
type Config struct {
	Host     string `toml:"host" yaml:"host"`
	Port     int    `toml:"port" yaml:"port"`
	Socket   string `toml:"socket" yaml:"socket"`
	Password string `toml:"password" yaml:"password"`
}

// Validate checks the port range.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	return nil
}

func (c Config) address() (network, addr string) {
	if c.Socket != "" {
		return "unix", c.Socket
	}
	host, port := c.Host, c.Port
	if host == "" {
		host = defaultHost
	}
	if port == 0 {
		port = defaultPort
	}
	return "tcp", net.JoinHostPort(host, strconv.Itoa(port))
}

// Client is the subset of *mpd.Client the producer uses.
type Client interface {
	Status() (mpd.Attrs, error)
	CurrentSong() (mpd.Attrs, error)
	Play(pos int) error
	Pause(pause bool) error
	Stop() error
	Next() error
	Previous() error
	Close() error
}

// Dialer opens a client connection.
type Dialer func(network, addr, password string) (Client, error)

// DialMPD is the gompd-backed Dialer.
func DialMPD(network, addr, password string) (Client, error) {
	var (
		c   *mpd.Client
		err error
	)
	if password != "" {
		c, err = mpd.DialAuthenticated(network, addr, password)
	} else {
		c, err = mpd.Dial(network, addr)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Producer shows the current song and relays playback verbs.
type Producer struct {
	name     string
	interval time.Duration
	cfg      Config
	palette  bar.Palette
	dial     Dialer

	mu     sync.Mutex
	client Client
}

// New creates a now-playing producer. A nil dial uses DialMPD.
func New(name string, interval time.Duration, cfg Config, dial Dialer, palette bar.Palette) *Producer {
	if dial == nil {
		dial = DialMPD
	}
	return &Producer{
		name:     name,
		interval: interval,
		cfg:      cfg,
		palette:  palette,
		dial:     dial,
	}
}

// Name returns the block name.
func (p *Producer) Name() string { return p.name }

// Interval returns the polling interval.
func (p *Producer) Interval() time.Duration { return p.interval }

// Verbs lists the supported playback verbs.
func (p *Producer) Verbs() []string {
	return []string{VerbToggle, VerbPlay, VerbPause, VerbStop, VerbNext, VerbPrev}
}

// Activate applies verb, if any, then renders the current song. Any protocol
// error drops the connection so the next activation reconnects.
func (p *Producer) Activate(_ context.Context, verb string) (bar.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	res, err := p.activate(verb)
	if err != nil {
		p.disconnect()
		return bar.Hide(), err
	}
	return res, nil
}

// Close releases the daemon connection.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnect()
	return nil
}

func (p *Producer) activate(verb string) (bar.Result, error) {
	c, err := p.connect()
	if err != nil {
		return bar.Result{}, err
	}

	state, err := playerState(c)
	if err != nil {
		return bar.Result{}, err
	}

	if verb != "" {
		if err := apply(c, verb, state); err != nil {
			return bar.Result{}, fmt.Errorf("mpd %s: %w", verb, err)
		}
		if state, err = playerState(c); err != nil {
			return bar.Result{}, err
		}
	}

	if state != "play" {
		return bar.Hide(), nil
	}

	song, err := c.CurrentSong()
	if err != nil {
		return bar.Result{}, fmt.Errorf("mpd currentsong: %w", err)
	}
	artist, title := song["Artist"], song["Title"]
	if artist == "" {
		artist = "Unknown Artist"
	}
	if title == "" {
		title = "Unknown Title"
	}
	return bar.Show(bar.Block{
		FullText:  artist + " - " + title,
		ShortText: title,
		Color:     p.palette.Normal,
	}), nil
}

func apply(c Client, verb, state string) error {
	switch verb {
	case VerbToggle:
		if state == "play" {
			return c.Pause(true)
		}
		return c.Play(-1)
	case VerbPlay:
		return c.Play(-1)
	case VerbPause:
		return c.Pause(true)
	case VerbStop:
		return c.Stop()
	case VerbNext, VerbPrev:
		var err error
		if verb == VerbNext {
			err = c.Next()
		} else {
			err = c.Previous()
		}
		if err != nil || state == "play" {
			return err
		}
		return c.Play(-1)
	}
	return nil
}

func playerState(c Client) (string, error) {
	st, err := c.Status()
	if err != nil {
		return "", fmt.Errorf("mpd status: %w", err)
	}
	state, ok := st["state"]
	if !ok {
		return "", errors.New("mpd status: no state")
	}
	return state, nil
}

func (p *Producer) connect() (Client, error) {
	if p.client != nil {
		return p.client, nil
	}
	network, addr := p.cfg.address()
	c, err := p.dial(network, addr, p.cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("connect mpd at %s: %w", addr, err)
	}
	p.client = c
	return c, nil
}

func (p *Producer) disconnect() {
	if p.client != nil {
		_ = p.client.Close()
		p.client = nil
	}
}
