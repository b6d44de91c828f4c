package config

import (
	"time"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/battery"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/clock"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/disk"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/lockkeys"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/mpd"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/temp"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/volume"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/wireless"
)

// Preset names.
const (
	PresetMinimal = "minimal"
	PresetLaptop  = "laptop"
	PresetDesktop = "desktop"
)

// Presets lists the built-in block sets.
var Presets = []string{PresetMinimal, PresetLaptop, PresetDesktop}

// Preset returns the order and blocks of a named preset.
// If the name is not recognized, the "minimal" preset is returned.
func Preset(name string) ([]string, map[string]*Block) {
	var blocks []*Block
	switch name {
	case PresetLaptop:
		blocks = laptopPreset()
	case PresetDesktop:
		blocks = desktopPreset()
	default:
		blocks = minimalPreset()
	}

	order := make([]string, len(blocks))
	byName := make(map[string]*Block, len(blocks))
	for i, b := range blocks {
		order[i] = b.Name
		byName[b.Name] = b
	}
	return order, byName
}

// minimalPreset is just the clock.
func minimalPreset() []*Block {
	return []*Block{dateBlock()}
}

// laptopPreset:
//
//	[cpu] [root] [wifi] [bat] [keys] [alsa] [date]
func laptopPreset() []*Block {
	return []*Block{
		cpuBlock(),
		{Name: "root", Kind: KindDisk, Interval: time.Minute, Settings: &disk.Config{
			Mountpoints: []string{"/"},
			Percentage:  90,
		}},
		{Name: "wifi", Kind: KindWireless, Interval: 5 * time.Second, Settings: &wireless.Config{
			Interface: "wlan0",
		}},
		{Name: "bat", Kind: KindBattery, Interval: 10 * time.Second, Settings: &battery.Config{
			Device:   "BAT0",
			Critical: 10,
			Recover:  5,
		}},
		{Name: "keys", Kind: KindLockKeys, Interval: time.Second, Settings: &lockkeys.Config{}},
		alsaBlock(),
		dateBlock(),
	}
}

// desktopPreset:
//
//	[mpd] [cpu] [disks] [alsa] [date]
func desktopPreset() []*Block {
	return []*Block{
		{Name: "mpd", Kind: KindMPD, Interval: 2 * time.Second, Route: "mpd",
			OnClick:  map[int]string{1: "toggle", 4: "prev", 5: "next"},
			Settings: &mpd.Config{}},
		cpuBlock(),
		{Name: "disks", Kind: KindDisk, Interval: time.Minute, Settings: &disk.Config{
			Mountpoints: []string{disk.AllMounts},
			Percentage:  90,
			HideBelow:   85,
		}},
		alsaBlock(),
		dateBlock(),
	}
}

func cpuBlock() *Block {
	return &Block{Name: "cpu", Kind: KindTemp, Interval: 5 * time.Second, Settings: &temp.Config{
		Source:   temp.SourceSensors,
		Label:    "CPU",
		Sensors:  []string{"coretemp", "k10temp"},
		Warning:  70,
		Critical: 85,
	}}
}

func alsaBlock() *Block {
	return &Block{Name: "alsa", Kind: KindVolume, Route: "alsa",
		OnClick:  map[int]string{1: "mute", 4: "up", 5: "down"},
		Settings: &volume.Config{Channel: "Master"}}
}

func dateBlock() *Block {
	return &Block{Name: "date", Kind: KindClock, Interval: time.Second, Settings: &clock.Config{}}
}
