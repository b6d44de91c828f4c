package i3bar

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ClickEvent is one click reported by the bar host.
type ClickEvent struct {
	Name      string   `json:"name"`
	Instance  string   `json:"instance,omitempty"`
	Button    int      `json:"button"`
	X         int      `json:"x,omitempty"`
	Y         int      `json:"y,omitempty"`
	Modifiers []string `json:"modifiers,omitempty"`
}

// ParseClick decodes one line of the click stream. The host sends an opening
// "[" line and prefixes every event after the first with a comma; ok is false
// for lines that carry no event.
func ParseClick(line string) (ev ClickEvent, ok bool, err error) {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, ",")
	line = strings.TrimSpace(line)
	if line == "" || line == "[" || line == "]" {
		return ClickEvent{}, false, nil
	}
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return ClickEvent{}, false, fmt.Errorf("decode click event: %w", err)
	}
	return ev, true, nil
}

// ReadClicks reads click events from r until EOF or until ctx is cancelled,
// calling handle for each. Malformed lines are logged and skipped. Since a
// blocked read cannot be interrupted, cancellation is only observed between
// lines; callers close r to stop promptly.
func ReadClicks(ctx context.Context, r io.Reader, logger *slog.Logger, handle func(ClickEvent)) error {
	if logger == nil {
		logger = slog.Default()
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 64*1024)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		ev, ok, err := ParseClick(sc.Text())
		if err != nil {
			logger.Debug("ignoring malformed click event", "error", err)
			continue
		}
		if ok {
			handle(ev)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read click events: %w", err)
	}
	return nil
}
