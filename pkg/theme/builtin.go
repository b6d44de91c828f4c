package theme

import "gitlab.com/tinyland/lab/bar-pulse/pkg/bar"

func builtins() []Theme {
	return []Theme{
		defaultTheme(),
		{Name: "gruvbox", Normal: "#ebdbb2", Warning: "#fabd2f", Critical: "#fb4934"},
		{Name: "nord", Normal: "#eceff4", Warning: "#ebcb8b", Critical: "#bf616a"},
		{Name: "catppuccin", Normal: "#cdd6f4", Warning: "#f9e2af", Critical: "#f38ba8"},
		{Name: "dracula", Normal: "#f8f8f2", Warning: "#f1fa8c", Critical: "#ff5555"},
		{Name: "tokyo-night", Normal: "#c0caf5", Warning: "#e0af68", Critical: "#f7768e"},
	}
}

func defaultTheme() Theme {
	p := bar.DefaultPalette()
	return Theme{Name: DefaultName, Normal: p.Normal, Warning: p.Warning, Critical: p.Critical}
}
