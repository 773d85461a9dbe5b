package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the Keystone ASCII art banner and version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	p := out.ColorProfile()
	lines := []struct {
		text, color string
	}{
		{" _  __               _                   ", "#f59e0b"},
		{"| |/ /___ _   _ ___| |_ ___  _ __   ___ ", "#f97316"},
		{"| ' // _ \\ | | / __| __/ _ \\| '_ \\ / _ \\", "#ef4444"},
		{"| . \\  __/ |_| \\__ \\ || (_) | | | |  __/", "#e11d48"},
		{"|_|\\_\\___|\\__, |___/\\__\\___/|_| |_|\\___|", "#be123c"},
		{"          |___/                          ", "#9f1239"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	if version != "" {
		fmt.Fprintln(w, termenv.String("  exit readiness assessment  v"+version).Faint())
	}
	fmt.Fprintln(w)
}
