package tui

import (
	"fmt"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the ASCII art banner for Cadence.
func PrintBanner(version string) {
	p := termenv.ColorProfile()
	lines := []string{
		`   ____          _                     `,
		`  / ___|__ _  __| | ___ _ __   ___ ___ `,
		` | |   / _' |/ _' |/ _ \ '_ \ / __/ _ \`,
		` | |__| (_| | (_| |  __/ | | | (_|  __/`,
		`  \____\__,_|\__,_|\___|_| |_|\___\___|`,
	}
	colors := []string{"#818cf8", "#a78bfa", "#c084fc", "#e879f9", "#f472b6"}

	fmt.Println()
	for i, line := range lines {
		fmt.Println(termenv.String(line).Foreground(p.Color(colors[i%len(colors)])))
	}
	fmt.Printf("  v%s\n\n", strings.TrimSpace(version))
}
