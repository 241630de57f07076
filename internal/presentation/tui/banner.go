package tui

import (
	"fmt"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the ASCII art banner shown when an interactive chat
// starts.
func PrintBanner(version string) {
	p := termenv.ColorProfile()
	// Warm amber-to-red ramp.
	s1 := termenv.String("      _                          ").Foreground(p.Color("#fbbf24"))
	s2 := termenv.String("   __| |_ __ _____   _____ _ __  ").Foreground(p.Color("#f59e0b"))
	s3 := termenv.String("  / _` | '__/ _ \\ \\ / / _ \\ '__| ").Foreground(p.Color("#f97316"))
	s4 := termenv.String(" | (_| | | | (_) \\ V /  __/ |    ").Foreground(p.Color("#ea580c"))
	s5 := termenv.String("  \\__,_|_|  \\___/ \\_/ \\___|_|    ").Foreground(p.Color("#dc2626"))

	fmt.Println()
	fmt.Println(s1)
	fmt.Println(s2)
	fmt.Println(s3)
	fmt.Println(s4)
	fmt.Println(s5)
	fmt.Println()
	fmt.Println(termenv.String(fmt.Sprintf("  drover %s", strings.TrimSpace(version))).Faint())
	fmt.Println()
}
