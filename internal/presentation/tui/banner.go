package tui

import (
	"fmt"
	"io"

	"github.com/aretw0/proctrace/pkg/domain"
	"github.com/muesli/termenv"
)

// PrintBanner writes the proctrace banner with its version.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	s1 := termenv.String("  ┌─┐┬─┐┌─┐┌─┐┌┬┐┬─┐┌─┐┌─┐┌─┐").Foreground(p.Color("#818cf8"))
	s2 := termenv.String("  ├─┘├┬┘│ ││   │ ├┬┘├─┤│  ├┤ ").Foreground(p.Color("#c084fc"))
	s3 := termenv.String("  ┴  ┴└─└─┘└─┘ ┴ ┴└─┴ ┴└─┘└─┘").Foreground(p.Color("#f472b6"))

	fmt.Fprintln(w)
	fmt.Fprintln(w, s1)
	fmt.Fprintln(w, s2)
	fmt.Fprintln(w, s3, version)
	fmt.Fprintln(w)
}

// StatusBadge renders status coloured for the current terminal profile.
func StatusBadge(status domain.Status) string {
	return colorStatus(termenv.ColorProfile(), status)
}

func colorStatus(p termenv.Profile, status domain.Status) string {
	color := "#a1a1aa"
	switch status {
	case domain.StatusRunning:
		color = "#fbbf24"
	case domain.StatusFinished:
		color = "#34d399"
	case domain.StatusFailed:
		color = "#f87171"
	}
	return p.String(string(status)).Foreground(p.Color(color)).Bold().String()
}
