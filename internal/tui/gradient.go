package tui

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ApplyGradient colors each line of text along a vertical gradient.
// Text is returned unstyled if either color is not a hex color.
func ApplyGradient(text string, startColor, endColor lipgloss.Color) string {
	lines := strings.Split(text, "\n")
	height := len(lines)

	startRGB, err := hexToRGB(string(startColor))
	if err != nil {
		return text
	}
	endRGB, err := hexToRGB(string(endColor))
	if err != nil {
		return text
	}

	colored := make([]string, 0, height)
	for i, line := range lines {
		// A single line takes the start color
		t := 0.0
		if height > 1 {
			t = float64(i) / float64(height-1)
		}

		hexColor := fmt.Sprintf("#%02x%02x%02x",
			uint8(math.Round(lerp(float64(startRGB.r), float64(endRGB.r), t))),
			uint8(math.Round(lerp(float64(startRGB.g), float64(endRGB.g), t))),
			uint8(math.Round(lerp(float64(startRGB.b), float64(endRGB.b), t))),
		)
		colored = append(colored, lipgloss.NewStyle().Foreground(lipgloss.Color(hexColor)).Bold(true).Render(line))
	}

	return strings.Join(colored, "\n")
}

type rgb struct {
	r, g, b uint8
}

func hexToRGB(hex string) (rgb, error) {
	hex = strings.TrimPrefix(hex, "#")

	// Short form, e.g. "FFF"
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}

	if len(hex) != 6 {
		return rgb{}, fmt.Errorf("invalid hex color: %s", hex)
	}

	val, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return rgb{}, err
	}

	return rgb{
		r: uint8(val >> 16),
		g: uint8((val >> 8) & 0xFF),
		b: uint8(val & 0xFF),
	}, nil
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
