package tui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestRenderSpeedGraph_Dimensions(t *testing.T) {
	graph := renderSpeedGraph([]float64{1, 5, 10, 3}, 20, 4, 10)
	lines := strings.Split(plain(graph), "\n")
	assert.Len(t, lines, 4)
	for _, line := range lines {
		assert.Equal(t, 20, lipgloss.Width(line))
	}
	// The peak reaches the top row
	assert.Contains(t, lines[0], "█")
}

func TestRenderSpeedGraph_Empty(t *testing.T) {
	assert.Equal(t, "", renderSpeedGraph(nil, 0, 4, 1))
	graph := plain(renderSpeedGraph(nil, 10, 2, 0))
	assert.Equal(t, strings.Repeat(" ", 10)+"\n"+strings.Repeat("─", 10), graph)
}

func TestPushSpeed(t *testing.T) {
	var h []float64
	for i := 0; i < speedHistoryLen+5; i++ {
		h = pushSpeed(h, float64(i))
	}
	assert.Len(t, h, speedHistoryLen)
	assert.Equal(t, float64(5), h[0])
	assert.Equal(t, float64(speedHistoryLen+4), h[len(h)-1])
}

func TestApplyGradient(t *testing.T) {
	out := plain(ApplyGradient("one\ntwo", lipgloss.Color("#ff0000"), lipgloss.Color("#0000ff")))
	assert.Equal(t, "one\ntwo", out)

	// Non-hex colors leave the text alone
	assert.Equal(t, "logo", ApplyGradient("logo", lipgloss.Color("5"), lipgloss.Color("#fff")))
}

func TestHexToRGB(t *testing.T) {
	c, err := hexToRGB("#fff")
	assert.NoError(t, err)
	assert.Equal(t, rgb{255, 255, 255}, c)

	c, err = hexToRGB("102030")
	assert.NoError(t, err)
	assert.Equal(t, rgb{0x10, 0x20, 0x30}, c)

	_, err = hexToRGB("#12345")
	assert.Error(t, err)
}
