package entities

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Color is one of the three colors a round can resolve to
type Color string

const (
	ColorRed    Color = "red"
	ColorGreen  Color = "green"
	ColorViolet Color = "violet"
)

// ParseColor validates a color name
func ParseColor(s string) (Color, error) {
	switch c := Color(strings.ToLower(strings.TrimSpace(s))); c {
	case ColorRed, ColorGreen, ColorViolet:
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown color %q", ErrInvalidSelection, s)
}

// ColorsFor returns the color set of a winning digit, sorted by name.
//
//	0 -> red, violet
//	5 -> green, violet
//	1, 3, 7, 9 -> green
//	2, 4, 6, 8 -> red
func ColorsFor(digit int) []Color {
	switch {
	case digit == 0:
		return []Color{ColorRed, ColorViolet}
	case digit == 5:
		return []Color{ColorGreen, ColorViolet}
	case digit%2 == 1:
		return []Color{ColorGreen}
	default:
		return []Color{ColorRed}
	}
}

// Outcome is the drawn result of one round. There is at most one per
// (game type, duration, period) and it never changes once written.
type Outcome struct {
	GameType  GameType      `json:"game_type"`
	Duration  time.Duration `json:"duration"`
	Period    string        `json:"period"`
	Number    int           `json:"number"`
	Colors    []Color       `json:"colors"`
	CreatedAt time.Time     `json:"created_at"`
}

// NewOutcome builds an outcome for digit, deriving its colors
func NewOutcome(mode Mode, period string, digit int, createdAt time.Time) *Outcome {
	return &Outcome{
		GameType:  mode.GameType,
		Duration:  mode.Duration,
		Period:    period,
		Number:    digit,
		Colors:    ColorsFor(digit),
		CreatedAt: createdAt,
	}
}

// Mode returns the mode this outcome belongs to
func (o *Outcome) Mode() Mode {
	return Mode{GameType: o.GameType, Duration: o.Duration}
}

// HasColor reports whether c is in the winning color set
func (o *Outcome) HasColor(c Color) bool {
	for _, oc := range o.Colors {
		if oc == c {
			return true
		}
	}
	return false
}

// EncodeColors joins a color set for storage ("red,violet")
func EncodeColors(colors []Color) string {
	names := make([]string, len(colors))
	for i, c := range colors {
		names[i] = string(c)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// DecodeColors parses a stored color set
func DecodeColors(s string) []Color {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	colors := make([]Color, 0, len(parts))
	for _, p := range parts {
		colors = append(colors, Color(p))
	}
	return colors
}
