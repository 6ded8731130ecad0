package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/fadedpez/wingo/pkg/entities"
	"github.com/fadedpez/wingo/pkg/period"
)

var colorEmoji = map[entities.Color]string{
	entities.ColorRed:    "🔴",
	entities.ColorGreen:  "🟢",
	entities.ColorViolet: "🟣",
}

var digitEmoji = []string{"0️⃣", "1️⃣", "2️⃣", "3️⃣", "4️⃣", "5️⃣", "6️⃣", "7️⃣", "8️⃣", "9️⃣"}

// formatDuration renders a round length as "1m", "10m" or "90s"
func formatDuration(secs int) string {
	if secs > 0 && secs%60 == 0 {
		return fmt.Sprintf("%dm", secs/60)
	}
	return fmt.Sprintf("%ds", secs)
}

func formatColors(colors []entities.Color) string {
	parts := make([]string, 0, len(colors))
	for _, c := range colors {
		parts = append(parts, colorEmoji[c])
	}
	return strings.Join(parts, "")
}

func formatDigit(n int) string {
	if n >= 0 && n < len(digitEmoji) {
		return digitEmoji[n]
	}
	return fmt.Sprintf("%d", n)
}

// formatOutcome renders e.g. "5️⃣ 🟢🟣"
func formatOutcome(o *entities.Outcome) string {
	return formatDigit(o.Number) + " " + formatColors(o.Colors)
}

func formatSelection(sel entities.Selection) string {
	if sel.Kind == entities.BetKindNumber {
		return formatDigit(sel.Number)
	}
	return colorEmoji[sel.Color] + " " + string(sel.Color)
}

// formatTimeLeft renders a countdown as m:ss, rounding up like the API
func formatTimeLeft(d time.Duration) string {
	secs := period.CeilSeconds(d)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
