// Package period maps wall-clock time to round identifiers.
//
// A period token is the reference-zone calendar date (YYYYMMDD) followed by the
// 1-based round number within that day, zero padded to at least four digits:
// "202610160001" is the first round of 16 Oct 2026. The round index is
// floor(seconds since reference midnight / duration). Every caller, whether
// placing bets, creating outcomes or settling, goes through the same Clock so
// tokens never disagree around midnight.
package period

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	// DateLayout is the date prefix of every period token
	DateLayout = "20060102"

	// DefaultCloseThreshold is how long before the end of a round betting shuts
	DefaultCloseThreshold = 5 * time.Second

	minIndexWidth = 4
)

var (
	// ErrMalformedToken is returned when a token is not in the canonical format
	ErrMalformedToken = errors.New("malformed period token")

	// IST is the reference zone for all period math (UTC+05:30, no DST)
	IST = time.FixedZone("IST", 5*60*60+30*60)
)

// Period is one round of one duration
type Period struct {
	Token    string        `json:"token"`
	Index    int           `json:"index"` // 0-based round index within the day
	Date     time.Time     `json:"-"`     // reference midnight of the round's day
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Duration time.Duration `json:"duration"`
	TimeLeft time.Duration `json:"time_left"`
}

// TimeLeftAt returns End - now, clamped to zero
func (p Period) TimeLeftAt(now time.Time) time.Duration {
	left := p.End.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// SecondsLeft is TimeLeft in whole seconds, rounded up so that a countdown
// reads above the close threshold exactly while IsOpen holds
func (p Period) SecondsLeft() int {
	return CeilSeconds(p.TimeLeft)
}

// CeilSeconds rounds d up to whole seconds
func CeilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// IsOpen reports whether bets are still accepted given the snapshot TimeLeft
func (p Period) IsOpen(closeThreshold time.Duration) bool {
	return p.TimeLeft > closeThreshold
}

// Clock computes periods in a single reference zone
type Clock struct {
	Location       *time.Location
	CloseThreshold time.Duration
}

// NewClock creates a clock for loc. A nil loc means IST.
func NewClock(loc *time.Location, closeThreshold time.Duration) *Clock {
	if loc == nil {
		loc = IST
	}
	if closeThreshold < 0 {
		closeThreshold = 0
	}
	return &Clock{
		Location:       loc,
		CloseThreshold: closeThreshold,
	}
}

// DefaultClock returns the IST clock with the default close threshold
func DefaultClock() *Clock {
	return NewClock(IST, DefaultCloseThreshold)
}

// Current returns the round that contains now. The window is [Start, End).
func (c *Clock) Current(duration time.Duration, now time.Time) Period {
	duration = normalize(duration)
	midnight := c.midnight(now)
	index := int(now.Sub(midnight) / duration)
	p := c.Window(midnight, index, duration)
	p.TimeLeft = p.TimeLeftAt(now)
	return p
}

// Window builds the period with the given 0-based index on the day starting at
// midnight. The last round of a day is cut short at the next midnight when the
// day length is not a multiple of duration.
func (c *Clock) Window(midnight time.Time, index int, duration time.Duration) Period {
	duration = normalize(duration)
	midnight = c.midnight(midnight)
	start := midnight.Add(time.Duration(index) * duration)
	end := start.Add(duration)
	if next := c.nextMidnight(midnight); end.After(next) {
		end = next
	}
	return Period{
		Token:    formatToken(midnight, index, duration),
		Index:    index,
		Date:     midnight,
		Start:    start,
		End:      end,
		Duration: duration,
		TimeLeft: duration,
	}
}

// Previous returns the round immediately before p, rolling back over midnight
func (c *Clock) Previous(p Period) Period {
	if p.Index > 0 {
		return c.Window(p.Date, p.Index-1, p.Duration)
	}
	prevDay := c.midnight(p.Date.Add(-time.Hour))
	return c.Window(prevDay, RoundsPerDay(p.Duration)-1, p.Duration)
}

// Parse rebuilds the window of a stored token for the given duration
func (c *Clock) Parse(token string, duration time.Duration) (Period, error) {
	duration = normalize(duration)
	date, number, err := splitToken(token)
	if err != nil {
		return Period{}, err
	}
	if number > RoundsPerDay(duration) {
		return Period{}, fmt.Errorf("%w: round %d out of range for %s", ErrMalformedToken, number, duration)
	}
	midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, c.Location)
	p := c.Window(midnight, number-1, duration)
	if p.Token != token {
		return Period{}, fmt.Errorf("%w: %q is not canonical for %s", ErrMalformedToken, token, duration)
	}
	return p, nil
}

// IsBettingOpen is the betting window gate: open while more than the close
// threshold remains and the round is not explicitly locked
func (c *Clock) IsBettingOpen(timeLeft time.Duration, locked bool) bool {
	if locked {
		return false
	}
	return timeLeft > c.CloseThreshold
}

// IsClosed reports whether p no longer accepts bets at now
func (c *Clock) IsClosed(p Period, now time.Time) bool {
	return !c.IsBettingOpen(p.TimeLeftAt(now), false)
}

// RoundsPerDay returns how many rounds of duration fit in a day, counting a
// trailing partial round
func RoundsPerDay(duration time.Duration) int {
	duration = normalize(duration)
	day := 24 * time.Hour
	n := int(day / duration)
	if day%duration != 0 {
		n++
	}
	return n
}

// ValidToken reports whether token has the canonical shape: a real date
// followed by a round number of at least four digits, starting at 1
func ValidToken(token string) bool {
	_, _, err := splitToken(token)
	return err == nil
}

func splitToken(token string) (time.Time, int, error) {
	if len(token) < len(DateLayout)+minIndexWidth {
		return time.Time{}, 0, fmt.Errorf("%w: %q too short", ErrMalformedToken, token)
	}
	for _, r := range token {
		if r < '0' || r > '9' {
			return time.Time{}, 0, fmt.Errorf("%w: %q has non-digit characters", ErrMalformedToken, token)
		}
	}
	date, err := time.Parse(DateLayout, token[:len(DateLayout)])
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("%w: %q has invalid date", ErrMalformedToken, token)
	}
	number, err := strconv.Atoi(token[len(DateLayout):])
	if err != nil || number < 1 {
		return time.Time{}, 0, fmt.Errorf("%w: %q has invalid round number", ErrMalformedToken, token)
	}
	return date, number, nil
}

func formatToken(midnight time.Time, index int, duration time.Duration) string {
	width := len(strconv.Itoa(RoundsPerDay(duration)))
	if width < minIndexWidth {
		width = minIndexWidth
	}
	return fmt.Sprintf("%s%0*d", midnight.Format(DateLayout), width, index+1)
}

func (c *Clock) midnight(t time.Time) time.Time {
	y, m, d := t.In(c.Location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.Location)
}

func (c *Clock) nextMidnight(midnight time.Time) time.Time {
	y, m, d := midnight.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, c.Location)
}

func normalize(duration time.Duration) time.Duration {
	if duration < time.Second {
		return time.Second
	}
	return duration
}
