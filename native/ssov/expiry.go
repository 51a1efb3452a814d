package ssov

import (
	"fmt"
	"strings"
	"time"
)

const expiryHourUTC = 8

// ExpirySchedule derives an epoch's expiry from its bootstrap time.
type ExpirySchedule interface {
	NextExpiry(now int64) int64
}

// MonthlySchedule expires on the last Friday of the month at 08:00 UTC. When
// that moment has already passed, the following month's last Friday is used.
type MonthlySchedule struct{}

func lastFridayOfMonth(year int, month time.Month) time.Time {
	lastDay := time.Date(year, month+1, 1, expiryHourUTC, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	back := (int(lastDay.Weekday()) - int(time.Friday) + 7) % 7
	return lastDay.AddDate(0, 0, -back)
}

func (MonthlySchedule) NextExpiry(now int64) int64 {
	t := time.Unix(now, 0).UTC()
	expiry := lastFridayOfMonth(t.Year(), t.Month())
	if expiry.Unix() <= now {
		next := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
		expiry = lastFridayOfMonth(next.Year(), next.Month())
	}
	return expiry.Unix()
}

// WeeklySchedule expires on the next Friday at 08:00 UTC strictly after now.
type WeeklySchedule struct{}

func (WeeklySchedule) NextExpiry(now int64) int64 {
	t := time.Unix(now, 0).UTC()
	ahead := (int(time.Friday) - int(t.Weekday()) + 7) % 7
	candidate := time.Date(t.Year(), t.Month(), t.Day()+ahead, expiryHourUTC, 0, 0, 0, time.UTC)
	if candidate.Unix() <= now {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate.Unix()
}

// FixedDurationSchedule expires a constant duration after bootstrap.
type FixedDurationSchedule struct {
	Duration time.Duration
}

func (s FixedDurationSchedule) NextExpiry(now int64) int64 {
	return now + int64(s.Duration/time.Second)
}

// ParseSchedule resolves a schedule name from configuration.
func ParseSchedule(name string, fixed time.Duration) (ExpirySchedule, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "monthly":
		return MonthlySchedule{}, nil
	case "weekly":
		return WeeklySchedule{}, nil
	case "fixed":
		if fixed <= 0 {
			return nil, fmt.Errorf("%w: fixed expiry requires a positive duration", ErrInvalidInput)
		}
		return FixedDurationSchedule{Duration: fixed}, nil
	default:
		return nil, fmt.Errorf("%w: unknown expiry schedule %q", ErrInvalidInput, name)
	}
}
