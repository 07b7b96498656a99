package clipboard

import (
	"fmt"
	"time"
)

const day = 24 * time.Hour

type RetentionPolicy struct {
	DefaultTTLDays float64
	MaxTTLDays     float64
	// Min is the storage system's smallest block-time granularity.
	Min time.Duration
}

// Resolve picks how long an item lives. When both an absolute expiry and a
// day count are given the shorter one wins. The result is floored to Min and
// clamped to MaxTTLDays.
func (p RetentionPolicy) Resolve(now time.Time, expiresAt *time.Time, ttlDays *float64) (time.Duration, error) {
	var (
		d   time.Duration
		set bool
	)
	if ttlDays != nil {
		if *ttlDays <= 0 {
			return 0, fmt.Errorf("%w: ttlDays must be positive", ErrInvalidRequest)
		}
		d, set = daysToDuration(*ttlDays), true
	}
	if expiresAt != nil {
		until := expiresAt.Sub(now)
		if !set || until < d {
			d = until
		}
		set = true
	}
	if !set {
		d = daysToDuration(p.DefaultTTLDays)
	}

	if d < p.Min {
		d = p.Min
	}
	if ceiling := daysToDuration(p.MaxTTLDays); p.MaxTTLDays > 0 && d > ceiling {
		d = ceiling
	}
	return d, nil
}

func daysToDuration(days float64) time.Duration {
	return time.Duration(days * float64(day))
}

func durationToDays(d time.Duration) float64 {
	return float64(d) / float64(day)
}
