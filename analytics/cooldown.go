package analytics

import "time"

// CoolDown suppresses repeats of the same key within a period. It is not
// safe for concurrent use.
type CoolDown struct {
	period time.Duration
	last   map[string]time.Time
}

func NewCoolDown(period time.Duration) *CoolDown {
	return &CoolDown{
		period: period,
		last:   map[string]time.Time{},
	}
}

// Allow reports whether key may fire at now and, if so, records it.
func (c *CoolDown) Allow(key string, now time.Time) bool {
	if t, ok := c.last[key]; ok && now.Sub(t) < c.period {
		return false
	}
	c.last[key] = now
	return true
}

// AlertGate throttles alerts: box-count reports share one cool-down and
// recognitions get one per label.
type AlertGate struct {
	counts *CoolDown
	labels *CoolDown
}

func NewAlertGate(countPeriod, labelPeriod time.Duration) *AlertGate {
	return &AlertGate{
		counts: NewCoolDown(countPeriod),
		labels: NewCoolDown(labelPeriod),
	}
}

func (g *AlertGate) AllowCount(now time.Time) bool {
	return g.counts.Allow("", now)
}

func (g *AlertGate) AllowLabel(label string, now time.Time) bool {
	return g.labels.Allow(label, now)
}
