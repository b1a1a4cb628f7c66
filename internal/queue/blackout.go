package queue

import "time"

// Blackout is a weekly window during which nothing is dispatched. Start and
// End are offsets from local midnight; both ends are inclusive at second
// resolution.
type Blackout struct {
	Enabled  bool
	Weekday  time.Weekday
	Start    time.Duration
	End      time.Duration
	Location *time.Location
}

// Contains reports whether t falls inside the window.
func (b Blackout) Contains(t time.Time) bool {
	if !b.Enabled {
		return false
	}
	loc := b.Location
	if loc == nil {
		loc = time.Local
	}
	local := t.In(loc)
	if local.Weekday() != b.Weekday {
		return false
	}
	tod := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second
	return tod >= b.Start && tod <= b.End
}
