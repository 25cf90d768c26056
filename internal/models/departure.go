package models

import "time"

// Departure is a departure or arrival of a line at a stop.
type Departure struct {
	Route                  Route     `json:"route"`
	StopPoint              Location  `json:"stopPoint"`
	ScheduledDepartureTime time.Time `json:"scheduledDepartureTime,omitzero"`
	ExpectedDepartureTime  time.Time `json:"expectedDepartureTime,omitzero"`
	ScheduledArrivalTime   time.Time `json:"scheduledArrivalTime,omitzero"`
	ExpectedArrivalTime    time.Time `json:"expectedArrivalTime,omitzero"`
	ScheduledPlatform      string    `json:"scheduledPlatform,omitempty"`
	ExpectedPlatform       string    `json:"expectedPlatform,omitempty"`
}

func (d Departure) HasExpectedDepartureTime() bool {
	return !d.ExpectedDepartureTime.IsZero()
}

func (d Departure) HasExpectedArrivalTime() bool {
	return !d.ExpectedArrivalTime.IsZero()
}

// DepartureDelay returns the departure delay, or 0 when no expected time is known.
func (d Departure) DepartureDelay() time.Duration {
	if !d.HasExpectedDepartureTime() || d.ScheduledDepartureTime.IsZero() {
		return 0
	}
	return d.ExpectedDepartureTime.Sub(d.ScheduledDepartureTime)
}

// IsSameDeparture reports whether a and b describe the same vehicle stopping
// at the same place: equal scheduled times, the same route and, where both
// are known, the same stop.
func IsSameDeparture(a, b Departure) bool {
	if !a.ScheduledDepartureTime.Equal(b.ScheduledDepartureTime) ||
		!a.ScheduledArrivalTime.Equal(b.ScheduledArrivalTime) {
		return false
	}
	if !IsSameRoute(a.Route, b.Route) {
		return false
	}
	if a.StopPoint.IsEmpty() || b.StopPoint.IsEmpty() {
		return true
	}
	return IsSameLocation(a.StopPoint, b.StopPoint)
}

// MergeDeparture combines two departures for which IsSameDeparture holds.
// Values present in a win; anything missing is taken from b.
func MergeDeparture(a, b Departure) Departure {
	d := a
	d.Route = MergeRoute(a.Route, b.Route)
	d.StopPoint = MergeLocation(a.StopPoint, b.StopPoint)
	if d.ExpectedDepartureTime.IsZero() {
		d.ExpectedDepartureTime = b.ExpectedDepartureTime
	}
	if d.ExpectedArrivalTime.IsZero() {
		d.ExpectedArrivalTime = b.ExpectedArrivalTime
	}
	if d.ScheduledPlatform == "" {
		d.ScheduledPlatform = b.ScheduledPlatform
	}
	if d.ExpectedPlatform == "" {
		d.ExpectedPlatform = b.ExpectedPlatform
	}
	return d
}
