package models

import (
	"fmt"
	"time"
)

// JourneySectionMode is the kind of a journey section.
type JourneySectionMode int

const (
	SectionInvalid JourneySectionMode = iota
	SectionPublicTransport
	SectionTransfer
	SectionWalking
	SectionWaiting
)

var sectionModeNames = []string{"Invalid", "PublicTransport", "Transfer", "Walking", "Waiting"}

func (m JourneySectionMode) String() string {
	if m < 0 || int(m) >= len(sectionModeNames) {
		return sectionModeNames[SectionInvalid]
	}
	return sectionModeNames[m]
}

func (m JourneySectionMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *JourneySectionMode) UnmarshalText(text []byte) error {
	for i, n := range sectionModeNames {
		if n == string(text) {
			*m = JourneySectionMode(i)
			return nil
		}
	}
	return fmt.Errorf("unknown journey section mode %q", string(text))
}

// Coordinate is one vertex of a section path.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// JourneySection is one leg of a journey.
type JourneySection struct {
	Mode                       JourneySectionMode `json:"mode"`
	ScheduledDepartureTime     time.Time          `json:"scheduledDepartureTime,omitzero"`
	ExpectedDepartureTime      time.Time          `json:"expectedDepartureTime,omitzero"`
	ScheduledArrivalTime       time.Time          `json:"scheduledArrivalTime,omitzero"`
	ExpectedArrivalTime        time.Time          `json:"expectedArrivalTime,omitzero"`
	From                       Location           `json:"from"`
	To                         Location           `json:"to"`
	Route                      Route              `json:"route"`
	ScheduledDeparturePlatform string             `json:"scheduledDeparturePlatform,omitempty"`
	ExpectedDeparturePlatform  string             `json:"expectedDeparturePlatform,omitempty"`
	ScheduledArrivalPlatform   string             `json:"scheduledArrivalPlatform,omitempty"`
	ExpectedArrivalPlatform    string             `json:"expectedArrivalPlatform,omitempty"`
	Path                       []Coordinate       `json:"path,omitempty"`
}

// Duration is the scheduled duration of the section.
func (s JourneySection) Duration() time.Duration {
	if s.ScheduledDepartureTime.IsZero() || s.ScheduledArrivalTime.IsZero() {
		return 0
	}
	return s.ScheduledArrivalTime.Sub(s.ScheduledDepartureTime)
}

// IsSameJourneySection reports whether a and b are the same leg.
func IsSameJourneySection(a, b JourneySection) bool {
	if a.Mode != b.Mode {
		return false
	}
	if !a.ScheduledDepartureTime.Equal(b.ScheduledDepartureTime) ||
		!a.ScheduledArrivalTime.Equal(b.ScheduledArrivalTime) {
		return false
	}
	if a.Mode == SectionPublicTransport && !IsSameRoute(a.Route, b.Route) {
		return false
	}
	return IsSameLocation(a.From, b.From) && IsSameLocation(a.To, b.To)
}

// MergeJourneySection combines two sections for which IsSameJourneySection holds.
func MergeJourneySection(a, b JourneySection) JourneySection {
	s := a
	s.From = MergeLocation(a.From, b.From)
	s.To = MergeLocation(a.To, b.To)
	s.Route = MergeRoute(a.Route, b.Route)
	if s.ExpectedDepartureTime.IsZero() {
		s.ExpectedDepartureTime = b.ExpectedDepartureTime
	}
	if s.ExpectedArrivalTime.IsZero() {
		s.ExpectedArrivalTime = b.ExpectedArrivalTime
	}
	if s.ScheduledDeparturePlatform == "" {
		s.ScheduledDeparturePlatform = b.ScheduledDeparturePlatform
	}
	if s.ExpectedDeparturePlatform == "" {
		s.ExpectedDeparturePlatform = b.ExpectedDeparturePlatform
	}
	if s.ScheduledArrivalPlatform == "" {
		s.ScheduledArrivalPlatform = b.ScheduledArrivalPlatform
	}
	if s.ExpectedArrivalPlatform == "" {
		s.ExpectedArrivalPlatform = b.ExpectedArrivalPlatform
	}
	if len(s.Path) == 0 {
		s.Path = b.Path
	}
	return s
}

// Journey is a sequence of sections from an origin to a destination.
type Journey struct {
	Sections []JourneySection `json:"sections"`
}

// ScheduledDepartureTime is the departure time of the first section.
func (j Journey) ScheduledDepartureTime() time.Time {
	if len(j.Sections) == 0 {
		return time.Time{}
	}
	return j.Sections[0].ScheduledDepartureTime
}

// ScheduledArrivalTime is the arrival time of the last section.
func (j Journey) ScheduledArrivalTime() time.Time {
	if len(j.Sections) == 0 {
		return time.Time{}
	}
	return j.Sections[len(j.Sections)-1].ScheduledArrivalTime
}

func (j Journey) Duration() time.Duration {
	dep, arr := j.ScheduledDepartureTime(), j.ScheduledArrivalTime()
	if dep.IsZero() || arr.IsZero() {
		return 0
	}
	return arr.Sub(dep)
}

// NumberOfChanges counts public transport sections beyond the first.
func (j Journey) NumberOfChanges() int {
	n := 0
	for _, s := range j.Sections {
		if s.Mode == SectionPublicTransport {
			n++
		}
	}
	return max(0, n-1)
}
