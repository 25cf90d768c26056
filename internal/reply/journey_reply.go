package reply

import (
	"sort"
	"time"

	"transitquery/internal/models"
)

// JourneyReply collects journeys between two locations.
type JourneyReply struct {
	Reply[models.Journey]
	request models.JourneyRequest
}

func NewJourneyReply(req models.JourneyRequest) *JourneyReply {
	r := &JourneyReply{request: req}
	r.init(r.finalizeResult)
	return r
}

func (r *JourneyReply) Request() models.JourneyRequest {
	return r.request
}

func (r *JourneyReply) finalizeResult(journeys []models.Journey) []models.Journey {
	for i := range journeys {
		journeys[i].Sections = backfillWalkingTimeZones(journeys[i].Sections)
	}
	sort.SliceStable(journeys, func(i, j int) bool {
		return journeys[i].ScheduledDepartureTime().Before(journeys[j].ScheduledDepartureTime())
	})
	return journeys
}

// backfillWalkingTimeZones gives walking sections, which typically start or
// end at an address without time zone information, the time zone of the
// adjacent section boundary. Times of the affected endpoint keep their wall
// clock value and are re-stamped into the new zone.
func backfillWalkingTimeZones(sections []models.JourneySection) []models.JourneySection {
	if len(sections) == 0 {
		return sections
	}
	out := make([]models.JourneySection, len(sections))
	copy(out, sections)

	for i := range out {
		s := &out[i]
		if s.Mode != models.SectionWalking {
			continue
		}

		var prevZone, nextZone *time.Location
		if i > 0 {
			prevZone = out[i-1].To.TimeZone
		}
		if i+1 < len(out) {
			nextZone = out[i+1].From.TimeZone
		}

		if s.From.TimeZone == nil {
			if tz := firstZone(prevZone, s.To.TimeZone, nextZone); tz != nil {
				s.From.TimeZone = tz
				s.ScheduledDepartureTime = restamp(s.ScheduledDepartureTime, tz)
				s.ExpectedDepartureTime = restamp(s.ExpectedDepartureTime, tz)
			}
		}
		if s.To.TimeZone == nil {
			if tz := firstZone(nextZone, s.From.TimeZone, prevZone); tz != nil {
				s.To.TimeZone = tz
				s.ScheduledArrivalTime = restamp(s.ScheduledArrivalTime, tz)
				s.ExpectedArrivalTime = restamp(s.ExpectedArrivalTime, tz)
			}
		}
	}
	return out
}

func firstZone(candidates ...*time.Location) *time.Location {
	for _, tz := range candidates {
		if tz != nil {
			return tz
		}
	}
	return nil
}

// restamp keeps the wall clock reading of t and attaches tz.
func restamp(t time.Time, tz *time.Location) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), tz)
}
