package reply

import (
	"sort"
	"time"

	"transitquery/internal/models"
)

// DepartureReply collects departures or arrivals at a stop.
type DepartureReply struct {
	Reply[models.Departure]
	request models.DepartureRequest
}

func NewDepartureReply(req models.DepartureRequest) *DepartureReply {
	r := &DepartureReply{request: req}
	r.init(r.finalizeResult)
	return r
}

func (r *DepartureReply) Request() models.DepartureRequest {
	return r.request
}

// sortTime is the scheduled time departures are ordered by.
func (r *DepartureReply) sortTime(d models.Departure) time.Time {
	if r.request.Mode == models.QueryArrival {
		if !d.ScheduledArrivalTime.IsZero() {
			return d.ScheduledArrivalTime
		}
		return d.ScheduledDepartureTime
	}
	if !d.ScheduledDepartureTime.IsZero() {
		return d.ScheduledDepartureTime
	}
	return d.ScheduledArrivalTime
}

// finalizeResult sorts by scheduled time and merges duplicates reported by
// different backends. Duplicates always share the scheduled time, so only
// entries within a run of equal times are compared.
func (r *DepartureReply) finalizeResult(deps []models.Departure) []models.Departure {
	sort.SliceStable(deps, func(i, j int) bool {
		return r.sortTime(deps[i]).Before(r.sortTime(deps[j]))
	})

	out := make([]models.Departure, 0, len(deps))
	for start := 0; start < len(deps); {
		end := start + 1
		for end < len(deps) && r.sortTime(deps[end]).Equal(r.sortTime(deps[start])) {
			end++
		}
		out = append(out, mergeRun(deps[start:end])...)
		start = end
	}
	return out
}

func mergeRun(run []models.Departure) []models.Departure {
	merged := make([]models.Departure, 0, len(run))
	for _, d := range run {
		found := false
		for i := range merged {
			if models.IsSameDeparture(merged[i], d) {
				merged[i] = models.MergeDeparture(merged[i], d)
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, d)
		}
	}
	return merged
}
