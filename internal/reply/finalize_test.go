package reply

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transitquery/internal/models"
)

func TestDepartureReply_MergesDuplicates(t *testing.T) {
	at := time.Date(2019, 1, 5, 14, 0, 0, 0, time.UTC)
	req := models.NewDepartureRequest(models.NewLocation("Central")).WithDateTime(at)
	r := NewDepartureReply(req)
	assert.Equal(t, at, r.Request().DateTime)

	route := models.Route{Line: models.Line{Name: "IC 5"}, Direction: "Basel"}
	fromA := models.Departure{Route: route, StopPoint: models.NewLocation("Central"), ScheduledDepartureTime: at.Add(5 * time.Minute)}
	fromB := fromA
	fromB.ScheduledPlatform = "3"

	r.SetPendingOps(2)
	r.AddResult([]models.Departure{fromA})
	r.AddResult([]models.Departure{fromB})
	waitFinished(t, r.Finished())

	res := r.Result()
	require.Len(t, res, 1)
	assert.Equal(t, at.Add(5*time.Minute), res[0].ScheduledDepartureTime)
	assert.Equal(t, "3", res[0].ScheduledPlatform)
}

func TestDepartureReply_SortsAndKeepsDistinct(t *testing.T) {
	at := time.Date(2019, 1, 5, 14, 0, 0, 0, time.UTC)
	dep := func(line string, offset time.Duration) models.Departure {
		return models.Departure{
			Route:                  models.Route{Line: models.Line{Name: line}},
			ScheduledDepartureTime: at.Add(offset),
		}
	}

	r := NewDepartureReply(models.NewDepartureRequest(models.NewLocation("Central")))
	r.SetPendingOps(2)
	r.AddResult([]models.Departure{dep("S1", 10*time.Minute), dep("S2", 5*time.Minute)})
	r.AddResult([]models.Departure{dep("S3", 5*time.Minute), dep("S1", 20*time.Minute), dep("S1", 10*time.Minute)})
	waitFinished(t, r.Finished())

	res := r.Result()
	require.Len(t, res, 4)
	names := []string{res[0].Route.Line.Name, res[1].Route.Line.Name, res[2].Route.Line.Name, res[3].Route.Line.Name}
	assert.Equal(t, []string{"S2", "S3", "S1", "S1"}, names)
	assert.Equal(t, at.Add(10*time.Minute), res[2].ScheduledDepartureTime)
	assert.Equal(t, at.Add(20*time.Minute), res[3].ScheduledDepartureTime)
}

func TestDepartureReply_ArrivalModeSortsByArrival(t *testing.T) {
	at := time.Date(2019, 1, 5, 14, 0, 0, 0, time.UTC)
	req := models.NewDepartureRequest(models.NewLocation("Central")).WithMode(models.QueryArrival)
	r := NewDepartureReply(req)

	late := models.Departure{Route: models.Route{Line: models.Line{Name: "late"}}, ScheduledArrivalTime: at.Add(30 * time.Minute), ScheduledDepartureTime: at}
	early := models.Departure{Route: models.Route{Line: models.Line{Name: "early"}}, ScheduledArrivalTime: at.Add(10 * time.Minute), ScheduledDepartureTime: at.Add(time.Hour)}

	r.SetPendingOps(1)
	r.AddResult([]models.Departure{late, early})
	waitFinished(t, r.Finished())

	res := r.Result()
	require.Len(t, res, 2)
	assert.Equal(t, "early", res[0].Route.Line.Name)
	assert.Equal(t, "late", res[1].Route.Line.Name)
}

func TestJourneyReply_BackfillsWalkingTimeZones(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	station := models.NewLocation("Gare du Nord")
	station.TimeZone = paris
	address := models.NewLocation("10 Rue de Dunkerque")

	// the walk's end has no zone, so its wall clock was parsed as UTC
	walk := models.JourneySection{
		Mode:                   models.SectionWalking,
		From:                   station,
		To:                     address,
		ScheduledDepartureTime: time.Date(2018, 12, 19, 10, 30, 0, 0, paris),
		ScheduledArrivalTime:   time.Date(2018, 12, 19, 10, 40, 0, 0, time.UTC),
	}
	train := models.JourneySection{
		Mode:                   models.SectionPublicTransport,
		From:                   models.NewLocation("Aéroport CDG"),
		To:                     station,
		ScheduledDepartureTime: time.Date(2018, 12, 19, 10, 0, 0, 0, paris),
		ScheduledArrivalTime:   time.Date(2018, 12, 19, 10, 28, 0, 0, paris),
	}
	leadingWalk := models.JourneySection{
		Mode:                   models.SectionWalking,
		From:                   address,
		To:                     address,
		ScheduledDepartureTime: time.Date(2018, 12, 19, 8, 0, 0, 0, time.UTC),
		ScheduledArrivalTime:   time.Date(2018, 12, 19, 8, 10, 0, 0, time.UTC),
	}
	later := models.Journey{Sections: []models.JourneySection{train, walk}}
	earlier := models.Journey{Sections: []models.JourneySection{leadingWalk}}

	r := NewJourneyReply(models.NewJourneyRequest(models.NewLocation("CDG"), models.NewLocation("Paris")))
	r.SetPendingOps(1)
	r.AddResult([]models.Journey{later, earlier})
	waitFinished(t, r.Finished())

	res := r.Result()
	require.Len(t, res, 2)

	// sorted by departure; the walk-only journey has no zone to borrow
	assert.Len(t, res[0].Sections, 1)
	assert.Nil(t, res[0].Sections[0].From.TimeZone)

	fixed := res[1].Sections[1]
	require.NotNil(t, fixed.To.TimeZone)
	assert.Equal(t, "Europe/Paris", fixed.To.TimeZone.String())
	assert.True(t, fixed.ScheduledArrivalTime.Equal(time.Date(2018, 12, 19, 10, 40, 0, 0, paris)))
	assert.Equal(t, 10*time.Minute, fixed.Duration())

	// the input journey is not modified
	assert.Nil(t, later.Sections[1].To.TimeZone)
}

func TestBackfillWalkingTimeZones_FromNextSection(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	stop := models.NewLocation("Berlin Hbf")
	stop.TimeZone = berlin

	sections := []models.JourneySection{
		{
			Mode:                   models.SectionWalking,
			From:                   models.NewLocation("Home"),
			To:                     models.NewLocation("Corner"),
			ScheduledDepartureTime: time.Date(2019, 1, 5, 8, 0, 0, 0, time.UTC),
			ScheduledArrivalTime:   time.Date(2019, 1, 5, 8, 10, 0, 0, time.UTC),
		},
		{
			Mode:                   models.SectionPublicTransport,
			From:                   stop,
			To:                     stop,
			ScheduledDepartureTime: time.Date(2019, 1, 5, 8, 15, 0, 0, berlin),
		},
	}

	out := backfillWalkingTimeZones(sections)
	require.NotNil(t, out[0].To.TimeZone)
	require.NotNil(t, out[0].From.TimeZone)
	assert.Equal(t, "Europe/Berlin", out[0].From.TimeZone.String())
	assert.True(t, out[0].ScheduledDepartureTime.Equal(time.Date(2019, 1, 5, 8, 0, 0, 0, berlin)))
	assert.Empty(t, backfillWalkingTimeZones(nil))
}

func TestLocationReply_Concatenates(t *testing.T) {
	r := NewLocationReply(models.NewLocationRequest().WithName("Randa"))
	r.SetPendingOps(2)
	r.AddResult([]models.Location{models.NewLocation("B"), models.NewLocation("A")})
	r.AddResult([]models.Location{models.NewLocation("B")})
	waitFinished(t, r.Finished())

	res := r.Result()
	require.Len(t, res, 3)
	assert.Equal(t, "B", res[0].Name)
	assert.Equal(t, "A", res[1].Name)
	assert.Equal(t, "B", res[2].Name)
	assert.Equal(t, "Randa", r.Request().Name)
}
