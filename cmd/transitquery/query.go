package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"transitquery/internal/backend/hafasquery"
	"transitquery/internal/clock"
	"transitquery/internal/models"
)

func parseAt(at string) (time.Time, error) {
	if at == "" {
		return time.Time{}, nil
	}
	t, err := clock.ParseTime(at, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at: %w", err)
	}
	return t, nil
}

func newJourneyCmd(opts *rootOptions) *cobra.Command {
	var (
		fromName, toName string
		fromLat, fromLon float64
		toLat, toLon     float64
		at               string
		arrival          bool
	)
	cmd := &cobra.Command{
		Use:   "journey",
		Short: "Search journeys between two coordinates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			when, err := parseAt(at)
			if err != nil {
				return err
			}
			req := models.NewJourneyRequest(
				models.NewLocationAt(fromName, fromLat, fromLon),
				models.NewLocationAt(toName, toLat, toLon),
			).WithDateTime(when)
			if arrival {
				req = req.WithDateTimeMode(models.ArriveBy)
			}

			application, err := opts.application(cmd)
			if err != nil {
				return err
			}
			defer application.Shutdown()
			ctx, cancel := queryContext(cmd, application)
			defer cancel()
			return printReply(ctx, cmd, opts, application.Manager.QueryJourney(ctx, req))
		},
	}
	f := cmd.Flags()
	f.StringVar(&fromName, "from-name", "", "name of the origin")
	f.Float64Var(&fromLat, "from-lat", 0, "origin latitude")
	f.Float64Var(&fromLon, "from-lon", 0, "origin longitude")
	f.StringVar(&toName, "to-name", "", "name of the destination")
	f.Float64Var(&toLat, "to-lat", 0, "destination latitude")
	f.Float64Var(&toLon, "to-lon", 0, "destination longitude")
	f.StringVar(&at, "at", "", "date/time, RFC 3339 or YYYY-MM-DD HH:MM (default now)")
	f.BoolVar(&arrival, "arrival", false, "--at is the latest arrival time")
	for _, name := range []string{"from-lat", "from-lon", "to-lat", "to-lon"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newDepartureCmd(opts *rootOptions) *cobra.Command {
	var (
		name, ibnr, at string
		lat, lon       float64
		arrival        bool
	)
	cmd := &cobra.Command{
		Use:   "departure",
		Short: "List departures or arrivals at a stop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stop := models.NewLocation(name)
			flags := cmd.Flags()
			if flags.Changed("lat") || flags.Changed("lon") {
				stop = stop.WithCoordinate(lat, lon)
			}
			if ibnr != "" {
				stop = stop.WithIdentifier(hafasquery.IdentifierType, ibnr)
			}
			if stop.Name == "" && !stop.HasCoordinate() && ibnr == "" {
				return errors.New("one of --name, --lat/--lon or --ibnr is required")
			}

			when, err := parseAt(at)
			if err != nil {
				return err
			}
			req := models.NewDepartureRequest(stop).WithDateTime(when)
			if arrival {
				req = req.WithMode(models.QueryArrival)
			}

			application, err := opts.application(cmd)
			if err != nil {
				return err
			}
			defer application.Shutdown()
			ctx, cancel := queryContext(cmd, application)
			defer cancel()
			return printReply(ctx, cmd, opts, application.Manager.QueryDeparture(ctx, req))
		},
	}
	f := cmd.Flags()
	f.StringVar(&name, "name", "", "stop name")
	f.Float64Var(&lat, "lat", 0, "stop latitude")
	f.Float64Var(&lon, "lon", 0, "stop longitude")
	f.StringVar(&ibnr, "ibnr", "", "IBNR station number")
	f.StringVar(&at, "at", "", "date/time, RFC 3339 or YYYY-MM-DD HH:MM (default now)")
	f.BoolVar(&arrival, "arrival", false, "list arrivals instead of departures")
	return cmd
}

func newLocationCmd(opts *rootOptions) *cobra.Command {
	var (
		name     string
		lat, lon float64
	)
	cmd := &cobra.Command{
		Use:   "location",
		Short: "Search stops and places by name or coordinate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := models.NewLocationRequest().WithName(name)
			flags := cmd.Flags()
			if flags.Changed("lat") || flags.Changed("lon") {
				req = req.WithCoordinate(lat, lon)
			}
			if !req.IsValid() {
				return errors.New("one of --name or --lat/--lon is required")
			}

			application, err := opts.application(cmd)
			if err != nil {
				return err
			}
			defer application.Shutdown()
			ctx, cancel := queryContext(cmd, application)
			defer cancel()
			return printReply(ctx, cmd, opts, application.Manager.QueryLocation(ctx, req))
		},
	}
	f := cmd.Flags()
	f.StringVar(&name, "name", "", "name to search for")
	f.Float64Var(&lat, "lat", 0, "latitude")
	f.Float64Var(&lon, "lon", 0, "longitude")
	return cmd
}
