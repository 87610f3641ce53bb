package services

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"passenger-flow-api/models"
	"passenger-flow-api/store"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
)

type ReportSource interface {
	FindEvents(ctx context.Context, f store.EventFilter) ([]models.PassengerCount, error)
	ListStops(ctx context.Context) ([]models.Stop, error)
	ListBuses(ctx context.Context) ([]models.Bus, error)
}

// ReportService renders plain-text passenger reports.
type ReportService struct {
	source ReportSource
	loc    *time.Location
	now    func() time.Time
}

func NewReportService(source ReportSource, loc *time.Location) *ReportService {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportService{source: source, loc: loc, now: time.Now}
}

// reportRow keeps every reading of one stop or bus.
type reportRow struct {
	entered []float64
	exited  []float64
}

func (r *reportRow) in() float64  { return floats.Sum(r.entered) }
func (r *reportRow) out() float64 { return floats.Sum(r.exited) }
func (r *reportRow) net() float64 { return r.in() - r.out() }

// DailyReport summarizes every count recorded on the calendar day of date.
// Stops and buses without traffic are omitted from their tables.
func (s *ReportService) DailyReport(ctx context.Context, date time.Time) ([]byte, error) {
	date = date.In(s.loc)
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, s.loc)
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)

	events, err := s.source.FindEvents(ctx, store.EventFilter{From: start, To: end})
	if err != nil {
		return nil, fmt.Errorf("load events for %s: %w", start.Format(time.DateOnly), err)
	}
	stops, err := s.source.ListStops(ctx)
	if err != nil {
		return nil, err
	}
	buses, err := s.source.ListBuses(ctx)
	if err != nil {
		return nil, err
	}

	byStop := make(map[string]*reportRow)
	byBus := make(map[int64]*reportRow)
	for _, e := range events {
		accumulate(byStop, e.StopID, e)
		accumulate(byBus, e.BusID, e)
	}

	var buf bytes.Buffer
	rule := strings.Repeat("=", 60)
	line := strings.Repeat("-", 60)

	fmt.Fprintln(&buf, rule)
	fmt.Fprintln(&buf, "PASSENGER FLOW REPORT")
	fmt.Fprintf(&buf, "Date: %s\n", start.Format(time.DateOnly))
	fmt.Fprintln(&buf, rule)
	fmt.Fprintln(&buf)

	// Every event has a stop, so the stop table adds up to the day.
	stopIn := make([]float64, 0, len(byStop))
	stopOut := make([]float64, 0, len(byStop))
	for _, row := range byStop {
		stopIn = append(stopIn, row.in())
		stopOut = append(stopOut, row.out())
	}
	totalIn, totalOut := floats.Sum(stopIn), floats.Sum(stopOut)
	fmt.Fprintln(&buf, "TOTALS:")
	fmt.Fprintf(&buf, "  Entered:  %d\n", int64(totalIn))
	fmt.Fprintf(&buf, "  Exited:   %d\n", int64(totalOut))
	fmt.Fprintf(&buf, "  Net:      %d\n", int64(totalIn-totalOut))
	fmt.Fprintf(&buf, "  Records:  %d\n", len(events))
	fmt.Fprintln(&buf)

	fmt.Fprintln(&buf, "BY STOP:")
	fmt.Fprintln(&buf, line)
	fmt.Fprintf(&buf, "%-20s %12s %12s %12s\n", "Stop", "Entered", "Exited", "Net")
	fmt.Fprintln(&buf, line)
	for _, stop := range sortedStops(stops) {
		row, ok := byStop[stop.ID]
		if !ok || (row.in() == 0 && row.out() == 0) {
			continue
		}
		fmt.Fprintf(&buf, "%-20s %12d %12d %12d\n", stop.Name, int64(row.in()), int64(row.out()), int64(row.net()))
	}
	fmt.Fprintln(&buf)

	fmt.Fprintln(&buf, "BY BUS:")
	fmt.Fprintln(&buf, line)
	fmt.Fprintf(&buf, "%-15s %-20s %12s\n", "Bus", "Route", "Passengers")
	fmt.Fprintln(&buf, line)
	for _, bus := range sortedBuses(buses) {
		row, ok := byBus[bus.ID]
		if !ok || row.net() == 0 {
			continue
		}
		route := "unassigned"
		if bus.RouteID != nil {
			route = "Route " + *bus.RouteID
		}
		fmt.Fprintf(&buf, "%-15s %-20s %12d\n", busLabel(bus), route, int64(row.net()))
	}
	fmt.Fprintln(&buf)

	fmt.Fprintf(&buf, "Generated: %s\n", s.now().In(s.loc).Format(time.DateTime))
	fmt.Fprintln(&buf, rule)

	log.Info().Str("date", start.Format(time.DateOnly)).Int("records", len(events)).Msg("daily report generated")
	return buf.Bytes(), nil
}

func accumulate[K comparable](rows map[K]*reportRow, key K, e models.PassengerCount) {
	row, ok := rows[key]
	if !ok {
		row = &reportRow{}
		rows[key] = row
	}
	row.entered = append(row.entered, float64(e.Entered))
	row.exited = append(row.exited, float64(e.Exited))
}

func sortedStops(stops []models.Stop) []models.Stop {
	out := append([]models.Stop(nil), stops...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedBuses(buses []models.Bus) []models.Bus {
	out := append([]models.Bus(nil), buses...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func busLabel(b models.Bus) string {
	if b.Model != "" {
		return b.Model
	}
	return fmt.Sprintf("#%d", b.ID)
}
