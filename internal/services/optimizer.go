package services

import (
	"context"
	"errors"
	"field-route-service/internal/domain"
	"field-route-service/internal/platform/metrics"
	"field-route-service/internal/platform/obs"
	"field-route-service/internal/ports"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultRangeConcurrency = 4
	DefaultMaxRangeDays     = 31
)

// DateFailure records a date of a range run that could not be optimized.
type DateFailure struct {
	Date time.Time
	Err  error
}

type RangeResult struct {
	Routes   []*domain.Route
	Failures []DateFailure
}

// Optimizer drives grouping and route building for whole dates.
type Optimizer struct {
	meetings ports.MeetingRepository
	grouper  *CarpoolGrouper
	builder  *RouteBuilder

	Concurrency  int
	MaxRangeDays int
}

func NewOptimizer(meetings ports.MeetingRepository, grouper *CarpoolGrouper, builder *RouteBuilder) *Optimizer {
	return &Optimizer{
		meetings:     meetings,
		grouper:      grouper,
		builder:      builder,
		Concurrency:  DefaultRangeConcurrency,
		MaxRangeDays: DefaultMaxRangeDays,
	}
}

// OptimizeForDate builds and persists routes for every carpool group of date's field meetings,
// with status optimized. Groups whose route cannot be resolved, sequenced or persisted are
// logged and skipped. The error is non-nil only when the meetings cannot be loaded.
func (o *Optimizer) OptimizeForDate(ctx context.Context, date time.Time) ([]*domain.Route, error) {
	return o.optimizeDate(ctx, date, domain.RouteStatusOptimized)
}

// OptimizeForRange optimizes every date from start to end inclusive, persisting routes as pending.
// Dates run concurrently and independently; a failing date is reported in Failures and never
// stops the others. Routes are ordered by date.
func (o *Optimizer) OptimizeForRange(ctx context.Context, start, end time.Time) (_ *RangeResult, err error) {
	defer obs.Time(ctx, "optimizer.OptimizeForRange")(&err)

	start, end = truncateDay(start), truncateDay(end)
	if end.Before(start) {
		return nil, fmt.Errorf("optimize range: end %s before start %s: %w",
			end.Format(time.DateOnly), start.Format(time.DateOnly), domain.ErrValidation)
	}

	days := int(end.Sub(start).Hours()/24) + 1
	if o.MaxRangeDays > 0 && days > o.MaxRangeDays {
		return nil, fmt.Errorf("optimize range: %d days exceeds limit of %d: %w", days, o.MaxRangeDays, domain.ErrValidation)
	}

	perDate := make([][]*domain.Route, days)
	var (
		mu       sync.Mutex
		failures []DateFailure
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(o.Concurrency, 1))

	for i := range days {
		date := start.AddDate(0, 0, i)
		g.Go(func() error {
			routes, err := o.optimizeDate(gctx, date, domain.RouteStatusPending)
			if err != nil {
				mu.Lock()
				failures = append(failures, DateFailure{Date: date, Err: err})
				mu.Unlock()
				return nil
			}
			perDate[i] = routes
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(failures, func(a, b DateFailure) int { return a.Date.Compare(b.Date) })

	res := &RangeResult{Failures: failures}
	for _, routes := range perDate {
		res.Routes = append(res.Routes, routes...)
	}
	return res, nil
}

func (o *Optimizer) optimizeDate(ctx context.Context, date time.Time, status domain.RouteStatus) (_ []*domain.Route, err error) {
	defer obs.Time(ctx, "optimizer.optimizeDate")(&err)

	date = truncateDay(date)
	logger := zerolog.Ctx(ctx).With().Str("date", date.Format(time.DateOnly)).Logger()

	meetings, err := o.meetings.ListMeetings(ctx, date, domain.MeetingKindField)
	if err != nil {
		return nil, fmt.Errorf("optimize %s: list meetings: %w: %w", date.Format(time.DateOnly), domain.ErrPersistence, err)
	}
	if len(meetings) == 0 {
		return []*domain.Route{}, nil
	}

	byUser := make(map[int64][]*domain.Meeting)
	for _, m := range meetings {
		byUser[m.UserID] = append(byUser[m.UserID], m)
	}

	order := make([]int64, 0, len(byUser))
	for userID, ms := range byUser {
		byUser[userID] = SortByStart(ms)
		order = append(order, userID)
	}
	slices.Sort(order)

	groups := o.grouper.Group(order, byUser)
	logger.Debug().Int("meetings", len(meetings)).Int("groups", len(groups)).Msg("grouped salespeople")

	out := make([]*domain.Route, 0, len(order))
	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("optimize %s: %w", date.Format(time.DateOnly), err)
		}

		routes, err := o.buildGroup(ctx, group, byUser, status)
		if err != nil {
			metrics.GroupFailures.WithLabelValues(failureReason(err)).Inc()
			logger.Error().Err(err).Ints64("user_ids", group.UserIDs).Msg("carpool group produced no route")
			continue
		}
		if len(routes) == 0 {
			metrics.GroupFailures.WithLabelValues("no_route").Inc()
			logger.Warn().Ints64("user_ids", group.UserIDs).Msg("no route found for carpool group")
			continue
		}
		out = append(out, routes...)
	}

	logger.Info().Int("routes", len(out)).Int("groups", len(groups)).Msg("date optimized")
	return out, nil
}

func (o *Optimizer) buildGroup(
	ctx context.Context,
	group domain.CarpoolGroup,
	byUser map[int64][]*domain.Meeting,
	status domain.RouteStatus,
) ([]*domain.Route, error) {
	var (
		plan *GroupPlan
		err  error
	)
	if group.IsShared() {
		var combined []*domain.Meeting
		for _, userID := range group.UserIDs {
			combined = append(combined, byUser[userID]...)
		}
		plan, err = o.builder.PlanShared(ctx, combined, group.UserIDs)
	} else {
		plan, err = o.builder.PlanIndividual(ctx, byUser[group.UserIDs[0]])
	}
	if err != nil || plan == nil {
		return nil, err
	}

	plan.SetStatus(status)
	return o.builder.Persist(ctx, plan)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrPersistence):
		return "persistence"
	case errors.Is(err, domain.ErrValidation):
		return "sequencing"
	}
	return "other"
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
