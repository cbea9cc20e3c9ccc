// Package gcal adapts the Google Calendar v3 API behind the narrow surface
// the sync engine needs: calendar create/verify/delete and event upsert/delete
// keyed by deterministic IDs.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

var (
	// ErrNotFound maps 404/410 from the calendar service.
	ErrNotFound = errors.New("calendar resource not found")
	// ErrCircuitOpen is returned without touching the network while the
	// breaker is open.
	ErrCircuitOpen = errors.New("calendar service circuit open")
)

// API is the opaque remote calendar service as the sync engine sees it.
type API interface {
	CreateCalendar(ctx context.Context, summary, timezone string) (string, error)
	VerifyCalendar(ctx context.Context, calendarID string) error
	DeleteCalendar(ctx context.Context, calendarID string) error
	UpsertEvent(ctx context.Context, calendarID string, ev *calendar.Event) (string, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// Factory builds an API bound to one user's access token. The orchestrator
// calls it after the credential manager resolved a token; tests substitute a
// fake.
type Factory func(ctx context.Context, accessToken string) (API, error)

// NewFactory returns a Factory whose clients share one outbound rate limiter
// and one circuit breaker across all users in a batch run.
func NewFactory(log *slog.Logger, qps float64) Factory {
	limiter := rate.NewLimiter(rate.Limit(qps), int(qps)+1)
	breaker := NewCircuitBreaker()

	return func(ctx context.Context, accessToken string) (API, error) {
		svc, err := calendar.NewService(ctx,
			option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create calendar service: %w", err)
		}
		return &Client{
			service: svc,
			limiter: limiter,
			breaker: breaker,
			log:     log,
		}, nil
	}
}

type Client struct {
	service *calendar.Service
	limiter *rate.Limiter
	breaker *CircuitBreaker
	log     *slog.Logger
}

func (c *Client) CreateCalendar(ctx context.Context, summary, timezone string) (string, error) {
	var id string
	err := c.do(ctx, func() error {
		cal, err := c.service.Calendars.Insert(&calendar.Calendar{
			Summary:  summary,
			TimeZone: timezone,
		}).Context(ctx).Do()
		if err != nil {
			return err
		}
		id = cal.Id
		return nil
	})
	return id, err
}

func (c *Client) VerifyCalendar(ctx context.Context, calendarID string) error {
	return c.do(ctx, func() error {
		_, err := c.service.Calendars.Get(calendarID).Context(ctx).Do()
		return err
	})
}

func (c *Client) DeleteCalendar(ctx context.Context, calendarID string) error {
	return c.do(ctx, func() error {
		return c.service.Calendars.Delete(calendarID).Context(ctx).Do()
	})
}

// UpsertEvent updates the event with ev.Id in place, falling back to insert
// when it does not exist yet. Because ev.Id is derived from the internal
// event ID, calling this twice can never produce two external resources.
func (c *Client) UpsertEvent(ctx context.Context, calendarID string, ev *calendar.Event) (string, error) {
	err := c.do(ctx, func() error {
		_, err := c.service.Events.Update(calendarID, ev.Id, ev).Context(ctx).Do()
		return err
	})
	if err == nil {
		return ev.Id, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	err = c.do(ctx, func() error {
		_, err := c.service.Events.Insert(calendarID, ev).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", err
	}
	return ev.Id, nil
}

func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	return c.do(ctx, func() error {
		return c.service.Events.Delete(calendarID, eventID).Context(ctx).Do()
	})
}

// do wraps one API call with the breaker and the QPS limiter. Not-found is a
// normal outcome (stale calendars, first upsert) and does not trip the breaker.
func (c *Client) do(ctx context.Context, fn func() error) error {
	if !c.breaker.Allow() {
		return ErrCircuitOpen
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	err := fn()
	if err == nil {
		c.breaker.RecordSuccess()
		return nil
	}

	if isNotFound(err) {
		c.breaker.RecordSuccess()
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	c.breaker.RecordFailure()
	c.log.Warn("gcal_call_failed", "breaker", c.breaker.StateString(), "error", err)
	return err
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 404 || apiErr.Code == 410
	}
	return false
}
