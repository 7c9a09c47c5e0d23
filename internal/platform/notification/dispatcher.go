package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/rotations/rotations/internal/platform/metrics"
)

var (
	// ErrAlertNotFound is returned for unknown or expired alert ids.
	ErrAlertNotFound = errors.New("alert not found")
	// ErrNothingToRetry is returned when every channel already succeeded.
	ErrNothingToRetry = errors.New("alert has no failed deliveries")
)

// DispatcherConfig tunes delivery.
type DispatcherConfig struct {
	// Timeout bounds each channel delivery.
	Timeout time.Duration
	// Retention is how long delivered alerts stay queryable.
	Retention time.Duration
}

// Dispatcher renders alerts and delivers them to every channel. A failing
// channel does not stop the others.
type Dispatcher struct {
	channels  []Channel
	templates *TemplateEngine
	history   *cache.Cache
	metrics   metrics.Recorder
	logger    zerolog.Logger
	timeout   time.Duration
}

func NewDispatcher(cfg DispatcherConfig, templates *TemplateEngine, rec metrics.Recorder, logger zerolog.Logger, channels ...Channel) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if rec == nil {
		rec = metrics.NewNop()
	}
	return &Dispatcher{
		channels:  channels,
		templates: templates,
		history:   cache.New(cfg.Retention, cfg.Retention/4),
		metrics:   rec,
		logger:    logger.With().Str("component", "notification").Logger(),
		timeout:   cfg.Timeout,
	}
}

// AddChannel registers another destination.
func (d *Dispatcher) AddChannel(ch Channel) {
	d.channels = append(d.channels, ch)
}

// Channels lists the names of the registered destinations.
func (d *Dispatcher) Channels() []string {
	names := make([]string, len(d.channels))
	for i, ch := range d.channels {
		names[i] = ch.Name()
	}
	return names
}

// Dispatch renders templateID with data and delivers it to every channel.
// The alert is returned even when some channels failed; err joins their errors.
func (d *Dispatcher) Dispatch(ctx context.Context, templateID string, data map[string]string, recipients []string) (*Alert, error) {
	subject, body, err := d.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	a := &Alert{
		ID:           uuid.NewString(),
		TemplateID:   templateID,
		Subject:      subject,
		Body:         body,
		Recipients:   recipients,
		Data:         data,
		AssignmentID: data["assignment_id"],
		Deliveries:   make(map[string]string, len(d.channels)),
		CreatedAt:    time.Now().UTC(),
	}
	err = d.deliver(ctx, a, d.channels)
	d.history.SetDefault(a.ID, a)
	return a, err
}

// Retry re-delivers a stored alert on the channels that failed.
func (d *Dispatcher) Retry(ctx context.Context, id string) (*Alert, error) {
	stored, err := d.Get(id)
	if err != nil {
		return nil, err
	}
	if stored.Status == StatusSent {
		return nil, ErrNothingToRetry
	}

	// Stored alerts may be read concurrently; work on a copy.
	a := *stored
	a.Deliveries = make(map[string]string, len(stored.Deliveries))
	for k, v := range stored.Deliveries {
		a.Deliveries[k] = v
	}

	var failed []Channel
	for _, ch := range d.channels {
		if st := a.Deliveries[ch.Name()]; st != StatusSent && st != StatusSkipped {
			failed = append(failed, ch)
		}
	}
	err = d.deliver(ctx, &a, failed)
	d.history.SetDefault(a.ID, &a)
	return &a, err
}

func (d *Dispatcher) deliver(ctx context.Context, a *Alert, channels []Channel) error {
	var errs []error
	for _, ch := range channels {
		cctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := ch.Deliver(cctx, a)
		cancel()

		if errors.Is(err, ErrSkipped) {
			a.Deliveries[ch.Name()] = StatusSkipped
			continue
		}
		d.metrics.RecordNotification(ch.Name(), err == nil)
		if err != nil {
			a.Deliveries[ch.Name()] = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}
		a.Deliveries[ch.Name()] = StatusSent
	}

	sent, attempted := 0, 0
	for _, v := range a.Deliveries {
		switch v {
		case StatusSkipped:
			continue
		case StatusSent:
			sent++
		}
		attempted++
	}
	switch {
	case sent == attempted:
		a.Status = StatusSent
	case sent == 0:
		a.Status = StatusFailed
	default:
		a.Status = StatusPartial
	}

	d.logger.Debug().Str("alert", a.ID).Str("status", a.Status).Interface("deliveries", a.Deliveries).Msg("alert dispatched")
	return errors.Join(errs...)
}

// Get returns a stored alert.
func (d *Dispatcher) Get(id string) (*Alert, error) {
	v, ok := d.history.Get(id)
	if !ok {
		return nil, ErrAlertNotFound
	}
	return v.(*Alert), nil
}

// Recent returns stored alerts newest first, at most limit of them.
func (d *Dispatcher) Recent(limit int) []*Alert {
	items := d.history.Items()
	out := make([]*Alert, 0, len(items))
	for _, it := range items {
		out = append(out, it.Object.(*Alert))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Stats counts stored alerts by status.
func (d *Dispatcher) Stats() map[string]int {
	stats := map[string]int{StatusSent: 0, StatusPartial: 0, StatusFailed: 0}
	for _, it := range d.history.Items() {
		stats[it.Object.(*Alert).Status]++
	}
	return stats
}
