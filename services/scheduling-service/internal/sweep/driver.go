// Package sweep runs the periodic reminder sweep: plan due reminders, then claim, send and
// record each one on a bounded worker pool.
package sweep

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	otelx "github.com/md-rashed-zaman/slotkeeper/libs/otel"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/dispatch"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/ledger"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

type Planner interface {
	CollectDue(ctx context.Context, now time.Time) ([]model.ReminderTask, error)
}

type Sender interface {
	Send(ctx context.Context, ch model.Channel, recipient string, msg dispatch.Message) (dispatch.Receipt, error)
}

type Renderer interface {
	Render(task model.ReminderTask) (dispatch.Message, error)
}

type Config struct {
	Interval    time.Duration
	Workers     int
	TaskTimeout time.Duration
	// Clock defaults to time.Now.
	Clock func() time.Time
}

type Driver struct {
	planner     Planner
	ledger      ledger.Store
	sender      Sender
	renderer    Renderer
	logger      *slog.Logger
	interval    time.Duration
	workers     int
	taskTimeout time.Duration
	now         func() time.Time
	tracer      trace.Tracer
}

func NewDriver(planner Planner, store ledger.Store, sender Sender, renderer Renderer, logger *slog.Logger, cfg Config) *Driver {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Driver{
		planner:     planner,
		ledger:      store,
		sender:      sender,
		renderer:    renderer,
		logger:      logger,
		interval:    cfg.Interval,
		workers:     cfg.Workers,
		taskTimeout: cfg.TaskTimeout,
		now:         cfg.Clock,
		tracer:      otelx.Tracer("scheduling-service/sweep"),
	}
}

// Stats summarises one sweep.
type Stats struct {
	Due     int
	Claimed int64
	Sent    int64
	Failed  int64
	Skipped int64
	Errors  int64
}

// Run sweeps once immediately and then every interval until ctx is cancelled. It returns
// after the sweep in progress has drained.
func (d *Driver) Run(ctx context.Context) {
	d.logger.Info("reminder sweep started", "interval", d.interval, "workers", d.workers)
	d.sweepAndLog(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("reminder sweep stopped")
			return
		case <-ticker.C:
			d.sweepAndLog(ctx)
		}
	}
}

func (d *Driver) sweepAndLog(ctx context.Context) {
	stats, err := d.Sweep(ctx)
	if err != nil {
		d.logger.Error("reminder sweep failed", "err", err)
		return
	}
	if stats.Due > 0 {
		d.logger.Info("reminder sweep finished",
			"due", stats.Due, "claimed", stats.Claimed, "sent", stats.Sent,
			"failed", stats.Failed, "skipped", stats.Skipped, "errors", stats.Errors)
	}
}

// Sweep plans and executes one round. Once ctx is cancelled no further task is started;
// tasks already started run to completion on a detached context bounded by the task timeout.
func (d *Driver) Sweep(ctx context.Context) (Stats, error) {
	now := d.now()
	ctx, span := d.tracer.Start(ctx, "reminders.sweep", trace.WithAttributes(
		attribute.String("sweep.now", now.UTC().Format(time.RFC3339)),
	))
	defer span.End()

	var stats Stats
	tasks, err := d.planner.CollectDue(ctx, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "plan failed")
		return stats, err
	}
	stats.Due = len(tasks)
	span.SetAttributes(attribute.Int("sweep.due", len(tasks)))

	var g errgroup.Group
	g.SetLimit(d.workers)
	var claimed, sent, failed, skipped, errs atomic.Int64
	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		task := task
		g.Go(func() error {
			switch d.runTask(ctx, task) {
			case resultSent:
				claimed.Add(1)
				sent.Add(1)
			case resultFailed:
				claimed.Add(1)
				failed.Add(1)
			case resultSkipped:
				skipped.Add(1)
			case resultError:
				errs.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	stats.Claimed = claimed.Load()
	stats.Sent = sent.Load()
	stats.Failed = failed.Load()
	stats.Skipped = skipped.Load()
	stats.Errors = errs.Load()
	return stats, nil
}

type result int

const (
	resultSkipped result = iota
	resultSent
	resultFailed
	resultError
)

func (d *Driver) runTask(parent context.Context, task model.ReminderTask) result {
	// A worker slot may free up after shutdown began; nothing is claimed yet, so skip.
	if parent.Err() != nil {
		return resultSkipped
	}
	key := task.Key()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), d.taskTimeout)
	defer cancel()
	ctx, span := d.tracer.Start(ctx, "reminders.deliver", trace.WithAttributes(
		attribute.String("appointment.id", key.AppointmentID),
		attribute.String("reminder.offset", string(key.Offset)),
		attribute.String("reminder.channel", string(key.Channel)),
	))
	defer span.End()

	log := d.logger.With("appointment_id", key.AppointmentID, "offset", key.Offset, "channel", key.Channel)

	ok, err := d.ledger.TryClaim(ctx, key)
	if err != nil {
		log.Error("ledger claim failed", "err", err)
		span.RecordError(err)
		return resultError
	}
	if !ok {
		return resultSkipped
	}

	outcome := ledger.Outcome{Recipient: task.Recipient}
	msg, err := d.renderer.Render(task)
	if err == nil {
		var receipt dispatch.Receipt
		receipt, err = d.sender.Send(ctx, task.Channel, task.Recipient, msg)
		outcome.ProviderID = receipt.ProviderID
	}
	if err != nil {
		outcome.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
	} else {
		outcome.Success = true
	}

	if err := d.ledger.RecordOutcome(ctx, key, outcome); err != nil {
		log.Error("ledger outcome write failed", "err", err, "delivered", outcome.Success)
		return resultError
	}
	if !outcome.Success {
		log.Warn("reminder delivery failed; will retry next sweep", "err", outcome.Error)
		return resultFailed
	}
	log.Info("reminder sent", "provider_id", outcome.ProviderID)
	return resultSent
}
