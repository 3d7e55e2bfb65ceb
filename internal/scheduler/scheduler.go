package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"newsdigest/internal/domain"
	"newsdigest/internal/notifier"
)

const (
	DefaultSpec       = "0 * * * *"
	DefaultTimezone   = "UTC"
	DefaultRunTimeout = 15 * time.Minute
)

var ErrNoJobs = errors.New("no jobs configured")

type Runner interface {
	Run(ctx context.Context, src domain.Source, limit int) (domain.BatchReport, error)
}

type RecordReader interface {
	ByID(ctx context.Context, id int64) (*domain.Record, error)
}

type Notifier interface {
	NotifyBatch(ctx context.Context, batch notifier.Batch) error
}

// Job is one batch run on every tick.
type Job struct {
	Source domain.Source
	Limit  int
}

type Config struct {
	Spec       string
	Timezone   string
	RunTimeout time.Duration
}

type Scheduler struct {
	ctx      context.Context
	cron     *cron.Cron
	spec     string
	timeout  time.Duration
	jobs     []Job
	runner   Runner
	records  RecordReader
	notifier Notifier
	log      *slog.Logger
}

// New builds a scheduler for jobs. notifier may be nil, in which case
// reports are only logged.
func New(
	ctx context.Context,
	cfg Config,
	jobs []Job,
	runner Runner,
	records RecordReader,
	notifier Notifier,
	log *slog.Logger,
) (*Scheduler, error) {
	if len(jobs) == 0 {
		return nil, ErrNoJobs
	}
	if cfg.Spec == "" {
		cfg.Spec = DefaultSpec
	}
	if cfg.Timezone == "" {
		cfg.Timezone = DefaultTimezone
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	if log == nil {
		log = slog.Default()
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	return &Scheduler{
		ctx:      ctx,
		cron:     cron.New(cron.WithLocation(loc)),
		spec:     cfg.Spec,
		timeout:  cfg.RunTimeout,
		jobs:     jobs,
		runner:   runner,
		records:  records,
		notifier: notifier,
		log:      log,
	}, nil
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.tick); err != nil {
		return fmt.Errorf("add cron func: %w", err)
	}

	s.cron.Start()

	s.log.InfoContext(s.ctx, "Scheduler is started",
		"spec", s.spec,
		"jobs", len(s.jobs))

	return nil
}

// Stop stops the cron loop and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	select {
	case <-ctx.Done():
		s.log.InfoContext(ctx, "Scheduler context is done",
			"error", ctx.Err())
		return
	default:
	}

	if err := s.RunOnce(ctx); err != nil {
		s.log.ErrorContext(ctx, "Failed to run scheduled jobs",
			"error", err)
	}
}

// RunOnce runs every job in order and sends one notification per job.
// Batch failures are reported, not returned; only run and notify errors
// are.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var errs []error

	for _, job := range s.jobs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		report, err := s.runner.Run(ctx, job.Source, job.Limit)
		if err != nil {
			s.log.ErrorContext(ctx, "Failed to run batch",
				"error", err,
				"source", job.Source.String())
			errs = append(errs, fmt.Errorf("run %s: %w", job.Source, err))
		}

		s.log.InfoContext(ctx, "Scheduled batch is finished",
			"source", job.Source.String(),
			"succeeded", len(report.Succeeded),
			"failed", len(report.Failed))

		if s.notifier == nil || report.Total() == 0 {
			continue
		}

		batch := notifier.Batch{
			Source:  job.Source.String(),
			Report:  report,
			Records: s.loadRecords(ctx, report.Succeeded),
		}
		if err = s.notifier.NotifyBatch(ctx, batch); err != nil {
			s.log.ErrorContext(ctx, "Failed to notify batch",
				"error", err,
				"source", job.Source.String())
			errs = append(errs, fmt.Errorf("notify %s: %w", job.Source, err))
		}
	}

	return errors.Join(errs...)
}

func (s *Scheduler) loadRecords(ctx context.Context, ids []int64) []domain.Record {
	records := make([]domain.Record, 0, len(ids))

	for _, id := range ids {
		rec, err := s.records.ByID(ctx, id)
		if err != nil {
			s.log.ErrorContext(ctx, "Failed to load record",
				"error", err,
				"id", id)
			continue
		}
		if rec == nil {
			continue
		}

		records = append(records, *rec)
	}

	return records
}
