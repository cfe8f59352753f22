package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

var (
	service     *Service
	serviceOnce sync.Once
	serviceErr  error
)

var (
	ErrNotInitialized = errors.New("scheduler not initialized")
	ErrEmptyJobName   = errors.New("job name is required")
	ErrEmptyCronExpr  = errors.New("cron expression is required")
	ErrUnknownJob     = errors.New("job not registered")
)

// cronParser validates the standard five-field expressions the gym jobs use
// before they reach gocron.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Service wraps a gocron scheduler and tracks jobs by name, so schedules
// derived from the gym's operating config (like the closing-time checkout)
// can be moved without a restart.
type Service struct {
	scheduler gocron.Scheduler
	mu        sync.Mutex
	jobs      map[string]*registeredJob
	stopOnce  sync.Once
	stopErr   error
}

type registeredJob struct {
	job      gocron.Job
	cronExpr string
	task     func()
}

// Init initializes the scheduler singleton.
func Init() error {
	serviceOnce.Do(func() {
		sched, err := gocron.NewScheduler(
			gocron.WithGlobalJobOptions(
				gocron.WithEventListeners(
					gocron.AfterJobRunsWithPanic(func(jobID uuid.UUID, jobName string, recoverData any) {
						log.Error().
							Str("job_id", jobID.String()).
							Str("job_name", jobName).
							Interface("panic", recoverData).
							Msg("Scheduler job panicked")
					}),
				),
			),
		)
		if err != nil {
			serviceErr = err
			return
		}
		service = &Service{
			scheduler: sched,
			jobs:      make(map[string]*registeredJob),
		}
		log.Info().Msg("Scheduler initialized")
	})
	return serviceErr
}

// ServiceInstance returns the initialized scheduler singleton.
func ServiceInstance() (*Service, error) {
	if service == nil && serviceErr == nil {
		return nil, ErrNotInitialized
	}
	return service, serviceErr
}

// Start begins running scheduled jobs on the singleton scheduler.
func Start() error {
	svc, err := ServiceInstance()
	if err != nil {
		return err
	}
	svc.Start()
	return nil
}

// Stop shuts down the singleton scheduler.
func Stop() error {
	svc, err := ServiceInstance()
	if err != nil {
		return err
	}
	return svc.Stop()
}

// AddJob registers a cron-based job with the singleton scheduler.
func AddJob(name, cronExpr string, task func()) (gocron.Job, error) {
	svc, err := ServiceInstance()
	if err != nil {
		return nil, err
	}
	return svc.AddJob(name, cronExpr, task)
}

// Reschedule moves a registered job to a new cron expression on the singleton
// scheduler. It reports whether the schedule actually changed.
func Reschedule(name, cronExpr string) (bool, error) {
	svc, err := ServiceInstance()
	if err != nil {
		return false, err
	}
	return svc.Reschedule(name, cronExpr)
}

// Start begins running scheduled jobs.
func (s *Service) Start() {
	if s == nil {
		log.Error().Msg("Scheduler start requested before initialization")
		return
	}
	log.Info().Msg("Scheduler starting")
	s.scheduler.Start()
}

// Stop shuts down the scheduler and prevents new jobs from running.
func (s *Service) Stop() error {
	if s == nil {
		return ErrNotInitialized
	}
	s.stopOnce.Do(func() {
		log.Info().Msg("Scheduler stopping")
		s.stopErr = s.scheduler.Shutdown()
	})
	return s.stopErr
}

// AddJob registers a cron-based job with the scheduler. Names are unique;
// registering an existing name replaces nothing and fails.
func (s *Service) AddJob(name, cronExpr string, task func()) (gocron.Job, error) {
	if s == nil {
		return nil, ErrNotInitialized
	}
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyJobName
	}
	if err := validateCronExpr(cronExpr); err != nil {
		return nil, err
	}
	jobLogger := log.With().Str("job_name", name).Str("cron", cronExpr).Logger()

	wrappedTask := func() {
		jobLogger.Debug().Msg("Scheduler job started")
		task()
		jobLogger.Debug().Msg("Scheduler job completed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return nil, fmt.Errorf("job %q already registered", name)
	}

	job, err := s.scheduler.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(wrappedTask),
		gocron.WithName(name),
	)
	if err != nil {
		jobLogger.Error().Err(err).Msg("Failed to register scheduler job")
		return nil, err
	}
	s.jobs[name] = &registeredJob{job: job, cronExpr: cronExpr, task: wrappedTask}
	jobLogger.Info().Msg("Scheduler job registered")
	return job, nil
}

// Reschedule moves a registered job to a new cron expression and reports
// whether the schedule actually changed.
func (s *Service) Reschedule(name, cronExpr string) (bool, error) {
	if s == nil {
		return false, ErrNotInitialized
	}
	if err := validateCronExpr(cronExpr); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.jobs[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if reg.cronExpr == cronExpr {
		return false, nil
	}

	job, err := s.scheduler.Update(
		reg.job.ID(),
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(reg.task),
		gocron.WithName(name),
	)
	if err != nil {
		log.Error().Err(err).Str("job_name", name).Str("cron", cronExpr).
			Msg("Failed to reschedule job")
		return false, err
	}
	reg.job = job
	reg.cronExpr = cronExpr
	log.Info().Str("job_name", name).Str("cron", cronExpr).Msg("Scheduler job rescheduled")
	return true, nil
}

func validateCronExpr(cronExpr string) error {
	if strings.TrimSpace(cronExpr) == "" {
		return ErrEmptyCronExpr
	}
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return nil
}
