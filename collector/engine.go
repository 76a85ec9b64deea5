// Package collector runs the collection pipeline: expand accounts,
// regions, and resource types into tasks, list each cell through the
// provider registry, normalize to resource records, and upsert them
// into the store. A failed task never aborts the run.
package collector

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yairfalse/kerava/cost"
	"github.com/yairfalse/kerava/providers"
	"github.com/yairfalse/kerava/types"
)

// RecordWriter is the store capability the engine needs.
type RecordWriter interface {
	Upsert(records []types.ResourceRecord) (int, error)
}

// RunConfig scopes one collection run.
type RunConfig struct {
	Regions         []string
	ExcludedRegions []string
	ResourceTypes   []string
	Parallelism     int
	RetryAttempts   int
	BatchSize       int
	Timeout         time.Duration
}

// Run defaults, applied when the config leaves a knob at zero.
const (
	defaultParallelism   = 5
	defaultRetryAttempts = 3
	defaultBatchSize     = 25
)

// ConfigError reports a run configuration the engine cannot work with.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid run config: " + e.Reason
}

// Engine drives collection runs.
type Engine struct {
	registry  *providers.Registry
	store     RecordWriter
	estimator *cost.Estimator
	logger    zerolog.Logger
	now       func() time.Time
	retryBase time.Duration
}

// NewEngine creates a collection engine.
func NewEngine(registry *providers.Registry, store RecordWriter, estimator *cost.Estimator, logger zerolog.Logger) *Engine {
	return &Engine{
		registry:  registry,
		store:     store,
		estimator: estimator,
		logger:    logger,
		now:       time.Now,
		retryBase: time.Second,
	}
}

// Run executes one collection pass over the accounts. Tasks fail in
// isolation: every failure lands in the report, never in the returned
// error. The error is reserved for config problems and context
// cancellation before any work starts.
func (e *Engine) Run(ctx context.Context, accounts []types.Account, cfg RunConfig) (*types.RunReport, error) {
	if err := e.validate(cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	tasks := e.expandTasks(accounts, cfg)
	report := &types.RunReport{
		StartedAt:  e.now().UTC(),
		TasksTotal: len(tasks),
	}

	e.logger.Info().
		Int("tasks", len(tasks)).
		Int("accounts", len(accounts)).
		Int("parallelism", cfg.Parallelism).
		Msg("collection run started")

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		queue = make(chan types.CollectionTask)
	)

	policy := RetryPolicy{
		MaxAttempts: cfg.RetryAttempts,
		BaseDelay:   e.retryBase,
		MaxDelay:    30 * time.Second,
	}

	for i := 0; i < cfg.Parallelism; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range queue {
				written, attempts, err := e.runTask(ctx, task, policy, cfg.BatchSize)

				mu.Lock()
				if err != nil {
					report.TasksFailed++
					report.Failures = append(report.Failures, types.TaskFailure{
						Task:     task,
						Error:    err.Error(),
						Attempts: attempts,
					})
				} else {
					report.TasksSucceeded++
					report.RecordsWritten += written
				}
				mu.Unlock()
			}
		}()
	}

	enqueued := 0
	for _, task := range tasks {
		select {
		case queue <- task:
			enqueued++
		case <-ctx.Done():
			// Remaining tasks are dropped; workers drain what they hold.
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(queue)
	wg.Wait()

	// Tasks never handed to a worker are recorded as timed out.
	for _, task := range tasks[enqueued:] {
		report.TasksFailed++
		report.Failures = append(report.Failures, types.TaskFailure{
			Task:  task,
			Error: "not dispatched: " + ctx.Err().Error(),
		})
	}

	report.FinishedAt = e.now().UTC()

	e.logger.Info().
		Int("succeeded", report.TasksSucceeded).
		Int("failed", report.TasksFailed).
		Int("records", report.RecordsWritten).
		Dur("duration", report.Duration()).
		Msg("collection run finished")

	return report, nil
}

func (e *Engine) validate(cfg RunConfig) error {
	if len(cfg.ResourceTypes) == 0 {
		return &ConfigError{Reason: "no resource types configured"}
	}
	for _, resourceType := range cfg.ResourceTypes {
		if !e.registry.Has(resourceType) {
			return &ConfigError{Reason: "unknown resource type " + resourceType}
		}
		if !e.registry.IsGlobal(resourceType) && len(cfg.Regions) == 0 {
			return &ConfigError{Reason: "no regions configured for regional resource type " + resourceType}
		}
	}
	return nil
}

func applyDefaults(cfg *RunConfig) {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = defaultParallelism
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
}

// expandTasks builds the account x region x type matrix. Disabled
// accounts and excluded regions are skipped; global resource types
// collapse to one task per account under the pseudo-region "global".
func (e *Engine) expandTasks(accounts []types.Account, cfg RunConfig) []types.CollectionTask {
	excluded := make(map[string]bool, len(cfg.ExcludedRegions))
	for _, region := range cfg.ExcludedRegions {
		excluded[region] = true
	}

	var tasks []types.CollectionTask
	for _, account := range accounts {
		if !account.Enabled {
			e.logger.Debug().Str("account", account.ID).Msg("account disabled, skipping")
			continue
		}

		for _, resourceType := range cfg.ResourceTypes {
			if e.registry.IsGlobal(resourceType) {
				tasks = append(tasks, types.CollectionTask{
					Account:      account,
					Region:       "global",
					ResourceType: resourceType,
				})
				continue
			}

			for _, region := range cfg.Regions {
				if excluded[region] {
					continue
				}
				tasks = append(tasks, types.CollectionTask{
					Account:      account,
					Region:       region,
					ResourceType: resourceType,
				})
			}
		}
	}
	return tasks
}

// runTask lists one cell and writes its records. Returns how many
// records were written and how many list attempts were made.
func (e *Engine) runTask(ctx context.Context, task types.CollectionTask, policy RetryPolicy, batchSize int) (int, int, error) {
	logger := e.logger.With().Stringer("task", task).Logger()

	var raw []providers.RawResource
	attempts, err := policy.Do(ctx, func(ctx context.Context) error {
		lister, err := e.registry.Lister(ctx, task.ResourceType, task.Account, task.Region)
		if err != nil {
			return err
		}
		raw, err = lister.List(ctx, task.Account, task.Region)
		return err
	})
	if err != nil {
		logger.Warn().Err(err).Int("attempts", attempts).Msg("task failed")
		return 0, attempts, err
	}

	records := make([]types.ResourceRecord, 0, len(raw))
	collectedAt := e.now().UTC()
	for _, resource := range raw {
		records = append(records, e.normalize(task, resource, collectedAt))
	}

	written, err := e.write(records, batchSize)
	if err != nil {
		logger.Warn().Err(err).Msg("store write failed")
		return written, attempts, err
	}

	logger.Debug().Int("records", written).Msg("task complete")
	return written, attempts, nil
}

// normalize converts a raw provider resource into a record.
func (e *Engine) normalize(task types.CollectionTask, resource providers.RawResource, collectedAt time.Time) types.ResourceRecord {
	return types.ResourceRecord{
		AccountID:    task.Account.ID,
		AccountName:  task.Account.Name,
		Department:   task.Account.Department(),
		ResourceType: task.ResourceType,
		ResourceID:   resource.ID,
		Region:       task.Region,
		Attributes:   resource.Attributes,
		MonthlyCost:  e.estimator.Estimate(task.ResourceType, resource.Attributes),
		CollectedAt:  collectedAt,
	}
}

// write upserts records in batches. A failed batch gets one more try
// before the task is marked failed.
func (e *Engine) write(records []types.ResourceRecord, batchSize int) (int, error) {
	written := 0
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}

		batch := records[start:end]
		n, err := e.store.Upsert(batch)
		if err != nil {
			n, err = e.store.Upsert(batch)
		}
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
