package tasks

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/lykd/internal/models"
	"github.com/desertthunder/lykd/internal/repositories"
	"github.com/desertthunder/lykd/internal/shared"
	"golang.org/x/time/rate"
)

// UserResult records the outcome of one user's pass.
type UserResult struct {
	UserID string
	Email  string
	Err    error
}

// BatchResult summarises a batch run.
type BatchResult struct {
	Processed int
	Failed    int
	Results   []UserResult
}

// BatchDriver runs the engine for every active user under a bounded worker
// pool. One user's failure never stops the batch.
type BatchDriver struct {
	engine      *SyncEngine
	users       *repositories.UserRepository
	concurrency int
	limiter     *rate.Limiter
	logger      *log.Logger
}

// NewBatchDriver creates a driver sized by the sync config. Job dispatch is
// paced by the configured requests-per-second limit.
func NewBatchDriver(engine *SyncEngine, users *repositories.UserRepository, cfg shared.SyncConfig, logger *log.Logger) *BatchDriver {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	concurrency := cfg.MaxConcurrentUsers
	if concurrency <= 0 {
		concurrency = 3
	}

	limit := rate.Limit(cfg.RequestsPerSecond)
	if limit <= 0 {
		limit = rate.Inf
	}

	return &BatchDriver{
		engine:      engine,
		users:       users,
		concurrency: concurrency,
		limiter:     rate.NewLimiter(limit, 1),
		logger:      logger,
	}
}

// Run processes every active user and returns per-user outcomes. It stops
// dispatching when ctx is cancelled; users already in flight finish.
func (d *BatchDriver) Run(ctx context.Context) (*BatchResult, error) {
	active, err := d.users.ListActive()
	if err != nil {
		return nil, err
	}

	d.logger.Info("starting batch run", "users", len(active), "workers", d.concurrency)

	jobs := make(chan *models.User)
	results := make(chan UserResult, len(active))

	var wg sync.WaitGroup
	for i := 0; i < d.concurrency; i++ {
		wg.Add(1)
		go d.worker(ctx, &wg, jobs, results)
	}

	go func() {
		defer close(jobs)
		for _, user := range active {
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
			select {
			case jobs <- user:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(results)
	d.engine.remote.CloseIdleConnections()

	result := &BatchResult{}
	for r := range results {
		result.Results = append(result.Results, r)
		if r.Err != nil {
			result.Failed++
		} else {
			result.Processed++
		}
	}

	d.logger.Info("batch run complete", "processed", result.Processed, "failed", result.Failed)
	return result, nil
}

func (d *BatchDriver) worker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan *models.User, results chan<- UserResult) {
	defer wg.Done()

	for user := range jobs {
		logger := d.logger.With("user", user.ID)

		err := d.engine.ProcessUser(ctx, user)
		if err != nil {
			logger.Error("user sync failed", "error", err)
		} else {
			logger.Debug("user sync complete")
		}

		results <- UserResult{UserID: user.ID, Email: user.Email, Err: err}
	}
}
