package jobs

import (
	"context"
	"time"

	"exam_platform_backend/pkg/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const sweepBatchSize = 200

// Sweeper finalizes attempts that expired without being touched again.
type Sweeper interface {
	SweepExpired(ctx context.Context, limit int) (int, error)
}

// ExpirySweep runs a Sweeper on a cron schedule. Request paths already
// auto-submit expired attempts on access; the sweep only closes the ones
// nobody reads again.
type ExpirySweep struct {
	cron    *cron.Cron
	sweeper Sweeper
	timeout time.Duration
}

// NewExpirySweep returns nil when spec is empty.
func NewExpirySweep(spec string, sweeper Sweeper) (*ExpirySweep, error) {
	if spec == "" {
		return nil, nil
	}
	j := &ExpirySweep{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		sweeper: sweeper,
		timeout: time.Minute,
	}
	if _, err := j.cron.AddFunc(spec, j.RunOnce); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *ExpirySweep) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	n, err := j.sweeper.SweepExpired(ctx, sweepBatchSize)
	if err != nil {
		logger.Log.Error("Expired attempt sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Log.Info("Expired attempts auto-submitted", zap.Int("count", n))
	}
}

func (j *ExpirySweep) Start() {
	j.cron.Start()
}

// Stop waits for a running sweep to finish.
func (j *ExpirySweep) Stop() {
	<-j.cron.Stop().Done()
}
