package jobs

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/null-engine/nullengine/internal/domain"
	"github.com/null-engine/nullengine/internal/store"
)

// RestoreRunners starts a runner for every world persisted as running and
// returns how many were started. A world that fails to start is logged and
// skipped.
func RestoreRunners(ctx context.Context, db *sql.DB, runners Starter, logger zerolog.Logger) (int, error) {
	worlds, err := (&store.WorldRepo{}).ListByStatus(ctx, db, domain.WorldRunning)
	if err != nil {
		return 0, err
	}
	started := 0
	for _, w := range worlds {
		if err := runners.Start(ctx, w.ID); err != nil {
			logger.Warn().Err(err).Str("world_id", w.ID).Msg("runner_restore.failed")
			continue
		}
		started++
	}
	logger.Info().Int("restored", started).Int("running", len(worlds)).Msg("runner_restore.done")
	return started, nil
}
