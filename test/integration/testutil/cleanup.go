//go:build integration

package testutil

import (
	"context"
	"time"
)

// CleanAll truncates every table the tests write to.
func (env *TestEnv) CleanAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := env.Pool.Exec(ctx, "TRUNCATE pvp_matches, event_outbox, games RESTART IDENTITY CASCADE"); err != nil {
		env.t.Fatalf("truncate: %v", err)
	}
}
