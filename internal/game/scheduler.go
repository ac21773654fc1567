package game

import (
	"context"
	"log"
	"time"
)

// StartScheduler drives the engine with one tick per second until ctx
// is done. The engine itself never keeps time; this is the only clock.
func StartScheduler(ctx context.Context, e *Engine) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	log.Println("[GAME] Scheduler started (1s tick)")

	for {
		select {
		case <-ctx.Done():
			log.Println("[GAME] Scheduler stopped")
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}
