package ledger

import (
	"context"
	"errors"
	"log"
	"time"
)

// DepositSink receives confirmations for deposits completed by the
// background checker rather than an API call.
type DepositSink interface {
	RecordDeposit(address string, amount float64)
}

// StartDepositChecker re-verifies pending deposits until they reach the
// confirmation threshold. Runs until ctx is done.
func StartDepositChecker(ctx context.Context, l *Ledger, sink DepositSink, intervalSeconds int) {
	ticker := time.NewTicker(time.Duration(intervalSeconds) * time.Second)
	defer ticker.Stop()

	log.Printf("[DEPOSIT-CHECKER] Starting deposit checker (check every %ds)", intervalSeconds)

	// Run once immediately on startup
	checkPendingDeposits(ctx, l, sink)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[DEPOSIT-CHECKER] Deposit checker stopped")
			return
		case <-ticker.C:
			checkPendingDeposits(ctx, l, sink)
		}
	}
}

func checkPendingDeposits(ctx context.Context, l *Ledger, sink DepositSink) {
	pending := l.PendingDeposits()
	if len(pending) == 0 {
		return
	}
	log.Printf("[DEPOSIT-CHECKER] Checking %d pending deposits", len(pending))

	for _, pd := range pending {
		info, err := l.verifier.VerifyDeposit(ctx, pd.TxHash, pd.Address, pd.Amount)
		if err != nil {
			var nc *NotConfirmedError
			if errors.As(err, &nc) {
				l.mu.Lock()
				if cur, ok := l.pendingDeposits[pd.TxHash]; ok {
					cur.Confirmations = nc.Confirmations
					cur.LastCheckedAt = l.now()
				}
				l.mu.Unlock()
				continue
			}
			log.Printf("[DEPOSIT-CHECKER] Verification failed for tx %s: %v", pd.TxHash, err)
			continue
		}
		res, err := l.completeDeposit(ctx, pd.Address, pd.TxHash, info)
		if err != nil {
			log.Printf("[DEPOSIT-CHECKER] Failed to complete deposit tx %s: %v", pd.TxHash, err)
			continue
		}
		if sink != nil {
			sink.RecordDeposit(pd.Address, res.Amount)
		}
	}
}
