package syncer

import (
	"context"
	"time"

	"github.com/wali1264/dokteryaraflain/pkg/database"
)

// DBProber treats a successful ping of the mirror database as "network
// available". It is the cheapest honest signal: if the row store answers,
// every sync call can proceed.
type DBProber struct {
	db      *database.DB
	timeout time.Duration
}

// NewDBProber creates a prober bound to the mirror connection.
func NewDBProber(db *database.DB, timeout time.Duration) *DBProber {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DBProber{db: db, timeout: timeout}
}

// Reachable reports whether the mirror responds within the timeout.
func (p *DBProber) Reachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.db.PingContext(ctx) == nil
}

// Unreachable is the prober used when the mirror is disabled: the engine
// runs fully offline and the pending flag simply stays set.
type Unreachable struct{}

// Reachable always reports false.
func (Unreachable) Reachable(context.Context) bool { return false }
