package gateway

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/verdia/trellis/internal/store"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// HousekeepingOpts configures the idle-conversation sweep.
type HousekeepingOpts struct {
	Store   *store.Store
	Cron    string        // 5-field cron expression, e.g. "0 3 * * *"
	IdleFor time.Duration // conversations with no activity for this long get closed
	Out     io.Writer
}

// RunHousekeeping closes idle conversations on the configured cron schedule.
// It blocks until ctx is cancelled. Sweep failures are logged and the
// schedule keeps running.
func RunHousekeeping(ctx context.Context, opts HousekeepingOpts) error {
	if opts.Store == nil {
		return fmt.Errorf("gateway: housekeeping: store is required")
	}
	if opts.IdleFor <= 0 {
		return fmt.Errorf("gateway: housekeeping: idle window must be positive")
	}
	if _, err := cronParser.Parse(opts.Cron); err != nil {
		return fmt.Errorf("gateway: housekeeping: parse cron %q: %w", opts.Cron, err)
	}

	timer := time.NewTimer(nextCronDuration(opts.Cron))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			closed, err := opts.Store.CloseIdleConversations(ctx, opts.IdleFor)
			if err != nil {
				log.Printf("gateway: housekeeping sweep: %v", err)
			} else if closed > 0 && opts.Out != nil {
				fmt.Fprintf(opts.Out, "Housekeeping closed %d idle conversation(s)\n", closed)
			}
			timer.Reset(nextCronDuration(opts.Cron))
		}
	}
}

// nextCronDuration parses a 5-field cron expression and returns the duration
// until the next fire time. Returns 0 on parse error.
func nextCronDuration(expr string) time.Duration {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0
	}
	next := sched.Next(time.Now())
	d := time.Until(next)
	if d < 0 {
		return 0
	}
	return d
}
