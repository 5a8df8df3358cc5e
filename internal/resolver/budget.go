package resolver

import (
	"context"
	"time"
)

const deadlineCheckEvery = 64

// budget bounds one resolution pass over a large document. Once exhausted
// every later spend fails, so the scanning layer returns its best so far.
type budget struct {
	ctx       context.Context
	remaining int
	limited   bool
	deadline  time.Time
	spent     int
	done      bool
}

func newBudget(ctx context.Context, opts Options) *budget {
	b := &budget{ctx: ctx, remaining: opts.MaxNodes, limited: opts.MaxNodes > 0}
	if opts.Timeout > 0 {
		b.deadline = time.Now().Add(opts.Timeout)
	}
	return b
}

// spend accounts for one visited node and reports whether scanning may go on.
func (b *budget) spend() bool {
	if b.done {
		return false
	}
	if b.limited {
		if b.remaining <= 0 {
			b.done = true
			return false
		}
		b.remaining--
	}
	b.spent++
	if b.spent%deadlineCheckEvery == 1 {
		if b.ctx.Err() != nil || (!b.deadline.IsZero() && time.Now().After(b.deadline)) {
			b.done = true
			return false
		}
	}
	return true
}

func (b *budget) exhausted() bool {
	return b.done
}
