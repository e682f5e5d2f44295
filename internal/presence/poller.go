package presence

import (
	"context"
	"log"
	"reflect"
	"time"

	"github.com/you/presence-api/internal/core"
)

// Poller periodically rebuilds the snapshot and hands changed snapshots to
// the publish callback, which feeds the SSE/WebSocket fan-out.
type Poller struct {
	Aggregator *Aggregator
	Interval   time.Duration
	Publish    func(core.PresenceSnapshot)
}

func NewPoller(agg *Aggregator, interval time.Duration, publish func(core.PresenceSnapshot)) *Poller {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Poller{Aggregator: agg, Interval: interval, Publish: publish}
}

// Run polls until the context is cancelled. Failed cycles already degrade to
// an offline snapshot inside the aggregator, so the loop itself never errors;
// it only stretches the interval while the snapshot keeps coming back
// offline with nothing to show.
func (p *Poller) Run(ctx context.Context) error {
	var last core.PresenceSnapshot
	var published bool

	wait := p.Interval
	for {
		snapshot := p.Aggregator.Snapshot(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if !published || !reflect.DeepEqual(snapshot, last) {
			if p.Publish != nil {
				p.Publish(snapshot)
			}
			last = snapshot
			published = true
			wait = p.Interval
		} else if snapshot.Status == "offline" && snapshot.Username == "" {
			// Upstreams are down; back off up to 4x the base interval.
			if wait < 4*p.Interval {
				wait += p.Interval
			}
			log.Printf("presence: upstreams unavailable, next poll in %s", wait)
		}

		if !sleepContext(ctx, wait) {
			return ctx.Err()
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
