package queue

import (
	"context"
	"hash/fnv"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/tokengate/gatekeeper/internal/api/metrics"
	"github.com/tokengate/gatekeeper/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
)

// Dispatcher routes access actions to a fixed set of workers using consistent
// hashing on the member's external id, guaranteeing per-member ordering of
// grants, revocations, and notifications. Execution is fire-and-observe:
// failures are logged, never retried.
type Dispatcher struct {
	workers []chan ports.AccessAction
	access  ports.AccessManager
	log     zerolog.Logger
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, access ports.AccessManager, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan ports.AccessAction, numWorkers),
		access:  access,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.AccessAction, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Enqueue sends an action to the worker responsible for its member.
// The call is non-blocking up to channelBuffer capacity.
func (d *Dispatcher) Enqueue(action ports.AccessAction) {
	idx := d.shardIndex(action.ExternalID)
	d.workers[idx] <- action
	metrics.AccessQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
}

// EnqueueBatch enqueues multiple actions preserving per-member ordering.
func (d *Dispatcher) EnqueueBatch(actions []ports.AccessAction) {
	for _, a := range actions {
		d.Enqueue(a)
	}
}

// shardIndex maps an external id deterministically to a worker index.
func (d *Dispatcher) shardIndex(externalID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(externalID))
	return int(h.Sum32()) % len(d.workers)
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.AccessAction) {
	gauge := metrics.AccessQueueDepth.WithLabelValues(strconv.Itoa(id))
	for {
		select {
		case <-ctx.Done():
			return
		case action, ok := <-ch:
			if !ok {
				return
			}
			gauge.Set(float64(len(ch)))
			if err := d.execute(ctx, action); err != nil {
				metrics.AccessActionsTotal.WithLabelValues(string(action.Type), "error").Inc()
				d.log.Error().Err(err).
					Str("action", string(action.Type)).
					Str("external_id", action.ExternalID).
					Int("worker_id", id).
					Msg("access action failed")
				continue
			}
			metrics.AccessActionsTotal.WithLabelValues(string(action.Type), "ok").Inc()
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, action ports.AccessAction) error {
	switch action.Type {
	case ports.ActionGrant:
		return d.access.GrantAccess(ctx, action.ExternalID, action.GroupID)
	case ports.ActionRevoke:
		return d.access.RevokeAccess(ctx, action.ExternalID, action.GroupID)
	case ports.ActionNotify:
		return d.access.Notify(ctx, action.ExternalID, action.Text)
	default:
		d.log.Warn().Str("action", string(action.Type)).Msg("unknown access action dropped")
		return nil
	}
}
