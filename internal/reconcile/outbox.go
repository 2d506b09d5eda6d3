package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/park285/h2h-ledger/internal/ledger"
	"github.com/park285/h2h-ledger/internal/match"
)

// OutboxKey is where offline operations wait for the next sync.
const OutboxKey = "efb_outbox"

type OpKind string

const (
	OpApply   OpKind = "apply"
	OpReverse OpKind = "reverse"
)

// Op is one offline apply or reverse that the remote store has not seen yet.
type Op struct {
	ID       string      `json:"id"`
	Kind     OpKind      `json:"kind"`
	Entry    match.Entry `json:"entry"`
	QueuedAt time.Time   `json:"queuedAt"`
}

// Outbox is the persisted FIFO of offline operations.
type Outbox struct {
	kv  ledger.KV
	key string
}

func NewOutbox(kv ledger.KV) *Outbox {
	return &Outbox{kv: kv, key: OutboxKey}
}

func (o *Outbox) List(ctx context.Context) ([]Op, error) {
	raw, err := o.kv.Get(ctx, o.key)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read outbox: %w", err)
	}
	return decodeOps(raw)
}

func (o *Outbox) Len(ctx context.Context) (int, error) {
	ops, err := o.List(ctx)
	return len(ops), err
}

// Push appends an operation for e and returns it.
func (o *Outbox) Push(ctx context.Context, kind OpKind, e match.Entry) (Op, error) {
	op := Op{ID: uuid.NewString(), Kind: kind, Entry: e, QueuedAt: time.Now().UTC()}
	err := o.kv.Update(ctx, o.key, func(cur []byte) ([]byte, error) {
		ops, err := decodeOps(cur)
		if err != nil {
			return nil, err
		}
		return json.Marshal(append(ops, op))
	})
	if err != nil {
		return Op{}, fmt.Errorf("queue %s: %w", kind, err)
	}
	return op, nil
}

// Drop removes the operation with id once the remote store has accepted it.
func (o *Outbox) Drop(ctx context.Context, id string) error {
	return o.kv.Update(ctx, o.key, func(cur []byte) ([]byte, error) {
		ops, err := decodeOps(cur)
		if err != nil {
			return nil, err
		}
		out := ops[:0]
		for _, op := range ops {
			if op.ID != id {
				out = append(out, op)
			}
		}
		return json.Marshal(out)
	})
}

func decodeOps(raw []byte) ([]Op, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var ops []Op
	if err := json.Unmarshal(raw, &ops); err != nil {
		return nil, fmt.Errorf("decode outbox: %w", err)
	}
	return ops, nil
}
