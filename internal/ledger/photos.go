package ledger

import (
	"context"
	"errors"

	"github.com/park285/h2h-ledger/internal/match"
)

// Photos keeps the two optional participant pictures as opaque blobs.
type Photos struct {
	kv KV
}

func NewPhotos(kv KV) *Photos { return &Photos{kv: kv} }

func photoKey(s match.Side) string {
	if s == match.P1 {
		return "efb_photo_me"
	}
	return "efb_photo_friend"
}

// Get returns the stored blob, or "" when none was attached.
func (p *Photos) Get(ctx context.Context, s match.Side) (string, error) {
	raw, err := p.kv.Get(ctx, photoKey(s))
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (p *Photos) Set(ctx context.Context, s match.Side, blob string) error {
	return p.kv.Set(ctx, photoKey(s), []byte(blob))
}
