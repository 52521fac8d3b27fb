package attachments

import (
	"context"
	"log/slog"
	"sync"

	"assistant/internal/storage"
)

// Provisioner makes sure the upload bucket exists. A successful result is
// cached; a failure is logged and retried on the next call.
type Provisioner struct {
	buckets BucketEnsurer
	spec    storage.BucketSpec

	mu      sync.Mutex
	ensured bool
}

type BucketEnsurer interface {
	EnsureBucket(ctx context.Context, spec storage.BucketSpec) (bool, error)
}

func NewProvisioner(buckets BucketEnsurer, spec storage.BucketSpec) *Provisioner {
	return &Provisioner{buckets: buckets, spec: spec}
}

func (p *Provisioner) Ensure(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ensured {
		return true
	}

	created, err := p.buckets.EnsureBucket(ctx, p.spec)
	if err != nil {
		slog.Error("error ensuring storage bucket", "component", "attachments", "bucket", p.spec.Name, "error", err)
		return false
	}
	if created {
		slog.Info("created storage bucket", "component", "attachments", "bucket", p.spec.Name)
	}

	p.ensured = true
	return true
}
