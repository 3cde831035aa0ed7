package schema

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/genialityco/gen-live-web-sub000/internal/form/models"
	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
	dErrors "github.com/genialityco/gen-live-web-sub000/pkg/domain-errors"
)

// DefaultRemoteTTL bounds how long a backend form is served from cache.
const DefaultRemoteTTL = 5 * time.Minute

type remoteEntry struct {
	form    *models.FormSchema
	expires time.Time
}

// Remote serves forms fetched from another Source, usually the registration
// backend. Fetched forms are normalized and checked before they are cached.
type Remote struct {
	source Source
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[id.OrgSlug]remoteEntry
	group singleflight.Group
}

type RemoteOption func(*Remote)

func WithRemoteTTL(ttl time.Duration) RemoteOption {
	return func(r *Remote) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithRemoteLogger(logger *slog.Logger) RemoteOption {
	return func(r *Remote) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithRemoteClock(now func() time.Time) RemoteOption {
	return func(r *Remote) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRemote(source Source, opts ...RemoteOption) *Remote {
	r := &Remote{
		source: source,
		ttl:    DefaultRemoteTTL,
		now:    time.Now,
		logger: slog.Default(),
		cache:  make(map[id.OrgSlug]remoteEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Form returns a checked form. Concurrent misses for one slug share a fetch.
func (r *Remote) Form(ctx context.Context, slug id.OrgSlug) (*models.FormSchema, error) {
	r.mu.RLock()
	entry, ok := r.cache[slug]
	r.mu.RUnlock()
	if ok && r.now().Before(entry.expires) {
		return entry.form, nil
	}

	v, err, _ := r.group.Do(string(slug), func() (any, error) {
		form, err := r.source.Form(context.WithoutCancel(ctx), slug)
		if err != nil {
			return nil, err
		}
		if form == nil {
			return nil, dErrors.New(dErrors.CodeNotFound, "registration form not found")
		}
		Normalize(form)
		if err := Check(form); err != nil {
			r.logger.ErrorContext(ctx, "backend form failed checks",
				"org_slug", slug,
				"error", err,
			)
			return nil, err
		}
		r.mu.Lock()
		r.cache[slug] = remoteEntry{form: form, expires: r.now().Add(r.ttl)}
		r.mu.Unlock()
		return form, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.FormSchema), nil
}

// Invalidate drops the cached form for slug.
func (r *Remote) Invalidate(slug id.OrgSlug) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, slug)
}
