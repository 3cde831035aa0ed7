// Package session binds a visitor's resolved email to one anonymous session
// per device.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	formmodels "github.com/genialityco/gen-live-web-sub000/internal/form/models"
	"github.com/genialityco/gen-live-web-sub000/internal/session/metrics"
	"github.com/genialityco/gen-live-web-sub000/internal/session/models"
	"github.com/genialityco/gen-live-web-sub000/internal/session/store"
	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
	dErrors "github.com/genialityco/gen-live-web-sub000/pkg/domain-errors"
	"github.com/genialityco/gen-live-web-sub000/pkg/platform/sentinel"
)

// Provider is the identity-provider boundary.
type Provider interface {
	CreateAnonymousSession(ctx context.Context, email string) (*models.Session, error)
}

// Binder returns the device's session, creating it at most once.
//
// Calls for the same (device, email) share one in-flight bind; a per-device
// lock keeps binds for different emails on one device from both creating a
// session.
type Binder struct {
	store    store.Store
	provider Provider
	metrics  *metrics.Metrics
	logger   *slog.Logger

	group   singleflight.Group
	devices deviceLocks
}

type Option func(*Binder)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Binder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Binder) {
		b.metrics = m
	}
}

func NewBinder(st store.Store, provider Provider, opts ...Option) *Binder {
	b := &Binder{
		store:    st,
		provider: provider,
		logger:   slog.Default(),
		devices:  deviceLocks{locks: make(map[id.DeviceID]*deviceLock)},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Bind returns the session for device, associating email with it.
func (b *Binder) Bind(ctx context.Context, device id.DeviceID, email string) (id.SessionID, error) {
	if device.IsNil() {
		return "", dErrors.New(dErrors.CodeBadRequest, "device is required")
	}
	email = formmodels.NormalizeEmail(email)
	if email == "" {
		return "", dErrors.New(dErrors.CodeValidation, "email is required to bind a session")
	}

	// the shared call outlives any one caller's cancellation
	shared := context.WithoutCancel(ctx)
	v, err, wasShared := b.group.Do(device.String()+"|"+email, func() (any, error) {
		return b.bind(shared, device, email)
	})
	if wasShared {
		b.metrics.IncrementShared()
	}
	if err != nil {
		return "", err
	}
	return v.(id.SessionID), nil
}

// Current returns the device's session, if any.
func (b *Binder) Current(ctx context.Context, device id.DeviceID) (*models.Binding, bool, error) {
	binding, err := b.store.Get(ctx, device)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read session binding")
	}
	return binding, true, nil
}

// SignOut forgets the device's session. The next Bind creates a new one.
func (b *Binder) SignOut(ctx context.Context, device id.DeviceID) error {
	unlock := b.devices.lock(device)
	defer unlock()
	if err := b.store.Delete(ctx, device); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to delete session binding")
	}
	b.logger.InfoContext(ctx, "device signed out", "device_id", device)
	return nil
}

func (b *Binder) bind(ctx context.Context, device id.DeviceID, email string) (id.SessionID, error) {
	unlock := b.devices.lock(device)
	defer unlock()

	binding, err := b.store.Get(ctx, device)
	switch {
	case err == nil:
		return b.reuse(ctx, binding, email)
	case !errors.Is(err, sentinel.ErrNotFound):
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read session binding")
	}

	sess, err := b.provider.CreateAnonymousSession(ctx, email)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to create session")
		}
		return "", err
	}
	binding = &models.Binding{
		DeviceID:  device,
		SessionID: sess.ID,
		Token:     sess.Token,
		Emails:    []string{email},
		CreatedAt: sess.IssuedAt,
		ExpiresAt: sess.ExpiresAt,
	}
	err = b.store.Create(ctx, binding)
	if errors.Is(err, sentinel.ErrConflict) {
		// another instance bound the device first; use its session
		existing, getErr := b.store.Get(ctx, device)
		if getErr != nil {
			return "", dErrors.Wrap(getErr, dErrors.CodeUnavailable, "failed to read session binding")
		}
		return b.reuse(ctx, existing, email)
	}
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to store session binding")
	}

	b.metrics.IncrementBinding("created")
	b.logger.InfoContext(ctx, "session created for device",
		"device_id", device,
		"session_id", sess.ID,
	)
	return sess.ID, nil
}

func (b *Binder) reuse(ctx context.Context, binding *models.Binding, email string) (id.SessionID, error) {
	if !binding.HasEmail(email) {
		if _, err := b.store.AddEmail(ctx, binding.DeviceID, email); err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to associate email with session")
		}
	}
	b.metrics.IncrementBinding("reused")
	return binding.SessionID, nil
}

type deviceLock struct {
	mu   sync.Mutex
	refs int
}

// deviceLocks hands out one mutex per device and drops it when unused.
type deviceLocks struct {
	mu    sync.Mutex
	locks map[id.DeviceID]*deviceLock
}

func (d *deviceLocks) lock(device id.DeviceID) func() {
	d.mu.Lock()
	l, ok := d.locks[device]
	if !ok {
		l = &deviceLock{}
		d.locks[device] = l
	}
	l.refs++
	d.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		d.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(d.locks, device)
		}
		d.mu.Unlock()
	}
}
