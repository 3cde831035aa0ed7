// Package store keeps the device to session bindings.
package store

import (
	"context"

	"github.com/genialityco/gen-live-web-sub000/internal/session/models"
	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
	"github.com/genialityco/gen-live-web-sub000/pkg/platform/sentinel"
)

var ErrNotFound = sentinel.ErrNotFound

// Store persists one binding per device.
type Store interface {
	Get(ctx context.Context, device id.DeviceID) (*models.Binding, error)
	// Create stores a binding for a device that has none. It returns
	// sentinel.ErrConflict if the device is already bound.
	Create(ctx context.Context, binding *models.Binding) error
	// AddEmail associates email with the device's binding; already
	// associated emails are left as they are.
	AddEmail(ctx context.Context, device id.DeviceID, email string) (*models.Binding, error)
	Delete(ctx context.Context, device id.DeviceID) error
}
