// Package requestcontext carries request-scoped values through context so
// services can read them without importing net/http. Middleware writes the
// values; tests inject them directly with the With* setters.
package requestcontext

import (
	"context"
	"time"

	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
)

type key int

const (
	visitIDKey key = iota
	deviceIDKey
	deviceNameKey
	clientIPKey
	userAgentKey
	requestIDKey
	requestTimeKey
)

func value[T any](ctx context.Context, k key) T {
	v, _ := ctx.Value(k).(T)
	return v
}

// VisitID is the registration visit the current work belongs to.
func VisitID(ctx context.Context) id.VisitID { return value[id.VisitID](ctx, visitIDKey) }

func WithVisitID(ctx context.Context, visitID id.VisitID) context.Context {
	return context.WithValue(ctx, visitIDKey, visitID)
}

// DeviceID is the browser identity carried by the device cookie.
func DeviceID(ctx context.Context) id.DeviceID { return value[id.DeviceID](ctx, deviceIDKey) }

func WithDeviceID(ctx context.Context, deviceID id.DeviceID) context.Context {
	return context.WithValue(ctx, deviceIDKey, deviceID)
}

// DeviceName is the display name derived from the User-Agent, such as
// "Firefox on Linux".
func DeviceName(ctx context.Context) string { return value[string](ctx, deviceNameKey) }

func WithDeviceName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, deviceNameKey, name)
}

func ClientIP(ctx context.Context) string  { return value[string](ctx, clientIPKey) }
func UserAgent(ctx context.Context) string { return value[string](ctx, userAgentKey) }

func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey, clientIP)
	return context.WithValue(ctx, userAgentKey, userAgent)
}

func RequestID(ctx context.Context) string { return value[string](ctx, requestIDKey) }

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// Now is the time the request arrived, or the wall clock outside a request.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey).(time.Time); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey, t)
}
