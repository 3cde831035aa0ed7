package testutil

import (
	"net/http"
	"time"

	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
	"github.com/genialityco/gen-live-web-sub000/pkg/requestcontext"
)

// WithDevice puts device in the request context, as the device middleware
// does for a browser that already carries the cookie.
func WithDevice(req *http.Request, device id.DeviceID) *http.Request {
	return req.WithContext(requestcontext.WithDeviceID(req.Context(), device))
}

// WithRequestMetadata sets the request id and a fixed request time.
func WithRequestMetadata(req *http.Request, requestID string, now time.Time) *http.Request {
	ctx := requestcontext.WithRequestID(req.Context(), requestID)
	return req.WithContext(requestcontext.WithTime(ctx, now))
}
