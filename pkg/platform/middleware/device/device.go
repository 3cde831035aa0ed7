// Package device identifies the browser a visitor uses.
//
// A device cookie carries a random device id. The id is the key the session
// binder uses to reuse one anonymous session per browser across visits. The
// User-Agent only feeds a display name; it is never used for identity.
package device

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mssola/useragent"

	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
	"github.com/genialityco/gen-live-web-sub000/pkg/requestcontext"
)

const (
	DefaultCookieName = "gl_device"
	cookieMaxAge      = 365 * 24 * time.Hour
)

type Config struct {
	CookieName string
	Secure     bool
}

// Middleware reads or mints the device cookie and stores the device id and
// display name in the request context.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	name := cfg.CookieName
	if name == "" {
		name = DefaultCookieName
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID, ok := fromCookie(r, name)
			if !ok {
				deviceID = id.NewDeviceID()
				http.SetCookie(w, &http.Cookie{
					Name:     name,
					Value:    deviceID.String(),
					Path:     "/",
					MaxAge:   int(cookieMaxAge.Seconds()),
					HttpOnly: true,
					Secure:   cfg.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			ctx := requestcontext.WithDeviceID(r.Context(), deviceID)
			ctx = requestcontext.WithDeviceName(ctx, ParseUserAgent(r.Header.Get("User-Agent")))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func fromCookie(r *http.Request, name string) (id.DeviceID, bool) {
	c, err := r.Cookie(name)
	if err != nil {
		return id.DeviceID{}, false
	}
	deviceID, err := id.ParseDeviceID(c.Value)
	if err != nil {
		return id.DeviceID{}, false
	}
	return deviceID, true
}

// ParseUserAgent returns "Browser on OS" for display, or "Unknown Device".
func ParseUserAgent(ua string) string {
	if strings.TrimSpace(ua) == "" {
		return "Unknown Device"
	}
	parsed := useragent.New(ua)
	browser, _ := parsed.Browser()
	os := parsed.OS()
	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}
	return strings.Join(strings.Fields(fmt.Sprintf("%s on %s", browser, os)), " ")
}
