// Package e2e drives the registration API end to end over HTTP against an
// in-process server backed by the local identity backend.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/genialityco/gen-live-web-sub000/internal/audit"
	form "github.com/genialityco/gen-live-web-sub000/internal/form/models"
	"github.com/genialityco/gen-live-web-sub000/internal/form/schema"
	"github.com/genialityco/gen-live-web-sub000/internal/identity/local"
	identity "github.com/genialityco/gen-live-web-sub000/internal/identity/models"
	identitystore "github.com/genialityco/gen-live-web-sub000/internal/identity/store"
	"github.com/genialityco/gen-live-web-sub000/internal/registration/handler"
	"github.com/genialityco/gen-live-web-sub000/internal/registration/service"
	"github.com/genialityco/gen-live-web-sub000/internal/session"
	"github.com/genialityco/gen-live-web-sub000/internal/session/provider"
	sessionstore "github.com/genialityco/gen-live-web-sub000/internal/session/store"
	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
	"github.com/genialityco/gen-live-web-sub000/pkg/platform/middleware/device"
)

// TestContext owns one server per scenario and remembers the last response.
// The client keeps a cookie jar so the device cookie survives across visits.
type TestContext struct {
	server    *httptest.Server
	client    *http.Client
	visits    *service.Service
	publisher *audit.Publisher
	attendees *identitystore.InMemoryAttendeeStore

	status int
	body   []byte
}

// NewTestContext starts a server that serves forms from formsDir.
func NewTestContext(formsDir string) (*TestContext, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	forms, err := schema.NewLoader(formsDir, schema.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("form loader: %w", err)
	}
	attendees := identitystore.NewInMemoryAttendeeStore()
	backend := local.New(attendees, identitystore.NewInMemoryEventUserStore(), local.WithLogger(logger))
	binder := session.NewBinder(sessionstore.NewInMemory(),
		provider.NewJWTProvider("e2e-signing-key", "gen-live", time.Hour),
		session.WithLogger(logger))
	publisher := audit.NewPublisher(audit.NewInMemoryStore(), audit.WithLogger(logger))

	visits := service.New(forms, backend, binder,
		service.WithLogger(logger),
		service.WithAuditPublisher(publisher),
		service.WithDebounceWindow(10*time.Millisecond),
	)

	router := chi.NewRouter()
	handler.New(visits, logger, nil, nil, device.Config{}).Register(router)

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	server := httptest.NewServer(router)
	return &TestContext{
		server:    server,
		client:    &http.Client{Jar: jar, Timeout: 10 * time.Second},
		visits:    visits,
		publisher: publisher,
		attendees: attendees,
	}, nil
}

// Close stops the server and drains pending audit events.
func (tc *TestContext) Close() error {
	tc.visits.Shutdown()
	tc.server.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return tc.publisher.Flush(ctx)
}

func (tc *TestContext) POST(path string, body any) error {
	return tc.do(http.MethodPost, path, body)
}

func (tc *TestContext) PATCH(path string, body any) error {
	return tc.do(http.MethodPatch, path, body)
}

func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil)
}

func (tc *TestContext) do(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.server.URL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.status = resp.StatusCode
	tc.body, err = io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	return nil
}

func (tc *TestContext) StatusCode() int {
	return tc.status
}

// ResponseField looks up a dot-separated path in the last JSON response.
func (tc *TestContext) ResponseField(path string) (any, error) {
	var doc any
	if err := json.Unmarshal(tc.body, &doc); err != nil {
		return nil, fmt.Errorf("decode response body %q: %w", tc.body, err)
	}
	current := doc
	for _, key := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: %q is not an object", path, key)
		}
		current, ok = obj[key]
		if !ok {
			return nil, fmt.Errorf("%s: field %q missing from response %s", path, key, tc.body)
		}
	}
	return current, nil
}

func (tc *TestContext) SeedAttendee(ctx context.Context, orgID, email, name, document string) error {
	now := time.Now().UTC()
	return tc.attendees.Save(ctx, &identity.Attendee{
		ID:        id.AttendeeID("seed-" + document),
		OrgID:     id.OrgID(orgID),
		Email:     email,
		Values:    form.ValueSet{"email": email, "name": name, "document": document},
		CreatedAt: now,
		UpdatedAt: now,
	})
}
