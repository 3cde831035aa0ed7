package backend

import (
	"context"
	"net/http"

	form "github.com/genialityco/gen-live-web-sub000/internal/form/models"
	"github.com/genialityco/gen-live-web-sub000/internal/identity/models"
	"github.com/genialityco/gen-live-web-sub000/internal/identity/ports"
	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
	dErrors "github.com/genialityco/gen-live-web-sub000/pkg/domain-errors"
	strs "github.com/genialityco/gen-live-web-sub000/pkg/platform/strings"
)

var _ ports.Backend = (*Client)(nil)

type identifiersBody struct {
	Identifiers form.ValueSet `json:"identifiers"`
}

// matchResponse covers both check-registration replies. The org-scoped
// variant never sets Registered or EventUser.
type matchResponse struct {
	Found       bool              `json:"found"`
	Registered  bool              `json:"registered"`
	OrgAttendee *models.Attendee  `json:"orgAttendee"`
	EventUser   *models.EventUser `json:"eventUser"`
	Mismatched  []string          `json:"mismatched"`
	Reason      string            `json:"reason"`
}

func (r matchResponse) result(orgScoped bool) (models.MatchResult, error) {
	var res models.MatchResult
	mismatched := strs.DedupeAndTrim(r.Mismatched)
	switch {
	case len(mismatched) > 0:
		res = models.InvalidFields(mismatched...)
	case !r.Found:
		res = models.NotFound()
	case !orgScoped && r.Registered:
		res = models.EventRegistered(r.OrgAttendee, r.EventUser)
	default:
		res = models.OrgOnly(r.OrgAttendee)
	}
	res.Reason = r.Reason
	if !res.Valid() {
		return models.MatchResult{}, dErrors.Newf(dErrors.CodeInternal, "malformed %s match from registration backend", res.Kind)
	}
	return res, nil
}

// Resolve calls the event-scoped or org-scoped check endpoint.
func (c *Client) Resolve(ctx context.Context, req models.MatchRequest) (models.MatchResult, error) {
	segments := eventPath(req.EventID, "check-registration-by-identifiers")
	op := "check_event_registration"
	if req.OrgScoped() {
		segments = []string{"organizations", req.OrgID.String(), "check-registration-by-identifiers"}
		op = "check_org_registration"
	}

	var resp matchResponse
	if err := c.do(ctx, op, http.MethodPost, segments, identifiersBody{Identifiers: req.Identifiers}, &resp); err != nil {
		return models.MatchResult{}, err
	}
	res, err := resp.result(req.OrgScoped())
	if err != nil {
		return models.MatchResult{}, err
	}
	c.metrics.IncrementMatchOutcome(res.Kind.String())
	return res, nil
}

type findResponse struct {
	Found     bool              `json:"found"`
	Attendee  *models.Attendee  `json:"attendee"`
	EventUser *models.EventUser `json:"eventUser"`
}

func (c *Client) FindRegistration(ctx context.Context, req models.MatchRequest) (models.Registration, bool, error) {
	if req.EventID == "" {
		return models.Registration{}, false, dErrors.New(dErrors.CodeBadRequest, "find registration needs an event")
	}
	var resp findResponse
	err := c.do(ctx, "find_registration", http.MethodPost, eventPath(req.EventID, "find-registration"),
		identifiersBody{Identifiers: req.Identifiers}, &resp)
	if err != nil {
		return models.Registration{}, false, err
	}
	if !resp.Found || resp.Attendee == nil {
		return models.Registration{}, false, nil
	}
	return models.Registration{Attendee: resp.Attendee, EventUser: resp.EventUser}, true, nil
}

type registerBody struct {
	OrgID     id.OrgID      `json:"organizationId"`
	Email     string        `json:"email"`
	Values    form.ValueSet `json:"registrationData"`
	SessionID id.SessionID  `json:"firebaseUID,omitempty"`
}

type registerResponse struct {
	Attendee  *models.Attendee  `json:"attendee"`
	EventUser *models.EventUser `json:"eventUser"`
}

// Register posts to register, or register-with-session when the request
// carries a session. Without an event it creates the org attendee only.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (models.Registration, error) {
	body := registerBody{OrgID: req.OrgID, Email: form.NormalizeEmail(req.Email), Values: req.Values, SessionID: req.SessionID}

	op, segments := "register", eventPath(req.EventID, "register")
	switch {
	case req.EventID == "":
		op, segments = "register_org", []string{"organizations", req.OrgID.String(), "register"}
	case req.SessionID != "":
		op, segments = "register_with_session", eventPath(req.EventID, "register-with-session")
	}

	var resp registerResponse
	if err := c.do(ctx, op, http.MethodPost, segments, body, &resp); err != nil {
		return models.Registration{}, err
	}
	if resp.Attendee == nil {
		return models.Registration{}, dErrors.New(dErrors.CodeInternal, "registration backend returned no attendee")
	}
	return models.Registration{Attendee: resp.Attendee, EventUser: resp.EventUser}, nil
}

type updateBody struct {
	Email  string        `json:"email,omitempty"`
	Values form.ValueSet `json:"registrationData"`
}

func (c *Client) UpdateRegistration(ctx context.Context, req models.UpdateRequest) (*models.Attendee, error) {
	var attendee models.Attendee
	err := c.do(ctx, "update_registration", http.MethodPatch,
		[]string{"attendees", req.AttendeeID.String()},
		updateBody{Email: form.NormalizeEmail(req.Email), Values: req.Values}, &attendee)
	if err != nil {
		return nil, err
	}
	return &attendee, nil
}

type associateBody struct {
	OrgID     id.OrgID     `json:"organizationId"`
	Email     string       `json:"email"`
	SessionID id.SessionID `json:"firebaseUID"`
}

func (c *Client) AssociateSession(ctx context.Context, req models.AssociateRequest) error {
	return c.do(ctx, "associate_session", http.MethodPost, eventPath(req.EventID, "associate-session"),
		associateBody{OrgID: req.OrgID, Email: form.NormalizeEmail(req.Email), SessionID: req.SessionID}, nil)
}

// Form fetches an organization's registration form. Callers run the schema
// checker on the result.
func (c *Client) Form(ctx context.Context, slug id.OrgSlug) (*form.FormSchema, error) {
	var schema form.FormSchema
	err := c.do(ctx, "registration_form", http.MethodGet,
		[]string{"organizations", slug.String(), "registration-form"}, nil, &schema)
	if err != nil {
		return nil, err
	}
	if schema.OrgSlug == "" {
		schema.OrgSlug = slug
	}
	return &schema, nil
}
