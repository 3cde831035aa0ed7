package registration

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext is the HTTP driver the registration steps run against.
type TestContext interface {
	POST(path string, body any) error
	PATCH(path string, body any) error
	GET(path string) error
	StatusCode() int
	ResponseField(path string) (any, error)
	SeedAttendee(ctx context.Context, orgID, email, name, document string) error
}

type steps struct {
	tc         TestContext
	visitID    string
	remembered string
}

// RegisterSteps binds the registration flow steps to a scenario.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	s := &steps{tc: tc}

	ctx.Step(`^a visitor opens the "([^"]*)" registration for event "([^"]*)"$`, s.opensRegistration)
	ctx.Step(`^the visitor chooses to register as new$`, s.choosesNew)
	ctx.Step(`^the visitor chooses existing registration$`, s.choosesExisting)
	ctx.Step(`^the visitor enters:$`, s.enters)
	ctx.Step(`^the visitor verifies$`, s.verifies)
	ctx.Step(`^the visitor submits$`, s.submits)
	ctx.Step(`^the visitor continues from the summary$`, s.continues)
	ctx.Step(`^the visitor updates their information$`, s.updatesInfo)
	ctx.Step(`^a visitor registered for event "([^"]*)" of "([^"]*)" as "([^"]*)" with document "([^"]*)"$`, s.registered)
	ctx.Step(`^an attendee "([^"]*)" named "([^"]*)" with document "([^"]*)" belongs to "([^"]*)"$`, s.seedAttendee)
	ctx.Step(`^the visitor remembers the session$`, s.remembersSession)

	ctx.Step(`^the response status should be (\d+)$`, s.statusShouldBe)
	ctx.Step(`^the error code should be "([^"]*)"$`, s.errorCodeShouldBe)
	ctx.Step(`^the visit state should be "([^"]*)"$`, s.stateShouldBe)
	ctx.Step(`^the value "([^"]*)" should be "([^"]*)"$`, s.valueShouldBe)
	ctx.Step(`^the existing data "([^"]*)" should be "([^"]*)"$`, s.existingShouldBe)
	ctx.Step(`^the field "([^"]*)" should be marked as mismatched$`, s.fieldMismatched)
	ctx.Step(`^the visit should be bound to a session$`, s.boundToSession)
	ctx.Step(`^the session should be the remembered one$`, s.sessionRemembered)
}

func (s *steps) opensRegistration(slug, eventID string) error {
	if err := s.tc.POST("/visits", map[string]string{"orgSlug": slug, "eventId": eventID}); err != nil {
		return err
	}
	if s.tc.StatusCode() != 201 {
		return fmt.Errorf("start visit: expected status 201, got %d", s.tc.StatusCode())
	}
	visitID, err := s.tc.ResponseField("id")
	if err != nil {
		return err
	}
	s.visitID = fmt.Sprint(visitID)
	return nil
}

func (s *steps) path(suffix string) string {
	return "/visits/" + s.visitID + suffix
}

func (s *steps) choosesNew() error {
	return s.tc.POST(s.path("/access"), map[string]bool{"existing": false})
}

func (s *steps) choosesExisting() error {
	return s.tc.POST(s.path("/access"), map[string]bool{"existing": true})
}

func (s *steps) enters(table *godog.Table) error {
	values := make(map[string]string, len(table.Rows))
	for _, row := range table.Rows {
		if len(row.Cells) != 2 {
			return fmt.Errorf("expected field and value columns, got %d cells", len(row.Cells))
		}
		values[row.Cells[0].Value] = row.Cells[1].Value
	}
	return s.patchValues(values)
}

func (s *steps) patchValues(values map[string]string) error {
	return s.tc.PATCH(s.path("/values"), map[string]any{"values": values})
}

func (s *steps) verifies() error    { return s.tc.POST(s.path("/verify"), nil) }
func (s *steps) submits() error     { return s.tc.POST(s.path("/submit"), nil) }
func (s *steps) continues() error   { return s.tc.POST(s.path("/summary/continue"), nil) }
func (s *steps) updatesInfo() error { return s.tc.POST(s.path("/summary/update"), nil) }

func (s *steps) registered(eventID, slug, email, document string) error {
	if err := s.opensRegistration(slug, eventID); err != nil {
		return err
	}
	if err := s.choosesNew(); err != nil {
		return err
	}
	values := map[string]string{"email": email, "document": document, "name": "Returning Visitor"}
	if err := s.patchValues(values); err != nil {
		return err
	}
	if err := s.submits(); err != nil {
		return err
	}
	if err := s.statusShouldBe(200); err != nil {
		return err
	}
	return s.stateShouldBe("completed")
}

func (s *steps) seedAttendee(email, name, document, orgID string) error {
	return s.tc.SeedAttendee(context.Background(), orgID, email, name, document)
}

func (s *steps) remembersSession() error {
	sessionID, err := s.tc.ResponseField("sessionId")
	if err != nil {
		return err
	}
	s.remembered = fmt.Sprint(sessionID)
	return nil
}

func (s *steps) statusShouldBe(want int) error {
	if got := s.tc.StatusCode(); got != want {
		return fmt.Errorf("expected status %d, got %d", want, got)
	}
	return nil
}

func (s *steps) fieldEquals(path, want string) error {
	got, err := s.tc.ResponseField(path)
	if err != nil {
		return err
	}
	if fmt.Sprint(got) != want {
		return fmt.Errorf("expected %s to be %q, got %v", path, want, got)
	}
	return nil
}

func (s *steps) errorCodeShouldBe(code string) error { return s.fieldEquals("error", code) }
func (s *steps) stateShouldBe(state string) error    { return s.fieldEquals("state", state) }

func (s *steps) valueShouldBe(field, want string) error {
	return s.fieldEquals("values."+field, want)
}

func (s *steps) existingShouldBe(field, want string) error {
	return s.fieldEquals("existingData."+field, want)
}

func (s *steps) fieldMismatched(field string) error {
	got, err := s.tc.ResponseField("mismatched")
	if err != nil {
		return err
	}
	list, _ := got.([]any)
	for _, v := range list {
		if v == field {
			return nil
		}
	}
	return fmt.Errorf("expected %q among mismatched fields %v", field, got)
}

func (s *steps) boundToSession() error {
	got, err := s.tc.ResponseField("sessionId")
	if err != nil {
		return err
	}
	if fmt.Sprint(got) == "" {
		return fmt.Errorf("expected the visit to carry a session")
	}
	return nil
}

func (s *steps) sessionRemembered() error {
	if s.remembered == "" {
		return fmt.Errorf("no session was remembered")
	}
	return s.fieldEquals("sessionId", s.remembered)
}
