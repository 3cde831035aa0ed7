package flow

import (
	"github.com/genialityco/gen-live-web-sub000/internal/form/dependency"
	"github.com/genialityco/gen-live-web-sub000/internal/form/models"
	"github.com/genialityco/gen-live-web-sub000/internal/form/rules"
	identity "github.com/genialityco/gen-live-web-sub000/internal/identity/models"
	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
)

// FieldView is one field as the current step presents it.
type FieldView struct {
	ID         string           `json:"id"`
	Type       models.FieldType `json:"type"`
	Label      string           `json:"label"`
	Required   bool             `json:"required"`
	Visible    bool             `json:"visible"`
	Editable   bool             `json:"editable"`
	Mismatched bool             `json:"mismatched,omitempty"`
	Error      string           `json:"error,omitempty"`
	Options    []models.Option  `json:"options,omitempty"`
	Value      any              `json:"value"`
}

// View is a copy of the controller's state, safe to hand to another goroutine.
type View struct {
	State          State               `json:"state"`
	Generation     uint64              `json:"generation"`
	Busy           bool                `json:"busy"`
	Fields         []FieldView         `json:"fields,omitempty"`
	Values         models.ValueSet     `json:"values"`
	Errors         map[string]string   `json:"errors,omitempty"`
	Mismatched     []string            `json:"mismatched,omitempty"`
	Notice         string              `json:"notice,omitempty"`
	ExistingData   models.ValueSet     `json:"existingData,omitempty"`
	Attendee       *identity.Attendee  `json:"attendee,omitempty"`
	EventUser      *identity.EventUser `json:"eventUser,omitempty"`
	SessionID      id.SessionID        `json:"sessionId,omitempty"`
	Title          string              `json:"title,omitempty"`
	SuccessMessage string              `json:"successMessage,omitempty"`
}

// Snapshot returns the current view. QuickLogin lists only identifier
// fields; the registration steps list every field with its visibility.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		State:      c.state,
		Generation: c.generation,
		Busy:       c.op != nil,
		Values:     c.values.Clone(),
		Mismatched: append([]string(nil), c.mismatched...),
		Notice:     c.notice,
		SessionID:  c.sessionID,
	}
	if len(c.errors) > 0 {
		v.Errors = make(map[string]string, len(c.errors))
		for k, msg := range c.errors {
			v.Errors[k] = msg
		}
	}
	if c.attendee != nil {
		att := *c.attendee
		att.Values = c.attendee.Values.Clone()
		v.Attendee = &att
		v.ExistingData = att.Values.Clone()
	}
	if c.eventUser != nil {
		eu := *c.eventUser
		v.EventUser = &eu
	}
	if c.schema == nil {
		return v
	}

	v.Title = c.schema.Title
	if c.state == StateCompleted {
		v.SuccessMessage = c.schema.SuccessMessage
	}
	switch c.state {
	case StateQuickLogin:
		for _, f := range c.schema.IdentifierFields() {
			v.Fields = append(v.Fields, c.fieldView(f, true))
		}
	case StateFullRegistration, StateUpdateRegistration:
		visible := rules.Visibility(c.schema, c.values)
		for _, f := range c.schema.Ordered() {
			v.Fields = append(v.Fields, c.fieldView(f, visible[f.ID]))
		}
	}
	return v
}

func (c *Controller) fieldView(f *models.FieldDefinition, visible bool) FieldView {
	fv := FieldView{
		ID:         f.ID,
		Type:       f.Type,
		Label:      f.Label,
		Required:   f.Required,
		Visible:    visible,
		Editable:   !dependency.IsOwned(f),
		Mismatched: contains(c.mismatched, f.ID),
		Error:      c.errors[f.ID],
		Value:      c.values[f.ID],
	}
	if f.Type == models.FieldSelect {
		if f.DependsOn != "" {
			fv.Options = dependency.FilterOptions(f, c.values[f.DependsOn])
		} else {
			fv.Options = append([]models.Option(nil), f.Options...)
		}
	}
	return fv
}

func contains(ids []string, want string) bool {
	for _, s := range ids {
		if s == want {
			return true
		}
	}
	return false
}
