package trigger

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/suPer8Hu/salesbot/internal/gateway"
)

// Payload is the decoded, typed body of an Action. Exactly one concrete
// type exists per ActionType.
type Payload interface {
	Type() ActionType
	validate() error
}

// SendMessage sends buttons when Buttons is set, a list when Sections is
// set, otherwise plain text.
type SendMessage struct {
	Message    string                `json:"message"`
	Header     string                `json:"header,omitempty"`
	Footer     string                `json:"footer,omitempty"`
	Buttons    []gateway.Button      `json:"buttons,omitempty"`
	ButtonText string                `json:"button_text,omitempty"`
	Sections   []gateway.ListSection `json:"sections,omitempty"`
}

// NotifyAdmin texts the tenant's admin phone. Message may use {name},
// {phone} and {message}.
type NotifyAdmin struct {
	Message string `json:"message"`
}

type UpdateStatus struct {
	Status string `json:"status"`
}

type AddTag struct {
	Tag string `json:"tag"`
}

// ToggleBot pauses (Enabled=false) or resumes the assistant for the chat.
type ToggleBot struct {
	Enabled bool `json:"enabled"`
}

func (SendMessage) Type() ActionType  { return ActSendMessage }
func (NotifyAdmin) Type() ActionType  { return ActNotifyAdmin }
func (UpdateStatus) Type() ActionType { return ActUpdateStatus }
func (AddTag) Type() ActionType       { return ActAddTag }
func (ToggleBot) Type() ActionType    { return ActToggleBot }

const (
	maxButtons  = 3
	maxListRows = 10
)

func (p *SendMessage) validate() error {
	if strings.TrimSpace(p.Message) == "" {
		return fmt.Errorf("%w: send_message needs a message", ErrInvalidRule)
	}
	if len(p.Buttons) > 0 && len(p.Sections) > 0 {
		return fmt.Errorf("%w: send_message cannot carry both buttons and sections", ErrInvalidRule)
	}
	if len(p.Buttons) > maxButtons {
		return fmt.Errorf("%w: at most %d buttons", ErrInvalidRule, maxButtons)
	}
	for i := range p.Buttons {
		if strings.TrimSpace(p.Buttons[i].Title) == "" {
			return fmt.Errorf("%w: button %d has no title", ErrInvalidRule, i)
		}
		if p.Buttons[i].ID == "" {
			p.Buttons[i].ID = fmt.Sprintf("btn_%d", i+1)
		}
	}
	rows := 0
	for si := range p.Sections {
		for ri := range p.Sections[si].Rows {
			r := &p.Sections[si].Rows[ri]
			if strings.TrimSpace(r.Title) == "" {
				return fmt.Errorf("%w: list row %d/%d has no title", ErrInvalidRule, si, ri)
			}
			rows++
			if r.ID == "" {
				r.ID = fmt.Sprintf("row_%d", rows)
			}
		}
	}
	if rows > maxListRows {
		return fmt.Errorf("%w: at most %d list rows", ErrInvalidRule, maxListRows)
	}
	if len(p.Sections) > 0 && rows == 0 {
		return fmt.Errorf("%w: list without rows", ErrInvalidRule)
	}
	return nil
}

func (p *NotifyAdmin) validate() error {
	if strings.TrimSpace(p.Message) == "" {
		p.Message = defaultAdminTemplate
	}
	return nil
}

func (p *UpdateStatus) validate() error {
	if strings.TrimSpace(p.Status) == "" {
		return fmt.Errorf("%w: update_status needs a status", ErrInvalidRule)
	}
	return nil
}

func (p *AddTag) validate() error {
	if strings.TrimSpace(p.Tag) == "" {
		return fmt.Errorf("%w: add_tag needs a tag", ErrInvalidRule)
	}
	return nil
}

func (p *ToggleBot) validate() error { return nil }

const defaultAdminTemplate = "Nuevo mensaje de {name} ({phone}): {message}"

// Decode parses the action payload into its typed form.
func (a *Action) Decode() (Payload, error) {
	var p Payload
	switch a.Type {
	case ActSendMessage:
		p = &SendMessage{}
	case ActNotifyAdmin:
		p = &NotifyAdmin{}
	case ActUpdateStatus:
		p = &UpdateStatus{}
	case ActAddTag:
		p = &AddTag{}
	case ActToggleBot:
		p = &ToggleBot{}
	default:
		return nil, fmt.Errorf("%w: action type %q", ErrInvalidRule, a.Type)
	}
	raw := []byte(a.Payload)
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrInvalidRule, a.Type, err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewAction encodes a typed payload into an Action row.
func NewAction(p Payload, position int) (Action, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return Action{}, err
	}
	return Action{Type: p.Type(), Payload: raw, Position: position}, nil
}
