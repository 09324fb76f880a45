package collab

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/samber/lo"
)

const (
	EventJoinNote    = "join_note"
	EventNoteUpdate  = "note_update"
	EventNoteContent = "note_content"
	EventActiveUsers = "active_users"
	EventUserJoined  = "user_joined"
	EventUserLeft    = "user_left"
	EventNoteUpdated = "note_updated"
	EventError       = "error"
)

var ErrInvalidPayload = errors.New("invalid payload")

// Inbound is an event received from a client connection.
type Inbound interface {
	EventName() string
}

type (
	JoinNote struct {
		NoteID   string `mapstructure:"noteId" validate:"required,max=128"`
		Username string `mapstructure:"username" validate:"max=64"`
	}

	NoteUpdate struct {
		NoteID  string `mapstructure:"noteId" validate:"required,max=128"`
		Content string `mapstructure:"content"`
	}
)

func (JoinNote) EventName() string   { return EventJoinNote }
func (NoteUpdate) EventName() string { return EventNoteUpdate }

// Outbound is an event sent to a client connection.
type Outbound interface {
	EventName() string
}

type (
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}

	NoteContent struct {
		Content     string `json:"content"`
		Title       string `json:"title"`
		ActiveUsers []User `json:"activeUsers"`
	}

	ActiveUsers struct {
		Users []User `json:"users"`
	}

	UserJoined struct {
		UserID   string `json:"userId"`
		Username string `json:"username"`
	}

	UserLeft struct {
		UserID   string `json:"userId"`
		Username string `json:"username"`
	}

	NoteUpdated struct {
		Content   string    `json:"content"`
		UpdatedAt time.Time `json:"updatedAt"`
		UserID    string    `json:"userId"`
	}

	// ErrorNotice goes out as a bare string payload.
	ErrorNotice string
)

func (NoteContent) EventName() string { return EventNoteContent }
func (ActiveUsers) EventName() string { return EventActiveUsers }
func (UserJoined) EventName() string  { return EventUserJoined }
func (UserLeft) EventName() string    { return EventUserLeft }
func (NoteUpdated) EventName() string { return EventNoteUpdated }
func (ErrorNotice) EventName() string { return EventError }

func toUsers(participants []Participant) []User {
	return lo.Map(participants, func(p Participant, _ int) User {
		return User{ID: p.ConnID, Username: p.DisplayName}
	})
}

// Decoder turns raw transport payloads into validated inbound events.
type Decoder struct {
	validate         *validator.Validate
	maxContentLength int
}

// NewDecoder builds a Decoder. A maxContentLength of zero disables the
// content size check.
func NewDecoder(maxContentLength int) *Decoder {
	return &Decoder{
		validate:         validator.New(),
		maxContentLength: maxContentLength,
	}
}

// Decode maps the payload of the named event onto its typed form.
func (d *Decoder) Decode(event string, raw any) (Inbound, error) {
	switch event {
	case EventJoinNote:
		var msg JoinNote
		if err := d.decode(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case EventNoteUpdate:
		var msg NoteUpdate
		if err := d.decode(raw, &msg); err != nil {
			return nil, err
		}
		// An absent content would otherwise decode to "" and wipe the note.
		if content, ok := raw.(map[string]any)["content"]; !ok || content == nil {
			return nil, fmt.Errorf("%w: content is required", ErrInvalidPayload)
		}
		if d.maxContentLength > 0 && len(msg.Content) > d.maxContentLength {
			return nil, fmt.Errorf("%w: content exceeds %d bytes", ErrInvalidPayload, d.maxContentLength)
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrInvalidPayload, event)
	}
}

func (d *Decoder) decode(raw any, out any) error {
	if _, ok := raw.(map[string]any); !ok {
		return fmt.Errorf("%w: expected an object, got %T", ErrInvalidPayload, raw)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  out,
		TagName: "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if err := d.validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
