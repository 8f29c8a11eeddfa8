// Package dialog turns inbound chat events into store operations and replies.
package dialog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Veraticus/pricebot/internal/common"
	"github.com/Veraticus/pricebot/internal/model"
)

// EventKind distinguishes the three ways a user talks to the bot.
type EventKind int

const (
	// EventCommand is a slash command such as "/ab Dia".
	EventCommand EventKind = iota
	// EventButton is a press on a chooser row.
	EventButton
	// EventText is any other message.
	EventText
)

func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventButton:
		return "button"
	case EventText:
		return "text"
	default:
		return "unknown"
	}
}

// Event is one inbound message. Transport fields (ChatID, MessageID,
// CallbackID) are carried through untouched for the reply sink.
type Event struct {
	Command    string
	Payload    string
	Text       string
	CallbackID string
	Args       []string
	UserID     int64
	ChatID     int64
	MessageID  int
	Kind       EventKind
}

// NewCommandEvent builds a command event. The command is given without its slash.
func NewCommandEvent(userID int64, command string, args ...string) Event {
	return Event{
		Kind:    EventCommand,
		UserID:  userID,
		Command: strings.ToLower(strings.TrimPrefix(command, "/")),
		Args:    args,
	}
}

// NewButtonEvent builds a button press event.
func NewButtonEvent(userID int64, payload string) Event {
	return Event{Kind: EventButton, UserID: userID, Payload: payload}
}

// NewTextEvent builds a free-text event.
func NewTextEvent(userID int64, text string) Event {
	return Event{Kind: EventText, UserID: userID, Text: text}
}

// ParseLine classifies a raw line of chat input as a command or free text.
// A "@botname" suffix on the command is dropped.
func ParseLine(userID int64, line string) Event {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") || len(trimmed) == 1 {
		return NewTextEvent(userID, line)
	}

	fields := strings.Fields(trimmed[1:])
	command := fields[0]
	if at := strings.IndexByte(command, '@'); at >= 0 {
		command = command[:at]
	}
	return NewCommandEvent(userID, command, fields[1:]...)
}

// SelectionKind is what a chooser row selects.
type SelectionKind int

const (
	// SelectBusiness selects a business.
	SelectBusiness SelectionKind = iota
	// SelectProduct selects a product.
	SelectProduct
)

// Wire prefixes for button payloads.
const (
	businessPayloadPrefix = "set_business_"
	productPayloadPrefix  = "set_prod_"
)

// ErrBadPayload is returned for button payloads this bot did not produce.
var ErrBadPayload = fmt.Errorf("%w: unrecognized button payload", common.ErrValidation)

// Selection is a decoded button payload.
type Selection struct {
	ID   int64
	Kind SelectionKind
}

// Payload encodes the selection for a chooser row.
func (s Selection) Payload() string {
	if s.Kind == SelectBusiness {
		return businessPayloadPrefix + strconv.FormatInt(s.ID, 10)
	}
	return productPayloadPrefix + strconv.FormatInt(s.ID, 10)
}

// EntityKind maps the selection onto the store's entity kind.
func (s Selection) EntityKind() model.EntityKind {
	if s.Kind == SelectBusiness {
		return model.KindBusiness
	}
	return model.KindProduct
}

// ParseSelection decodes "set_business_<id>" or "set_prod_<id>".
func ParseSelection(payload string) (Selection, error) {
	var (
		kind SelectionKind
		raw  string
	)
	switch {
	case strings.HasPrefix(payload, businessPayloadPrefix):
		kind, raw = SelectBusiness, strings.TrimPrefix(payload, businessPayloadPrefix)
	case strings.HasPrefix(payload, productPayloadPrefix):
		kind, raw = SelectProduct, strings.TrimPrefix(payload, productPayloadPrefix)
	default:
		return Selection{}, fmt.Errorf("%w: %q", ErrBadPayload, payload)
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return Selection{}, fmt.Errorf("%w: %q", ErrBadPayload, payload)
	}
	return Selection{Kind: kind, ID: id}, nil
}
