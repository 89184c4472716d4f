package dialog

import "remindbot/internal/transport"

type EventKind int

const (
	// EventMessage is an inbound user message: text and/or attachment content.
	EventMessage EventKind = iota
	// EventButton is an inline keyboard press carrying an opaque tag.
	EventButton
)

// Event is one inbound user action, already stripped of transport detail.
type Event struct {
	Kind EventKind

	Tag string // button tag, EventButton only

	Text     string
	Document string // file name, when the message carries a document
	HasPhoto bool
	HasVideo bool
	URLs     []string // link entities found inside Text
}

// FromUpdate maps a transport update onto a dialog event.
func FromUpdate(up transport.Update) (int64, Event, bool) {
	switch up.Kind {
	case transport.UpdateCallback:
		if up.Callback == nil {
			return 0, Event{}, false
		}
		return up.Callback.FromID, Event{Kind: EventButton, Tag: up.Callback.Data}, true
	case transport.UpdateMessage:
		if up.Message == nil {
			return 0, Event{}, false
		}
		m := up.Message
		return m.FromID, Event{
			Kind:     EventMessage,
			Text:     m.Text,
			Document: m.Document,
			HasPhoto: m.HasPhoto,
			HasVideo: m.HasVideo,
			URLs:     m.URLs,
		}, true
	default:
		return 0, Event{}, false
	}
}
