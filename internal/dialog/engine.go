// Package dialog is the interactive state machine behind the bot. Handle()
// is a pure transition function: given the user's session and one inbound
// event it mutates the session and returns the effects to perform. Rendering
// and persistence happen outside, in the effect interpreter.
//
// Two rules hold for every state: a "back" tag returns to the logical parent
// state, and malformed input re-enters the same state with an error prompt —
// invalid input never advances the machine.
package dialog

import (
	"strconv"
	"strings"
	"time"

	"remindbot/internal/session"
	"remindbot/internal/storage"
	"remindbot/internal/timeparse"
	"remindbot/pkg/logx"
)

// QuickNoteTopic is the fixed topic quick notes are filed under.
const QuickNoteTopic = "Quick note"

type Engine struct {
	loc *time.Location
	now func() time.Time
	log logx.Logger
}

func NewEngine(loc *time.Location, log logx.Logger) *Engine {
	if loc == nil {
		loc = time.Local
	}
	return &Engine{loc: loc, now: time.Now, log: log}
}

// SetNow overrides the clock; tests only.
func (e *Engine) SetNow(now func() time.Time) { e.now = now }

// SetLocation swaps the timezone used for time resolution (config reload).
func (e *Engine) SetLocation(loc *time.Location) {
	if loc != nil {
		e.loc = loc
	}
}

// Handle advances the session by one event and returns the effects to
// perform. It never returns an error: every failure path is expressed as a
// prompt effect that keeps or resets the state.
func (e *Engine) Handle(s *session.Session, ev Event) []Effect {
	// /start resets any flow from anywhere.
	if ev.Kind == EventMessage && strings.TrimSpace(ev.Text) == "/start" {
		s.Reset()
		return []Effect{mainMenuPrompt(false)}
	}

	switch s.State {
	case session.Idle:
		return e.handleIdle(s, ev)
	case session.AddingTopic:
		return e.handleAddingTopic(s, ev)
	case session.AwaitingAttachmentChoice:
		return e.handleAttachmentChoice(s, ev)
	case session.CollectingAttachments:
		return e.handleCollecting(s, ev)
	case session.AwaitingTime:
		return e.handleAwaitingTime(s, ev)
	case session.Confirming:
		return e.handleConfirming(s, ev)
	case session.QuickNote:
		return e.handleQuickNote(s, ev)
	case session.QuickNoteConfirm:
		return e.handleQuickNoteConfirm(s, ev)
	case session.QuickNoteTime:
		return e.handleQuickNoteTime(s, ev)
	case session.Settings:
		return e.handleSettings(s, ev)
	case session.AwaitingLeadMinutes:
		return e.handleLeadMinutes(s, ev)
	case session.SubscriptionBrowsing:
		return e.handleSubscriptionBrowsing(s, ev)
	case session.SubscriptionCategoryActions:
		return e.handleCategoryActions(s, ev)
	case session.ViewingSubscriptions:
		return e.handleViewingSubscriptions(s, ev)
	case session.AwaitingSubscriptionContent:
		return e.handleSubscriptionContent(s, ev)
	case session.ScheduleMenu:
		return e.handleScheduleMenu(s, ev)
	case session.ScheduleSelectDay:
		return e.handleScheduleDay(s, ev)
	case session.ScheduleSelectBlock:
		return e.handleScheduleBlock(s, ev)
	case session.ScheduleHourEntry:
		return e.handleScheduleHour(s, ev)
	case session.ScheduleConfirm:
		return e.handleScheduleConfirm(s, ev)
	default:
		e.log.Warn("session in unknown state; resetting", logx.Int64("user", s.UserID), logx.Any("state", s.State))
		s.Reset()
		return []Effect{mainMenuPrompt(false)}
	}
}

// reprompt logs an unrecognized event and re-renders the current state.
func (e *Engine) reprompt(s *session.Session, ev Event, p Prompt) []Effect {
	e.log.Warn("unrecognized event for state",
		logx.Int64("user", s.UserID),
		logx.String("state", s.State.String()),
		logx.String("tag", ev.Tag),
		logx.Err(ErrUnrecognizedEvent),
	)
	p.Edit = false
	return []Effect{p}
}

// ---- idle / main menu ----

func (e *Engine) handleIdle(s *session.Session, ev Event) []Effect {
	if ev.Kind == EventMessage {
		// Any stray message shows the menu again.
		return []Effect{mainMenuPrompt(false)}
	}
	switch ev.Tag {
	case TagMainAddTask:
		s.State = session.AddingTopic
		s.Task = &session.TaskDraft{}
		return []Effect{topicPrompt(true)}
	case TagMainQuickNote:
		s.State = session.QuickNote
		s.Note = &session.NoteDraft{}
		return []Effect{quickNotePrompt(true)}
	case TagMainSchedule:
		s.State = session.ScheduleMenu
		return []Effect{scheduleMenuPrompt(true)}
	case TagMainSettings:
		s.State = session.Settings
		return []Effect{settingsPrompt(s.LeadMinutes, true)}
	case TagMainSubscriptions:
		s.State = session.SubscriptionBrowsing
		return []Effect{subscriptionsPrompt(true)}
	case TagMainMyTasks:
		return []Effect{ShowTasks{}}
	case TagBack:
		return []Effect{mainMenuPrompt(true)}
	default:
		return e.reprompt(s, ev, mainMenuPrompt(false))
	}
}

// ---- add-task branch ----

func (e *Engine) handleAddingTopic(s *session.Session, ev Event) []Effect {
	if ev.Kind == EventButton {
		if ev.Tag == TagBack {
			s.Reset()
			return []Effect{mainMenuPrompt(true)}
		}
		return e.reprompt(s, ev, topicPrompt(false))
	}
	if ev.Text == "" {
		// A bare attachment is not a topic.
		return []Effect{errorPrompt("Send the task topic as text.")}
	}
	s.Task.Topic = ev.Text
	s.State = session.AwaitingAttachmentChoice
	return []Effect{attachChoicePrompt()}
}

func (e *Engine) handleAttachmentChoice(s *session.Session, ev Event) []Effect {
	switch ev.Tag {
	case TagAttachYes:
		s.State = session.CollectingAttachments
		s.Task.Attachments = []session.Attachment{}
		return []Effect{collectPrompt(true)}
	case TagAttachNo, TagDone:
		if s.Task.Attachments == nil {
			s.Task.Attachments = []session.Attachment{}
		}
		s.State = session.AwaitingTime
		return []Effect{timePrompt(true)}
	case TagBack:
		s.State = session.AddingTopic
		return []Effect{topicPrompt(true)}
	default:
		return e.reprompt(s, ev, attachChoicePrompt())
	}
}

func (e *Engine) handleCollecting(s *session.Session, ev Event) []Effect {
	if ev.Kind == EventButton {
		switch ev.Tag {
		case TagDone:
			s.State = session.AwaitingTime
			return []Effect{timePrompt(true)}
		case TagBack:
			s.State = session.AwaitingAttachmentChoice
			return []Effect{attachChoicePrompt()}
		default:
			return e.reprompt(s, ev, collectPrompt(false))
		}
	}

	// Literal "done" only counts when the message is text alone; a photo
	// captioned "done" is still an attachment.
	if !carriesAttachment(ev) && strings.EqualFold(strings.TrimSpace(ev.Text), "done") {
		s.State = session.AwaitingTime
		return []Effect{timePrompt(false)}
	}

	a, ok := classifyAttachment(ev)
	if !ok {
		return []Effect{errorPrompt("Couldn't recognize that attachment. Try again, or press Done.")}
	}
	s.Task.Attachments = append(s.Task.Attachments, a)
	return []Effect{attachmentAddedPrompt(a)}
}

func carriesAttachment(ev Event) bool {
	return ev.Document != "" || ev.HasPhoto || ev.HasVideo || len(ev.URLs) > 0
}

// classifyAttachment maps inbound content onto an attachment descriptor:
// document, photo, video, link (URL entity inside text) or plain text.
func classifyAttachment(ev Event) (session.Attachment, bool) {
	switch {
	case ev.Document != "":
		return session.Attachment{Kind: session.AttachFile, Payload: ev.Document}, true
	case ev.HasPhoto:
		return session.Attachment{Kind: session.AttachPhoto}, true
	case ev.HasVideo:
		return session.Attachment{Kind: session.AttachVideo}, true
	case len(ev.URLs) > 0:
		return session.Attachment{Kind: session.AttachLink, Payload: ev.URLs[0]}, true
	case strings.TrimSpace(ev.Text) != "":
		return session.Attachment{Kind: session.AttachText, Payload: ev.Text}, true
	default:
		return session.Attachment{}, false
	}
}

func (e *Engine) handleAwaitingTime(s *session.Session, ev Event) []Effect {
	if ev.Kind == EventButton {
		if ev.Tag == TagBack {
			s.State = session.AwaitingAttachmentChoice
			return []Effect{attachChoicePrompt()}
		}
		return e.reprompt(s, ev, timePrompt(false))
	}

	at, err := timeparse.Resolve(ev.Text, e.now(), e.loc)
	if err != nil {
		e.log.Debug("time input rejected", logx.Int64("user", s.UserID), logx.String("input", ev.Text), logx.Err(err))
		return []Effect{badTimePrompt()}
	}
	s.Task.FireAt = at
	s.State = session.Confirming
	return []Effect{confirmPrompt(s.Task, false)}
}

func (e *Engine) handleConfirming(s *session.Session, ev Event) []Effect {
	switch ev.Tag {
	case TagConfirmYes:
		d := s.Task
		if d == nil || d.Topic == "" || d.FireAt.IsZero() {
			e.log.Error("confirm reached with incomplete draft",
				logx.Int64("user", s.UserID), logx.Err(ErrMissingPrecondition))
			s.Reset()
			return []Effect{errorPrompt("Task data is incomplete; nothing was saved."), mainMenuPrompt(false)}
		}
		rec := storage.TaskRecord{
			UserID:      s.UserID,
			Topic:       d.Topic,
			Attachments: toStorageAttachments(d.Attachments),
			FireAt:      d.FireAt,
		}
		reminder := ScheduleReminder{
			Payload:     d.Topic,
			Attachments: d.Attachments,
			FireAt:      d.FireAt,
			LeadMinutes: s.LeadMinutes,
		}
		s.Reset()
		return []Effect{
			SaveTask{Record: rec},
			reminder,
			Prompt{Text: "✅ Task saved! You'll be notified in time.", Edit: true},
			mainMenuPrompt(false),
		}
	case TagConfirmNo:
		s.Reset()
		return []Effect{Prompt{Text: "❌ Task creation cancelled.", Edit: true}, mainMenuPrompt(false)}
	case TagConfirmBack:
		s.State = session.AwaitingTime
		return []Effect{timePrompt(true)}
	default:
		return e.reprompt(s, ev, confirmPrompt(s.Task, false))
	}
}

func toStorageAttachments(in []session.Attachment) []storage.Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]storage.Attachment, 0, len(in))
	for _, a := range in {
		out = append(out, storage.Attachment{Kind: string(a.Kind), Payload: a.Payload})
	}
	return out
}

// ---- quick-note branch ----

func (e *Engine) handleQuickNote(s *session.Session, ev Event) []Effect {
	if ev.Kind == EventButton {
		if ev.Tag == TagBack {
			s.Reset()
			return []Effect{mainMenuPrompt(true)}
		}
		return e.reprompt(s, ev, quickNotePrompt(false))
	}
	if ev.Text == "" {
		return []Effect{errorPrompt("Send the note as text.")}
	}
	s.Note.Text = ev.Text
	s.State = session.QuickNoteConfirm
	return []Effect{noteRemindPrompt()}
}

func (e *Engine) handleQuickNoteConfirm(s *session.Session, ev Event) []Effect {
	switch ev.Tag {
	case TagNoteRemindYes:
		s.State = session.QuickNoteTime
		return []Effect{timePrompt(true)}
	case TagNoteRemindNo:
		rec := storage.TaskRecord{UserID: s.UserID, Topic: QuickNoteTopic, Description: s.Note.Text}
		s.Reset()
		return []Effect{
			SaveTask{Record: rec},
			Prompt{Text: "✅ Note saved without a reminder.", Edit: true},
			mainMenuPrompt(false),
		}
	case TagBack:
		s.State = session.QuickNote
		return []Effect{quickNotePrompt(true)}
	default:
		return e.reprompt(s, ev, noteRemindPrompt())
	}
}

func (e *Engine) handleQuickNoteTime(s *session.Session, ev Event) []Effect {
	if ev.Kind == EventButton {
		if ev.Tag == TagBack {
			s.State = session.QuickNoteConfirm
			return []Effect{noteRemindPrompt()}
		}
		return e.reprompt(s, ev, timePrompt(false))
	}

	at, err := timeparse.Resolve(ev.Text, e.now(), e.loc)
	if err != nil {
		return []Effect{badTimePrompt()}
	}
	rec := storage.TaskRecord{UserID: s.UserID, Topic: QuickNoteTopic, Description: s.Note.Text, FireAt: at}
	reminder := ScheduleReminder{Payload: s.Note.Text, FireAt: at, LeadMinutes: s.LeadMinutes}
	s.Reset()
	return []Effect{
		SaveTask{Record: rec},
		reminder,
		Prompt{Text: "✅ Note saved with a reminder!"},
		mainMenuPrompt(false),
	}
}

// ---- settings branch ----

func (e *Engine) handleSettings(s *session.Session, ev Event) []Effect {
	switch ev.Tag {
	case TagSetLead:
		s.State = session.AwaitingLeadMinutes
		return []Effect{leadMinutesPrompt(true)}
	case TagBack:
		s.Reset()
		return []Effect{mainMenuPrompt(true)}
	default:
		return e.reprompt(s, ev, settingsPrompt(s.LeadMinutes, false))
	}
}

func (e *Engine) handleLeadMinutes(s *session.Session, ev Event) []Effect {
	if ev.Kind == EventButton {
		if ev.Tag == TagBack {
			s.State = session.Settings
			return []Effect{settingsPrompt(s.LeadMinutes, true)}
		}
		return e.reprompt(s, ev, leadMinutesPrompt(false))
	}

	n, err := strconv.Atoi(strings.TrimSpace(ev.Text))
	if err != nil || n <= 0 {
		return []Effect{errorPrompt("Please send a positive number of minutes.")}
	}
	s.LeadMinutes = n
	s.State = session.Settings
	return []Effect{settingsPrompt(n, false)}
}

// ---- subscriptions branch ----

func (e *Engine) handleSubscriptionBrowsing(s *session.Session, ev Event) []Effect {
	if cat, ok := parseCategoryTag(ev.Tag); ok {
		if !validCategory(cat) {
			return e.reprompt(s, ev, subscriptionsPrompt(false))
		}
		s.Subscription = &session.SubscriptionDraft{Category: cat}
		s.State = session.SubscriptionCategoryActions
		return []Effect{categoryActionsPrompt(cat, true)}
	}
	if ev.Tag == TagBack {
		s.Reset()
		return []Effect{mainMenuPrompt(true)}
	}
	return e.reprompt(s, ev, subscriptionsPrompt(false))
}

func (e *Engine) handleCategoryActions(s *session.Session, ev Event) []Effect {
	switch ev.Tag {
	case TagSubView:
		s.State = session.ViewingSubscriptions
		return []Effect{ShowSubscriptions{Category: s.Subscription.Category}}
	case TagSubAdd:
		s.State = session.AwaitingSubscriptionContent
		return []Effect{subscriptionContentPrompt()}
	case TagBack:
		s.Subscription = nil
		s.State = session.SubscriptionBrowsing
		return []Effect{subscriptionsPrompt(true)}
	default:
		return e.reprompt(s, ev, categoryActionsPrompt(s.Subscription.Category, false))
	}
}

func (e *Engine) handleViewingSubscriptions(s *session.Session, ev Event) []Effect {
	switch ev.Tag {
	case TagSubAdd:
		s.State = session.AwaitingSubscriptionContent
		return []Effect{subscriptionContentPrompt()}
	case TagBack:
		s.Subscription = nil
		s.State = session.SubscriptionBrowsing
		return []Effect{subscriptionsPrompt(true)}
	default:
		return e.reprompt(s, ev, categoryActionsPrompt(s.Subscription.Category, false))
	}
}

func (e *Engine) handleSubscriptionContent(s *session.Session, ev Event) []Effect {
	if ev.Kind == EventButton {
		if ev.Tag == TagBack {
			s.State = session.SubscriptionCategoryActions
			return []Effect{categoryActionsPrompt(s.Subscription.Category, true)}
		}
		return e.reprompt(s, ev, subscriptionContentPrompt())
	}

	var content string
	switch {
	case strings.TrimSpace(ev.Text) != "":
		content = ev.Text
	case ev.HasPhoto || ev.HasVideo:
		content = "Media content"
	case ev.Document != "":
		content = "File: " + ev.Document
	default:
		return []Effect{errorPrompt("Couldn't recognize that content. Try again.")}
	}

	cat := s.Subscription.Category
	s.State = session.SubscriptionBrowsing
	s.Subscription = nil
	return []Effect{
		SaveSubscription{Category: cat, Content: content},
		Prompt{Text: "✅ Subscription added."},
		subscriptionsPrompt(false),
	}
}
