package dialog

import (
	"strings"
	"testing"
	"time"

	"remindbot/internal/session"
	"remindbot/pkg/logx"
)

var testNow = time.Date(2024, 1, 1, 9, 30, 0, 0, mustMoscow())

func mustMoscow() *time.Location {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		panic(err)
	}
	return loc
}

func newTestEngine() *Engine {
	e := NewEngine(mustMoscow(), logx.Nop())
	e.SetNow(func() time.Time { return testNow })
	return e
}

func newIdleSession() *session.Session {
	return &session.Session{UserID: 7, State: session.Idle}
}

func press(tag string) Event  { return Event{Kind: EventButton, Tag: tag} }
func typed(text string) Event { return Event{Kind: EventMessage, Text: text} }

func findSaveTask(t *testing.T, effs []Effect) SaveTask {
	t.Helper()
	for _, ef := range effs {
		if st, ok := ef.(SaveTask); ok {
			return st
		}
	}
	t.Fatalf("no SaveTask effect in %#v", effs)
	return SaveTask{}
}

func findReminder(t *testing.T, effs []Effect) ScheduleReminder {
	t.Helper()
	for _, ef := range effs {
		if r, ok := ef.(ScheduleReminder); ok {
			return r
		}
	}
	t.Fatalf("no ScheduleReminder effect in %#v", effs)
	return ScheduleReminder{}
}

func countPrompts(effs []Effect) int {
	n := 0
	for _, ef := range effs {
		if _, ok := ef.(Prompt); ok {
			n++
		}
	}
	return n
}

// walkToConfirming drives a session from idle to the Confirming state.
func walkToConfirming(t *testing.T, e *Engine, s *session.Session) {
	t.Helper()
	e.Handle(s, press(TagMainAddTask))
	e.Handle(s, typed("dentist appointment"))
	e.Handle(s, press(TagAttachNo))
	e.Handle(s, typed("18:00"))
	if s.State != session.Confirming {
		t.Fatalf("expected Confirming, got %v", s.State)
	}
}

func TestTaskRoundTripProducesOneSaveAndOneReminder(t *testing.T) {
	e := newTestEngine()
	s := newIdleSession()
	s.LeadMinutes = 15

	walkToConfirming(t, e, s)
	effs := e.Handle(s, press(TagConfirmYes))

	saves, reminders := 0, 0
	for _, ef := range effs {
		switch ef.(type) {
		case SaveTask:
			saves++
		case ScheduleReminder:
			reminders++
		}
	}
	if saves != 1 || reminders != 1 {
		t.Fatalf("expected exactly one save and one reminder, got %d/%d", saves, reminders)
	}

	rec := findSaveTask(t, effs).Record
	if rec.UserID != 7 || rec.Topic != "dentist appointment" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	want := time.Date(2024, 1, 1, 18, 0, 0, 0, mustMoscow())
	if !rec.FireAt.Equal(want) {
		t.Fatalf("expected fire time %v, got %v", want, rec.FireAt)
	}

	r := findReminder(t, effs)
	if r.LeadMinutes != 15 {
		t.Fatalf("reminder must carry the user's lead time, got %d", r.LeadMinutes)
	}
	if s.State != session.Idle || s.Task != nil {
		t.Fatalf("session must return to idle with scratch cleared: %+v", s)
	}
}

func TestTaskReminderUsesDefaultLeadWhenNeverSet(t *testing.T) {
	e := newTestEngine()
	s := newIdleSession()

	walkToConfirming(t, e, s)
	effs := e.Handle(s, press(TagConfirmYes))
	if r := findReminder(t, effs); r.LeadMinutes != 0 {
		t.Fatalf("lead 0 marks 'use default', got %d", r.LeadMinutes)
	}
}

func TestAttachNoLeavesEmptyAttachmentList(t *testing.T) {
	e := newTestEngine()
	s := newIdleSession()

	e.Handle(s, press(TagMainAddTask))
	e.Handle(s, typed("topic"))
	e.Handle(s, press(TagAttachNo))

	if s.State != session.AwaitingTime {
		t.Fatalf("attach_no must advance to AwaitingTime, got %v", s.State)
	}
	if s.Task.Attachments == nil || len(s.Task.Attachments) != 0 {
		t.Fatalf("expected initialized empty attachment list, got %#v", s.Task.Attachments)
	}
}

func TestCollectingAttachmentsClassification(t *testing.T) {
	cases := []struct {
		name string
		ev   Event
		kind session.AttachmentKind
		pay  string
	}{
		{"document", Event{Kind: EventMessage, Document: "report.pdf"}, session.AttachFile, "report.pdf"},
		{"photo", Event{Kind: EventMessage, HasPhoto: true}, session.AttachPhoto, ""},
		{"video", Event{Kind: EventMessage, HasVideo: true}, session.AttachVideo, ""},
		{"link", Event{Kind: EventMessage, Text: "see https://go.dev", URLs: []string{"https://go.dev"}}, session.AttachLink, "https://go.dev"},
		{"text", Event{Kind: EventMessage, Text: "just a note"}, session.AttachText, "just a note"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEngine()
			s := newIdleSession()
			e.Handle(s, press(TagMainAddTask))
			e.Handle(s, typed("topic"))
			e.Handle(s, press(TagAttachYes))

			e.Handle(s, tc.ev)
			if s.State != session.CollectingAttachments {
				t.Fatalf("collecting must stay collecting, got %v", s.State)
			}
			if len(s.Task.Attachments) != 1 {
				t.Fatalf("expected 1 attachment, got %d", len(s.Task.Attachments))
			}
			a := s.Task.Attachments[0]
			if a.Kind != tc.kind || a.Payload != tc.pay {
				t.Fatalf("expected %s/%q, got %s/%q", tc.kind, tc.pay, a.Kind, a.Payload)
			}
		})
	}
}

func TestUnclassifiableAttachmentDoesNotMutate(t *testing.T) {
	e := newTestEngine()
	s := newIdleSession()
	e.Handle(s, press(TagMainAddTask))
	e.Handle(s, typed("topic"))
	e.Handle(s, press(TagAttachYes))

	effs := e.Handle(s, Event{Kind: EventMessage}) // nothing recognizable
	if len(s.Task.Attachments) != 0 {
		t.Fatalf("unclassifiable content must not be appended")
	}
	if s.State != session.CollectingAttachments {
		t.Fatalf("state must not advance, got %v", s.State)
	}
	if countPrompts(effs) == 0 {
		t.Fatalf("expected an error prompt")
	}
}

func TestReminderCarriesAttachments(t *testing.T) {
	e := newTestEngine()
	s := newIdleSession()

	e.Handle(s, press(TagMainAddTask))
	e.Handle(s, typed("conference"))
	e.Handle(s, press(TagAttachYes))
	e.Handle(s, Event{Kind: EventMessage, Document: "slides.pdf"})
	e.Handle(s, Event{Kind: EventMessage, Text: "see https://go.dev", URLs: []string{"https://go.dev"}})
	e.Handle(s, press(TagDone))
	e.Handle(s, typed("18:00"))
	effs := e.Handle(s, press(TagConfirmYes))

	r := findReminder(t, effs)
	if len(r.Attachments) != 2 {
		t.Fatalf("reminder must carry the task's attachments, got %d", len(r.Attachments))
	}
	if r.Attachments[0].Payload != "slides.pdf" || r.Attachments[1].Payload != "https://go.dev" {
		t.Fatalf("unexpected attachments: %+v", r.Attachments)
	}
}

func TestRenderReminderListsAttachments(t *testing.T) {
	out := RenderReminder("conference", []session.Attachment{
		{Kind: session.AttachFile, Payload: "slides.pdf"},
		{Kind: session.AttachLink, Payload: "https://go.dev"},
	})
	if !strings.Contains(out, "conference") {
		t.Fatalf("missing payload: %q", out)
	}
	if !strings.Contains(out, "slides.pdf") || !strings.Contains(out, "https://go.dev") {
		t.Fatalf("missing attachment lines: %q", out)
	}

	bare := RenderReminder("conference", nil)
	if strings.Contains(bare, "Attached") {
		t.Fatalf("attachment section must be omitted when there are none: %q", bare)
	}
}

func TestDoneCaptionOnPhotoIsAnAttachment(t *testing.T) {
	e := newTestEngine()
	s := newIdleSession()
	e.Handle(s, press(TagMainAddTask))
	e.Handle(s, typed("topic"))
	e.Handle(s, press(TagAttachYes))

	// A photo captioned "done" is content, not the finish word.
	e.Handle(s, Event{Kind: EventMessage, Text: "done", HasPhoto: true})
	if s.State != session.CollectingAttachments {
		t.Fatalf("photo with done caption must not advance, got %v", s.State)
	}
	if len(s.Task.Attachments) != 1 || s.Task.Attachments[0].Kind != session.AttachPhoto {
		t.Fatalf("expected the photo to be collected, got %+v", s.Task.Attachments)
	}
}

func TestDoneTextIsCaseInsensitive(t *testing.T) {
	e := newTestEngine()
	s := newIdleSession()
	e.Handle(s, press(TagMainAddTask))
	e.Handle(s, typed("topic"))
	e.Handle(s, press(TagAttachYes))

	e.Handle(s, typed("DoNe"))
	if s.State != session.AwaitingTime {
		t.Fatalf("literal 'done' must advance to AwaitingTime, got %v", s.State)
	}
}

func TestInvalidTimeStaysInAwaitingTime(t *testing.T) {
	e := newTestEngine()
	s := newIdleSession()
	e.Handle(s, press(TagMainAddTask))
	e.Handle(s, typed("topic"))
	e.Handle(s, press(TagAttachNo))

	effs := e.Handle(s, typed("25:99"))
	if s.State != session.AwaitingTime {
		t.Fatalf("invalid time must not advance, got %v", s.State)
	}
	if countPrompts(effs) == 0 {
		t.Fatalf("expected an error prompt")
	}
}

func TestBareClockTimeRollsToNextDay(t *testing.T) {
	e := newTestEngine()
	s := newIdleSession()
	e.Handle(s, press(TagMainAddTask))
	e.Handle(s, typed("topic"))
	e.Handle(s, press(TagAttachNo))

	// 09:00 at reference now 2024-01-01 09:30 resolves to 2024-01-02 09:00.
	e.Handle(s, typed("09:00"))
	want := time.Date(2024, 1, 2, 9, 0, 0, 0, mustMoscow())
	if !s.Task.FireAt.Equal(want) {
		t.Fatalf("expected %v, got %v", want, s.Task.FireAt)
	}
}

func TestConfirmNoDiscardsEverything(t *testing.T) {
	e := newTestEngine()
	s := newIdleSession()
	walkToConfirming(t, e, s)

	effs := e.Handle(s, press(TagConfirmNo))
	for _, ef := range effs {
		if _, ok := ef.(SaveTask); ok {
			t.Fatalf("confirm-no must not save")
		}
	}
	if s.State != session.Idle || s.Task != nil {
		t.Fatalf("expected idle with cleared scratch: %+v", s)
	}
}

func TestConfirmBackReturnsToTime(t *testing.T) {
	e := newTestEngine()
	s := newIdleSession()
	walkToConfirming(t, e, s)

	e.Handle(s, press(TagConfirmBack))
	if s.State != session.AwaitingTime {
		t.Fatalf("conf_back must return to AwaitingTime, got %v", s.State)
	}
}

func TestConfirmWithMissingDraftAbortsToIdle(t *testing.T) {
	e := newTestEngine()
	s := newIdleSession()
	s.State = session.Confirming
	s.Task = &session.TaskDraft{Topic: "x"} // no fire time

	effs := e.Handle(s, press(TagConfirmYes))
	for _, ef := range effs {
		switch ef.(type) {
		case SaveTask, ScheduleReminder:
			t.Fatalf("missing precondition must not persist anything")
		}
	}
	if s.State != session.Idle {
		t.Fatalf("expected abort to idle, got %v", s.State)
	}
}

func TestUnknownTagRepromptsWithoutAdvancing(t *testing.T) {
	e := newTestEngine()
	s := newIdleSession()
	e.Handle(s, press(TagMainAddTask))
	e.Handle(s, typed("topic"))

	before := s.State
	effs := e.Handle(s, press("sched_save")) // valid tag, wrong state
	if s.State != before {
		t.Fatalf("unknown tag advanced the state: %v -> %v", before, s.State)
	}
	if countPrompts(effs) == 0 {
		t.Fatalf("expected a re-prompt")
	}
}

func TestQuickNoteWithoutReminder(t *testing.T) {
	e := newTestEngine()
	s := newIdleSession()

	e.Handle(s, press(TagMainQuickNote))
	e.Handle(s, typed("buy milk"))
	effs := e.Handle(s, press(TagNoteRemindNo))

	rec := findSaveTask(t, effs).Record
	if rec.Topic != QuickNoteTopic || rec.Description != "buy milk" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !rec.FireAt.IsZero() {
		t.Fatalf("reminder-less note must have zero fire time")
	}
	for _, ef := range effs {
		if _, ok := ef.(ScheduleReminder); ok {
			t.Fatalf("no reminder expected")
		}
	}
	if s.State != session.Idle {
		t.Fatalf("expected idle, got %v", s.State)
	}
}

func TestQuickNoteWithReminder(t *testing.T) {
	e := newTestEngine()
	s := newIdleSession()

	e.Handle(s, press(TagMainQuickNote))
	e.Handle(s, typed("buy milk"))
	e.Handle(s, press(TagNoteRemindYes))
	effs := e.Handle(s, typed("2024-02-01 08:00"))

	rec := findSaveTask(t, effs).Record
	want := time.Date(2024, 2, 1, 8, 0, 0, 0, mustMoscow())
	if !rec.FireAt.Equal(want) {
		t.Fatalf("expected %v, got %v", want, rec.FireAt)
	}
	if r := findReminder(t, effs); r.Payload != "buy milk" {
		t.Fatalf("unexpected reminder payload %q", r.Payload)
	}
}

func TestSettingsLeadMinutes(t *testing.T) {
	e := newTestEngine()
	s := newIdleSession()

	e.Handle(s, press(TagMainSettings))
	e.Handle(s, press(TagSetLead))

	// Invalid input re-prompts without changing anything.
	e.Handle(s, typed("-3"))
	if s.State != session.AwaitingLeadMinutes || s.LeadMinutes != 0 {
		t.Fatalf("invalid minutes must not be stored: %+v", s)
	}
	e.Handle(s, typed("soon"))
	if s.LeadMinutes != 0 {
		t.Fatalf("invalid minutes must not be stored")
	}

	e.Handle(s, typed("25"))
	if s.LeadMinutes != 25 || s.State != session.Settings {
		t.Fatalf("expected lead 25 back in settings, got %+v", s)
	}
}

func TestSubscriptionAddFlow(t *testing.T) {
	e := newTestEngine()
	s := newIdleSession()

	e.Handle(s, press(TagMainSubscriptions))
	e.Handle(s, press(categoryTag("Sport")))
	if s.State != session.SubscriptionCategoryActions {
		t.Fatalf("expected category actions, got %v", s.State)
	}
	e.Handle(s, press(TagSubAdd))
	effs := e.Handle(s, typed("morning run club"))

	var saved *SaveSubscription
	for _, ef := range effs {
		if sv, ok := ef.(SaveSubscription); ok {
			saved = &sv
		}
	}
	if saved == nil || saved.Category != "Sport" || saved.Content != "morning run club" {
		t.Fatalf("unexpected save: %+v", saved)
	}
	if s.State != session.SubscriptionBrowsing || s.Subscription != nil {
		t.Fatalf("expected return to browsing, got %+v", s)
	}
}

func TestSubscriptionUnknownCategoryRejected(t *testing.T) {
	e := newTestEngine()
	s := newIdleSession()

	e.Handle(s, press(TagMainSubscriptions))
	e.Handle(s, press(categoryTag("Gambling")))
	if s.State != session.SubscriptionBrowsing {
		t.Fatalf("unknown category must not advance, got %v", s.State)
	}
}

func TestSubscriptionViewEmitsShowEffect(t *testing.T) {
	e := newTestEngine()
	s := newIdleSession()

	e.Handle(s, press(TagMainSubscriptions))
	e.Handle(s, press(categoryTag("Study")))
	effs := e.Handle(s, press(TagSubView))

	found := false
	for _, ef := range effs {
		if sh, ok := ef.(ShowSubscriptions); ok && sh.Category == "Study" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ShowSubscriptions effect, got %#v", effs)
	}
	if s.State != session.ViewingSubscriptions {
		t.Fatalf("expected viewing state, got %v", s.State)
	}
}

func TestStartResetsAnyFlow(t *testing.T) {
	e := newTestEngine()
	s := newIdleSession()
	walkToConfirming(t, e, s)

	e.Handle(s, typed("/start"))
	if s.State != session.Idle || s.Task != nil {
		t.Fatalf("/start must reset the session: %+v", s)
	}
}

func TestMyTasksEmitsShowTasks(t *testing.T) {
	e := newTestEngine()
	s := newIdleSession()

	effs := e.Handle(s, press(TagMainMyTasks))
	found := false
	for _, ef := range effs {
		if _, ok := ef.(ShowTasks); ok {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ShowTasks effect")
	}
	if s.State != session.Idle {
		t.Fatalf("my-tasks must not leave idle, got %v", s.State)
	}
}

func TestConfirmSummaryEscapesUserText(t *testing.T) {
	e := newTestEngine()
	s := newIdleSession()

	e.Handle(s, press(TagMainAddTask))
	e.Handle(s, typed("<b>bold</b> & co"))
	e.Handle(s, press(TagAttachNo))
	effs := e.Handle(s, typed("18:00"))

	var summary string
	for _, ef := range effs {
		if p, ok := ef.(Prompt); ok {
			summary = p.Text
		}
	}
	if strings.Contains(summary, "<b>bold</b>") {
		t.Fatalf("user text must be HTML-escaped in the summary: %q", summary)
	}
}
