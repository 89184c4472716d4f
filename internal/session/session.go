// Package session holds per-user dialog state. Exactly one session exists
// per user id; read-modify-write of a session is atomic with respect to
// concurrent events for the same user, while different users proceed fully
// in parallel.
package session

import (
	"sync"
	"time"

	"remindbot/internal/transport"
)

// State is the dialog position. Each non-idle state belongs to exactly one
// branch and only that branch's draft may be non-nil.
type State int

const (
	Idle State = iota

	// add-task branch
	AddingTopic
	AwaitingAttachmentChoice
	CollectingAttachments
	AwaitingTime
	Confirming

	// quick-note branch
	QuickNote
	QuickNoteConfirm
	QuickNoteTime

	// settings branch
	Settings
	AwaitingLeadMinutes

	// subscriptions branch
	SubscriptionBrowsing
	SubscriptionCategoryActions
	ViewingSubscriptions
	AwaitingSubscriptionContent

	// weekly schedule branch
	ScheduleMenu
	ScheduleSelectDay
	ScheduleSelectBlock
	ScheduleHourEntry
	ScheduleConfirm
)

var stateNames = map[State]string{
	Idle:                        "idle",
	AddingTopic:                 "adding_topic",
	AwaitingAttachmentChoice:    "awaiting_attachment_choice",
	CollectingAttachments:       "collecting_attachments",
	AwaitingTime:                "awaiting_time",
	Confirming:                  "confirming",
	QuickNote:                   "quick_note",
	QuickNoteConfirm:            "quick_note_confirm",
	QuickNoteTime:               "quick_note_time",
	Settings:                    "settings",
	AwaitingLeadMinutes:         "awaiting_lead_minutes",
	SubscriptionBrowsing:        "subscription_browsing",
	SubscriptionCategoryActions: "subscription_category_actions",
	ViewingSubscriptions:        "viewing_subscriptions",
	AwaitingSubscriptionContent: "awaiting_subscription_content",
	ScheduleMenu:                "schedule_menu",
	ScheduleSelectDay:           "schedule_select_day",
	ScheduleSelectBlock:         "schedule_select_block",
	ScheduleHourEntry:           "schedule_hour_entry",
	ScheduleConfirm:             "schedule_confirm",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

type AttachmentKind string

const (
	AttachFile  AttachmentKind = "file"
	AttachPhoto AttachmentKind = "photo"
	AttachVideo AttachmentKind = "video"
	AttachLink  AttachmentKind = "link"
	AttachText  AttachmentKind = "text"
)

type Attachment struct {
	Kind    AttachmentKind
	Payload string
}

// TaskDraft is the add-task branch scratch data.
type TaskDraft struct {
	Topic       string
	Attachments []Attachment
	FireAt      time.Time // zero until AwaitingTime succeeds
}

// NoteDraft is the quick-note branch scratch data.
type NoteDraft struct {
	Text   string
	FireAt time.Time // zero for a reminder-less note
}

// ScheduleDraft walks one (day, block) cell range of the weekly grid.
type ScheduleDraft struct {
	Day    string
	Block  string
	Hours  []int
	Cursor int
	Tasks  map[int]string // hour -> task text
}

// CurrentHour returns the hour the cursor points at, or false when the walk
// is complete.
func (d *ScheduleDraft) CurrentHour() (int, bool) {
	if d == nil || d.Cursor < 0 || d.Cursor >= len(d.Hours) {
		return 0, false
	}
	return d.Hours[d.Cursor], true
}

// SubscriptionDraft is the subscriptions branch scratch data.
type SubscriptionDraft struct {
	Category string
}

// Session is one user's dialog position plus the active branch's draft.
// LeadMinutes survives a return to idle (it is a setting, not scratch);
// PromptRef tracks the last menu message so prompts can be edited in place.
type Session struct {
	UserID int64
	State  State

	LeadMinutes int // 0 = never set, use the configured default
	PromptRef   transport.MessageRef

	Task         *TaskDraft
	Note         *NoteDraft
	Schedule     *ScheduleDraft
	Subscription *SubscriptionDraft
}

// Reset returns the session to idle and drops all scratch data. The session
// identity and LeadMinutes are kept.
func (s *Session) Reset() {
	s.State = Idle
	s.Task = nil
	s.Note = nil
	s.Schedule = nil
	s.Subscription = nil
}

type entry struct {
	mu sync.Mutex
	s  *Session
}

// Store maps user ids to sessions.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*entry
}

func NewStore() *Store {
	return &Store{sessions: make(map[int64]*entry)}
}

func (st *Store) entryFor(userID int64) *entry {
	st.mu.Lock()
	defer st.mu.Unlock()
	e, ok := st.sessions[userID]
	if !ok {
		e = &entry{s: &Session{UserID: userID, State: Idle}}
		st.sessions[userID] = e
	}
	return e
}

// Update runs fn under the user's lock, creating an idle session on first
// access. All session mutation must go through here.
func (st *Store) Update(userID int64, fn func(*Session)) {
	e := st.entryFor(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.s)
}

// Get returns a shallow snapshot of the user's session.
func (st *Store) Get(userID int64) Session {
	e := st.entryFor(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.s
}

// Clear resets the user's session to idle.
func (st *Store) Clear(userID int64) {
	st.Update(userID, func(s *Session) { s.Reset() })
}
