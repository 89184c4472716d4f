package dialog

import (
	"time"

	"remindbot/internal/session"
	"remindbot/internal/storage"
)

// Effect is an action the engine asks the outer layer to perform. Handle()
// itself only mutates the session; all I/O is deferred to the interpreter.
type Effect interface{ effect() }

// Button is one inline keyboard button; Tag is the opaque wire tag sent back
// on press.
type Button struct {
	Label string
	Tag   string
}

// Prompt renders text (HTML) plus button rows to the user. Edit asks the
// interpreter to edit the previous menu message in place; a failed edit falls
// back to a fresh send.
type Prompt struct {
	Text    string
	Buttons [][]Button
	Edit    bool
}

// SaveTask persists a finished task or quick note.
type SaveTask struct {
	Record storage.TaskRecord
}

// ScheduleReminder arms a one-shot notification. The fired message carries
// the payload plus every attached material. LeadMinutes 0 means the user
// never chose a lead time and the configured default applies.
type ScheduleReminder struct {
	Payload     string
	Attachments []session.Attachment
	FireAt      time.Time
	LeadMinutes int
}

// ReplaceScheduleSet persists one (day, block) hour-grid walk as a set.
type ReplaceScheduleSet struct {
	Entries []storage.ScheduleEntry
}

// ResetSchedule deletes the user's entire stored schedule.
type ResetSchedule struct{}

// SaveSubscription appends one subscription entry.
type SaveSubscription struct {
	Category string
	Content  string
}

// ShowTasks asks the interpreter to query and render the user's tasks.
type ShowTasks struct{}

// ShowSubscriptions asks the interpreter to query and render one category.
type ShowSubscriptions struct {
	Category string
}

func (Prompt) effect()             {}
func (SaveTask) effect()           {}
func (ScheduleReminder) effect()   {}
func (ReplaceScheduleSet) effect() {}
func (ResetSchedule) effect()      {}
func (SaveSubscription) effect()   {}
func (ShowTasks) effect()          {}
func (ShowSubscriptions) effect()  {}
