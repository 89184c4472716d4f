package dialog

import (
	"fmt"
	"html"
	"strings"

	"remindbot/internal/session"
	"remindbot/internal/storage"
)

// Prompt texts are HTML (the transport sends with ParseMode HTML); all
// user-provided strings must pass through html.EscapeString.

const timeFormatHint = "Send the time as <code>YYYY-MM-DD HH:MM</code>, or <code>HH:MM</code> for today."

func backRow() []Button {
	return []Button{{Label: "🔙 Back", Tag: TagBack}}
}

func doneRow() []Button {
	return []Button{{Label: "✅ Done", Tag: TagDone}}
}

func mainMenuPrompt(edit bool) Prompt {
	return Prompt{
		Text: "👋 <b>Welcome to the reminder bot!</b>\nChoose an action:",
		Buttons: [][]Button{
			{{Label: "➕ Add task", Tag: TagMainAddTask}},
			{{Label: "📅 Weekly schedule", Tag: TagMainSchedule}},
			{{Label: "📝 Quick note", Tag: TagMainQuickNote}},
			{{Label: "🔔 Settings", Tag: TagMainSettings}},
			{{Label: "📌 Subscriptions", Tag: TagMainSubscriptions}},
			{{Label: "📋 My tasks", Tag: TagMainMyTasks}},
		},
		Edit: edit,
	}
}

func topicPrompt(edit bool) Prompt {
	return Prompt{
		Text:    "📌 <b>New task:</b>\nSend the task topic.",
		Buttons: [][]Button{backRow()},
		Edit:    edit,
	}
}

func attachChoicePrompt() Prompt {
	return Prompt{
		Text: "Attach files, links, videos or photos to this task?",
		Buttons: [][]Button{
			{{Label: "✅ Yes", Tag: TagAttachYes}, {Label: "❌ No", Tag: TagAttachNo}},
			backRow(),
		},
	}
}

func collectPrompt(edit bool) Prompt {
	return Prompt{
		Text:    "📎 Send the materials one by one. Press Done when finished.",
		Buttons: [][]Button{doneRow()},
		Edit:    edit,
	}
}

func attachmentAddedPrompt(a session.Attachment) Prompt {
	return Prompt{
		Text:    "✅ Added: " + attachmentLabel(a),
		Buttons: [][]Button{doneRow()},
	}
}

func timePrompt(edit bool) Prompt {
	return Prompt{
		Text:    "🕒 " + timeFormatHint,
		Buttons: [][]Button{backRow()},
		Edit:    edit,
	}
}

func badTimePrompt() Prompt {
	return Prompt{
		Text:    "❌ That doesn't look like a valid time. " + timeFormatHint,
		Buttons: [][]Button{backRow()},
	}
}

func confirmPrompt(d *session.TaskDraft, edit bool) Prompt {
	var b strings.Builder
	b.WriteString("📋 <b>Please check:</b>\n")
	b.WriteString("📝 <b>Topic:</b> ")
	b.WriteString(html.EscapeString(d.Topic))
	b.WriteString("\n⏰ <b>Time:</b> ")
	b.WriteString(d.FireAt.Format("2006-01-02 15:04"))
	if len(d.Attachments) > 0 {
		b.WriteString("\n📎 <b>Attachments:</b>")
		for _, a := range d.Attachments {
			b.WriteString("\n• ")
			b.WriteString(attachmentLabel(a))
		}
	}
	b.WriteString("\n\nIs everything correct?")
	return Prompt{
		Text: b.String(),
		Buttons: [][]Button{
			{{Label: "✅ Yes", Tag: TagConfirmYes}, {Label: "❌ No", Tag: TagConfirmNo}},
			{{Label: "🔙 Back", Tag: TagConfirmBack}},
		},
		Edit: edit,
	}
}

func attachmentLabel(a session.Attachment) string {
	switch a.Kind {
	case session.AttachFile:
		return "📄 File: " + html.EscapeString(a.Payload)
	case session.AttachPhoto:
		return "🖼️ Photo"
	case session.AttachVideo:
		return "📹 Video"
	case session.AttachLink:
		return "🔗 Link: " + html.EscapeString(a.Payload)
	default:
		return html.EscapeString(a.Payload)
	}
}

func quickNotePrompt(edit bool) Prompt {
	return Prompt{
		Text:    "📝 <b>Quick note:</b>\nSend your note.",
		Buttons: [][]Button{backRow()},
		Edit:    edit,
	}
}

func noteRemindPrompt() Prompt {
	return Prompt{
		Text: "Set a reminder for this note?",
		Buttons: [][]Button{
			{{Label: "✅ Set reminder", Tag: TagNoteRemindYes}, {Label: "❌ No reminder", Tag: TagNoteRemindNo}},
			backRow(),
		},
	}
}

func settingsPrompt(leadMinutes int, edit bool) Prompt {
	return Prompt{
		Text: fmt.Sprintf("🔔 <b>Settings</b>\nReminders fire %d minute(s) before a task.", leadMinutes),
		Buttons: [][]Button{
			{{Label: "⏰ Change lead time", Tag: TagSetLead}},
			backRow(),
		},
		Edit: edit,
	}
}

func leadMinutesPrompt(edit bool) Prompt {
	return Prompt{
		Text:    "⏰ How many minutes before a task should the reminder arrive? Send a positive number.",
		Buttons: [][]Button{backRow()},
		Edit:    edit,
	}
}

func scheduleMenuPrompt(edit bool) Prompt {
	return Prompt{
		Text: "📅 <b>Weekly schedule</b>",
		Buttons: [][]Button{
			{{Label: "➕ Add schedule", Tag: TagScheduleAdd}},
			{{Label: "🗑️ Reset schedule", Tag: TagScheduleReset}},
			backRow(),
		},
		Edit: edit,
	}
}

func dayPrompt() Prompt {
	rows := make([][]Button, 0, len(Days)+1)
	for _, d := range Days {
		rows = append(rows, []Button{{Label: d, Tag: dayTag(d)}})
	}
	rows = append(rows, backRow())
	return Prompt{Text: "📅 Pick a day:", Buttons: rows, Edit: true}
}

func blockPrompt(day string) Prompt {
	return Prompt{
		Text: fmt.Sprintf("📅 Pick a time of day for %s:", day),
		Buttons: [][]Button{
			{{Label: "🌅 Morning (6–11)", Tag: blockTag(BlockMorning)}},
			{{Label: "🌇 Afternoon (12–17)", Tag: blockTag(BlockAfternoon)}},
			{{Label: "🌃 Evening (18–23)", Tag: blockTag(BlockEvening)}},
			backRow(),
		},
		Edit: true,
	}
}

func hourPrompt(block string, hour int, edit bool) Prompt {
	return Prompt{
		Text:    fmt.Sprintf("🕒 Task for %s at %d:00?", block, hour),
		Buttons: [][]Button{backRow()},
		Edit:    edit,
	}
}

func scheduleSavePrompt() Prompt {
	return Prompt{
		Text: "📅 All hours for this block are filled. Save the schedule?",
		Buttons: [][]Button{
			{{Label: "✅ Save", Tag: TagScheduleSave}},
			backRow(),
		},
	}
}

func subscriptionsPrompt(edit bool) Prompt {
	rows := make([][]Button, 0, len(Categories)+1)
	labels := map[string]string{
		"Sport":    "🏋️ Sport",
		"Study":    "📚 Study",
		"Rest":     "🎉 Rest",
		"Personal": "💌 Personal",
	}
	for _, c := range Categories {
		rows = append(rows, []Button{{Label: labels[c], Tag: categoryTag(c)}})
	}
	rows = append(rows, backRow())
	return Prompt{Text: "📌 <b>Subscriptions</b>\nPick a category:", Buttons: rows, Edit: edit}
}

func categoryActionsPrompt(category string, edit bool) Prompt {
	return Prompt{
		Text: "📌 <b>Category:</b> " + html.EscapeString(category),
		Buttons: [][]Button{
			{{Label: "📄 View", Tag: TagSubView}},
			{{Label: "➕ Add", Tag: TagSubAdd}},
			backRow(),
		},
		Edit: edit,
	}
}

func subscriptionContentPrompt() Prompt {
	return Prompt{
		Text:    "📌 Send the subscription content (text, link, photo or video).",
		Buttons: [][]Button{backRow()},
		Edit:    true,
	}
}

func errorPrompt(text string) Prompt {
	return Prompt{Text: "❌ " + text, Buttons: [][]Button{backRow()}}
}

// RenderTaskList formats the my-tasks view.
func RenderTaskList(tasks []storage.TaskRecord) string {
	if len(tasks) == 0 {
		return "📋 You have no tasks."
	}
	var b strings.Builder
	b.WriteString("📋 <b>Your tasks:</b>\n")
	for _, t := range tasks {
		b.WriteString("\n• 📝 <b>")
		b.WriteString(html.EscapeString(t.Topic))
		b.WriteString("</b>")
		if t.Description != "" {
			b.WriteString(" — ")
			b.WriteString(html.EscapeString(t.Description))
		}
		if !t.FireAt.IsZero() {
			b.WriteString("\n  ⏰ ")
			b.WriteString(t.FireAt.Format("2006-01-02 15:04"))
		}
		for _, a := range t.Attachments {
			b.WriteString("\n  📎 ")
			b.WriteString(attachmentLabel(session.Attachment{
				Kind:    session.AttachmentKind(a.Kind),
				Payload: a.Payload,
			}))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// RenderSubscriptions formats one category's subscription list.
func RenderSubscriptions(category string, items []string) string {
	if len(items) == 0 {
		return fmt.Sprintf("📌 No subscriptions in %q yet.", category)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📌 <b>Subscriptions in %s:</b>\n", html.EscapeString(category))
	for _, it := range items {
		b.WriteString("\n• ")
		b.WriteString(html.EscapeString(it))
	}
	return b.String()
}

// RenderReminder formats the notification message delivered when a reminder
// fires, including the materials attached to the task.
func RenderReminder(payload string, attachments []session.Attachment) string {
	var b strings.Builder
	b.WriteString("🔔 <b>Task reminder:</b>\n📝 ")
	b.WriteString(html.EscapeString(payload))
	if len(attachments) > 0 {
		b.WriteString("\n\n📎 <b>Attached materials:</b>")
		for _, a := range attachments {
			b.WriteString("\n• ")
			b.WriteString(attachmentLabel(a))
		}
	}
	return b.String()
}

// RenderScheduleSlot formats a weekly hour-grid delivery.
func RenderScheduleSlot(block string, hour int, task string) string {
	return fmt.Sprintf("📅 <b>%s, %d:00:</b>\n%s", block, hour, html.EscapeString(task))
}
