package dialog

import (
	"remindbot/internal/session"
	"remindbot/internal/storage"
	"remindbot/pkg/logx"
)

// The schedule branch walks one (day, block) cell range of the weekly grid,
// prompting for a task once per hour in ascending order. Saving emits the
// whole set as one ReplaceScheduleSet effect; resetting deletes the user's
// entire stored schedule before anything new is written.

func (e *Engine) handleScheduleMenu(s *session.Session, ev Event) []Effect {
	switch ev.Tag {
	case TagScheduleAdd:
		s.State = session.ScheduleSelectDay
		return []Effect{dayPrompt()}
	case TagScheduleReset:
		return []Effect{
			ResetSchedule{},
			Prompt{Text: "🗑️ Schedule reset.", Edit: true},
			scheduleMenuPrompt(false),
		}
	case TagBack:
		s.Reset()
		return []Effect{mainMenuPrompt(true)}
	default:
		return e.reprompt(s, ev, scheduleMenuPrompt(false))
	}
}

func (e *Engine) handleScheduleDay(s *session.Session, ev Event) []Effect {
	if day, ok := parseDayTag(ev.Tag); ok {
		if !validDay(day) {
			return e.reprompt(s, ev, dayPrompt())
		}
		s.Schedule = &session.ScheduleDraft{Day: day}
		s.State = session.ScheduleSelectBlock
		return []Effect{blockPrompt(day)}
	}
	if ev.Tag == TagBack {
		s.Schedule = nil
		s.State = session.ScheduleMenu
		return []Effect{scheduleMenuPrompt(true)}
	}
	return e.reprompt(s, ev, dayPrompt())
}

func (e *Engine) handleScheduleBlock(s *session.Session, ev Event) []Effect {
	if block, ok := parseBlockTag(ev.Tag); ok {
		hours := BlockHours(block)
		if len(hours) == 0 {
			// Misconfigured block label: abort to the menu, write nothing.
			e.log.Warn("unknown schedule block; aborting walk",
				logx.Int64("user", s.UserID), logx.String("block", block))
			s.Schedule = nil
			s.State = session.ScheduleMenu
			return []Effect{errorPrompt("Unknown time of day."), scheduleMenuPrompt(false)}
		}
		d := s.Schedule
		d.Block = block
		d.Hours = hours
		d.Cursor = 0
		d.Tasks = make(map[int]string, len(hours))
		s.State = session.ScheduleHourEntry
		return []Effect{hourPrompt(block, hours[0], true)}
	}
	if ev.Tag == TagBack {
		s.State = session.ScheduleSelectDay
		return []Effect{dayPrompt()}
	}
	return e.reprompt(s, ev, blockPrompt(s.Schedule.Day))
}

func (e *Engine) handleScheduleHour(s *session.Session, ev Event) []Effect {
	d := s.Schedule
	if ev.Kind == EventButton {
		if ev.Tag == TagBack {
			s.State = session.ScheduleSelectBlock
			return []Effect{blockPrompt(d.Day)}
		}
		cur, _ := d.CurrentHour()
		return e.reprompt(s, ev, hourPrompt(d.Block, cur, false))
	}
	if ev.Text == "" {
		return []Effect{errorPrompt("Send the task as text.")}
	}

	hour, ok := d.CurrentHour()
	if !ok {
		// Cursor already past the end; treat as a stray message.
		s.State = session.ScheduleConfirm
		return []Effect{scheduleSavePrompt()}
	}
	d.Tasks[hour] = ev.Text
	d.Cursor++

	if next, more := d.CurrentHour(); more {
		return []Effect{hourPrompt(d.Block, next, false)}
	}
	s.State = session.ScheduleConfirm
	return []Effect{scheduleSavePrompt()}
}

func (e *Engine) handleScheduleConfirm(s *session.Session, ev Event) []Effect {
	switch ev.Tag {
	case TagScheduleSave:
		d := s.Schedule
		entries := make([]storage.ScheduleEntry, 0, len(d.Hours))
		for _, h := range d.Hours {
			task, ok := d.Tasks[h]
			if !ok {
				continue
			}
			entries = append(entries, storage.ScheduleEntry{Day: d.Day, Block: d.Block, Hour: h, Task: task})
		}
		s.Schedule = nil
		s.State = session.ScheduleMenu
		return []Effect{
			ReplaceScheduleSet{Entries: entries},
			Prompt{Text: "✅ Schedule saved.", Edit: true},
			scheduleMenuPrompt(false),
		}
	case TagBack:
		// Discard the walk.
		s.Schedule = nil
		s.State = session.ScheduleMenu
		return []Effect{scheduleMenuPrompt(true)}
	default:
		return e.reprompt(s, ev, scheduleSavePrompt())
	}
}
