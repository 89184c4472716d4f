package dialog

import "strings"

// Button tags are the wire vocabulary between the transport and the engine.
// Each state accepts a closed subset; anything else is logged and re-prompts.
const (
	TagMainAddTask       = "main_add_task"
	TagMainSchedule      = "main_schedule"
	TagMainQuickNote     = "main_quick_note"
	TagMainSettings      = "main_settings"
	TagMainSubscriptions = "main_subscriptions"
	TagMainMyTasks       = "main_my_tasks"

	TagBack = "back"
	TagDone = "done"

	TagAttachYes = "attach_yes"
	TagAttachNo  = "attach_no"

	TagConfirmYes  = "conf_yes"
	TagConfirmNo   = "conf_no"
	TagConfirmBack = "conf_back"

	TagNoteRemindYes = "note_remind_yes"
	TagNoteRemindNo  = "note_remind_no"

	TagSetLead = "set_lead"

	TagScheduleAdd   = "sched_add"
	TagScheduleReset = "sched_reset"
	TagScheduleSave  = "sched_save"

	TagSubView = "sub_view"
	TagSubAdd  = "sub_add"

	// Parameterized tags: "day:<Day>", "block:<Block>", "sub_cat:<Category>".
	tagDayPrefix      = "day:"
	tagBlockPrefix    = "block:"
	tagCategoryPrefix = "sub_cat:"
)

func dayTag(day string) string           { return tagDayPrefix + day }
func blockTag(block string) string       { return tagBlockPrefix + block }
func categoryTag(category string) string { return tagCategoryPrefix + category }

func parseDayTag(tag string) (string, bool)      { return cutPrefix(tag, tagDayPrefix) }
func parseBlockTag(tag string) (string, bool)    { return cutPrefix(tag, tagBlockPrefix) }
func parseCategoryTag(tag string) (string, bool) { return cutPrefix(tag, tagCategoryPrefix) }

func cutPrefix(tag, prefix string) (string, bool) {
	rest, ok := strings.CutPrefix(tag, prefix)
	if !ok || rest == "" {
		return "", false
	}
	return rest, true
}

// Days in grid order. Tags carry these literal names.
var Days = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// The three fixed time-of-day blocks and their contiguous hour ranges.
const (
	BlockMorning   = "Morning"
	BlockAfternoon = "Afternoon"
	BlockEvening   = "Evening"
)

var Blocks = []string{BlockMorning, BlockAfternoon, BlockEvening}

// BlockHours expands a block label into its ascending hour range.
// Unknown labels return nil: the schedule walk aborts rather than guessing.
func BlockHours(block string) []int {
	var lo, hi int
	switch block {
	case BlockMorning:
		lo, hi = 6, 11
	case BlockAfternoon:
		lo, hi = 12, 17
	case BlockEvening:
		lo, hi = 18, 23
	default:
		return nil
	}
	hours := make([]int, 0, hi-lo+1)
	for h := lo; h <= hi; h++ {
		hours = append(hours, h)
	}
	return hours
}

func validDay(day string) bool {
	for _, d := range Days {
		if d == day {
			return true
		}
	}
	return false
}

// Subscription categories form a fixed closed set.
var Categories = []string{"Sport", "Study", "Rest", "Personal"}

func validCategory(cat string) bool {
	for _, c := range Categories {
		if c == cat {
			return true
		}
	}
	return false
}
