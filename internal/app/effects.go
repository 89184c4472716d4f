package app

import (
	"context"

	"remindbot/internal/dialog"
	"remindbot/internal/transport"
	"remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

// applyEffects performs the engine's effects in order and returns the prompt
// message to edit next time. Storage and delivery failures are logged and
// reported to the user with a generic error line; they never crash the loop.
func (a *App) applyEffects(ctx context.Context, userID, chatID int64, ref transport.MessageRef, effects []dialog.Effect) transport.MessageRef {
	to := transport.ChatTarget{ChatID: chatID}

	for _, ef := range effects {
		switch ef := ef.(type) {
		case dialog.Prompt:
			ref = a.sendPrompt(ctx, to, ref, ef)

		case dialog.SaveTask:
			if err := a.store.InsertTask(ctx, ef.Record); err != nil {
				a.log.Error("saving task failed", logx.Int64("user", userID), logx.Err(err))
				a.sendPlain(ctx, to, "⚠️ Couldn't save the task. Please try again.")
			}

		case dialog.ScheduleReminder:
			lead := ef.LeadMinutes
			if lead <= 0 {
				lead = int(a.defaultLead.Load())
			}
			a.scheduler.Schedule(chatID, dialog.RenderReminder(ef.Payload, ef.Attachments), ef.FireAt, lead)

		case dialog.ReplaceScheduleSet:
			if err := a.store.DeleteSchedule(ctx, userID); err != nil {
				a.log.Error("deleting old schedule failed", logx.Int64("user", userID), logx.Err(err))
				a.sendPlain(ctx, to, "⚠️ Couldn't save the schedule. Please try again.")
				continue
			}
			if err := a.store.InsertScheduleEntries(ctx, userID, ef.Entries); err != nil {
				a.log.Error("saving schedule failed", logx.Int64("user", userID), logx.Err(err))
				a.sendPlain(ctx, to, "⚠️ Couldn't save the schedule. Please try again.")
				continue
			}
			a.weekly.Replace(userID, ef.Entries)

		case dialog.ResetSchedule:
			if err := a.store.DeleteSchedule(ctx, userID); err != nil {
				a.log.Error("resetting schedule failed", logx.Int64("user", userID), logx.Err(err))
				a.sendPlain(ctx, to, "⚠️ Couldn't reset the schedule. Please try again.")
				continue
			}
			a.weekly.Clear(userID)

		case dialog.SaveSubscription:
			if err := a.store.InsertSubscription(ctx, userID, ef.Category, ef.Content); err != nil {
				a.log.Error("saving subscription failed", logx.Int64("user", userID), logx.Err(err))
				a.sendPlain(ctx, to, "⚠️ Couldn't save the subscription. Please try again.")
			}

		case dialog.ShowTasks:
			tasks, err := a.store.Tasks(ctx, userID)
			if err != nil {
				a.log.Error("listing tasks failed", logx.Int64("user", userID), logx.Err(err))
				a.sendPlain(ctx, to, "⚠️ Couldn't load your tasks. Please try again.")
				continue
			}
			ref = a.sendPrompt(ctx, to, ref, dialog.Prompt{
				Text:    dialog.RenderTaskList(tasks),
				Buttons: [][]dialog.Button{{{Label: "🔙 Menu", Tag: dialog.TagBack}}},
			})

		case dialog.ShowSubscriptions:
			items, err := a.store.Subscriptions(ctx, userID, ef.Category)
			if err != nil {
				a.log.Error("listing subscriptions failed", logx.Int64("user", userID), logx.Err(err))
				a.sendPlain(ctx, to, "⚠️ Couldn't load subscriptions. Please try again.")
				continue
			}
			ref = a.sendPrompt(ctx, to, ref, dialog.Prompt{
				Text: dialog.RenderSubscriptions(ef.Category, items),
				Buttons: [][]dialog.Button{
					{{Label: "➕ Add", Tag: dialog.TagSubAdd}},
					{{Label: "🔙 Back", Tag: dialog.TagBack}},
				},
			})

		default:
			a.log.Warn("unhandled effect", logx.Any("effect", ef))
		}
	}
	return ref
}

// sendPrompt renders one prompt, editing the previous menu message in place
// when asked. A failed edit falls back to a fresh send.
func (a *App) sendPrompt(ctx context.Context, to transport.ChatTarget, ref transport.MessageRef, p dialog.Prompt) transport.MessageRef {
	opts := htmlOpts(keyboard(p.Buttons))

	if p.Edit && !ref.IsZero() {
		err := a.adapter.EditText(ctx, ref, p.Text, opts)
		if err == nil {
			return ref
		}
		a.log.Debug("edit failed, sending fresh message",
			logx.Int64("chat", ref.ChatID), logx.Int("message", ref.MessageID), logx.Err(err))
	}

	newRef, err := a.adapter.SendText(ctx, to, p.Text, opts)
	if err != nil {
		a.log.Error("sending prompt failed", logx.Int64("chat", to.ChatID), logx.Err(err))
		return ref
	}
	return newRef
}

func (a *App) sendPlain(ctx context.Context, to transport.ChatTarget, text string) {
	if _, err := a.adapter.SendText(ctx, to, text, htmlOpts(nil)); err != nil {
		a.log.Error("sending notice failed", logx.Int64("chat", to.ChatID), logx.Err(err))
	}
}

func htmlOpts(markup any) *transport.SendOptions {
	return &transport.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
		ReplyMarkup:    markup,
	}
}

// keyboard converts the engine's button grid into Telegram inline markup.
func keyboard(rows [][]dialog.Button) any {
	if len(rows) == 0 {
		return nil
	}
	grid := make([][][2]string, 0, len(rows))
	for _, row := range rows {
		r := make([][2]string, 0, len(row))
		for _, b := range row {
			r = append(r, [2]string{b.Label, b.Tag})
		}
		grid = append(grid, r)
	}
	rm := tgui.Grid(grid)
	if rm == nil {
		return nil
	}
	return rm
}
