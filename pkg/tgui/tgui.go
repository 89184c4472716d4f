// Package tgui builds Telegram inline keyboards from the transport-neutral
// button grids the dialog layer emits.
package tgui

import (
	tele "gopkg.in/telebot.v4"
)

// Inline is a small builder for inline keyboards (ReplyMarkup).
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

// Row appends a new row of buttons to the keyboard.
func (i *Inline) Row(btn ...tele.Btn) *Inline {
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

// Markup returns the underlying reply markup, or nil when no rows were added.
func (i *Inline) Markup() *tele.ReplyMarkup {
	if len(i.rows) == 0 {
		return nil
	}
	return i.rm
}

// Btn creates a callback button with raw callback_data.
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}

// Grid builds a keyboard from label/data pairs laid out row by row. Empty
// rows are skipped.
func Grid(rows [][][2]string) *tele.ReplyMarkup {
	kb := NewInline()
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		btns := make([]tele.Btn, 0, len(row))
		for _, b := range row {
			btns = append(btns, Btn(b[0], b[1]))
		}
		kb.Row(btns...)
	}
	return kb.Markup()
}
