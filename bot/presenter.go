package bot

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"attestbot/core/telegram/format"
	"attestbot/core/telegram/keyboard"
	"attestbot/engine"
	"attestbot/quiz"

	tele "gopkg.in/telebot.v4"
)

// Callback keys shared between the presenter and the handlers.
const (
	cbPosition   = "reg_pos"
	cbDepartment = "reg_dept"
	cbSpec       = "quiz_spec"
	cbAnswer     = "quiz_ans"
	cbConfirm    = "quiz_ok"
	cbCancel     = "quiz_cancel"
)

var numberEmojis = []string{"1️⃣", "2️⃣", "3️⃣", "4️⃣", "5️⃣", "6️⃣", "7️⃣", "8️⃣", "9️⃣", "🔟"}

func numberLabel(i int) string {
	if i >= 0 && i < len(numberEmojis) {
		return numberEmojis[i]
	}
	return fmt.Sprintf("%d.", i+1)
}

// Presenter renders engine output into Telegram messages. The bot instance
// arrives late, at transport start, hence the atomic holder.
type Presenter struct {
	bot     atomic.Pointer[tele.Bot]
	pending *selectionTracker
}

func NewPresenter() *Presenter {
	return &Presenter{pending: newSelectionTracker()}
}

// SetBot wires the live bot once the transport is up.
func (p *Presenter) SetBot(b *tele.Bot) { p.bot.Store(b) }

func (p *Presenter) send(userID int64, text string, markup *tele.ReplyMarkup) error {
	b := p.bot.Load()
	if b == nil {
		return fmt.Errorf("presenter: bot not started")
	}
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: markup}
	_, err := b.Send(&tele.User{ID: userID}, text, opts)
	return err
}

func (p *Presenter) PromptPosition(_ context.Context, userID int64, positions []string) error {
	buttons := make([]keyboard.InlineBtn, 0, len(positions))
	for i, pos := range positions {
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   pos,
			Unique: cbPosition,
			Data:   fmt.Sprintf("%d", i),
		})
	}
	return p.send(userID, "👋 Welcome! Let's get you registered.\n\n*Select your position:*",
		keyboard.InlineButtons(buttons))
}

func (p *Presenter) PromptDepartment(_ context.Context, userID int64, departments []string) error {
	buttons := make([]keyboard.InlineBtn, 0, len(departments))
	for i, dept := range departments {
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   dept,
			Unique: cbDepartment,
			Data:   fmt.Sprintf("%d", i),
		})
	}
	return p.send(userID, "*Select your department:*", keyboard.InlineButtons(buttons))
}

func (p *Presenter) PromptSpecializations(_ context.Context, userID int64, specs []*quiz.Specialization) error {
	buttons := make([]keyboard.InlineBtn, 0, len(specs))
	for _, sp := range specs {
		label := sp.Name
		if sp.Difficulty != "" {
			label = fmt.Sprintf("%s (%s)", sp.Name, sp.Difficulty)
		}
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   label,
			Unique: cbSpec,
			Data:   sp.ID,
		})
	}
	return p.send(userID, "*Choose a test to take:*", keyboard.InlineButtons(buttons))
}

func (p *Presenter) ShowQuestion(_ context.Context, userID int64, view engine.QuestionView) error {
	p.pending.begin(userID, view.Index, len(view.Question.Options))

	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s*, question %d of %d\n", format.EscapeMarkdown(view.SpecName), view.Index+1, view.Total)
	fmt.Fprintf(&sb, "⏱ %d seconds\n\n", int(view.TimeLimit.Seconds()))
	sb.WriteString(format.EscapeMarkdown(view.Question.Text))
	sb.WriteString("\n\n")
	for i, opt := range view.Question.Options {
		fmt.Fprintf(&sb, "%s %s\n", numberLabel(i), format.EscapeMarkdown(opt))
	}
	sb.WriteString("\nPick the correct options, then confirm.")

	markup := p.answerMarkup(view.Index, len(view.Question.Options), nil)
	return p.send(userID, sb.String(), markup)
}

// answerMarkup builds the option toggles plus confirm and cancel rows.
// Picked options carry a check mark.
func (p *Presenter) answerMarkup(cursor, optionCount int, picked []int) *tele.ReplyMarkup {
	pickedSet := make(map[int]bool, len(picked))
	for _, idx := range picked {
		pickedSet[idx] = true
	}
	buttons := make([]keyboard.InlineBtn, 0, optionCount)
	for i := 0; i < optionCount; i++ {
		label := numberLabel(i)
		if pickedSet[i] {
			label = "✅ " + label
		}
		buttons = append(buttons, keyboard.InlineBtn{
			Text:   label,
			Unique: cbAnswer,
			Data:   fmt.Sprintf("%d:%d", cursor, i),
		})
	}
	markup := keyboard.InlineButtonsNPerRow(buttons, 4)
	markup = keyboard.AppendRow(markup, keyboard.InlineBtn{
		Text:   "✅ Submit",
		Unique: cbConfirm,
		Data:   fmt.Sprintf("%d", cursor),
	})
	markup = keyboard.AppendRow(markup, keyboard.InlineBtn{
		Text:   "❌ Cancel test",
		Unique: cbCancel,
		Data:   "cancel",
	})
	return markup
}

func (p *Presenter) NotifyQuestionTimeout(_ context.Context, userID int64, index int) error {
	return p.send(userID, fmt.Sprintf("⏰ Time is up for question %d.", index+1), nil)
}

func (p *Presenter) ShowResult(_ context.Context, userID int64, result quiz.GradeResult, saved bool) error {
	p.pending.clear(userID)
	var sb strings.Builder
	sb.WriteString("📊 *Test finished*\n\n")
	fmt.Fprintf(&sb, "Correct answers: %d of %d\n", result.Correct, result.Total)
	fmt.Fprintf(&sb, "Score: %d%%\n", result.Percent)
	if result.Grade != "" {
		fmt.Fprintf(&sb, "Grade: *%s*\n", format.EscapeMarkdown(result.Grade))
	}
	if !saved {
		sb.WriteString("\n⚠️ The result could not be saved. It will not appear in /history.")
	}
	sb.WriteString("\nUse /start to take another test.")
	return p.send(userID, sb.String(), nil)
}

func (p *Presenter) NotifyAbandoned(_ context.Context, userID int64) error {
	p.pending.clear(userID)
	return p.send(userID, "⌛ The test expired without any answers and was closed. Use /start to try again.", nil)
}

func (p *Presenter) NotifyAborted(_ context.Context, userID int64) error {
	p.pending.clear(userID)
	return p.send(userID, "🚫 Cancelled. Nothing was saved. Use /start when you are ready.", nil)
}
