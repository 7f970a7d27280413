package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tg "attestbot/core/telegram"
	"attestbot/core/telegram/callbacks"
	"attestbot/core/telegram/commands"
	"attestbot/core/telegram/format"
	tghelpers "attestbot/core/telegram/helpers"
	"attestbot/engine"
	"attestbot/quiz"
	"attestbot/store"

	tele "gopkg.in/telebot.v4"
)

// HistoryStore is the slice of persistence the handlers read directly.
type HistoryStore interface {
	LoadHistory(ctx context.Context, userID int64, limit int) ([]store.HistoryEntry, error)
}

const historyLimit = 10

// Handlers glue Telegram updates to the session engine.
type Handlers struct {
	hub       *engine.Hub
	bank      *quiz.Bank
	history   HistoryStore
	presenter *Presenter
}

func NewHandlers(hub *engine.Hub, bank *quiz.Bank, history HistoryStore, presenter *Presenter) *Handlers {
	return &Handlers{hub: hub, bank: bank, history: history, presenter: presenter}
}

// Register wires every command and callback into the registry.
func (h *Handlers) Register(reg *tg.Registry) {
	reg.RegisterCommand("/start", commands.Command{
		Handler:     h.onStart,
		Description: "Start registration or a new test",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     h.onCancel,
		Description: "Cancel the current test",
		Aliases:     []string{"stop"},
	})
	reg.RegisterCommand("/history", commands.Command{
		Handler:     h.onHistory,
		Description: "Show your recent results",
	})

	_ = reg.RegisterCallback(cbPosition, h.onPosition)
	_ = reg.RegisterCallback(cbDepartment, h.onDepartment)
	_ = reg.RegisterCallback(cbSpec, h.onSpecialization)
	_ = reg.RegisterCallback(cbAnswer, h.onAnswerToggle)
	_ = reg.RegisterCallback(cbConfirm, h.onAnswerConfirm)
	_ = reg.RegisterCallback(cbCancel, h.onCancel)

	reg.SetTextFallback(func(c tele.Context) error {
		return c.Send("Please use the buttons, or /start to begin.")
	})
}

func (h *Handlers) onStart(c tele.Context) error {
	return h.dispatch(c, engine.Start{})
}

func (h *Handlers) onCancel(c tele.Context) error {
	return h.dispatch(c, engine.Cancel{})
}

func (h *Handlers) onHistory(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "history")
	entries, err := h.history.LoadHistory(ctx, c.Sender().ID, historyLimit)
	if err != nil {
		_ = c.Send("Could not load your history right now, try again later.")
		return err
	}
	if len(entries) == 0 {
		return c.Send("No completed tests yet. Use /start to take one.")
	}

	var sb strings.Builder
	sb.WriteString("🗂 *Your recent results*\n\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "%s · %s\n%d of %d (%d%%), *%s*\n\n",
			e.FinishedAt.Format("02.01.2006 15:04"),
			format.EscapeMarkdown(h.specName(e.Spec)),
			e.Correct, e.Total, e.Percent,
			format.EscapeMarkdown(e.Grade),
		)
	}
	return tghelpers.SendMD(c, sb.String())
}

func (h *Handlers) onPosition(c tele.Context) error {
	idx, err := callbacks.PayloadInt(c)
	positions := h.bank.Positions()
	if err != nil || idx < 0 || idx >= len(positions) {
		return c.Respond(&tele.CallbackResponse{Text: "Unknown position"})
	}
	return h.dispatch(c, engine.SelectPosition{Position: positions[idx]})
}

func (h *Handlers) onDepartment(c tele.Context) error {
	idx, err := callbacks.PayloadInt(c)
	departments := h.bank.Departments()
	if err != nil || idx < 0 || idx >= len(departments) {
		return c.Respond(&tele.CallbackResponse{Text: "Unknown department"})
	}
	return h.dispatch(c, engine.SelectDepartment{Department: departments[idx]})
}

func (h *Handlers) onSpecialization(c tele.Context) error {
	specID := strings.TrimSpace(callbacks.CallbackPayload(c))
	if specID == "" {
		return c.Respond(&tele.CallbackResponse{Text: "Unknown test"})
	}
	return h.dispatch(c, engine.SelectSpecialization{SpecID: specID})
}

// onAnswerToggle flips one option in the pending selection and refreshes the
// keyboard in place. Nothing reaches the engine until the user confirms.
func (h *Handlers) onAnswerToggle(c tele.Context) error {
	cursor, option, err := callbacks.PayloadTwoInt(c, ":")
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
	}
	userID := c.Sender().ID
	picked, optionCount, ok := h.presenter.pending.toggle(userID, cursor, option)
	if !ok {
		return c.Respond(&tele.CallbackResponse{Text: "That question has already moved on"})
	}
	return c.Edit(h.presenter.answerMarkup(cursor, optionCount, picked))
}

func (h *Handlers) onAnswerConfirm(c tele.Context) error {
	cursor, err := strconv.Atoi(callbacks.CallbackPayload(c))
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
	}
	userID := c.Sender().ID
	picked, ok := h.presenter.pending.current(userID, cursor)
	if !ok {
		return c.Respond(&tele.CallbackResponse{Text: "That question has already moved on"})
	}
	if len(picked) == 0 {
		return c.Respond(&tele.CallbackResponse{Text: "Select at least one option first"})
	}
	return h.dispatch(c, engine.SubmitAnswer{Cursor: cursor, Selected: picked})
}

func (h *Handlers) specName(id string) string {
	if sp, err := h.bank.Get(id); err == nil {
		return sp.Name
	}
	return id
}

// dispatch feeds one action to the engine and translates recoverable
// rejections into user-facing replies. Unexpected errors bubble up so the
// router logs them.
func (h *Handlers) dispatch(c tele.Context, action engine.Action) error {
	ctx := tghelpers.BuildContext(c)
	err := h.hub.Dispatch(ctx, c.Sender().ID, action)
	if err == nil {
		return nil
	}

	var (
		stale  *engine.StaleActionError
		closed *engine.SessionClosedError
		busy   *engine.BusyError
		verr   *engine.ValidationError
		derr   *quiz.DataError
	)
	switch {
	case errors.As(err, &stale):
		return c.Respond(&tele.CallbackResponse{Text: "Too late, the test has moved on"})
	case errors.As(err, &closed):
		return c.Send("This test is already over. Use /start to begin a new one.")
	case errors.As(err, &busy):
		return c.Respond(&tele.CallbackResponse{Text: "One moment, still processing"})
	case errors.As(err, &verr):
		return c.Send("That choice does not fit the current step. Use the buttons above, or /start to begin again.")
	case errors.As(err, &derr):
		return c.Send("That test is unavailable right now, please pick another one.")
	}

	_ = c.Send("Something went wrong, please try again.")
	return err
}
