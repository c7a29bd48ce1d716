package bot

import (
	"fmt"
	"html"
	"log/slog"
	"time"

	coreconfig "otprelay/core/config"
	"otprelay/core/logger"
	tghelpers "otprelay/core/telegram/helpers"
	"otprelay/core/telegram/keyboard"
	"otprelay/core/telegram/state"
	"otprelay/internal/history"
	"otprelay/internal/numpool"
	"otprelay/internal/otp"

	tele "gopkg.in/telebot.v4"
)

// Callback keys bound in the registry.
const (
	cbGetNumber    = "get_number"
	cbChangeNumber = "change_number"
	cbMyStatus     = "my_status"
	cbHelp         = "help"
	cbAdminStock   = "admin_stock"
	cbAdminActive  = "admin_active"
	cbAdminAdd     = "admin_add"
)

// Handlers carries the dependencies shared by all bot handlers.
type Handlers struct {
	Cfg      *coreconfig.Config
	Pool     *numpool.Manager
	Archive  *history.Archive
	Sessions state.Manager

	// Notifier is set during startup, before the bot begins processing
	// updates. Used by handlers that message chats other than the sender's.
	Notifier *Notifier
}

// Start greets the user and shows the main menu.
func (h *Handlers) Start(c tele.Context) error {
	if err := h.Pool.RegisterUser(c.Sender().ID); err != nil {
		ctx := tghelpers.BuildContext(c)
		logger.Warn(ctx, "tg", "register_user.fail",
			slog.String("err", err.Error()),
		)
	}
	markup := keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{
			{Text: "Get Number", Unique: cbGetNumber},
			{Text: "Change Number", Unique: cbChangeNumber},
		},
		[]keyboard.InlineBtn{{Text: "My Status", Unique: cbMyStatus}},
		[]keyboard.InlineBtn{{Text: "Help", Unique: cbHelp}},
	)
	return tghelpers.SendText(c, "Welcome! Use the buttons below to manage your OTP number.",
		&tele.SendOptions{ReplyMarkup: markup})
}

// GetNumber leases a number to the sender.
func (h *Handlers) GetNumber(c tele.Context) error {
	lease, err := h.Pool.Assign(c.Sender().ID)
	if err != nil {
		if err == numpool.ErrExhausted {
			return tghelpers.SendText(c, "No numbers are available right now. Please try later.")
		}
		return err
	}
	text := fmt.Sprintf("Your assigned number: %s <code>+%s</code>\nWait for the OTP here.",
		otp.CountryFlag(lease.Value), html.EscapeString(lease.Value))
	return tghelpers.SendHTML(c, text)
}

// ChangeNumber swaps the sender's lease for a fresh number.
func (h *Handlers) ChangeNumber(c tele.Context) error {
	lease, err := h.Pool.Change(c.Sender().ID)
	if err != nil {
		if err == numpool.ErrExhausted {
			return tghelpers.SendText(c, "No alternative numbers available right now.")
		}
		return err
	}
	text := fmt.Sprintf("New number assigned: %s <code>+%s</code>",
		otp.CountryFlag(lease.Value), html.EscapeString(lease.Value))
	return tghelpers.SendHTML(c, text)
}

// MyStatus shows the sender's current lease.
func (h *Handlers) MyStatus(c tele.Context) error {
	lease, ok := h.Pool.Current(c.Sender().ID)
	if !ok {
		return tghelpers.SendText(c, "You do not have a number yet. Use /getnumber to request one.")
	}
	text := fmt.Sprintf("Number: %s <code>+%s</code>\nAssigned at: %s\n",
		otp.CountryFlag(lease.Value),
		html.EscapeString(lease.Value),
		lease.AssignedAt.Format(time.RFC3339),
	)
	if lease.LastOTP != "" {
		text += fmt.Sprintf("Last OTP: <code>%s</code>\n", html.EscapeString(lease.LastOTP))
	} else {
		text += "Waiting for OTP...\n"
	}
	text += fmt.Sprintf("Auto-release after %d minutes without OTP.",
		int(h.Pool.TTL().Minutes()))
	return tghelpers.SendHTML(c, text)
}

// Help lists the user commands.
func (h *Handlers) Help(c tele.Context) error {
	return tghelpers.SendText(c,
		"/getnumber - Assign a phone number\n"+
			"/changenumber - Change your assigned number\n"+
			"/mystatus - View your current status\n"+
			"Admins: /admin for dashboard")
}

// UnknownText nudges the user toward the menu.
func (h *Handlers) UnknownText(c tele.Context) error {
	return tghelpers.SendText(c, "Unknown command. Use /help to see what I can do.")
}

// UnknownDocument rejects documents outside the add-numbers flow.
func (h *Handlers) UnknownDocument(c tele.Context) error {
	return tghelpers.SendText(c, "I was not expecting a file. Use /addnumbers first.")
}
