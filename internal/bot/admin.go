package bot

import (
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"otprelay/core/logger"
	tghelpers "otprelay/core/telegram/helpers"
	"otprelay/core/telegram/keyboard"
	"otprelay/internal/numpool"
	"otprelay/internal/otp"

	tele "gopkg.in/telebot.v4"
)

// Admin shows the admin dashboard.
func (h *Handlers) Admin(c tele.Context) error {
	markup := keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: "Stock", Unique: cbAdminStock},
		{Text: "Active Users", Unique: cbAdminActive},
		{Text: "Add Numbers", Unique: cbAdminAdd},
	})
	return tghelpers.SendText(c, "Admin dashboard:", &tele.SendOptions{ReplyMarkup: markup})
}

// Stock reports pool counters per status.
func (h *Handlers) Stock(c tele.Context) error {
	st := h.Pool.Stats()
	text := fmt.Sprintf(
		"Total: %d\nAvailable: %d\nAssigned: %d\nUsed: %d\nBlocked: %d",
		st.Total, st.Available, st.Assigned, st.Used, st.Blocked,
	)
	if lists := h.Pool.Lists(); len(lists) > 0 {
		text += "\nLists: " + strings.Join(lists, ", ")
	}

	ctx := tghelpers.BuildContext(c)
	dayStart := time.Now().UTC().Truncate(24 * time.Hour)
	if n, err := h.Archive.CountSince(ctx, dayStart); err != nil {
		logger.Warn(ctx, "bot", "stock.archive.fail", slog.String("err", err.Error()))
	} else {
		text += fmt.Sprintf("\nDelivered today: %d", n)
	}
	return tghelpers.SendText(c, text)
}

// ActiveUsers lists current leases with their holders.
func (h *Handlers) ActiveUsers(c tele.Context) error {
	leases := h.Pool.ActiveLeases()
	if len(leases) == 0 {
		return tghelpers.SendText(c, "No active users.")
	}
	var b strings.Builder
	for _, l := range leases {
		fmt.Fprintf(&b, "User %d: %s (status %s) at %s\n",
			l.Holder, l.Masked, l.Status, l.AssignedAt.Format(time.RFC3339))
	}
	return tghelpers.SendText(c, b.String())
}

// ReleaseNumber forces a number back to the pool.
func (h *Handlers) ReleaseNumber(c tele.Context) error {
	args := c.Args()
	if len(args) < 1 {
		return tghelpers.SendText(c, "Usage: /releasenumber <number> [used]")
	}
	forceUsed := len(args) > 1 && strings.EqualFold(args[1], "used")
	if err := h.Pool.Release(args[0], forceUsed); err != nil {
		if err == numpool.ErrNotFound {
			return tghelpers.SendText(c, "Number not found.")
		}
		return err
	}
	return tghelpers.SendText(c, "Released.")
}

// DeleteNumber blocks a number, removing it from rotation for good.
func (h *Handlers) DeleteNumber(c tele.Context) error {
	args := c.Args()
	if len(args) < 1 {
		return tghelpers.SendText(c, "Usage: /deletenumber <number>")
	}
	if err := h.Pool.Block(args[0]); err != nil {
		if err == numpool.ErrNotFound {
			return tghelpers.SendText(c, "Number not found.")
		}
		return err
	}
	return tghelpers.SendText(c, "Blocked.")
}

// RemoveList drops every number imported under a named list.
func (h *Handlers) RemoveList(c tele.Context) error {
	args := c.Args()
	if len(args) < 1 {
		return tghelpers.SendText(c, "Usage: /removelist <list>")
	}
	removed, err := h.Pool.RemoveList(args[0])
	if err != nil {
		return err
	}
	if removed == 0 {
		return tghelpers.SendText(c, "No numbers found under that list.")
	}
	return tghelpers.SendText(c, fmt.Sprintf("Removed %d numbers from list %q.", removed, args[0]))
}

// NumberHistory shows the archived deliveries for one number.
func (h *Handlers) NumberHistory(c tele.Context) error {
	args := c.Args()
	if len(args) < 1 {
		return tghelpers.SendText(c, "Usage: /numberhistory <number>")
	}
	ctx := tghelpers.BuildContext(c)
	entries, err := h.Archive.RecentByNumber(ctx, otp.NormalizeNumber(args[0]), 10)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return tghelpers.SendText(c, "No archived OTPs for that number.")
	}
	var b strings.Builder
	b.WriteString("Recent OTPs:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "<code>%s</code> via %s (%s) at %s\n",
			html.EscapeString(e.Code),
			html.EscapeString(e.Service),
			html.EscapeString(e.Source),
			e.ReceivedAt.Format(time.RFC3339),
		)
	}
	return tghelpers.SendHTML(c, b.String())
}

// Broadcast sends a plain message to every known user.
func (h *Handlers) Broadcast(c tele.Context) error {
	text := strings.TrimSpace(c.Message().Payload)
	if text == "" {
		return tghelpers.SendText(c, "Usage: /broadcast <text>")
	}
	users := h.Pool.KnownUsers()
	ctx := tghelpers.BuildContext(c)
	sent := 0
	for _, uid := range users {
		if h.Notifier != nil {
			h.Notifier.NotifyText(ctx, uid, text)
			sent++
		}
	}
	return tghelpers.SendText(c, fmt.Sprintf("Broadcast queued for %d users.", sent))
}
