package bot

import (
	tg "otprelay/core/telegram"
	"otprelay/core/telegram/commands"
	tghelpers "otprelay/core/telegram/helpers"
	"otprelay/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// adminGate protects callback handlers, which bypass the command middleware
// chain.
func (h *Handlers) adminGate(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if !h.Cfg.Telegram.IsAdmin(c.Sender().ID) {
			return tghelpers.SendText(c, "You are not authorized to use this command.")
		}
		return next(c)
	}
}

// BuildRegistry declares every command and callback of the bot.
func (h *Handlers) BuildRegistry() *tg.Registry {
	reg := tg.NewRegistry()

	reg.RegisterCommand("/start", commands.Command{
		Handler:     h.Start,
		Description: "Start and show the menu",
	})
	reg.RegisterCommand("/getnumber", commands.Command{
		Handler:     h.GetNumber,
		Description: "Assign a phone number",
	})
	reg.RegisterCommand("/changenumber", commands.Command{
		Handler:     h.ChangeNumber,
		Description: "Change your assigned number",
	})
	reg.RegisterCommand("/mystatus", commands.Command{
		Handler:     h.MyStatus,
		Description: "View your current status",
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler:     h.Help,
		Description: "Show help",
	})

	reg.RegisterCommand("/admin", commands.Command{
		Handler:     h.Admin,
		Description: "Admin dashboard",
		AdminOnly:   true,
	})
	reg.RegisterCommand("/stock", commands.Command{
		Handler:     h.Stock,
		Description: "Pool stock summary",
		AdminOnly:   true,
		Hidden:      true,
	})
	reg.RegisterCommand("/activeusers", commands.Command{
		Handler:     h.ActiveUsers,
		Description: "List active leases",
		AdminOnly:   true,
		Hidden:      true,
	})
	reg.RegisterCommand("/addnumbers", commands.Command{
		Handler:     h.AddNumbersEntry,
		Description: "Import numbers into the pool",
		AdminOnly:   true,
		Hidden:      true,
	})
	reg.RegisterCommand("/removelist", commands.Command{
		Handler:     h.RemoveList,
		Description: "Remove an imported list",
		AdminOnly:   true,
		Hidden:      true,
	})
	reg.RegisterCommand("/releasenumber", commands.Command{
		Handler:     h.ReleaseNumber,
		Description: "Force-release a number",
		AdminOnly:   true,
		Hidden:      true,
	})
	reg.RegisterCommand("/deletenumber", commands.Command{
		Handler:     h.DeleteNumber,
		Description: "Block a number",
		AdminOnly:   true,
		Hidden:      true,
	})
	reg.RegisterCommand("/numberhistory", commands.Command{
		Handler:     h.NumberHistory,
		Description: "Archived OTPs for a number",
		AdminOnly:   true,
		Hidden:      true,
	})
	reg.RegisterCommand("/broadcast", commands.Command{
		Handler:     h.Broadcast,
		Description: "Message every known user",
		AdminOnly:   true,
		Hidden:      true,
	})

	_ = reg.RegisterCallback(cbGetNumber, h.GetNumber)
	_ = reg.RegisterCallback(cbChangeNumber, h.ChangeNumber)
	_ = reg.RegisterCallback(cbMyStatus, h.MyStatus)
	_ = reg.RegisterCallback(cbHelp, h.Help)
	_ = reg.RegisterCallback(cbAdminStock, h.adminGate(h.Stock))
	_ = reg.RegisterCallback(cbAdminActive, h.adminGate(h.ActiveUsers))
	_ = reg.RegisterCallback(cbAdminAdd, h.adminGate(h.AddNumbersEntry))

	reg.SetTextFallback(h.UnknownText)

	state.RegisterHandler(StateAwaitNumbers, h.AwaitNumbers)

	return reg
}
