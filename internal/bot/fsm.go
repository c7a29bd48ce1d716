package bot

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	tghelpers "otprelay/core/telegram/helpers"
	"otprelay/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// StateAwaitNumbers is active while an admin is sending numbers to import.
const StateAwaitNumbers state.State = "await_numbers"

const tempKeyList = "add_numbers_list"

// maxImportBytes caps the size of an uploaded number list.
const maxImportBytes = 2 << 20

var numberPattern = regexp.MustCompile(`\+?\d{5,}`)

// AddNumbersEntry starts the import conversation. An optional argument names
// the list the numbers are filed under.
func (h *Handlers) AddNumbersEntry(c tele.Context) error {
	list := "default"
	if args := c.Args(); len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		list = strings.TrimSpace(args[0])
	}
	userID := c.Sender().ID
	h.Sessions.SetTemp(userID, tempKeyList, list)
	h.Sessions.SetState(userID, StateAwaitNumbers)
	return tghelpers.SendText(c,
		fmt.Sprintf("Send numbers (one per line) or upload a file. They will be added to list %q. Send /cancel to abort.", list))
}

// AwaitNumbers consumes the next text message or document while the import
// conversation is active.
func (h *Handlers) AwaitNumbers(c tele.Context) error {
	userID := c.Sender().ID
	text := strings.TrimSpace(c.Text())
	if strings.EqualFold(text, "/cancel") {
		h.Sessions.ClearState(userID)
		h.Sessions.ClearTemp(userID, tempKeyList)
		return tghelpers.SendText(c, "Import cancelled.")
	}

	list := "default"
	if v, ok := h.Sessions.GetTemp(userID, tempKeyList); ok {
		if s, isStr := v.(string); isStr && s != "" {
			list = s
		}
	}

	raw, err := h.collectNumbers(c, text)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return tghelpers.SendText(c, "No numbers recognized. Send digits, one per line, or /cancel.")
	}

	added, skipped, err := h.Pool.AddNumbers(list, raw)
	if err != nil {
		return err
	}
	h.Sessions.ClearState(userID)
	h.Sessions.ClearTemp(userID, tempKeyList)
	return tghelpers.SendText(c,
		fmt.Sprintf("Added %d numbers to the pool (%d skipped).", added, skipped))
}

func (h *Handlers) collectNumbers(c tele.Context, text string) ([]string, error) {
	if doc := c.Message().Document; doc != nil {
		rc, err := c.Bot().File(&doc.File)
		if err != nil {
			return nil, fmt.Errorf("download list: %w", err)
		}
		defer func() { _ = rc.Close() }()
		data, err := io.ReadAll(io.LimitReader(rc, maxImportBytes))
		if err != nil {
			return nil, fmt.Errorf("read list: %w", err)
		}
		return numberPattern.FindAllString(string(data), -1), nil
	}
	return numberPattern.FindAllString(text, -1), nil
}
