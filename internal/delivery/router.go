// Package delivery routes OTP-bearing messages from ingestion sources to
// the lease holder and the operator log chats.
package delivery

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"otprelay/core/logger"
	"otprelay/internal/history"
	"otprelay/internal/numpool"
	"otprelay/internal/otp"
)

// Notifier delivers rendered messages to Telegram. Sends are asynchronous;
// implementations must not block on network I/O.
type Notifier interface {
	// NotifyHolder sends an HTML message to the lease holder's private chat.
	NotifyHolder(ctx context.Context, holder int64, text string)
	// NotifyLog mirrors an HTML message to every configured log chat.
	NotifyLog(ctx context.Context, text string)
}

// Router consumes raw inbound messages, extracts passcodes, records them
// against the pool, and fans the result out to holder and log chats.
type Router struct {
	Pool     *numpool.Manager
	Archive  *history.Archive
	Notifier Notifier
}

// HandleMessage processes one inbound message reported for number. It
// returns true when a code was extracted and recorded. Messages without a
// recognizable code and numbers outside the pool are skipped quietly; both
// are routine for panel feeds that carry unrelated traffic.
func (r *Router) HandleMessage(ctx context.Context, number, message, service, source string) (bool, error) {
	code, ok := otp.Extract(message)
	if !ok {
		if logger.ShouldSampleDebug() {
			logger.Debug(ctx, "panel", "deliver.no_code",
				slog.String("panel", source),
				slog.String("number", otp.MaskNumber(number)),
			)
		}
		return false, nil
	}

	d, err := r.Pool.Deliver(number, code, service, source)
	if err != nil {
		if err == numpool.ErrNotFound {
			if logger.ShouldSampleDebug() {
				logger.Debug(ctx, "panel", "deliver.unknown_number",
					slog.String("panel", source),
					slog.String("number", otp.MaskNumber(number)),
				)
			}
			return false, nil
		}
		return false, fmt.Errorf("record delivery: %w", err)
	}

	if r.Archive != nil {
		if archErr := r.Archive.Record(ctx, history.Entry{
			Number:     otp.NormalizeNumber(number),
			Code:       code,
			Service:    service,
			Source:     source,
			Holder:     d.Holder,
			ReceivedAt: time.Now().UTC(),
		}); archErr != nil {
			// The delivery itself already committed; archive loss is not fatal.
			logger.Warn(ctx, "history", "archive.record.fail",
				slog.String("err", archErr.Error()),
			)
		}
	}

	if r.Notifier != nil {
		text := renderDelivery(number, code, service, message)
		if d.Holder != 0 {
			r.Notifier.NotifyHolder(ctx, d.Holder, text)
		}
		r.Notifier.NotifyLog(ctx, text)
	}

	logger.Info(ctx, "panel", "deliver.routed",
		slog.String("panel", source),
		slog.String("number", otp.MaskNumber(number)),
		slog.String("service", service),
		slog.Int("code_len", len(code)),
		slog.Int64("holder", d.Holder),
	)
	return true, nil
}

// renderDelivery builds the HTML notification shown to holder and log chats.
func renderDelivery(number, code, service, message string) string {
	var b strings.Builder
	b.WriteString(otp.CountryFlag(number))
	b.WriteString(" <b>New OTP received</b>\n\n")
	b.WriteString("\U0001F4F1 Number: <code>")
	b.WriteString(html.EscapeString(otp.MaskNumber(number)))
	b.WriteString("</code>\n")
	if service != "" {
		b.WriteString("\U0001F4E8 Service: ")
		b.WriteString(html.EscapeString(service))
		b.WriteString("\n")
	}
	b.WriteString("\U0001F511 Code: <code>")
	b.WriteString(html.EscapeString(code))
	b.WriteString("</code>\n")
	if trimmed := strings.TrimSpace(message); trimmed != "" {
		b.WriteString("\n<i>")
		b.WriteString(html.EscapeString(logger.Sanitize(trimmed)))
		b.WriteString("</i>")
	}
	return b.String()
}
