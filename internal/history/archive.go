package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Entry is one archived delivery row.
type Entry struct {
	ID         int64     `db:"id"`
	Number     string    `db:"number"`
	Code       string    `db:"code"`
	Service    string    `db:"service"`
	Source     string    `db:"source"`
	Holder     int64     `db:"holder"`
	ReceivedAt time.Time `db:"received_at"`
}

// Archive stores delivered OTPs. A nil Archive is a valid no-op sink, so
// callers do not have to branch when the archive is disabled.
type Archive struct {
	db *sqlx.DB
}

// Record appends one delivery to the archive.
func (a *Archive) Record(ctx context.Context, e Entry) error {
	if a == nil {
		return nil
	}
	const q = `INSERT INTO otp_history (number, code, service, source, holder, received_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now().UTC()
	}
	if _, err := a.db.ExecContext(ctx, q,
		e.Number, e.Code, e.Service, e.Source, e.Holder, e.ReceivedAt,
	); err != nil {
		return fmt.Errorf("archive record: %w", err)
	}
	return nil
}

// RecentByNumber returns the newest archived deliveries for a number,
// newest first.
func (a *Archive) RecentByNumber(ctx context.Context, number string, limit int) ([]Entry, error) {
	if a == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	const q = `SELECT id, number, code, service, source, holder, received_at
		FROM otp_history WHERE number = ? ORDER BY received_at DESC, id DESC LIMIT ?`
	var out []Entry
	if err := a.db.SelectContext(ctx, &out, q, number, limit); err != nil {
		return nil, fmt.Errorf("archive query: %w", err)
	}
	return out, nil
}

// CountSince reports how many deliveries were archived at or after the cutoff.
func (a *Archive) CountSince(ctx context.Context, cutoff time.Time) (int, error) {
	if a == nil {
		return 0, nil
	}
	const q = `SELECT COUNT(*) FROM otp_history WHERE received_at >= ?`
	var n int
	if err := a.db.GetContext(ctx, &n, q, cutoff); err != nil {
		return 0, fmt.Errorf("archive count: %w", err)
	}
	return n, nil
}

// Close releases the underlying connection.
func (a *Archive) Close() error {
	if a == nil {
		return nil
	}
	return a.db.Close()
}
