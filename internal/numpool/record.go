// Package numpool manages the phone number pool as a lease registry:
// numbers are handed out to requesters, reclaimed on timeout, and retired
// once an OTP is delivered against them.
package numpool

import "time"

// Status is the lifecycle state of a pool number.
type Status string

const (
	// StatusAvailable marks a number free for assignment.
	StatusAvailable Status = "available"
	// StatusAssigned marks a number currently leased to a requester.
	StatusAssigned Status = "assigned"
	// StatusUsed marks a number retired after a delivered OTP. Terminal.
	StatusUsed Status = "used"
	// StatusBlocked marks a number removed from rotation by an admin. Terminal.
	StatusBlocked Status = "blocked"
)

func validStatus(s Status) bool {
	switch s {
	case StatusAvailable, StatusAssigned, StatusUsed, StatusBlocked:
		return true
	}
	return false
}

// OTPEntry is one observed passcode on a number. History is append-only.
type OTPEntry struct {
	Code    string    `json:"code"`
	At      time.Time `json:"at"`
	Service string    `json:"service,omitempty"`
	Source  string    `json:"source"`
}

// NumberRecord is the durable state of one pool number.
//
// Holder and AssignedAt are both set while Status is assigned and both zero
// otherwise; repair() restores that invariant for snapshots written by hand
// or damaged in transit.
type NumberRecord struct {
	Value   string `json:"value"`
	List    string `json:"list,omitempty"`
	Country string `json:"country,omitempty"`
	Status  Status `json:"status"`

	Holder     int64      `json:"holder,omitempty"`
	AssignedAt *time.Time `json:"assigned_at,omitempty"`

	// LastOTP holds the most recent code delivered during the current (or
	// final) lease; LastOTPAt is cleared on every assignment so reclamation
	// can tell "OTP seen since assignment" apart from older history.
	LastOTP   string     `json:"last_otp,omitempty"`
	LastOTPAt *time.Time `json:"last_otp_at,omitempty"`

	History []OTPEntry `json:"otp_history,omitempty"`
}

// repair enforces the record invariants after load, returning true when the
// record had to be changed.
func (r *NumberRecord) repair() bool {
	changed := false
	if !validStatus(r.Status) {
		r.Status = StatusAvailable
		changed = true
	}
	if r.Status != StatusAssigned {
		if r.Holder != 0 || r.AssignedAt != nil {
			r.Holder = 0
			r.AssignedAt = nil
			changed = true
		}
	} else if r.Holder == 0 || r.AssignedAt == nil {
		// An assigned record without a holder (or vice versa) is torn;
		// return it to the pool rather than guessing.
		r.Status = StatusAvailable
		r.Holder = 0
		r.AssignedAt = nil
		changed = true
	}
	return changed
}

// hasOTPSinceAssignment reports whether an OTP arrived during the current lease.
func (r *NumberRecord) hasOTPSinceAssignment() bool {
	return r.LastOTPAt != nil
}

// clearLease resets lease-scoped fields, leaving history untouched.
func (r *NumberRecord) clearLease() {
	r.Holder = 0
	r.AssignedAt = nil
	r.LastOTP = ""
	r.LastOTPAt = nil
}
