package numpool

import (
	"sort"
	"sync"
	"time"

	"otprelay/core/logger"
	"otprelay/internal/otp"

	"log/slog"
)

// Config carries lease policy settings.
type Config struct {
	// TTL is how long an assigned number without an OTP is held before the
	// sweep returns it to the pool.
	TTL time.Duration
	// KeepUsedLocked retires a number to the terminal "used" state once an
	// OTP is delivered on it. When false the record stays assigned with the
	// OTP recorded, making it deliverable again.
	KeepUsedLocked bool
}

// Lease is the view of an active assignment handed to the front-end.
type Lease struct {
	Value         string
	Masked        string
	AssignedAt    time.Time
	LastOTP       string
	ReassignCount int
}

// ActiveLease pairs a lease with its holder for admin listings.
type ActiveLease struct {
	Holder int64
	Lease
	Status Status
}

// Stats counts pool records per status.
type Stats struct {
	Total     int
	Available int
	Assigned  int
	Used      int
	Blocked   int
}

// Delivery is the outcome of recording an OTP against a number.
type Delivery struct {
	// Holder is the requester the OTP belongs to; zero when the number was
	// not leased to anyone at delivery time.
	Holder int64
	// Retired is true when the delivery moved the number to "used".
	Retired bool
}

// Manager implements every lease operation against the store. All operations
// run under one mutex spanning the full read-modify-persist cycle: two
// concurrent assigns can never pick the same record, and a reclaim sweep
// racing a delivery observes either all of its writes or none. The snapshot
// write is the only I/O inside the critical section; notification sends
// happen in callers, after the mutation is committed.
type Manager struct {
	mu    sync.Mutex
	store *Store
	cfg   Config

	now func() time.Time
}

// NewManager wires a Manager over a loaded store.
func NewManager(store *Store, cfg Config) *Manager {
	return &Manager{store: store, cfg: cfg, now: time.Now}
}

func (m *Manager) leaseFor(rec *NumberRecord) *Lease {
	var at time.Time
	if rec.AssignedAt != nil {
		at = *rec.AssignedAt
	}
	return &Lease{
		Value:         rec.Value,
		Masked:        otp.MaskNumber(rec.Value),
		AssignedAt:    at,
		LastOTP:       rec.LastOTP,
		ReassignCount: m.store.reassignCount(rec.Holder),
	}
}

// firstAvailable returns the first available record in pool-insertion order,
// keeping assignment deterministic.
func (m *Manager) firstAvailable() *NumberRecord {
	for _, rec := range m.store.All() {
		if rec.Status == StatusAvailable {
			return rec
		}
	}
	return nil
}

func (m *Manager) assignLocked(requester int64, rec *NumberRecord) *Lease {
	now := m.now().UTC()
	rec.Status = StatusAssigned
	rec.Holder = requester
	rec.AssignedAt = &now
	rec.LastOTP = ""
	rec.LastOTPAt = nil
	m.store.setHolder(requester, rec.Value)
	return m.leaseFor(rec)
}

// Assign leases the first available number to the requester. A requester
// already holding an assigned number with no OTP yet gets that same lease
// back unchanged. Returns ErrExhausted when the pool has nothing free.
func (m *Manager) Assign(requester int64) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if value, ok := m.store.holderValue(requester); ok {
		rec := m.store.FindByValue(value)
		if rec != nil && rec.Status == StatusAssigned && !rec.hasOTPSinceAssignment() {
			return m.leaseFor(rec), nil
		}
	}

	rec := m.firstAvailable()
	if rec == nil {
		return nil, ErrExhausted
	}
	lease := m.assignLocked(requester, rec)
	if err := m.store.Checkpoint(); err != nil {
		return nil, err
	}
	logger.Info(logger.Background(), "pool", "pool.assign",
		slog.Int64("user_id", requester),
		slog.String("number", lease.Masked),
	)
	return lease, nil
}

// Current returns the requester's active lease, if any.
func (m *Manager) Current(requester int64) (*Lease, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, ok := m.store.holderValue(requester)
	if !ok {
		return nil, false
	}
	rec := m.store.FindByValue(value)
	if rec == nil || rec.Status != StatusAssigned {
		return nil, false
	}
	return m.leaseFor(rec), true
}

// Change releases the requester's current lease and assigns a fresh number.
// The released record goes back to available, or to used when an OTP was
// already delivered on it. The just-released number may be handed back when
// it is the only one free. Returns ErrExhausted when nothing is available.
func (m *Manager) Change(requester int64) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if value, ok := m.store.holderValue(requester); ok {
		if rec := m.store.FindByValue(value); rec != nil && rec.Status == StatusAssigned {
			if rec.hasOTPSinceAssignment() {
				rec.Status = StatusUsed
			} else {
				rec.Status = StatusAvailable
			}
			rec.clearLease()
		}
		m.store.dropHoldersOf(value)
	}

	rec := m.firstAvailable()
	if rec == nil {
		// The release above still has to stick.
		if err := m.store.Checkpoint(); err != nil {
			return nil, err
		}
		return nil, ErrExhausted
	}
	lease := m.assignLocked(requester, rec)
	lease.ReassignCount = m.store.bumpReassign(requester)
	if err := m.store.Checkpoint(); err != nil {
		return nil, err
	}
	logger.Info(logger.Background(), "pool", "pool.change",
		slog.Int64("user_id", requester),
		slog.String("number", lease.Masked),
		slog.Int("count", lease.ReassignCount),
	)
	return lease, nil
}

// Release forces a specific number back to available (or used when forceUsed
// is set), clearing its lease and any index entries pointing at it. Returns
// ErrNotFound for numbers outside the pool.
func (m *Manager) Release(value string, forceUsed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	value = otp.NormalizeNumber(value)
	rec := m.store.FindByValue(value)
	if rec == nil {
		return ErrNotFound
	}
	if forceUsed {
		rec.Status = StatusUsed
	} else {
		rec.Status = StatusAvailable
	}
	rec.clearLease()
	m.store.dropHoldersOf(value)
	if err := m.store.Checkpoint(); err != nil {
		return err
	}
	logger.Info(logger.Background(), "pool", "pool.release",
		slog.String("number", otp.MaskNumber(value)),
		slog.String("pool_status", string(rec.Status)),
	)
	return nil
}

// Block forces a number into the terminal blocked state, clearing any lease.
// Blocking an already blocked number is a no-op. Returns ErrNotFound for
// numbers outside the pool.
func (m *Manager) Block(value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	value = otp.NormalizeNumber(value)
	rec := m.store.FindByValue(value)
	if rec == nil {
		return ErrNotFound
	}
	rec.Status = StatusBlocked
	rec.clearLease()
	m.store.dropHoldersOf(value)
	if err := m.store.Checkpoint(); err != nil {
		return err
	}
	logger.Info(logger.Background(), "pool", "pool.block",
		slog.String("number", otp.MaskNumber(value)),
	)
	return nil
}

// ReclaimExpired returns every assigned number whose lease started ttl or
// longer before now and saw no OTP since assignment back to the pool,
// dropping the holders' index entries. Records with a delivered OTP are
// never reclaimed; that path belongs to delivery, not expiry. The reclaimed
// canonical values are returned.
func (m *Manager) ReclaimExpired(now time.Time, ttl time.Duration) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var reclaimed []string
	for _, rec := range m.store.All() {
		if rec.Status != StatusAssigned || rec.AssignedAt == nil {
			continue
		}
		if rec.hasOTPSinceAssignment() {
			continue
		}
		if now.Sub(*rec.AssignedAt) < ttl {
			continue
		}
		value := rec.Value
		rec.Status = StatusAvailable
		rec.clearLease()
		m.store.dropHoldersOf(value)
		reclaimed = append(reclaimed, value)
	}
	if len(reclaimed) == 0 {
		return nil, nil
	}
	if err := m.store.Checkpoint(); err != nil {
		return nil, err
	}
	return reclaimed, nil
}

// AddNumbers normalizes the raw inputs to canonical digit strings and
// appends the new ones to the pool as available under the named list.
// Empty results and values already present are skipped. Returns the added
// and skipped counts.
func (m *Manager) AddNumbers(list string, raw []string) (added, skipped int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range raw {
		value := otp.NormalizeNumber(r)
		if value == "" {
			skipped++
			continue
		}
		rec := &NumberRecord{Value: value, List: list, Status: StatusAvailable}
		if !m.store.append(rec) {
			skipped++
			continue
		}
		added++
	}
	if added > 0 {
		if err := m.store.Checkpoint(); err != nil {
			return 0, 0, err
		}
	}
	logger.Info(logger.Background(), "pool", "pool.add",
		slog.String("list", list),
		slog.Int("added", added),
		slog.Int("skipped", skipped),
	)
	return added, skipped, nil
}

// RemoveList drops every number imported under the named list and
// invalidates any lease referencing one of them. Returns how many records
// were removed.
func (m *Manager) RemoveList(list string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := m.store.removeList(list)
	for _, rec := range removed {
		m.store.dropHoldersOf(rec.Value)
	}
	if len(removed) == 0 {
		return 0, nil
	}
	if err := m.store.Checkpoint(); err != nil {
		return 0, err
	}
	logger.Info(logger.Background(), "pool", "pool.remove_list",
		slog.String("list", list),
		slog.Int("count", len(removed)),
	)
	return len(removed), nil
}

// RemoveNumber drops a single number from the pool entirely, invalidating
// any lease referencing it. Returns ErrNotFound for unknown values.
func (m *Manager) RemoveNumber(value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	value = otp.NormalizeNumber(value)
	rec := m.store.remove(value)
	if rec == nil {
		return ErrNotFound
	}
	m.store.dropHoldersOf(value)
	return m.store.Checkpoint()
}

// Deliver records an OTP observation against a number: the code is appended
// to the record's history, the lease holder (if any) is captured, and the
// number is retired to used under the KeepUsedLocked policy. Without that
// policy the lease stays intact with the code recorded, so the holder's
// status shows it and a later change retires the number. Returns ErrNotFound
// when the number is outside the managed pool, which is routine for panel
// reports and not fatal.
func (m *Manager) Deliver(value, code, service, source string) (Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value = otp.NormalizeNumber(value)
	rec := m.store.FindByValue(value)
	if rec == nil {
		return Delivery{}, ErrNotFound
	}

	now := m.now().UTC()
	rec.History = append(rec.History, OTPEntry{
		Code:    code,
		At:      now,
		Service: service,
		Source:  source,
	})
	rec.LastOTP = code
	rec.LastOTPAt = &now

	var d Delivery
	if rec.Status == StatusAssigned {
		d.Holder = rec.Holder
		if m.cfg.KeepUsedLocked {
			rec.Status = StatusUsed
			rec.Holder = 0
			rec.AssignedAt = nil
			d.Retired = true
			m.store.dropHoldersOf(value)
		}
	} else if m.cfg.KeepUsedLocked && rec.Status == StatusAvailable {
		// An OTP on an unleased number still burns it.
		rec.Status = StatusUsed
		d.Retired = true
	}

	if err := m.store.Checkpoint(); err != nil {
		return Delivery{}, err
	}
	logger.Info(logger.Background(), "pool", "pool.deliver",
		slog.String("number", otp.MaskNumber(value)),
		slog.String("service", service),
		slog.String("panel", source),
		slog.Int("code_len", len(code)),
		slog.Int64("holder", d.Holder),
	)
	return d, nil
}

// RegisterUser remembers a requester for broadcasts.
func (m *Manager) RegisterUser(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.store.registerKnown(id) {
		return nil
	}
	return m.store.Checkpoint()
}

// KnownUsers lists every requester seen so far, sorted by id.
func (m *Manager) KnownUsers() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.knownUsers()
}

// Stats returns per-status record counts.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Stats{Total: m.store.Len()}
	for _, rec := range m.store.All() {
		switch rec.Status {
		case StatusAvailable:
			st.Available++
		case StatusAssigned:
			st.Assigned++
		case StatusUsed:
			st.Used++
		case StatusBlocked:
			st.Blocked++
		}
	}
	return st
}

// ActiveLeases lists current assignments for the admin dashboard, sorted by
// holder id for stable output.
func (m *Manager) ActiveLeases() []ActiveLease {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ActiveLease
	for _, rec := range m.store.All() {
		if rec.Status != StatusAssigned {
			continue
		}
		out = append(out, ActiveLease{
			Holder: rec.Holder,
			Lease:  *m.leaseFor(rec),
			Status: rec.Status,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Holder < out[j].Holder })
	return out
}

// Lists returns the distinct sub-pool names present in the store.
func (m *Manager) Lists() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{})
	var names []string
	for _, rec := range m.store.All() {
		if rec.List == "" {
			continue
		}
		if _, ok := seen[rec.List]; ok {
			continue
		}
		seen[rec.List] = struct{}{}
		names = append(names, rec.List)
	}
	sort.Strings(names)
	return names
}

// TTL exposes the configured lease TTL for status messages.
func (m *Manager) TTL() time.Duration { return m.cfg.TTL }
