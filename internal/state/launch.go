package state

import "time"

// LaunchStatus is the lifecycle phase derived from the graduated/refund flags.
type LaunchStatus int32

const (
	LaunchStatusActive LaunchStatus = iota
	LaunchStatusGraduated
	LaunchStatusRefunding
)

func (s LaunchStatus) String() string {
	switch s {
	case LaunchStatusActive:
		return "active"
	case LaunchStatusGraduated:
		return "graduated"
	case LaunchStatusRefunding:
		return "refunding"
	default:
		return "unknown"
	}
}

// CanTransitionTo validates lifecycle transitions. Graduated and refunding are
// terminal and mutually exclusive.
func (s LaunchStatus) CanTransitionTo(next LaunchStatus) bool {
	validTransitions := map[LaunchStatus][]LaunchStatus{
		LaunchStatusActive: {
			LaunchStatusGraduated,
			LaunchStatusRefunding,
		},
	}

	for _, allowed := range validTransitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

// Launch is the aggregate root for one token sale.
type Launch struct {
	Address string
	Creator string

	TotalShares  uint64 // Shares issued, including the creator's locked seed
	TotalSol     uint64 // Lamports of basis held by the curve
	MarketCapUSD uint64 // Whole USD, as last reported by the program

	CreatorSeedShares    uint64
	CreatorSeedBasis     uint64
	CreatorClaimedShares uint64 // Seed shares released by vesting so far

	Graduated               bool
	RefundMode              bool
	TotalSharesAtGraduation uint64 // Frozen at graduation

	CreatedAt         time.Time
	GraduatedAt       *time.Time
	RefundEnabledAt   *time.Time
	ReadyToGraduateAt *time.Time

	LastSlot      uint64 // Highest slot applied for this launch
	LastAuditHash []byte // Head of the per-launch audit hash chain
	Version       int64  // Incremented on every upsert
}

// NewLaunch returns an active launch with zero totals.
func NewLaunch(address, creator string, createdAt time.Time) *Launch {
	return &Launch{
		Address:   address,
		Creator:   creator,
		CreatedAt: createdAt.UTC(),
	}
}

// Status derives the lifecycle phase.
func (l *Launch) Status() LaunchStatus {
	switch {
	case l.Graduated:
		return LaunchStatusGraduated
	case l.RefundMode:
		return LaunchStatusRefunding
	default:
		return LaunchStatusActive
	}
}

// IsExpired reports whether the launch window has closed without graduation.
func (l *Launch) IsExpired(now time.Time) bool {
	return !now.Before(l.CreatedAt.Add(LaunchDuration))
}

// VestingStart is the graduation time; creator seed shares vest from there.
func (l *Launch) VestingStart() (time.Time, bool) {
	if l.GraduatedAt == nil {
		return time.Time{}, false
	}
	return *l.GraduatedAt, true
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (l *Launch) Clone() *Launch {
	if l == nil {
		return nil
	}
	c := *l
	c.GraduatedAt = cloneTime(l.GraduatedAt)
	c.RefundEnabledAt = cloneTime(l.RefundEnabledAt)
	c.ReadyToGraduateAt = cloneTime(l.ReadyToGraduateAt)
	if l.LastAuditHash != nil {
		c.LastAuditHash = append([]byte(nil), l.LastAuditHash...)
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
