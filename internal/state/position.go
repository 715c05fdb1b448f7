package state

import "time"

// PositionKey identifies a position: one per launch and user.
type PositionKey struct {
	Launch string
	User   string
}

// Position is a user's holding in one launch.
type Position struct {
	Launch string
	User   string

	Shares              uint64 // Tradable shares
	SolBasis            uint64 // Lamports contributed; backs refund rights
	LockedShares        uint64 // Creator seed still vesting; not sellable
	VestedSharesClaimed uint64

	HasClaimedTokens bool
	HasClaimedRefund bool

	FirstBuyAt    time.Time
	LastUpdatedAt time.Time
	Version       int64
}

// NewPosition returns an empty position opened at ts.
func NewPosition(launch, user string, ts time.Time) *Position {
	return &Position{
		Launch:        launch,
		User:          user,
		FirstBuyAt:    ts.UTC(),
		LastUpdatedAt: ts.UTC(),
	}
}

// Key returns the position's identity.
func (p *Position) Key() PositionKey {
	return PositionKey{Launch: p.Launch, User: p.User}
}

// Holding is shares plus locked shares, the quantity graduation gates count.
func (p *Position) Holding() uint64 {
	return p.Shares + p.LockedShares
}

// IsActive reports whether the position counts as a holder.
func (p *Position) IsActive() bool {
	return p.Shares > 0 || p.LockedShares > 0
}

// IsClosed reports whether both shares and basis are gone.
func (p *Position) IsClosed() bool {
	return p.Shares == 0 && p.LockedShares == 0 && p.SolBasis == 0
}

// Clone returns a copy.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
