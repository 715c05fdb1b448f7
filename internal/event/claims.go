package event

// TokensClaimed records a holder converting shares into tokens after graduation.
// TokensAmount is the program's figure, if reported; the ledger computes its own.
type TokensClaimed struct {
	Meta
	User         string
	TokensAmount uint64
}

func (t *TokensClaimed) EventType() EventType {
	return EventTypeTokensClaimed
}

func (t *TokensClaimed) Validate() error {
	return validateUserEvent(t.Meta, EventTypeTokensClaimed, t.User)
}

// RefundClaimed records a holder withdrawing their full basis in refund mode.
type RefundClaimed struct {
	Meta
	User      string
	SolAmount uint64
}

func (r *RefundClaimed) EventType() EventType {
	return EventTypeRefundClaimed
}

func (r *RefundClaimed) Validate() error {
	return validateUserEvent(r.Meta, EventTypeRefundClaimed, r.User)
}

// VestingClaimed records the creator unlocking vested seed shares.
type VestingClaimed struct {
	Meta
	User         string
	SharesAmount uint64
}

func (v *VestingClaimed) EventType() EventType {
	return EventTypeVestingClaimed
}

func (v *VestingClaimed) Validate() error {
	return validateUserEvent(v.Meta, EventTypeVestingClaimed, v.User)
}

func validateUserEvent(m Meta, et EventType, user string) error {
	if err := m.validate(et); err != nil {
		return err
	}
	if err := ValidateAddress(user); err != nil {
		return &ValidationError{Type: et, Field: "userAddress", Reason: err.Error()}
	}
	return nil
}
