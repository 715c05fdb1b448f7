package event

// Graduate marks the launch graduated. TotalShares is the program's snapshot, if reported.
type Graduate struct {
	Meta
	TotalShares uint64
}

func (g *Graduate) EventType() EventType {
	return EventTypeGraduate
}

func (g *Graduate) Validate() error {
	return g.Meta.validate(EventTypeGraduate)
}

// RefundEnabled moves an expired launch into refund mode.
type RefundEnabled struct {
	Meta
}

func (r *RefundEnabled) EventType() EventType {
	return EventTypeRefundEnabled
}

func (r *RefundEnabled) Validate() error {
	return r.Meta.validate(EventTypeRefundEnabled)
}
