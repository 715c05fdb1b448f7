// internal/event/create.go
package event

// Create is a LaunchCreated event. SeedLamports is the creator's gross seed;
// SeedShares is optional and derived from the curve when zero.
type Create struct {
	Meta
	Creator      string
	Name         string
	Symbol       string
	SeedLamports uint64
	SeedShares   uint64
}

func (c *Create) EventType() EventType {
	return EventTypeCreate
}

func (c *Create) Validate() error {
	if err := c.Meta.validate(EventTypeCreate); err != nil {
		return err
	}
	if err := ValidateAddress(c.Creator); err != nil {
		return &ValidationError{Type: EventTypeCreate, Field: "userAddress", Reason: err.Error()}
	}
	if c.SeedLamports == 0 {
		return &ValidationError{Type: EventTypeCreate, Field: "solAmount", Reason: "seed must be positive"}
	}
	return nil
}
