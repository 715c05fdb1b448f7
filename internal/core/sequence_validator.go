package core

import (
	"fmt"

	"LaunchLedger/internal/event"
	"LaunchLedger/internal/observability"
	"LaunchLedger/internal/state"
)

// SlotValidator enforces per-launch slot ordering. The high-water mark lives
// on the launch record, so it survives restarts and is checked inside the
// launch transaction.
type SlotValidator struct {
	strict  bool
	metrics *observability.Metrics
}

func NewSlotValidator(strict bool, metrics *observability.Metrics) *SlotValidator {
	return &SlotValidator{strict: strict, metrics: metrics}
}

// Validate rejects an event whose slot is below the launch's last applied
// slot. Equal slots are normal: one transaction emits several events.
func (sv *SlotValidator) Validate(launch *state.Launch, evt event.Event) error {
	if !sv.strict || launch == nil {
		return nil
	}
	if evt.Slot() < launch.LastSlot {
		if sv.metrics != nil {
			sv.metrics.EventOutOfOrder.WithLabelValues(evt.EventType().String()).Inc()
		}
		return fmt.Errorf("%w: launch=%s last=%d got=%d",
			ErrOutOfOrder, launch.Address, launch.LastSlot, evt.Slot())
	}
	return nil
}

// Advance records slot as applied for launch.
func (sv *SlotValidator) Advance(launch *state.Launch, slot uint64) {
	if slot > launch.LastSlot {
		launch.LastSlot = slot
	}
	if sv.metrics != nil {
		sv.metrics.IngestLastSlot.WithLabelValues(launch.Address).Set(float64(launch.LastSlot))
	}
}
