// Package sequence issues delivery-order identifiers.
//
// Sequences are Sonyflake IDs: time-ordered and strictly increasing within a
// process, so any two assignments for the same user preserve arrival order,
// and the ordering survives restarts because the high bits are clock-derived.
// Replay never calls Next; re-injected messages carry their original sequence.
package sequence

import (
	"fmt"

	"github.com/sony/sonyflake"
)

type Sequencer struct {
	sf *sonyflake.Sonyflake
}

// New builds a Sequencer with a fixed machine ID. Distinct nodes writing into
// the same pending store must be configured with distinct IDs.
func New(machineID uint16) (*Sequencer, error) {
	sf := sonyflake.NewSonyflake(sonyflake.Settings{
		MachineID: func() (uint16, error) { return machineID, nil },
	})
	if sf == nil {
		return nil, fmt.Errorf("sequence: sonyflake init failed for machine %d", machineID)
	}
	return &Sequencer{sf: sf}, nil
}

// Next returns the next sequence value. IDs from one Sequencer are strictly
// increasing.
func (s *Sequencer) Next() (uint64, error) {
	id, err := s.sf.NextID()
	if err != nil {
		return 0, fmt.Errorf("sequence: %w", err)
	}
	return id, nil
}
