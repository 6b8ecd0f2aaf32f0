package panel

import "fmt"

// Phase is the lifecycle position of a panel operation. Error text is only
// meaningful in PhaseFailed, so "in flight and failed" cannot be expressed.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmitting
	PhaseSucceeded
	PhaseFailed
)

var phaseNames = [...]string{
	PhaseIdle:       "idle",
	PhaseSubmitting: "submitting",
	PhaseSucceeded:  "succeeded",
	PhaseFailed:     "failed",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}
