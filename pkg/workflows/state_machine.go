package workflows

// StateMachine enforces credit lot lifecycle transitions
type StateMachine struct {
	allowedTransitions map[string][]string
}

// NewCreditLifecycle returns the state machine for a credit lot: minted lots
// may trade any number of times, retirement is terminal.
func NewCreditLifecycle() *StateMachine {
	return &StateMachine{
		allowedTransitions: map[string][]string{
			"MINTED":  {"TRADED", "RETIRED"},
			"TRADED":  {"TRADED", "RETIRED"},
			"RETIRED": {},
		},
	}
}

// CanTransition checks if a status transition is allowed
func (sm *StateMachine) CanTransition(from, to string) bool {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	for _, allowedTo := range allowed {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// GetAllowedTransitions returns the allowed next statuses for a given status
func (sm *StateMachine) GetAllowedTransitions(from string) []string {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []string{}
	}
	return allowed
}