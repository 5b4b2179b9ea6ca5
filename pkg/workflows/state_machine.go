package workflows

// State is one status in an entity lifecycle.
type State string

// StateMachine enforces status transitions and the roles allowed to
// perform each edge.
type StateMachine struct {
	entity      string
	transitions map[State]map[State][]string
	terminal    map[State]bool
}

// NewStateMachine creates an empty machine for the named entity.
func NewStateMachine(entity string) *StateMachine {
	return &StateMachine{
		entity:      entity,
		transitions: make(map[State]map[State][]string),
		terminal:    make(map[State]bool),
	}
}

// Allow registers a transition edge and the roles permitted to take it.
func (sm *StateMachine) Allow(from, to State, roles ...string) *StateMachine {
	if sm.transitions[from] == nil {
		sm.transitions[from] = make(map[State][]string)
	}
	sm.transitions[from][to] = roles
	return sm
}

// MarkTerminal flags states that admit no further transitions.
func (sm *StateMachine) MarkTerminal(states ...State) *StateMachine {
	for _, s := range states {
		sm.terminal[s] = true
	}
	return sm
}

// CanTransition checks if a status transition is allowed.
func (sm *StateMachine) CanTransition(from, to State) bool {
	allowed, exists := sm.transitions[from]
	if !exists {
		return false
	}
	_, ok := allowed[to]
	return ok
}

// AllowedTransitions returns the allowed next statuses for a given status.
func (sm *StateMachine) AllowedTransitions(from State) []State {
	allowed, exists := sm.transitions[from]
	if !exists {
		return []State{}
	}
	states := make([]State, 0, len(allowed))
	for to := range allowed {
		states = append(states, to)
	}
	return states
}

// IsTerminal reports whether the state admits no further transitions.
func (sm *StateMachine) IsTerminal(s State) bool {
	return sm.terminal[s]
}

// Authorize validates the edge and the actor's roles against it. It returns
// InvalidTransitionError for an illegal edge and ForbiddenError when none of
// the actor's roles are permitted on it.
func (sm *StateMachine) Authorize(from, to State, actorRoles []string) error {
	allowed, exists := sm.transitions[from]
	if !exists {
		return &InvalidTransitionError{Entity: sm.entity, Current: string(from), Attempted: string(to)}
	}
	roles, ok := allowed[to]
	if !ok {
		return &InvalidTransitionError{Entity: sm.entity, Current: string(from), Attempted: string(to)}
	}
	for _, required := range roles {
		for _, have := range actorRoles {
			if required == have {
				return nil
			}
		}
	}
	return &ForbiddenError{
		Action:   sm.entity + " transition " + string(from) + " -> " + string(to),
		Required: rolesList(roles),
	}
}

func rolesList(roles []string) string {
	out := ""
	for i, r := range roles {
		if i > 0 {
			out += " or "
		}
		out += r
	}
	return out
}
