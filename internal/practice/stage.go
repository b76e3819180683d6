package practice

// Stage is a flow's position in the practice state machine.
type Stage string

const (
	StageSelecting Stage = "selecting_task"
	StageAwaiting  Stage = "awaiting_response"
	StageScoring   Stage = "scoring"
	StageCompleted Stage = "completed"
	StageCancelled Stage = "cancelled"
)

var transitions = map[Stage][]Stage{
	StageSelecting: {StageAwaiting, StageCancelled},
	StageAwaiting:  {StageScoring, StageCancelled},
	StageScoring:   {StageAwaiting, StageCompleted, StageCancelled},
}

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageCancelled
}

// CanTransition reports whether the machine allows s -> to.
func (s Stage) CanTransition(to Stage) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Stage) valid() bool {
	switch s {
	case StageSelecting, StageAwaiting, StageScoring, StageCompleted, StageCancelled:
		return true
	}
	return false
}
