package call

// State - состояние звонка на клиенте
type State int

const (
	StateIdle State = iota
	StateAcquiringMedia
	StateJoining
	StateAwaitingPeer
	StateNegotiating
	StateConnected
	StateEnded
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:           "idle",
	StateAcquiringMedia: "acquiring_media",
	StateJoining:        "joining",
	StateAwaitingPeer:   "awaiting_peer",
	StateNegotiating:    "negotiating",
	StateConnected:      "connected",
	StateEnded:          "ended",
	StateFailed:         "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return "unknown"
}

// Terminal - Ended и Failed, после них события игнорируются
func (s State) Terminal() bool {
	return s == StateEnded || s == StateFailed
}

// joined - комната уже знает об этой сессии
func (s State) joined() bool {
	return s >= StateJoining && !s.Terminal()
}
