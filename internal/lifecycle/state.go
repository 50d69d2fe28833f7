package lifecycle

// State 是生命周期状态机的状态。
type State string

const (
	StateIdle       State = "idle"
	StateInstalling State = "installing"
	StateWaiting    State = "waiting"
	StateActivating State = "activating"
	StateActivated  State = "activated"
)

// Status 是供诊断端展示的只读快照。
type Status struct {
	State   State       `json:"state"`
	Active  *Generation `json:"active,omitempty"`
	Waiting *Generation `json:"waiting,omitempty"`
}
