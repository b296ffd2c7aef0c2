package persist

// Status is the save-status signal exposed to the host, suitable for
// rendering as a UI indicator.
type Status int

const (
	// StatusIdle means nothing is waiting to be saved.
	StatusIdle Status = iota

	// StatusPending means diffs are accumulated and the debounce window is
	// running.
	StatusPending

	// StatusSaving means a batch is in flight to the store.
	StatusSaving

	// StatusError means the last commit failed; its diffs are retained and
	// will ride along with the next flush.
	StatusError
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSaving:
		return "saving"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}
