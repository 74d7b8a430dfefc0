package registry

//go:generate go run github.com/dmarkham/enumer -type=State -transform=snake -output=state_enumer.go -json -text

// State is a plugin's position in the lifecycle. Transitions move
// forward only: Discovered → Initialized → Running → Stopped, with
// SkippedElevation and FailedInit as terminal branches off Discovered.
type State int

const (
	// StateDiscovered means the plugin is known but not yet initialized.
	StateDiscovered State = iota

	// StateInitialized means Initialize succeeded; Start has not run.
	StateInitialized

	// StateRunning means the plugin is started.
	StateRunning

	// StateStopped means the plugin was stopped cleanly.
	StateStopped

	// StateSkippedElevation means the plugin requires elevation the
	// host does not have, so it was never initialized.
	StateSkippedElevation

	// StateFailedInit means Initialize returned an error.
	StateFailedInit
)
