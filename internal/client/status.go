package client

// Status is the connection state of a [Client].
type Status int

const (
	// StatusIdle means no connection is open. Queued packets trigger a
	// reconnect from the next pump.
	StatusIdle Status = iota

	// StatusInitializing means a reconnect has been requested.
	StatusInitializing

	// StatusInitialized means the client is ready to start a session.
	StatusInitialized

	// StatusConnecting means the transport is being dialled.
	StatusConnecting

	// StatusConnected means the scene is loaded and packets flow.
	StatusConnected

	// StatusLoadingSceneCompleted is reported by hosts that load scenes in a
	// separate step.
	StatusLoadingSceneCompleted

	// StatusLostConnect means the transport dropped unexpectedly.
	StatusLostConnect

	// StatusInitFailed means the session could not be started.
	StatusInitFailed

	// StatusError means an error was reported. The client returns to
	// [StatusIdle] once the back-off period has elapsed.
	StatusError
)

var statusNames = [...]string{
	"Idle",
	"Initializing",
	"Initialized",
	"Connecting",
	"Connected",
	"LoadingSceneCompleted",
	"LostConnect",
	"InitFailed",
	"Error",
}

// String returns the human-readable name of the status.
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "Unknown"
	}
	return statusNames[s]
}
