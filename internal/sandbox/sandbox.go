package sandbox

// Status is the live state of a session's sandbox container, as reported by
// the runtime.
type Status string

const (
	// StatusHost: the session runs on the host.
	StatusHost    Status = "host"
	StatusAbsent  Status = "absent"
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)
