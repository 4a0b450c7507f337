package session

import "time"

// SandboxInfo is the persisted intent and last known state of a session's
// sandbox container. Optional fields are pointers so absence survives a
// save/load round trip.
type SandboxInfo struct {
	Enabled       bool       `json:"enabled"`
	ContainerID   *string    `json:"container_id,omitempty"`
	Image         *string    `json:"image,omitempty"`
	ContainerName string     `json:"container_name"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	YoloMode      *bool      `json:"yolo_mode,omitempty"`
}

// SandboxState is the tagged view of a SandboxInfo.
type SandboxState int

const (
	// SandboxAbsent: the session was never sandboxed.
	SandboxAbsent SandboxState = iota
	// SandboxCreating: a sandbox was requested but no container id is recorded,
	// either because creation is in flight or because it failed.
	SandboxCreating
	// SandboxActive: a container id is recorded.
	SandboxActive
	// SandboxRemoved: the session was reverted to host execution.
	SandboxRemoved
)

func (s SandboxState) String() string {
	switch s {
	case SandboxAbsent:
		return "absent"
	case SandboxCreating:
		return "creating"
	case SandboxActive:
		return "active"
	case SandboxRemoved:
		return "removed"
	}
	return "unknown"
}

// State derives the tagged state. It is safe to call on a nil record.
func (s *SandboxInfo) State() SandboxState {
	switch {
	case s == nil:
		return SandboxAbsent
	case !s.Enabled:
		return SandboxRemoved
	case s.ContainerID == nil || *s.ContainerID == "":
		return SandboxCreating
	default:
		return SandboxActive
	}
}

// ID returns the recorded container id, or "".
func (s *SandboxInfo) ID() string {
	if s == nil || s.ContainerID == nil {
		return ""
	}
	return *s.ContainerID
}

// Activate records a successfully created container.
func (s *SandboxInfo) Activate(containerID string, at time.Time) {
	s.Enabled = true
	s.ContainerID = &containerID
	s.CreatedAt = &at
}

// Forget drops the container id and creation time, keeping the intent. Used
// when the container no longer exists.
func (s *SandboxInfo) Forget() {
	s.ContainerID = nil
	s.CreatedAt = nil
}

// Disable marks the sandbox as removed. Only call once the container is gone.
func (s *SandboxInfo) Disable() {
	s.Enabled = false
	s.Forget()
}
