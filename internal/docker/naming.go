package docker

// NamePrefix is prepended to every sandbox container name.
const NamePrefix = "aoe-sandbox-"

// nameIDLength is how much of the session id ends up in the container name.
const nameIDLength = 8

// GenerateName derives the container name for a session. Ids longer than eight
// characters are truncated; shorter ones are used as they are.
func GenerateName(sessionID string) string {
	id := []rune(sessionID)
	if len(id) > nameIDLength {
		id = id[:nameIDLength]
	}
	return NamePrefix + string(id)
}
