// Package offlineagent provides the version information for offline-agent.
package offlineagent

// Version is the current version of offline-agent.
const Version = "0.1.0"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}
