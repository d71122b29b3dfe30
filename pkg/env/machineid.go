// Package env identifies the machine the firmware runs on.
package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
)

// AppID scopes the hashed machine ID to this application.
const AppID = "compass"

// DeviceID returns a stable ID for this machine, usable in MQTT topics.
// It is the machine ID hashed with AppID, shortened to 12 hex digits.
// The host name is used when no machine ID is available.
func DeviceID() string {
	if id, err := machineid.ProtectedID(AppID); err == nil && len(id) >= 12 {
		return id[:12]
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "unknown"
}
