package utils

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
)

const instancePrefix = "autopost-"

// InstanceID returns a stable identifier for this process host, used as the
// owner recorded on store-backed locks.
// Order: explicit override, id file under storagePath, hostname, random (persisted).
func InstanceID(override, storagePath string) string {
	if override != "" {
		return override
	}

	idFile := filepath.Join(storagePath, ".instance_id")
	if data, err := os.ReadFile(idFile); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}

	hostname, err := os.Hostname()
	if err == nil && hostname != "" && hostname != "localhost" {
		cleanHost := strings.Map(func(r rune) rune {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
				return r
			}
			return -1
		}, hostname)
		if cleanHost != "" {
			return instancePrefix + cleanHost
		}
	}

	randomPart := make([]byte, 4)
	_, _ = rand.Read(randomPart)
	newID := instancePrefix + hex.EncodeToString(randomPart)

	if storagePath != "" {
		_ = os.MkdirAll(storagePath, 0755)
		_ = os.WriteFile(idFile, []byte(newID), 0644)
	}
	return newID
}
