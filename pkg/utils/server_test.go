package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstanceID_Override(t *testing.T) {
	assert.Equal(t, "node-a", InstanceID("node-a", t.TempDir()))
}

func TestInstanceID_ReadsPersistedFile(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, ".instance_id"), []byte(" saved-id \n"), 0644))
	assert.Equal(t, "saved-id", InstanceID("", dir))
}
