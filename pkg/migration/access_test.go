package migration

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arthur-debert/homemigrate/pkg/errors"
	"github.com/arthur-debert/homemigrate/pkg/testutil"
)

func TestProtectedPaths(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	checker := NewProtectedPaths(env.Resolver, ".ssh/id_*", ".gnupg")

	tests := []struct {
		name      string
		path      string
		protected bool
	}{
		{"matching file", env.Path(".ssh/id_rsa"), true},
		{"relative path", ".ssh/id_ed25519", true},
		{"below protected directory", env.Path(".gnupg/private-keys-v1.d/key"), true},
		{"protected directory itself", env.Path(".gnupg"), true},
		{"sibling", env.Path(".ssh/config"), false},
		{"unrelated", env.Path("etc/a.cfg"), false},
		{"outside home", filepath.Join(env.Outside, ".gnupg"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			readErr := checker.CheckRead(tt.path)
			writeErr := checker.CheckWrite(tt.path)
			if tt.protected {
				assert.True(t, errors.IsErrorCode(readErr, errors.ErrPermission))
				assert.True(t, errors.IsErrorCode(writeErr, errors.ErrPermission))
			} else {
				assert.NoError(t, readErr)
				assert.NoError(t, writeErr)
			}
		})
	}
}

func TestAllowAll(t *testing.T) {
	assert.NoError(t, AllowAll{}.CheckRead("/anything"))
	assert.NoError(t, AllowAll{}.CheckWrite("/anything"))
}
