package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Get is a process-wide singleton (sync.Once), so these tests exercise
// the one shared instance rather than constructing fresh loggers per case.

func TestGet_ReturnsNonNilLogger(t *testing.T) {
	l := Get(t.TempDir())
	assert.NotNil(t, l)
}

func TestGet_IsASingletonAcrossCalls(t *testing.T) {
	a := Get(t.TempDir())
	b := Get(t.TempDir())
	assert.Same(t, a, b)
}

func TestLogger_WriteMethodsDoNotPanic(t *testing.T) {
	l := Get(t.TempDir())
	assert.NotPanics(t, func() {
		l.Infof("session %q started", "abc")
		l.Warnf("mcp: %v", assert.AnError)
		l.Errorf("failed: %v", assert.AnError)
		l.Debugf("phase %d of %d", 1, 3)
	})
}
