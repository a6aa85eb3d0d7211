package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZeroValueIsDryRun(t *testing.T) {
	var m Mode
	assert.Equal(t, DryRun, m)
	assert.Equal(t, "dryrun", m.String())
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, Apply, ParseMode("apply"))
	assert.Equal(t, DryRun, ParseMode("dryrun"))
	assert.Equal(t, DryRun, ParseMode(""))
	assert.Equal(t, DryRun, ParseMode("APPLY"))
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name     string
		mode     Mode
		mutating bool
		readOnly bool
		allowed  bool
	}{
		{"read in dryrun", DryRun, false, false, true},
		{"write in dryrun", DryRun, true, false, false},
		{"write in apply", Apply, true, false, true},
		{"read-only role ignores apply", Apply, true, true, false},
		{"read-only role may read", Apply, false, true, true},
		{"write in dryrun read-only", DryRun, true, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewGate(tt.mode)
			decision := gate.Authorize("fs_write", tt.mutating, tt.readOnly)
			assert.Equal(t, tt.allowed, decision.Allowed)
			if !decision.Allowed {
				assert.NotEmpty(t, decision.Reason)
			}
		})
	}
}
