package term

import (
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"

	"github.com/backmassage/condor/internal/config"
)

func TestConfigure(t *testing.T) {
	t.Cleanup(func() { Configure(config.ColorNever) })

	Configure(config.ColorAlways)
	assert.True(t, Enabled())
	assert.Equal(t, hclog.ForceColor, HCLogColor())
	assert.Equal(t, Red+"x"+NC, Paint(Red, "x"))

	Configure(config.ColorNever)
	assert.False(t, Enabled())
	assert.Equal(t, hclog.ColorOff, HCLogColor())
	assert.Equal(t, "x", Paint(Red, "x"))
}

func TestResolveAutoHonoursNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.False(t, resolve(config.ColorAuto))
}
