package tuning

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeFile(t, "tuning.yaml", `
grid:
  width: 10
sim:
  ticks_per_second: 2.5
observer:
  command_burst: 5
catalog_path: configs/recipes.json
`)
	tu, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, tu.Grid.Width)
	assert.Equal(t, 6, tu.Grid.Height)
	assert.Equal(t, 2.5, tu.Sim.TicksPerSecond)
	assert.Equal(t, 20, tu.Sim.FrameRateHz)
	assert.Equal(t, 5, tu.Observer.CommandBurst)
	assert.Equal(t, 10.0, tu.Observer.CommandRate)
	assert.Equal(t, "configs/recipes.json", tu.CatalogPath)

	cfg := tu.EngineConfig()
	assert.Equal(t, 10, cfg.Width)
	assert.Equal(t, 2.5, cfg.TicksPerSecond)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "tuning.yaml", "grid:\n  width: 10\n")
	t.Setenv("FACTORY_GRID_WIDTH", "12")
	t.Setenv("FACTORY_SIM_FRAME_RATE_HZ", "30")

	tu, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, tu.Grid.Width)
	assert.Equal(t, 30, tu.Sim.FrameRateHz)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_RejectsOutOfRange(t *testing.T) {
	path := writeFile(t, "tuning.yaml", "grid:\n  width: -3\nsim:\n  frame_rate_hz: 1000\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Grid.Width")
	assert.Contains(t, err.Error(), "Sim.FrameRateHz")
}

func TestDefault_Valid(t *testing.T) {
	d := Default()
	require.NoError(t, Validate(d))
	assert.Equal(t, 30, int(d.AutosaveInterval().Seconds()))
	assert.Equal(t, 20, d.Persistence.KeepSnapshots)
}
