package devices

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/KevinKickass/OpenRigCore/internal/hw"
	"github.com/KevinKickass/OpenRigCore/internal/timer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testProfile = `
profile:
  name: bench
  version: "1"
coupler:
  unit_id: 1
outputs:
  - { name: clamp, coil: 0 }
  - { name: knife, coil: 1 }
  - { name: lamp, coil: 2, safe: true }
gangs:
  - { name: tools, members: [clamp, knife] }
inputs:
  - { name: clamp_closed, address: 0 }
  - { name: guard, address: 1, invert: true }
analog:
  - { name: force, register: 0, scale: 2.5, offset: -10 }
simulation:
  - { input: clamp_closed, follows: clamp, delay: 200ms }
  - { input: force, follows: knife, raw: 40 }
  - { input: guard, initial: true }
`

func writeProfile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoaderFindsBareNameInSearchPath(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "bench.yaml", testProfile)

	loader, err := NewProfileLoader([]string{dir})
	require.NoError(t, err)

	p, err := loader.Load("bench")
	require.NoError(t, err)
	assert.Equal(t, "bench", p.Profile.Name)
	assert.Len(t, p.Outputs, 3)
	assert.Equal(t, 200*time.Millisecond, p.Simulation[0].Delay)

	coils, inputs, registers := p.ImageSize()
	assert.Equal(t, 3, coils)
	assert.Equal(t, 2, inputs)
	assert.Equal(t, 1, registers)

	again, err := loader.Load("bench")
	require.NoError(t, err)
	assert.Same(t, p, again)

	loader.ClearCache()
	fresh, err := loader.Load("bench")
	require.NoError(t, err)
	assert.NotSame(t, p, fresh)
}

func TestLoaderAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "bench.yml", testProfile)

	loader, err := NewProfileLoader(nil)
	require.NoError(t, err)

	_, err = loader.Load(filepath.Join(dir, "bench.yml"))
	require.NoError(t, err)

	_, err = loader.Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestShippedProfileIsValid(t *testing.T) {
	loader, err := NewProfileLoader([]string{"../../configs"})
	require.NoError(t, err)

	p, err := loader.Load("strapping-rig")
	require.NoError(t, err)
	assert.Equal(t, "strapping-rig", p.Profile.Name)
}

func TestValidatorRejectsSchemaViolations(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	tests := map[string]string{
		"missing outputs": "profile: {name: a, version: '1'}\ncoupler: {unit_id: 1}\ninputs: []\n",
		"bad name":        "profile: {name: a, version: '1'}\ncoupler: {unit_id: 1}\noutputs: [{name: Clamp, coil: 0}]\ninputs: []\n",
		"coil range":      "profile: {name: a, version: '1'}\ncoupler: {unit_id: 1}\noutputs: [{name: clamp, coil: 5000}]\ninputs: []\n",
		"bad duration":    "profile: {name: a, version: '1'}\ncoupler: {unit_id: 1}\noutputs: []\ninputs: [{name: x, address: 0}]\nsimulation: [{input: x, delay: soon}]\n",
		"unknown field":   "profile: {name: a, version: '1'}\ncoupler: {unit_id: 1}\noutputs: [{name: clamp, coil: 0, colour: red}]\ninputs: []\n",
		"not yaml":        "outputs: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, v.ValidateYAML([]byte(doc)))
		})
	}

	assert.NoError(t, v.ValidateYAML([]byte(testProfile)))
}

func TestParseRejectsBrokenReferences(t *testing.T) {
	loader, err := NewProfileLoader(nil)
	require.NoError(t, err)

	base := "profile: {name: a, version: '1'}\ncoupler: {unit_id: 1}\n"
	tests := map[string]string{
		"duplicate name": base + "outputs: [{name: clamp, coil: 0}]\ninputs: [{name: clamp, address: 0}]\n",
		"duplicate coil": base + "outputs: [{name: clamp, coil: 0}, {name: knife, coil: 0}]\ninputs: []\n",
		"gang member":    base + "outputs: [{name: clamp, coil: 0}]\ninputs: [{name: s, address: 0}]\ngangs: [{name: g, members: [s]}]\n",
		"sim input":      base + "outputs: [{name: clamp, coil: 0}]\ninputs: []\nsimulation: [{input: clamp}]\n",
		"sim follows":    base + "outputs: []\ninputs: [{name: s, address: 0}]\nsimulation: [{input: s, follows: nothing}]\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := loader.Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestBuildBankAndSimulator(t *testing.T) {
	loader, err := NewProfileLoader(nil)
	require.NoError(t, err)
	p, err := loader.Parse([]byte(testProfile))
	require.NoError(t, err)

	image := hw.NewMemoryImage()
	bank, err := BuildBank(p, MemoryBinding{Image: image})
	require.NoError(t, err)

	clock := timer.NewFakeClock()
	sim, err := NewSimulator(p, bank, image, clock)
	require.NoError(t, err)

	assert.True(t, image.Output("lamp"), "safe level is written at construction")

	tools, err := bank.Actuator("tools")
	require.NoError(t, err)
	clampClosed, err := bank.Sensor("clamp_closed")
	require.NoError(t, err)
	guard, err := bank.Sensor("guard")
	require.NoError(t, err)
	force, err := bank.Analog("force")
	require.NoError(t, err)

	bank.SampleInputs()
	assert.False(t, guard.Level(), "inverted input held high reads low")
	assert.Equal(t, -10.0, force.Value())

	tools.Set(true)
	sim.Service()
	bank.SampleInputs()
	assert.False(t, clampClosed.Level())
	assert.Equal(t, 90.0, force.Value(), "zero-delay rule follows at once")

	clock.Advance(200 * time.Millisecond)
	sim.Service()
	bank.SampleInputs()
	assert.True(t, clampClosed.Level())
	assert.True(t, clampClosed.RisingEdge())

	bank.SafeShutdown()
	assert.False(t, image.Output("clamp"))
	assert.True(t, image.Output("lamp"))
}

func TestManagerOpenMemoryBackend(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "bench.yaml", testProfile)

	m, err := NewManager([]string{dir}, zap.NewNop())
	require.NoError(t, err)

	bank, err := m.Open(Options{Backend: BackendMemory, Profile: "bench"}, timer.NewFakeClock())
	require.NoError(t, err)
	assert.Same(t, bank, m.Bank())
	assert.NotNil(t, m.Memory())
	assert.NotNil(t, m.Simulator())
	assert.False(t, m.Stale())

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.StopAll(context.Background()))
}

func TestManagerOpenErrors(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "bench.yaml", testProfile)

	m, err := NewManager([]string{dir}, zap.NewNop())
	require.NoError(t, err)

	_, err = m.Open(Options{Backend: "canbus", Profile: "bench"}, timer.NewFakeClock())
	assert.Error(t, err)

	_, err = m.Open(Options{Backend: BackendMemory, Profile: "nope"}, timer.NewFakeClock())
	assert.Error(t, err)
}

func TestManagerModbusBackendBuildsImage(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "bench.yaml", testProfile)

	m, err := NewManager([]string{dir}, zap.NewNop())
	require.NoError(t, err)

	_, err = m.Open(Options{
		Backend:      BackendModbus,
		Profile:      "bench",
		Address:      "127.0.0.1:1",
		Timeout:      50 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	}, timer.SystemClock{})
	require.NoError(t, err)
	assert.Nil(t, m.Memory())
	assert.True(t, m.Stale(), "image is stale until the first exchange")
}
