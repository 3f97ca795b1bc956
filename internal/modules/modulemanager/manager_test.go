package modulemanager

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeModule struct {
	id       string
	core     bool
	migrated bool
	inited   bool
	stopped  bool
	initErr  error
	log      *[]string
}

func (m *fakeModule) ID() string   { return m.id }
func (m *fakeModule) Name() string { return "fake " + m.id }
func (m *fakeModule) Core() bool   { return m.core }
func (m *fakeModule) Migrate(db *gorm.DB) error {
	m.migrated = true
	return nil
}
func (m *fakeModule) Init() error {
	m.inited = true
	if m.log != nil {
		*m.log = append(*m.log, m.id)
	}
	return m.initErr
}
func (m *fakeModule) Stop() error {
	m.stopped = true
	if m.log != nil {
		*m.log = append(*m.log, "stop:"+m.id)
	}
	return nil
}

func newTestRegistry() *ModuleRegistry {
	return &ModuleRegistry{
		modules:         make(map[string]Module),
		disabledModules: make(map[string]bool),
	}
}

func TestLoadAll_InitializesInRegistrationOrder(t *testing.T) {
	registry := newTestRegistry()
	var order []string
	first := &fakeModule{id: "system.first", log: &order}
	second := &fakeModule{id: "system.second", log: &order}
	registry.Register(second)
	registry.Register(first)

	require.NoError(t, registry.LoadAll(nil))

	assert.Equal(t, []string{"system.second", "system.first"}, order)
	assert.True(t, first.migrated)
	assert.True(t, second.migrated)
}

func TestLoadAll_SkipsDisabledModules(t *testing.T) {
	registry := newTestRegistry()
	kept := &fakeModule{id: "system.kept"}
	dropped := &fakeModule{id: "system.dropped"}
	registry.Register(kept)
	registry.Register(dropped)
	registry.DisableModule("system.dropped")

	require.NoError(t, registry.LoadAll(nil))
	assert.True(t, kept.inited)
	assert.False(t, dropped.inited)
}

func TestLoadAll_RefusesToDisableCoreModule(t *testing.T) {
	registry := newTestRegistry()
	core := &fakeModule{id: "system.core", core: true}
	registry.Register(core)
	// DisableModule refuses core modules; force the state to exercise the
	// LoadAll guard too.
	registry.disabledModules["system.core"] = true

	err := registry.LoadAll(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "core module")
}

func TestLoadAll_PropagatesInitFailure(t *testing.T) {
	registry := newTestRegistry()
	registry.Register(&fakeModule{id: "system.boom", initErr: fmt.Errorf("bad state")})

	err := registry.LoadAll(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad state")
}

func TestLoadAll_SecondCallIsNoOp(t *testing.T) {
	registry := newTestRegistry()
	module := &fakeModule{id: "system.once"}
	registry.Register(module)

	require.NoError(t, registry.LoadAll(nil))
	module.inited = false
	require.NoError(t, registry.LoadAll(nil))
	assert.False(t, module.inited)
}

func TestStopAll_ReverseOrder(t *testing.T) {
	registry := newTestRegistry()
	var order []string
	registry.Register(&fakeModule{id: "a", log: &order})
	registry.Register(&fakeModule{id: "b", log: &order})
	require.NoError(t, registry.LoadAll(nil))

	registry.StopAll()
	assert.Equal(t, []string{"a", "b", "stop:b", "stop:a"}, order)
}
