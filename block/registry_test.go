package block

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Steve19802/workbench/errors"
)

func testRegistration(typeID string) *Registration {
	return &Registration{
		TypeID:      typeID,
		Description: "test block",
		Version:     "1.0.0",
		Schema:      testSchema(),
		Factory: func(name string, _ map[string]any, logger *slog.Logger) (*Block, error) {
			return New(name, typeID, testSchema(), &recordingStrategy{}, logger)
		},
	}
}

func TestRegisterAndCreate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testRegistration("gain")))

	b, err := r.Create("gain", "gain-1", nil, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "gain-1", b.Name())
	assert.Equal(t, "gain", b.TypeID())
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()

	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&Registration{TypeID: ""}))
	assert.Error(t, r.Register(&Registration{TypeID: "no-factory"}))

	bad := testRegistration("bad-schema")
	bad.Schema = Schema{Inputs: []PortSpec{{Name: "in"}, {Name: "in"}}}
	assert.Error(t, r.Register(bad))
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testRegistration("gain")))

	err := r.Register(testRegistration("gain"))
	assert.ErrorIs(t, err, errors.ErrDuplicateName)
}

func TestCreateUnknownType(t *testing.T) {
	r := NewRegistry()

	_, err := r.Create("missing", "b", nil, nil)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestLookupAndTypes(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testRegistration("scope")))
	require.NoError(t, r.Register(testRegistration("gain")))

	registration, ok := r.Lookup("scope")
	require.True(t, ok)
	assert.Equal(t, "scope", registration.TypeID)

	_, ok = r.Lookup("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"gain", "scope"}, r.Types())
}
