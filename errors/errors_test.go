package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassString(t *testing.T) {
	tests := []struct {
		name     string
		class    ErrorClass
		expected string
	}{
		{"invalid class", ErrorInvalid, "invalid"},
		{"fault class", ErrorFault, "fault"},
		{"fatal class", ErrorFatal, "fatal"},
		{"unknown class", ErrorClass(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.class.String())
		})
	}
}

func TestWrap(t *testing.T) {
	base := stderrors.New("boom")

	err := Wrap(base, "Engine", "Connect", "type check")
	require.Error(t, err)
	assert.Equal(t, "Engine.Connect: type check failed: boom", err.Error())
	assert.ErrorIs(t, err, base)

	assert.NoError(t, Wrap(nil, "Engine", "Connect", "type check"))
}

func TestWrapClassification(t *testing.T) {
	base := stderrors.New("boom")

	tests := []struct {
		name     string
		wrap     func(error, string, string, string) error
		expected ErrorClass
	}{
		{"invalid wrap", WrapInvalid, ErrorInvalid},
		{"fault wrap", WrapFault, ErrorFault},
		{"fatal wrap", WrapFatal, ErrorFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.wrap(base, "Block", "SetProperty", "validation")
			require.Error(t, err)

			var ce *ClassifiedError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.expected, ce.Class)
			assert.Equal(t, "Block", ce.Component)
			assert.Equal(t, "SetProperty", ce.Operation)
			assert.ErrorIs(t, err, base)
			assert.Equal(t, tt.expected, Classify(err))
		})
	}
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, WrapInvalid(nil, "a", "b", "c"))
	assert.NoError(t, WrapFault(nil, "a", "b", "c"))
	assert.NoError(t, WrapFatal(nil, "a", "b", "c"))
}

func TestIsInvalidSentinels(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"duplicate name", ErrDuplicateName},
		{"not found", ErrNotFound},
		{"type mismatch", ErrTypeMismatch},
		{"fan-in conflict", ErrFanInConflict},
		{"cycle", ErrCycle},
		{"reentrant mutation", ErrReentrantMutation},
		{"schema", ErrSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, IsInvalid(tt.err))
			assert.False(t, IsFault(tt.err))
			assert.False(t, IsFatal(tt.err))
		})
	}
}

func TestIsInvalidWrapped(t *testing.T) {
	err := Wrap(ErrFanInConflict, "Engine", "Connect", "fan-in check")
	assert.True(t, IsInvalid(err))
	assert.ErrorIs(t, err, ErrFanInConflict)
}

func TestIsFault(t *testing.T) {
	err := WrapFault(stderrors.New("strategy blew up"), "gain", "OnInputReceived", "compute")
	assert.True(t, IsFault(err))
	assert.False(t, IsInvalid(err))
	assert.False(t, IsFault(nil))
}

func TestClassifiedErrorMessage(t *testing.T) {
	ce := &ClassifiedError{Class: ErrorFault, Err: stderrors.New("inner")}
	assert.Equal(t, "inner", ce.Error())

	ce.Message = "outer message"
	assert.Equal(t, "outer message", ce.Error())
	assert.Equal(t, "inner", ce.Unwrap().Error())
}
