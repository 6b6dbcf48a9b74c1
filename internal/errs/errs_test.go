package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsSoftClassifiesKinds(t *testing.T) {
	require.True(t, IsSoft(Network("fetch", errors.New("boom"))))
	require.True(t, IsSoft(Validation("check", errors.New("boom"))))
	require.True(t, IsSoft(Dependency("probe", errors.New("boom"))))
	require.False(t, IsSoft(Storage("write", errors.New("boom"))))
	require.False(t, IsSoft(Config("parse", errors.New("boom"))))
	require.False(t, IsSoft(errors.New("plain error")))
}

func TestErrorUnwrapsToCause(t *testing.T) {
	cause := errors.New("root cause")
	wrapped := Network("op", cause)
	require.ErrorIs(t, wrapped, cause)
}

func TestErrorMessageIncludesKindAndOp(t *testing.T) {
	err := Storage("write file", errors.New("disk full"))
	require.Contains(t, err.Error(), "StorageError")
	require.Contains(t, err.Error(), "write file")
	require.Contains(t, err.Error(), "disk full")
}
