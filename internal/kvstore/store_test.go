package kvstore

import (
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func TestClampBounds(t *testing.T) {
	require.Equal(t, int64(5), clamp(5, 1, 10))
	require.Equal(t, int64(1), clamp(0, 1, 10))
	require.Equal(t, int64(10), clamp(100, 1, 10))
}

func TestBadgerSizeOptionsStaysWithinBadgerLimits(t *testing.T) {
	opts := badgerSizeOptions(badger.DefaultOptions(t.TempDir()))
	require.GreaterOrEqual(t, opts.MemTableSize, int64(minMemTableSize))
	require.LessOrEqual(t, opts.MemTableSize, int64(maxMemTableSize))
	require.GreaterOrEqual(t, opts.ValueLogFileSize, int64(minValueLogSize))
	require.LessOrEqual(t, opts.ValueLogFileSize, int64(maxValueLogSize))
}
