package snapshot

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lerrors "github.com/learnerinfo/lis/internal/errors"
	"github.com/learnerinfo/lis/internal/storage"
)

var sample = []byte(strings.Repeat("2023-2024,100,N/A,N/A,4,N/A\n", 50))

func TestEncodeDecode(t *testing.T) {
	blob := Encode(sample)
	assert.Less(t, len(blob), len(sample))
	assert.Equal(t, "LISS", string(blob[:4]))

	got, err := Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, sample, got)
}

func TestEncodeDecode_Empty(t *testing.T) {
	got, err := Decode(Encode(nil))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecode_Corruption(t *testing.T) {
	blob := Encode(sample)

	_, err := Decode(blob[:10])
	assert.ErrorIs(t, err, ErrTooShort)

	bad := bytes.Clone(blob)
	bad[0] = 'X'
	_, err = Decode(bad)
	assert.ErrorIs(t, err, ErrBadMagic)

	bad = bytes.Clone(blob)
	bad[4] = 9
	_, err = Decode(bad)
	assert.ErrorIs(t, err, ErrUnknownVersion)

	bad = bytes.Clone(blob)
	bad[20] ^= 0xff
	_, err = Decode(bad)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func newTestStore(t *testing.T, keep int) (*Store, *storage.LocalStorage) {
	t.Helper()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewStore(local, "snapshots/", keep), local
}

func TestStore_SaveListRestore(t *testing.T) {
	s, _ := newTestStore(t, 0)
	ctx := context.Background()

	first, err := s.Save(ctx, "2023-2024", []byte("v1"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first, "snapshots/data_2023-2024/"))
	assert.True(t, strings.HasSuffix(first, ".csv.sz"))

	second, err := s.Save(ctx, "2023-2024", []byte("v2"))
	require.NoError(t, err)
	_, err = s.Save(ctx, "2024-2025", []byte("other"))
	require.NoError(t, err)

	infos, err := s.List(ctx, "2023-2024")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, second, infos[0].Key)
	assert.Equal(t, first, infos[1].Key)

	data, err := s.Restore(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), data)
}

func TestStore_RestoreErrors(t *testing.T) {
	s, local := newTestStore(t, 0)
	ctx := context.Background()

	_, err := s.Restore(ctx, "snapshots/data_2023-2024/1.csv.sz")
	assert.True(t, lerrors.IsNotFound(err))

	_, err = local.Put(ctx, "snapshots/data_2023-2024/2.csv.sz", []byte("garbage that is long enough to pass"))
	require.NoError(t, err)
	_, err = s.Restore(ctx, "snapshots/data_2023-2024/2.csv.sz")
	assert.Equal(t, lerrors.ErrCategoryMalformed, lerrors.GetCategory(err))
}

func TestStore_PruneKeepsNewest(t *testing.T) {
	s, _ := newTestStore(t, 2)
	ctx := context.Background()

	var keys []string
	for _, v := range []string{"a", "b", "c", "d"} {
		k, err := s.Save(ctx, "2023-2024", []byte(v))
		require.NoError(t, err)
		keys = append(keys, k)
	}

	infos, err := s.List(ctx, "2023-2024")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, keys[3], infos[0].Key)
	assert.Equal(t, keys[2], infos[1].Key)
}
