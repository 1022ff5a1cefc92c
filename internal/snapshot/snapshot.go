// Package snapshot keeps compressed copies of enrollment files taken
// before they are overwritten.
package snapshot

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/spaolacci/murmur3"

	"github.com/learnerinfo/lis/internal/enrollment"
	lerrors "github.com/learnerinfo/lis/internal/errors"
	"github.com/learnerinfo/lis/internal/storage"
	"github.com/learnerinfo/lis/pkg/types"
)

// Blob layout:
//   - 4 bytes: magic "LISS"
//   - 4 bytes: format version (uint32, little-endian)
//   - 8 bytes: original length (uint64, little-endian)
//   - 8 bytes: murmur3 64-bit checksum of the original bytes
//   - remaining: snappy block
const (
	magic         = "LISS"
	formatVersion = 1
	headerSize    = 24
	extension     = ".csv.sz"
)

var (
	ErrTooShort         = errors.New("snapshot: blob too short")
	ErrBadMagic         = errors.New("snapshot: bad magic")
	ErrUnknownVersion   = errors.New("snapshot: unknown format version")
	ErrChecksumMismatch = errors.New("snapshot: checksum mismatch")
)

// Encode compresses data into a snapshot blob.
func Encode(data []byte) []byte {
	body := snappy.Encode(nil, data)
	buf := make([]byte, headerSize+len(body))

	copy(buf[0:4], magic)
	binary.LittleEndian.PutUint32(buf[4:8], formatVersion)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(len(data)))
	binary.LittleEndian.PutUint64(buf[16:24], murmur3.Sum64(data))
	copy(buf[headerSize:], body)
	return buf
}

// Decode verifies and decompresses a snapshot blob.
func Decode(blob []byte) ([]byte, error) {
	if len(blob) < headerSize {
		return nil, ErrTooShort
	}
	if string(blob[0:4]) != magic {
		return nil, ErrBadMagic
	}
	if v := binary.LittleEndian.Uint32(blob[4:8]); v != formatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, v)
	}
	length := binary.LittleEndian.Uint64(blob[8:16])
	sum := binary.LittleEndian.Uint64(blob[16:24])

	n, err := snappy.DecodedLen(blob[headerSize:])
	if err != nil {
		return nil, fmt.Errorf("snapshot: corrupt body: %w", err)
	}
	if uint64(n) != length {
		return nil, fmt.Errorf("snapshot: expected %d bytes, body holds %d", length, n)
	}
	data, err := snappy.Decode(nil, blob[headerSize:])
	if err != nil {
		return nil, fmt.Errorf("snapshot: corrupt body: %w", err)
	}
	if murmur3.Sum64(data) != sum {
		return nil, ErrChecksumMismatch
	}
	return data, nil
}

// Info describes one stored snapshot.
type Info struct {
	Key     string           `json:"key"`
	Year    types.SchoolYear `json:"year"`
	TakenAt time.Time        `json:"taken_at"`
}

// Store saves snapshots under prefix/data_<year>/<unix-nanos>.csv.sz.
type Store struct {
	store  storage.ObjectStorage
	prefix string
	keep   int
}

// NewStore creates a snapshot store. keep bounds the snapshots retained
// per year; zero keeps everything.
func NewStore(store storage.ObjectStorage, prefix string, keep int) *Store {
	if prefix == "" {
		prefix = "snapshots"
	}
	return &Store{store: store, prefix: strings.TrimSuffix(prefix, "/"), keep: keep}
}

func (s *Store) dir(year types.SchoolYear) string {
	return s.prefix + "/" + strings.TrimSuffix(enrollment.FileName(year), ".csv") + "/"
}

// Save writes a snapshot of data for year and prunes old ones.
func (s *Store) Save(ctx context.Context, year types.SchoolYear, data []byte) (string, error) {
	key := s.dir(year) + strconv.FormatInt(time.Now().UnixNano(), 10) + extension
	if _, err := s.store.Put(ctx, key, Encode(data)); err != nil {
		return "", lerrors.NewStorageError(lerrors.CodeWriteFailed, "failed to save snapshot", err)
	}
	log.Printf("snapshot: saved %s (%d bytes)", key, len(data))

	if s.keep > 0 {
		if _, err := s.Prune(ctx, year, s.keep); err != nil {
			log.Printf("[WARN] snapshot: prune failed for %s: %v", year, err)
		}
	}
	return key, nil
}

// Discard deletes the snapshot at key.
func (s *Store) Discard(ctx context.Context, key string) error {
	if err := s.store.Delete(ctx, key); err != nil {
		return lerrors.NewStorageError(lerrors.CodeWriteFailed, "failed to delete snapshot", err)
	}
	return nil
}

// List returns the snapshots for year, newest first.
func (s *Store) List(ctx context.Context, year types.SchoolYear) ([]Info, error) {
	keys, err := s.store.List(ctx, s.dir(year))
	if err != nil {
		return nil, lerrors.NewStorageError(lerrors.CodeReadFailed, "failed to list snapshots", err)
	}

	out := make([]Info, 0, len(keys))
	for _, key := range keys {
		base := key[strings.LastIndex(key, "/")+1:]
		if !strings.HasSuffix(base, extension) {
			continue
		}
		nanos, err := strconv.ParseInt(strings.TrimSuffix(base, extension), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, Info{Key: key, Year: year, TakenAt: time.Unix(0, nanos)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TakenAt.After(out[j].TakenAt) })
	return out, nil
}

// Restore reads and decodes the snapshot at key.
func (s *Store) Restore(ctx context.Context, key string) ([]byte, error) {
	blob, _, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, lerrors.NewNotFoundError(lerrors.CodeObjectNotFound, "snapshot not found: "+key)
		}
		return nil, lerrors.NewStorageError(lerrors.CodeReadFailed, "failed to read snapshot", err)
	}
	data, err := Decode(blob)
	if err != nil {
		return nil, lerrors.NewMalformedError("snapshot "+key+" is unreadable", err)
	}
	return data, nil
}

// Prune deletes all but the newest keep snapshots for year.
func (s *Store) Prune(ctx context.Context, year types.SchoolYear, keep int) (int, error) {
	infos, err := s.List(ctx, year)
	if err != nil {
		return 0, err
	}
	if keep < 0 || len(infos) <= keep {
		return 0, nil
	}

	deleted := 0
	for _, info := range infos[keep:] {
		if err := s.store.Delete(ctx, info.Key); err != nil {
			return deleted, lerrors.NewStorageError(lerrors.CodeWriteFailed, "failed to delete snapshot", err)
		}
		deleted++
	}
	return deleted, nil
}
