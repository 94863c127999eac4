package session

import (
	"bufio"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/sKV/lib/backend"
	"github.com/cespare/xxhash/v2"
	"github.com/golang/snappy"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var (
	log = logger.GetLogger("session")
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	magicNum        = "SKVSESS\x00" // Snapshot format identifier
	snapshotVersion = 1             // Snapshot version
	maxStringLen    = 1 << 30       // Largest key or value accepted from a snapshot
)

// --------------------------------------------------------------------------
// Core store structure
// --------------------------------------------------------------------------

// shard is one partition of the store with its own map
type shard struct {
	data *xsync.MapOf[string, string]
}

// Store is an in-process backend.IStringStore. Keys are spread over shards by
// a seeded xxhash. The store optionally enforces a byte quota and can be
// snapshotted to a file.
type Store struct {
	seed   uint64
	shards []*shard
	size   atomic.Int64 // bytes held (keys + values)
	quota  int64

	snapshotPath string
	closeOnce    sync.Once
	closed       atomic.Bool
}

// Options configures the session store during initialization
type Options struct {
	NumShards    int    // Number of shards (0 = runtime.NumCPU())
	Quota        int64  // Maximum bytes of keys and values (0 = unlimited)
	SnapshotPath string // Snapshot file loaded by NewStore and written by Close ("" = none)
}

// DefaultOptions returns the default session store options
func DefaultOptions() *Options {
	return &Options{
		NumShards: runtime.NumCPU(),
	}
}

// NewStore creates a new session store with the specified options (optional).
// If a snapshot path is configured and the file exists, it is loaded.
func NewStore(opts *Options) (*Store, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	numShards := opts.NumShards
	if numShards <= 0 {
		numShards = runtime.NumCPU()
	}

	s := &Store{
		seed:         generateSeed(),
		shards:       newShards(numShards),
		quota:        opts.Quota,
		snapshotPath: opts.SnapshotPath,
	}

	if s.snapshotPath != "" {
		if err := s.LoadFile(s.snapshotPath); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Factory returns a backend.StringStoreFactory creating stores with opts.
func Factory(opts *Options) backend.StringStoreFactory {
	return func() (backend.IStringStore, error) {
		return NewStore(opts)
	}
}

func newShards(n int) []*shard {
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{data: xsync.NewMapOf[string, string]()}
	}
	return shards
}

// generateSeed creates a random seed for the shard hash
func generateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// getShard returns the shard responsible for key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Store) getShard(key string) *shard {
	h := xxhash.Sum64String(key) ^ s.seed
	// Shift right by 7 bits to use higher-quality bits for distribution
	return s.shards[(h>>7)%uint64(len(s.shards))]
}

// entrySize is what one entry counts against the quota
func entrySize(key, value string) int64 {
	return int64(len(key) + len(value))
}

// --------------------------------------------------------------------------
// Interface Methods (docu see backend/interface.go)
// --------------------------------------------------------------------------

// SetItem stores value under key. With a quota set, a write that would grow
// the store beyond it fails with backend.ErrQuotaExceeded and leaves the old
// value in place.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Store) SetItem(key, value string) error {
	if s.closed.Load() {
		return backend.ErrClosed
	}

	var quotaErr error
	s.getShard(key).data.Compute(key, func(old string, loaded bool) (string, bool) {
		delta := entrySize(key, value)
		if loaded {
			delta -= entrySize(key, old)
		}

		newSize := s.size.Add(delta)
		if s.quota > 0 && delta > 0 && newSize > s.quota {
			s.size.Add(-delta)
			quotaErr = fmt.Errorf("set %q (%d bytes, quota %d): %w", key, len(value), s.quota, backend.ErrQuotaExceeded)
			// keep the old entry, delete if there was none
			return old, !loaded
		}
		return value, false
	})
	return quotaErr
}

// GetItem returns the value for key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Store) GetItem(key string) (string, bool, error) {
	if s.closed.Load() {
		return "", false, backend.ErrClosed
	}
	value, ok := s.getShard(key).data.Load(key)
	return value, ok, nil
}

// RemoveItem deletes key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Store) RemoveItem(key string) error {
	if s.closed.Load() {
		return backend.ErrClosed
	}
	s.getShard(key).data.Compute(key, func(old string, loaded bool) (string, bool) {
		if loaded {
			s.size.Add(-entrySize(key, old))
		}
		return old, true
	})
	return nil
}

// Keys returns all keys in sorted order.
func (s *Store) Keys() ([]string, error) {
	if s.closed.Load() {
		return nil, backend.ErrClosed
	}
	var keys []string
	for _, sh := range s.shards {
		sh.data.Range(func(key string, _ string) bool {
			keys = append(keys, key)
			return true
		})
	}
	sort.Strings(keys)
	return keys, nil
}

// Size returns the number of bytes (keys and values) held by the store.
func (s *Store) Size() int64 {
	return s.size.Load()
}

// Close writes the snapshot file, if one is configured, and disables the
// store. Closing twice is a no-op.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.snapshotPath != "" {
			err = s.SaveFile(s.snapshotPath)
		}
		s.closed.Store(true)
	})
	return err
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save writes a snappy-compressed snapshot of all entries to w.
// Concurrent reads and writes are allowed while saving; the snapshot
// contains every entry that was not modified during the save.
func (s *Store) Save(w io.Writer) error {
	sw := snappy.NewBufferedWriter(w)
	bw := bufio.NewWriter(sw)

	// collect entries first so the count is known
	type entryToSave struct {
		key, value string
	}
	var entries []entryToSave
	for _, sh := range s.shards {
		sh.data.Range(func(key string, value string) bool {
			entries = append(entries, entryToSave{key, value})
			return true
		})
	}

	// Write file header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(snapshotVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}

	for _, e := range entries {
		if err := writeString(bw, e.key); err != nil {
			return err
		}
		if err := writeString(bw, e.value); err != nil {
			return err
		}
	}

	if err := bw.Flush(); err != nil {
		return err
	}
	return sw.Close()
}

// Load replaces the content of the store with the snapshot read from r.
// The quota is not enforced while loading.
//
// Thread-safety: This function is not thread-safe and should not be called concurrently
func (s *Store) Load(r io.Reader) error {
	br := bufio.NewReader(snappy.NewReader(r))

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid snapshot format: magic number mismatch")
	}

	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %d (expected %d)", version, snapshotVersion)
	}

	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return err
	}

	// load into fresh shards and swap them in at the end
	shards := newShards(len(s.shards))
	var size int64
	for i := uint64(0); i < count; i++ {
		key, err := readString(br)
		if err != nil {
			return err
		}
		value, err := readString(br)
		if err != nil {
			return err
		}
		h := xxhash.Sum64String(key) ^ s.seed
		shards[(h>>7)%uint64(len(shards))].data.Store(key, value)
		size += entrySize(key, value)
	}

	s.shards = shards
	s.size.Store(size)
	return nil
}

// SaveFile writes a snapshot to path. The file is replaced atomically.
func (s *Store) SaveFile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := s.Save(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}

	log.Debugf("saved session snapshot to %s", path)
	return nil
}

// LoadFile loads the snapshot at path. A missing file is not an error.
func (s *Store) LoadFile(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	if err := s.Load(f); err != nil {
		return fmt.Errorf("load snapshot %s: %w", path, err)
	}

	log.Debugf("loaded session snapshot from %s", path)
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// readString reads a length-prefixed string. The buffer grows with the bytes
// actually read, so a corrupt length fails with io.ErrUnexpectedEOF instead
// of allocating the declared size up front.
func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > maxStringLen {
		return "", fmt.Errorf("invalid snapshot: string length %d exceeds %d", n, maxStringLen)
	}
	var sb strings.Builder
	if _, err := io.CopyN(&sb, r, int64(n)); err != nil {
		if errors.Is(err, io.EOF) {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	return sb.String(), nil
}
