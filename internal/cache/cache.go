// Package cache persists completed animation buffers keyed by the audio and
// parameters that produced them.
package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/RenatoCabral2022/facestream/internal/audio"
	"github.com/RenatoCabral2022/facestream/internal/params"
	"github.com/RenatoCabral2022/facestream/internal/playback"
)

var ErrNotFound = errors.New("cache: not found")

const keyPrefix = "anim/"

// Key identifies the animation produced for buf with p.
func Key(buf audio.Buffer, p params.Set) string {
	d := xxhash.New()
	var hdr [16]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(buf.Header.Format))
	binary.LittleEndian.PutUint32(hdr[4:], buf.Header.ChannelCount)
	binary.LittleEndian.PutUint32(hdr[8:], buf.Header.SampleRate)
	binary.LittleEndian.PutUint32(hdr[12:], buf.Header.BitsPerSample)
	d.Write(hdr[:])
	d.Write(buf.Samples)
	return strconv.FormatUint(d.Sum64(), 16) + "-" + strconv.FormatUint(p.Fingerprint(), 16)
}

// Options configures the store.
type Options struct {
	// Dir holds the database files. Required unless InMemory.
	Dir      string
	InMemory bool
	// TTL expires entries; zero keeps them forever.
	TTL time.Duration
}

// Cache is a badger-backed store of msgpack-encoded buffers.
type Cache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *zap.Logger
}

// Open opens or creates the store.
func Open(opts Options, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("cache: Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{logger.Sugar().Named("badger")})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return &Cache{db: db, ttl: opts.TTL, logger: logger}, nil
}

// Get returns the buffer stored under key.
func (c *Cache) Get(key string) (*playback.Buffer, error) {
	var val []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	var buf playback.Buffer
	if err := msgpack.Unmarshal(val, &buf); err != nil {
		if derr := c.Delete(key); derr != nil {
			c.logger.Warn("dropping undecodable entry failed", zap.String("key", key), zap.Error(derr))
		}
		return nil, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return &buf, nil
}

// Put stores buf under key.
func (c *Cache) Put(key string, buf *playback.Buffer) error {
	val, err := msgpack.Marshal(buf)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(keyPrefix+key), val)
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return txn.SetEntry(e)
	})
}

// Delete removes key. Missing keys are not an error.
func (c *Cache) Delete(key string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + key))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Len counts stored buffers.
func (c *Cache) Len() (int, error) {
	n := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Close flushes and closes the store.
func (c *Cache) Close() error {
	return c.db.Close()
}

// badgerLogger routes badger output to zap, dropping info and debug chatter.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(f string, v ...interface{})   { l.s.Errorf(f, v...) }
func (l badgerLogger) Warningf(f string, v ...interface{}) { l.s.Warnf(f, v...) }
func (badgerLogger) Infof(string, ...interface{})          {}
func (badgerLogger) Debugf(string, ...interface{})         {}
