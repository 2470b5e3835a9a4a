// Package propertycache implements the durable property key/value store
// that drives session resynchronization: one entry per (interface, path)
// holding (major, individual), plus a reserved slot for the last-applied
// introspection fingerprint.
//
// The backing store is a device-local Redis instance (over a unix socket
// or 127.0.0.1:6379), typically a co-located redis-server on an embedded
// Linux gateway. Each mutation runs as one scripted Redis command, so a
// crash mid-write leaves either the old value or the whole new value,
// never a torn entry.
package propertycache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/edgelink/device-agent/pkg/agenterr"
	"github.com/edgelink/device-agent/pkg/bsoncodec"
	"github.com/edgelink/device-agent/pkg/schema"
	"github.com/edgelink/device-agent/pkg/util"
)

const (
	propsHashKey  = "EDGELINK_PROPERTIES"
	fingerprintKey = "EDGELINK_INTROSPECTION_FINGERPRINT"

	// keySep separates interface name and path in a hash field. A NUL
	// byte cannot appear in an Astarte interface name or mapping path, so
	// splitting is unambiguous.
	keySep = "\x00"
)

// storeScript writes the property value as a single HSET: a partial
// write either never touches the field or Redis's own single-command
// atomicity lands it whole.
var storeScript = redis.NewScript(`
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// deleteScript removes a single field, idempotent if already absent.
var deleteScript = redis.NewScript(`
redis.call("HDEL", KEYS[1], ARGV[1])
return 1
`)

// Key identifies one cached property.
type Key struct {
	Interface string
	Path      string
}

func (k Key) field() string { return k.Interface + keySep + k.Path }

// String renders "iface/path" — the wire form used in the
// purge-properties payload and PropertiesString output: the interface
// name concatenated directly with the path, which already carries its
// own leading slash.
func (k Key) String() string { return k.Interface + k.Path }

func parseField(field string) (Key, bool) {
	parts := strings.SplitN(field, keySep, 2)
	if len(parts) != 2 {
		return Key{}, false
	}
	return Key{Interface: parts[0], Path: parts[1]}, true
}

// Store is the durable property cache, backed by a single Redis database.
// All entrypoints are safe for concurrent use: the Lua scripts give
// per-operation atomicity at the Redis level, and mu additionally
// serializes each entrypoint's own Redis call (including the single HKeys
// snapshot Iterate takes). A sequence of calls, such as a Load followed by
// a Delete, is not held under mu as a whole.
type Store struct {
	mu     sync.Mutex
	client *redis.Client
	ctx    context.Context
}

// Open connects to a Redis instance at addr (host:port, or a unix socket
// path prefixed with "unix://") and selects db as the property-cache
// namespace.
func Open(addr string, db int) *Store {
	opts := &redis.Options{Addr: addr, DB: db}
	if strings.HasPrefix(addr, "unix://") {
		opts = &redis.Options{Network: "unix", Addr: strings.TrimPrefix(addr, "unix://"), DB: db}
	}
	return &Store{
		client: redis.NewClient(opts),
		ctx:    context.Background(),
	}
}

// Ping verifies the backing store is reachable.
func (s *Store) Ping() error {
	if err := s.client.Ping(s.ctx).Err(); err != nil {
		return agenterr.Wrap(agenterr.CachingError, "propertycache.Ping", err)
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Store upserts the (major, value) tuple for (iface, path). Overwrites
// any prior entry at the same key.
func (s *Store) Store(iface, path string, major int, v schema.Individual) error {
	data, err := bsoncodec.EncodePropertyEntry(major, v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	field := Key{iface, path}.field()
	if err := storeScript.Run(s.ctx, s.client, []string{propsHashKey}, field, data).Err(); err != nil {
		return agenterr.Wrap(agenterr.CachingError, "propertycache.Store", err)
	}
	return nil
}

// Load returns the stored (major, value) for (iface, path), decoding the
// value as want. Returns agenterr.NotFound if no entry exists.
func (s *Store) Load(iface, path string, want schema.PrimitiveType) (int, schema.Individual, error) {
	s.mu.Lock()
	data, err := s.client.HGet(s.ctx, propsHashKey, Key{iface, path}.field()).Bytes()
	s.mu.Unlock()

	if errors.Is(err, redis.Nil) {
		return 0, schema.Individual{}, agenterr.New(agenterr.NotFound, "propertycache.Load",
			fmt.Sprintf("no cached property at %s%s", iface, path))
	}
	if err != nil {
		return 0, schema.Individual{}, agenterr.Wrap(agenterr.CachingError, "propertycache.Load", err)
	}

	major, v, err := bsoncodec.DecodePropertyEntry(data, want)
	if err != nil {
		return 0, schema.Individual{}, err
	}
	return major, v, nil
}

// Delete removes the entry for (iface, path). Idempotent: deleting an
// absent key is not an error.
func (s *Store) Delete(iface, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	field := Key{iface, path}.field()
	if err := deleteScript.Run(s.ctx, s.client, []string{propsHashKey}, field).Err(); err != nil {
		return agenterr.Wrap(agenterr.CachingError, "propertycache.Delete", err)
	}
	return nil
}

// Iterate returns a lazy sequence over the cached (interface, path) keys.
// The snapshot is taken once at the start of iteration (a single HKeys
// call); mutating the cache mid-iteration has no effect on the sequence
// already in flight — callers get a consistent, if possibly stale, view
// instead of corruption.
func (s *Store) Iterate() iter.Seq[Key] {
	s.mu.Lock()
	fields, err := s.client.HKeys(s.ctx, propsHashKey).Result()
	s.mu.Unlock()
	if err != nil {
		util.WithField("error", err).Warn("propertycache: iterate failed to list keys")
		fields = nil
	}

	return func(yield func(Key) bool) {
		for _, field := range fields {
			key, ok := parseField(field)
			if !ok {
				continue
			}
			if !yield(key) {
				return
			}
		}
	}
}

// PropertiesString renders the cache's current key set as a ";"-joined
// "iface/path" list in iteration order — the same format the
// purge-properties payload body carries.
func (s *Store) PropertiesString() (string, error) {
	var parts []string
	for k := range s.Iterate() {
		parts = append(parts, k.String())
	}
	return strings.Join(parts, ";"), nil
}

// CheckIntrospection reports whether canon's SHA-256 fingerprint matches
// the one last stored via StoreIntrospection. Returns
// agenterr.OutdatedIntrospection on mismatch (including when nothing has
// been stored yet).
func (s *Store) CheckIntrospection(canon string) error {
	s.mu.Lock()
	stored, err := s.client.Get(s.ctx, fingerprintKey).Result()
	s.mu.Unlock()

	if err != nil && !errors.Is(err, redis.Nil) {
		return agenterr.Wrap(agenterr.CachingError, "propertycache.CheckIntrospection", err)
	}

	if stored != fingerprintOf(canon) {
		return agenterr.New(agenterr.OutdatedIntrospection, "propertycache.CheckIntrospection",
			"cached introspection fingerprint does not match current introspection")
	}
	return nil
}

// StoreIntrospection records canon's fingerprint as the last-applied
// introspection, consulted by future CheckIntrospection calls (including
// across a restart).
func (s *Store) StoreIntrospection(canon string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.Set(s.ctx, fingerprintKey, fingerprintOf(canon), 0).Err(); err != nil {
		return agenterr.Wrap(agenterr.CachingError, "propertycache.StoreIntrospection", err)
	}
	return nil
}

func fingerprintOf(canon string) string {
	sum := sha256.Sum256([]byte(canon))
	return hex.EncodeToString(sum[:])
}

// sortedKeys is a small test/diagnostic helper giving a deterministic
// ordering over an iteration snapshot, since Redis hash field order is
// implementation-defined.
func sortedKeys(keys []Key) []Key {
	out := make([]Key, len(keys))
	copy(out, keys)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Interface != out[j].Interface {
			return out[i].Interface < out[j].Interface
		}
		return out[i].Path < out[j].Path
	})
	return out
}
