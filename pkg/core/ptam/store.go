// ============================================================================
// HIVE - Flight Daemon
// ============================================================================
//
// Package:     ptam
// Description: Shared register store (Program Temp Access Memory)
// Author:      Mike Stoffels
// Created:     2026-10-16
// License:     MIT
// ============================================================================

// Package ptam implements the shared register store every subsystem uses to
// exchange sensor readings, setpoints and flight state.
//
// Registers live in four partitions, one per value type. A key is unique
// within its partition, so a float64 "TLat" and a uint8 "TLat" can coexist.
// Each partition has a fixed capacity; storing a new key into a full
// partition fails with ErrCapacityExceeded and leaves the table unchanged,
// while overwriting an existing key always succeeds. Values are copied in
// and out, so a retrieved value is never affected by later writes.
//
// The store never logs. All failures are returned to the caller.
package ptam

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/msto63/hive/pkg/core/apperr"
)

// Kind is the type tag of a register partition
type Kind uint8

const (
	KindDouble Kind = iota + 1
	KindUint8
	KindUint32
	KindString
)

// Kinds lists all partitions in a stable order
var Kinds = []Kind{KindDouble, KindUint8, KindUint32, KindString}

// String returns the partition name
func (k Kind) String() string {
	switch k {
	case KindDouble:
		return "double"
	case KindUint8:
		return "uint8"
	case KindUint32:
		return "uint32"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// MarshalText encodes the kind by name
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name
func (k *Kind) UnmarshalText(text []byte) error {
	for _, kind := range Kinds {
		if kind.String() == string(text) {
			*k = kind
			return nil
		}
	}
	return apperr.Newf("unknown register kind %q", text).WithCode(apperr.CodeInvalidInput)
}

// Store errors. Returned errors wrap these, so test with errors.Is.
var (
	ErrKeyNotFound      = apperr.New("key not found").WithCode(apperr.CodeNotFound)
	ErrCapacityExceeded = apperr.New("capacity exceeded").WithCode(apperr.CodeQuotaExceeded)
	ErrTypeMismatch     = apperr.New("type mismatch").WithCode(apperr.CodeTypeMismatch)
	ErrInvalidKey       = apperr.New("empty key").WithCode(apperr.CodeInvalidInput)
)

// Config holds per-partition capacities
type Config struct {
	DoubleCapacity int
	Uint8Capacity  int
	Uint32Capacity int
	StringCapacity int
}

// DefaultConfig returns capacities sized for the flight firmware register set
func DefaultConfig() Config {
	return Config{
		DoubleCapacity: 64,
		Uint8Capacity:  32,
		Uint32Capacity: 32,
		StringCapacity: 16,
	}
}

// Store is the register store
type Store struct {
	doubles *partition[float64]
	uint8s  *partition[uint8]
	uint32s *partition[uint32]
	strings *partition[string]
}

// New creates a store. Non-positive capacities fall back to the defaults.
func New(cfg Config) *Store {
	def := DefaultConfig()
	if cfg.DoubleCapacity <= 0 {
		cfg.DoubleCapacity = def.DoubleCapacity
	}
	if cfg.Uint8Capacity <= 0 {
		cfg.Uint8Capacity = def.Uint8Capacity
	}
	if cfg.Uint32Capacity <= 0 {
		cfg.Uint32Capacity = def.Uint32Capacity
	}
	if cfg.StringCapacity <= 0 {
		cfg.StringCapacity = def.StringCapacity
	}

	return &Store{
		doubles: newPartition[float64](KindDouble, cfg.DoubleCapacity),
		uint8s:  newPartition[uint8](KindUint8, cfg.Uint8Capacity),
		uint32s: newPartition[uint32](KindUint32, cfg.Uint32Capacity),
		strings: newPartition[string](KindString, cfg.StringCapacity),
	}
}

var (
	defaultStore *Store
	defaultOnce  sync.Once
)

// Init creates the process-wide store with cfg. Only the first call to Init
// or Default decides the configuration; later calls return the existing store.
func Init(cfg Config) *Store {
	defaultOnce.Do(func() {
		defaultStore = New(cfg)
	})
	return defaultStore
}

// Default returns the process-wide store, creating it with DefaultConfig on first use
func Default() *Store {
	return Init(DefaultConfig())
}

// StoreDouble inserts or overwrites a float64 register
func (s *Store) StoreDouble(key string, value float64) error {
	return s.doubles.store(key, value)
}

// RetrieveDouble returns a float64 register
func (s *Store) RetrieveDouble(key string) (float64, error) {
	return s.doubles.retrieve(key)
}

// ClearDouble removes a float64 register if present
func (s *Store) ClearDouble(key string) {
	s.doubles.clear(key)
}

// StoreUint8 inserts or overwrites a uint8 register
func (s *Store) StoreUint8(key string, value uint8) error {
	return s.uint8s.store(key, value)
}

// RetrieveUint8 returns a uint8 register
func (s *Store) RetrieveUint8(key string) (uint8, error) {
	return s.uint8s.retrieve(key)
}

// ClearUint8 removes a uint8 register if present
func (s *Store) ClearUint8(key string) {
	s.uint8s.clear(key)
}

// StoreUint32 inserts or overwrites a uint32 register
func (s *Store) StoreUint32(key string, value uint32) error {
	return s.uint32s.store(key, value)
}

// RetrieveUint32 returns a uint32 register
func (s *Store) RetrieveUint32(key string) (uint32, error) {
	return s.uint32s.retrieve(key)
}

// ClearUint32 removes a uint32 register if present
func (s *Store) ClearUint32(key string) {
	s.uint32s.clear(key)
}

// StoreString inserts or overwrites a string register
func (s *Store) StoreString(key string, value string) error {
	return s.strings.store(key, value)
}

// RetrieveString returns a string register
func (s *Store) RetrieveString(key string) (string, error) {
	return s.strings.retrieve(key)
}

// ClearString removes a string register if present
func (s *Store) ClearString(key string) {
	s.strings.clear(key)
}

// Clear removes key from every partition
func (s *Store) Clear(key string) {
	s.doubles.clear(key)
	s.uint8s.clear(key)
	s.uint32s.clear(key)
	s.strings.clear(key)
}

// ClearAll empties every partition. Partitions are cleared one after the
// other; a concurrent writer may repopulate an already cleared partition.
func (s *Store) ClearAll() {
	s.doubles.clearAll()
	s.uint8s.clearAll()
	s.uint32s.clearAll()
	s.strings.clearAll()
}

// Value is a register value tagged with its partition
type Value struct {
	Kind   Kind
	Double float64
	Uint8  uint8
	Uint32 uint32
	String string
}

// Float returns the numeric value as float64. String values are parsed;
// ok is false when that fails.
func (v Value) Float() (f float64, ok bool) {
	switch v.Kind {
	case KindDouble:
		return v.Double, true
	case KindUint8:
		return float64(v.Uint8), true
	case KindUint32:
		return float64(v.Uint32), true
	case KindString:
		parsed, err := strconv.ParseFloat(v.String, 64)
		return parsed, err == nil
	}
	return 0, false
}

// Text formats the value for display
func (v Value) Text() string {
	switch v.Kind {
	case KindDouble:
		return strconv.FormatFloat(v.Double, 'f', -1, 64)
	case KindUint8:
		return strconv.FormatUint(uint64(v.Uint8), 10)
	case KindUint32:
		return strconv.FormatUint(uint64(v.Uint32), 10)
	case KindString:
		return v.String
	}
	return ""
}

// RetrieveAs reads key from the partition of kind. When key only exists in
// another partition the error wraps ErrTypeMismatch instead of ErrKeyNotFound.
func (s *Store) RetrieveAs(kind Kind, key string) (Value, error) {
	v := Value{Kind: kind}
	var err error

	switch kind {
	case KindDouble:
		v.Double, err = s.doubles.retrieve(key)
	case KindUint8:
		v.Uint8, err = s.uint8s.retrieve(key)
	case KindUint32:
		v.Uint32, err = s.uint32s.retrieve(key)
	case KindString:
		v.String, err = s.strings.retrieve(key)
	default:
		return Value{}, apperr.Newf("unknown register kind %d", uint8(kind)).WithCode(apperr.CodeInvalidInput)
	}

	if err != nil {
		if other, ok := s.kindOf(key, kind); ok {
			return Value{}, apperr.Wrapf(ErrTypeMismatch, "register %q is %s, not %s", key, other, kind)
		}
		return Value{}, err
	}
	return v, nil
}

// Lookup finds key in any partition, checking them in Kinds order
func (s *Store) Lookup(key string) (Value, error) {
	for _, kind := range Kinds {
		if v, err := s.RetrieveAs(kind, key); err == nil {
			return v, nil
		}
	}
	return Value{}, apperr.Wrapf(ErrKeyNotFound, "register %q", key)
}

// kindOf returns the first partition other than skip that holds key
func (s *Store) kindOf(key string, skip Kind) (Kind, bool) {
	for _, kind := range Kinds {
		if kind == skip {
			continue
		}
		var found bool
		switch kind {
		case KindDouble:
			found = s.doubles.has(key)
		case KindUint8:
			found = s.uint8s.has(key)
		case KindUint32:
			found = s.uint32s.has(key)
		case KindString:
			found = s.strings.has(key)
		}
		if found {
			return kind, true
		}
	}
	return 0, false
}

// Snapshot is a detached copy of all partitions
type Snapshot struct {
	Doubles map[string]float64 `json:"doubles"`
	Uint8s  map[string]uint8   `json:"uint8"`
	Uint32s map[string]uint32  `json:"uint32"`
	Strings map[string]string  `json:"strings"`
}

// Len returns the total number of registers in the snapshot
func (s Snapshot) Len() int {
	return len(s.Doubles) + len(s.Uint8s) + len(s.Uint32s) + len(s.Strings)
}

// Snapshot copies every partition. Each partition is copied under its own
// lock, so the result is consistent per partition.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		Doubles: s.doubles.snapshot(),
		Uint8s:  s.uint8s.snapshot(),
		Uint32s: s.uint32s.snapshot(),
		Strings: s.strings.snapshot(),
	}
}

// PartitionStats reports the fill level of one partition
type PartitionStats struct {
	Kind     Kind `json:"kind"`
	Len      int  `json:"len"`
	Capacity int  `json:"capacity"`
}

// Usage returns the fill level in percent
func (p PartitionStats) Usage() float64 {
	if p.Capacity == 0 {
		return 0
	}
	return float64(p.Len) / float64(p.Capacity) * 100
}

// Stats returns the fill level of every partition in Kinds order
func (s *Store) Stats() []PartitionStats {
	return []PartitionStats{
		s.doubles.stats(),
		s.uint8s.stats(),
		s.uint32s.stats(),
		s.strings.stats(),
	}
}

// Len returns the number of registers in the partition of kind
func (s *Store) Len(kind Kind) int {
	switch kind {
	case KindDouble:
		return s.doubles.len()
	case KindUint8:
		return s.uint8s.len()
	case KindUint32:
		return s.uint32s.len()
	case KindString:
		return s.strings.len()
	}
	return 0
}

// Capacity returns the capacity of the partition of kind
func (s *Store) Capacity(kind Kind) int {
	switch kind {
	case KindDouble:
		return s.doubles.capacity
	case KindUint8:
		return s.uint8s.capacity
	case KindUint32:
		return s.uint32s.capacity
	case KindString:
		return s.strings.capacity
	}
	return 0
}
