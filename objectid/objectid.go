// Package objectid generates the 12-byte identifiers used as the default
// primary key for documents: a big-endian UNIX time, a per-process "fuzz"
// value, and a big-endian counter.
package objectid

import (
	"encoding/binary"
	"encoding/hex"
	"math/rand"
	"sync"
	"time"
)

// ID is a 12-byte identifier: time(4) ∥ fuzz(4) ∥ counter(4).
type ID [12]byte

// FuzzFunc supplies the per-process fuzz value; it is called at most once,
// the first time an ID is generated, unless overridden by SetFuzzFunc.
type FuzzFunc func() uint32

// CounterFunc supplies successive counter values. The default is a
// process-local monotonic counter, pre-incremented and wrapped modulo 2^32.
type CounterFunc func() uint32

var (
	mu          sync.Mutex
	fuzzFn      FuzzFunc
	counterFn   CounterFunc
	fuzz        uint32
	fuzzSet     bool
	counter     uint32
)

// SetFuzzFunc installs a custom fuzz source. It must be called before the
// first ID is generated to take effect; later calls are a no-op once the
// fuzz value has been lazily initialized, matching the original driver's
// set-once-at-startup semantics.
func SetFuzzFunc(f FuzzFunc) {
	mu.Lock()
	defer mu.Unlock()
	fuzzFn = f
}

// SetCounterFunc installs a custom counter source, replacing the default
// process-local counter. Callers needing concurrent generation must supply
// a thread-safe counter function; the default counter is not safe for
// concurrent use without the package-level lock that New already takes.
func SetCounterFunc(f CounterFunc) {
	mu.Lock()
	defer mu.Unlock()
	counterFn = f
}

// New generates a new ID. The fuzz bytes are stable for the process
// lifetime; the counter wraps modulo 2^32.
func New() ID {
	mu.Lock()
	defer mu.Unlock()

	if !fuzzSet {
		if fuzzFn != nil {
			fuzz = fuzzFn()
		} else {
			//nolint:gosec // this is a driver-compatible identifier fuzz seed, not a cryptographic value
			fuzz = rand.New(rand.NewSource(time.Now().UnixNano())).Uint32()
		}
		fuzzSet = true
	}

	var i uint32
	if counterFn != nil {
		i = counterFn()
	} else {
		counter++
		i = counter
	}

	var id ID
	binary.BigEndian.PutUint32(id[0:4], uint32(time.Now().Unix())) //nolint:gosec // intentional 32-bit epoch seconds per wire format
	// Fuzz bytes are written in native order: only time and counter are
	// defined to be big-endian on the wire.
	binary.NativeEndian.PutUint32(id[4:8], fuzz)
	binary.BigEndian.PutUint32(id[8:12], i)
	return id
}

// Hex renders id as a 24-character lowercase hex string.
func (id ID) Hex() string {
	return hex.EncodeToString(id[:])
}

// String implements fmt.Stringer.
func (id ID) String() string { return id.Hex() }

// FromHex parses a 24-character hex string into an ID.
func FromHex(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != len(id) {
		return id, errInvalidLength
	}
	copy(id[:], b)
	return id, nil
}

// Time returns the embedded generation time, truncated to whole seconds.
func (id ID) Time() time.Time {
	sec := binary.BigEndian.Uint32(id[0:4])
	return time.Unix(int64(sec), 0).UTC()
}

// Counter returns the embedded big-endian counter value.
func (id ID) Counter() uint32 {
	return binary.BigEndian.Uint32(id[8:12])
}
