package objectid_test

import (
	"testing"

	"github.com/motoki-oss/docdb/objectid"
)

// TestNew_MonotonicityAndFuzzStability checks invariant 5: ids generated
// back-to-back share fuzz bytes, counters are strictly non-decreasing, and
// time bytes never go backward.
func TestNew_MonotonicityAndFuzzStability(t *testing.T) {
	ids := make([]objectid.ID, 10)
	for i := range ids {
		ids[i] = objectid.New()
	}

	fuzz := ids[0][4:8]
	for i, id := range ids {
		if string(id[4:8]) != string(fuzz) {
			t.Fatalf("id %d fuzz bytes differ: %x vs %x", i, id[4:8], fuzz)
		}
	}

	for i := 1; i < len(ids); i++ {
		if ids[i].Counter() < ids[i-1].Counter() {
			t.Fatalf("counter decreased at %d: %d < %d", i, ids[i].Counter(), ids[i-1].Counter())
		}
		if ids[i].Time().Before(ids[i-1].Time()) {
			t.Fatalf("time decreased at %d", i)
		}
	}
}

func TestHexRoundTrip(t *testing.T) {
	id := objectid.New()
	hex := id.Hex()
	if len(hex) != 24 {
		t.Fatalf("hex length = %d, want 24", len(hex))
	}

	parsed, err := objectid.FromHex(hex)
	if err != nil {
		t.Fatalf("from hex: %v", err)
	}
	if parsed != id {
		t.Fatalf("parsed = %x, want %x", parsed, id)
	}
}

func TestCounterWrapsModulo32Bits(t *testing.T) {
	var calls uint32
	objectid.SetCounterFunc(func() uint32 {
		calls--
		return calls
	})
	defer objectid.SetCounterFunc(nil)

	a := objectid.New()
	b := objectid.New()
	if a.Counter() == 0 {
		t.Fatalf("expected wrapped counter near max uint32, got %d", a.Counter())
	}
	_ = b
}
