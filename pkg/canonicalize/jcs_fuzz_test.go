package canonicalize

import (
	"bytes"
	"encoding/json"
	"testing"
)

// Canonical output must be a fixed point: parsing it and canonicalizing
// again yields the same bytes.
func FuzzJCS_FixedPoint(f *testing.F) {
	for _, seed := range []string{
		`{"quantity":1250000,"unit":"g"}`,
		`{"claim":{"proof_reference":"ipfs://x","description":"kelp"},"id":7}`,
		`[0.1,1e21,-0,"é",null,true]`,
		`{"ratio":0.15,"reserve":"acct:buffer"}`,
	} {
		f.Add([]byte(seed))
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		var v any
		if json.Unmarshal(data, &v) != nil {
			t.Skip()
		}
		first, err := JCS(v)
		if err != nil {
			return
		}
		var again any
		if err := json.Unmarshal(first, &again); err != nil {
			t.Fatalf("canonical output does not parse: %v", err)
		}
		second, err := JCS(again)
		if err != nil {
			t.Fatalf("re-canonicalizing failed: %v", err)
		}
		if !bytes.Equal(first, second) {
			t.Fatalf("not a fixed point:\n%s\n%s", first, second)
		}
	})
}
