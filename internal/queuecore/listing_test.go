// Copyright 2025 James Ross
package queuecore

import "testing"

func TestExclusiveUpperBound(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"decrements sequence", "1700000000000-5", "1700000000000-4"},
		{"first entry on a millisecond", "1700000000000-0", "1699999999999-9223372036854775807"},
		{"very first stream entry", "0-0", "0-0"},
	}
	for _, c := range cases {
		got, err := exclusiveUpperBound(c.in)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", c.name, err)
		}
		if got != c.want {
			t.Errorf("%s: got %q, want %q", c.name, got, c.want)
		}
	}
}

func TestExclusiveUpperBoundRejectsMalformedID(t *testing.T) {
	if _, err := exclusiveUpperBound("not-an-id-at-all-x"); err == nil {
		t.Error("expected error for malformed stream id")
	}
}

func TestPayloadDigestIsOrderIndependent(t *testing.T) {
	a, err := payloadDigest(map[string]interface{}{"a": float64(1), "b": float64(2)})
	if err != nil {
		t.Fatal(err)
	}
	b, err := payloadDigest(map[string]interface{}{"b": float64(2), "a": float64(1)})
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("expected canonical hashes to match: %q vs %q", a, b)
	}
}
