// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
	"time"
)

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]any{"role": "teacher", "name": "Ms. Lee", "count": 3}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("same value produced different encodings")
	}
}

func TestTimeRoundTripKeepsSubsecondPrecision(t *testing.T) {
	type stamped struct {
		At time.Time `cbor:"at"`
	}
	original := stamped{At: time.Date(2026, 3, 1, 9, 30, 15, 123456789, time.UTC)}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded stamped
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !decoded.At.Equal(original.At) {
		t.Errorf("time round-trip: got %v, want %v", decoded.At, original.At)
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	type v1 struct {
		Name string `cbor:"name"`
	}
	type v2 struct {
		Name  string `cbor:"name"`
		Color string `cbor:"color"`
	}

	data, err := Marshal(v2{Name: "Sam", Color: "4ECDC4"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded v1
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal with extra field: %v", err)
	}
	if decoded.Name != "Sam" {
		t.Errorf("Name = %q, want %q", decoded.Name, "Sam")
	}
}

func TestAnyTargetDecodesStringKeyedMaps(t *testing.T) {
	data, err := Marshal(map[string]any{"outer": map[string]any{"inner": 1}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	if _, ok := outer["outer"].(map[string]any); !ok {
		t.Errorf("nested type = %T, want map[string]any", outer["outer"])
	}
}
