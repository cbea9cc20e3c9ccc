package models

import "testing"

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		nilOut  bool
		invalid bool
	}{
		{"empty payload means no filter", "", true, false},
		{"valid filter", `{"tags":["go"],"country":"DE"}`, false, false},
		{"empty object", `{}`, false, false},
		{"garbage is quarantined, not fatal", `{broken`, false, true},
		{"wrong shape is quarantined", `["go"]`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := ParseFilter([]byte(tt.raw))
			if (f == nil) != tt.nilOut {
				t.Fatalf("nil=%v, want %v", f == nil, tt.nilOut)
			}
			if f != nil && f.Invalid() != tt.invalid {
				t.Errorf("invalid=%v, want %v", f.Invalid(), tt.invalid)
			}
		})
	}
}

func TestParseFilter_RoundTrip(t *testing.T) {
	f := ParseFilter([]byte(`{"tags":["go","backend"],"city":"Berlin"}`))
	if f.Invalid() {
		t.Fatal("unexpected invalid filter")
	}

	out, err := f.MarshalJSONText()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	again := ParseFilter(out)
	if again.City != "Berlin" || len(again.Tags) != 2 {
		t.Errorf("round trip lost fields: %+v", again)
	}
}
