package ble

import "testing"

func TestCanonicalUUID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"1818", "00001818-0000-1000-8000-00805f9b34fb", false},
		{"0x1818", "00001818-0000-1000-8000-00805f9b34fb", false},
		{"00001818", "00001818-0000-1000-8000-00805f9b34fb", false},
		{"00001818-0000-1000-8000-00805F9B34FB", "00001818-0000-1000-8000-00805f9b34fb", false},
		{" 6E40FEC1-B5A3-F393-E0A9-E50E24DCCA9E ", "6e40fec1-b5a3-f393-e0a9-e50e24dcca9e", false},
		{"not-a-uuid", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CanonicalUUID(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CanonicalUUID(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("CanonicalUUID(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSameUUID(t *testing.T) {
	if !SameUUID("2A63", "00002a63-0000-1000-8000-00805f9b34fb") {
		t.Error("SameUUID() short vs long form = false, want true")
	}
	if SameUUID("2a63", "2a37") {
		t.Error("SameUUID() different UUIDs = true, want false")
	}
	if !SameUUID("not-a-uuid", "NOT-A-UUID") {
		t.Error("SameUUID() should fall back to case-insensitive comparison")
	}
}

func TestDescribe(t *testing.T) {
	tests := map[string]string{
		"1818": "Cycling Power",
		"00001826-0000-1000-8000-00805f9b34fb": "Fitness Machine",
		"6E40FEC1-B5A3-F393-E0A9-E50E24DCCA9E": "FE-C over BLE",
		"1234": "Unknown",
		"garbage": "Unknown",
	}
	for in, want := range tests {
		if got := Describe(in); got != want {
			t.Errorf("Describe(%q) = %q, want %q", in, got, want)
		}
	}
}
