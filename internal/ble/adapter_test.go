package ble

import (
	"bytes"
	"testing"

	goble "github.com/go-ble/ble"
)

func TestPropertyString(t *testing.T) {
	tests := []struct {
		p    Property
		want string
	}{
		{0, ""},
		{PropRead, "read"},
		{PropRead | PropNotify, "read,notify"},
		{PropWrite | PropIndicate, "write,indicate"},
		{PropRead | PropWrite | PropNotify | PropIndicate, "read,write,notify,indicate"},
	}
	for _, tt := range tests {
		if got := tt.p.String(); got != tt.want {
			t.Errorf("Property(%d).String() = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestDevicePrimaryUUID(t *testing.T) {
	d := Device{UUIDs: []string{"1818", "180a"}}
	if got := d.PrimaryUUID(); got != "1818" {
		t.Errorf("PrimaryUUID() = %q, want %q", got, "1818")
	}
	if got := (Device{}).PrimaryUUID(); got != "" {
		t.Errorf("PrimaryUUID() with no UUIDs = %q, want empty", got)
	}
}

func TestDeviceString(t *testing.T) {
	d := Device{Name: "KICKR SNAP 1234", Address: "AA:BB:CC:DD:EE:FF"}
	if got, want := d.String(), "KICKR SNAP 1234 [AA:BB:CC:DD:EE:FF]"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	d.Name = ""
	if got, want := d.String(), "(unnamed) [AA:BB:CC:DD:EE:FF]"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestPropertiesFromGoBLE(t *testing.T) {
	tests := []struct {
		in   goble.Property
		want Property
	}{
		{goble.CharRead, PropRead},
		{goble.CharRead | goble.CharNotify, PropRead | PropNotify},
		{goble.CharWriteNR, PropWrite},
		{goble.CharIndicate | goble.CharWrite, PropIndicate | PropWrite},
		{goble.CharBroadcast, 0},
	}
	for _, tt := range tests {
		if got := propertiesFromGoBLE(tt.in); got != tt.want {
			t.Errorf("propertiesFromGoBLE(%#x) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSplitManufacturerData(t *testing.T) {
	got := splitManufacturerData([]byte{0x20, 0x01, 0xAA, 0xBB})
	if len(got) != 1 {
		t.Fatalf("splitManufacturerData() len = %d, want 1", len(got))
	}
	// 0x0120 is Wahoo Fitness.
	if v := got[0x0120]; !bytes.Equal(v, []byte{0xAA, 0xBB}) {
		t.Errorf("splitManufacturerData()[0x0120] = % x, want aa bb", v)
	}
	if splitManufacturerData([]byte{0x01}) != nil {
		t.Error("splitManufacturerData() with short payload should be nil")
	}
}
