package trainer

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/chaz8081/motivator/internal/power"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

func TestKickrSnapDecodeReferenceFrame(t *testing.T) {
	data := mustHex(t, "14 00 00 00 3A 85 EA 01 00 00 EC 4B")

	got, err := KickrSnapDecoder{}.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Watts != 490 {
		t.Errorf("Decode() watts = %d, want 490 (0x01EA)", got.Watts)
	}
}

func TestKickrSnapDecodeIgnoresTrailingBytes(t *testing.T) {
	data := mustHex(t, "14 00 00 00 3A 85 EA 01 00 00 EC 4B FF FF")

	got, err := KickrSnapDecoder{}.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Watts != 490 {
		t.Errorf("Decode() watts = %d, want 490", got.Watts)
	}
}

func TestKickrSnapDecodeShortFrames(t *testing.T) {
	full := mustHex(t, "14 00 00 00 3A 85 EA 01 00 00 EC 4B")
	tracker := power.NewRawTracker(0)

	for n := 0; n < len(full); n++ {
		_, err := KickrSnapDecoder{}.Decode(full[:n])
		if !errors.Is(err, ErrInsufficientData) {
			t.Errorf("Decode(%d bytes) error = %v, want ErrInsufficientData", n, err)
		}
	}

	// Decoding never touches tracker state on its own.
	if snap := tracker.Snapshot(); snap.Samples != 0 || snap.Current != 0 {
		t.Errorf("tracker changed after failed decodes: %+v", snap)
	}
}

func TestFTMSDecode(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    uint16
		wantErr error
	}{
		{"speed cadence power", "44 00 10 27 5A 00 C8 00", 200, nil},
		{"power only (more data set)", "41 00 2C 01", 300, nil},
		{"negative power clamps to zero", "41 00 FF FF", 0, nil},
		{"distance and resistance before power", "70 00 10 27 01 02 03 05 00 96 00", 150, nil},
		{"no power flag", "04 00 10 27 5A 00", 0, ErrNoPower},
		{"truncated power", "40 00 10 27", 0, ErrInsufficientData},
		{"too short for flags", "44", 0, ErrInsufficientData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FTMSDecoder{}.Decode(mustHex(t, tt.data))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Decode() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got.Watts != tt.want {
				t.Errorf("Decode() watts = %d, want %d", got.Watts, tt.want)
			}
		})
	}
}

// fecMessage builds a 13-byte ANT message around an 8-byte page.
func fecMessage(page [8]byte) []byte {
	msg := []byte{fecSyncByte, 0x09, 0x4E, 0x05}
	msg = append(msg, page[:]...)
	var checksum byte
	for _, b := range msg {
		checksum ^= b
	}
	return append(msg, checksum)
}

func TestFECDecode(t *testing.T) {
	// Page 25: event 1, cadence 90, accumulated power 0x0102, power 250 with status nibble 0x3.
	msg := fecMessage([8]byte{fecPageTrainerData, 0x01, 90, 0x02, 0x01, 0xFA, 0x30, 0x00})

	got, err := FECDecoder{}.Decode(msg)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Watts != 250 {
		t.Errorf("Decode() watts = %d, want 250", got.Watts)
	}
}

func TestFECDecodeErrors(t *testing.T) {
	good := fecMessage([8]byte{fecPageTrainerData, 0x01, 90, 0, 0, 0xFA, 0, 0})

	badSync := append([]byte(nil), good...)
	badSync[0] = 0x00

	badChecksum := append([]byte(nil), good...)
	badChecksum[12] ^= 0xFF

	otherPage := fecMessage([8]byte{16, 0, 0, 0, 0, 0, 0, 0})

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short", good[:12], ErrInsufficientData},
		{"bad sync", badSync, ErrMalformedFrame},
		{"bad checksum", badChecksum, ErrMalformedFrame},
		{"general data page", otherPage, ErrNoPower},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := (FECDecoder{}).Decode(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPluginCarries(t *testing.T) {
	kickr := KickrSnapPlugin()
	if !kickr.Carries("1818", "2a63") {
		t.Error("KICKR plugin should decode notifications from the cycling power service")
	}
	if kickr.Carries("180d", "2a37") {
		t.Error("KICKR plugin should ignore heart rate notifications")
	}

	ftms := FTMSPlugin()
	if !ftms.Carries(FTMSServiceUUID, "2ad2") {
		t.Error("FTMS plugin should decode indoor bike data")
	}
	if ftms.Carries(FTMSServiceUUID, "2ada") {
		t.Error("FTMS plugin should ignore machine status")
	}

	open := Plugin{Name: "open"}
	if !open.Carries("anything", "else") {
		t.Error("plugin without filters should carry every notification")
	}
}

func TestPluginDecodeRecoversPanics(t *testing.T) {
	p := Plugin{
		Name: "broken",
		UUID: KickrSnapUUID,
		Decoder: DecoderFunc(func(data []byte) (power.Sample, error) {
			return power.Sample{Watts: uint16(data[40])}, nil
		}),
	}

	s, err := p.Decode(make([]byte, 4))
	if !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("Decode() error = %v, want ErrMalformedFrame", err)
	}
	if s.Watts != 0 {
		t.Errorf("Decode() watts = %d after panic, want 0", s.Watts)
	}
}

func TestPluginDecodePassesThrough(t *testing.T) {
	p := KickrSnapPlugin()

	got, err := p.Decode(mustHex(t, "14 00 00 00 3A 85 EA 01 00 00 EC 4B"))
	if err != nil || got.Watts != 490 {
		t.Errorf("Decode() = %d, %v; want 490, nil", got.Watts, err)
	}
	if _, err := p.Decode(nil); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Decode(nil) error = %v, want ErrInsufficientData", err)
	}
}
