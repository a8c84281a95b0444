package trainer

import (
	"encoding/binary"
	"fmt"

	"github.com/chaz8081/motivator/internal/power"
)

// ANT+ FE-C tunnelled over BLE.
const (
	FECServiceUUID = "6e40fec1-b5a3-f393-e0a9-e50e24dcca9e"
	FECNotifyUUID  = "6e40fec2-b5a3-f393-e0a9-e50e24dcca9e"
)

const (
	fecSyncByte        = 0xA4
	fecMessageSize     = 13 // sync, length, id, channel, 8-byte page, checksum
	fecPageTrainerData = 25 // 0x19
)

// FECDecoder decodes ANT+ FE-C "specific trainer data" pages.
type FECDecoder struct{}

// Decode validates the ANT framing and checksum, then reads the 12-bit
// instantaneous power from page 25. Other pages carry no power.
func (FECDecoder) Decode(data []byte) (power.Sample, error) {
	if len(data) < fecMessageSize {
		return power.Sample{}, fmt.Errorf("%w: fe-c message is %d bytes, need %d",
			ErrInsufficientData, len(data), fecMessageSize)
	}
	if data[0] != fecSyncByte {
		return power.Sample{}, fmt.Errorf("%w: bad sync byte 0x%02x", ErrMalformedFrame, data[0])
	}

	var checksum byte
	for _, b := range data[:fecMessageSize-1] {
		checksum ^= b
	}
	if checksum != data[fecMessageSize-1] {
		return power.Sample{}, fmt.Errorf("%w: checksum 0x%02x, want 0x%02x",
			ErrMalformedFrame, data[fecMessageSize-1], checksum)
	}

	if data[4] != fecPageTrainerData {
		return power.Sample{}, ErrNoPower
	}
	combined := binary.LittleEndian.Uint16(data[9:11])
	return power.Sample{Watts: combined & 0x0FFF}, nil
}

// FECPlugin returns the plugin for FE-C over BLE trainers.
func FECPlugin() Plugin {
	return Plugin{
		Name:                "ANT+ FE-C over BLE",
		UUID:                FECServiceUUID,
		Decoder:             FECDecoder{},
		PowerCharacteristic: FECNotifyUUID,
	}
}
