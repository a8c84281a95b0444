package trainer

import (
	"encoding/binary"
	"fmt"

	"github.com/chaz8081/motivator/internal/power"
)

// Fitness Machine Service (FTMS) smart trainers.
const (
	FTMSServiceUUID        = "00001826-0000-1000-8000-00805f9b34fb"
	FTMSIndoorBikeDataUUID = "00002ad2-0000-1000-8000-00805f9b34fb"
)

// Indoor Bike Data flag bits preceding the power field.
const (
	ftmsMoreData         = 1 << 0 // when clear, instantaneous speed is present
	ftmsAverageSpeed     = 1 << 1
	ftmsInstCadence      = 1 << 2
	ftmsAverageCadence   = 1 << 3
	ftmsTotalDistance    = 1 << 4
	ftmsResistanceLevel  = 1 << 5
	ftmsInstantaneousPwr = 1 << 6
)

// FTMSDecoder decodes the FTMS Indoor Bike Data characteristic.
type FTMSDecoder struct{}

// Decode walks the flag-selected fields up to Instantaneous Power (sint16).
// Negative power is reported as zero.
func (FTMSDecoder) Decode(data []byte) (power.Sample, error) {
	if len(data) < 2 {
		return power.Sample{}, fmt.Errorf("%w: indoor bike data is %d bytes", ErrInsufficientData, len(data))
	}
	flags := binary.LittleEndian.Uint16(data[0:2])
	if flags&ftmsInstantaneousPwr == 0 {
		return power.Sample{}, ErrNoPower
	}

	offset := 2
	if flags&ftmsMoreData == 0 {
		offset += 2
	}
	if flags&ftmsAverageSpeed != 0 {
		offset += 2
	}
	if flags&ftmsInstCadence != 0 {
		offset += 2
	}
	if flags&ftmsAverageCadence != 0 {
		offset += 2
	}
	if flags&ftmsTotalDistance != 0 {
		offset += 3
	}
	if flags&ftmsResistanceLevel != 0 {
		offset += 2
	}

	if len(data) < offset+2 {
		return power.Sample{}, fmt.Errorf("%w: power field at offset %d, frame is %d bytes",
			ErrInsufficientData, offset, len(data))
	}
	watts := int16(binary.LittleEndian.Uint16(data[offset : offset+2]))
	if watts < 0 {
		watts = 0
	}
	return power.Sample{Watts: uint16(watts)}, nil
}

// FTMSPlugin returns the plugin for FTMS trainers.
func FTMSPlugin() Plugin {
	return Plugin{
		Name:                "FTMS Indoor Bike",
		UUID:                FTMSServiceUUID,
		Decoder:             FTMSDecoder{},
		PowerCharacteristic: FTMSIndoorBikeDataUUID,
	}
}
