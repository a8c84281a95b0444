package ble

import "strings"

// knownNames maps SIG-assigned and well-known vendor UUIDs to their names.
var knownNames = map[string]string{
	"00001800-0000-1000-8000-00805f9b34fb": "Generic Access",
	"00001801-0000-1000-8000-00805f9b34fb": "Generic Attribute",
	"0000180a-0000-1000-8000-00805f9b34fb": "Device Information",
	"0000180d-0000-1000-8000-00805f9b34fb": "Heart Rate",
	"0000180f-0000-1000-8000-00805f9b34fb": "Battery Service",
	"00001816-0000-1000-8000-00805f9b34fb": "Cycling Speed and Cadence",
	"00001818-0000-1000-8000-00805f9b34fb": "Cycling Power",
	"00001826-0000-1000-8000-00805f9b34fb": "Fitness Machine",
	"00002a00-0000-1000-8000-00805f9b34fb": "Device Name",
	"00002a19-0000-1000-8000-00805f9b34fb": "Battery Level",
	"00002a29-0000-1000-8000-00805f9b34fb": "Manufacturer Name String",
	"00002a37-0000-1000-8000-00805f9b34fb": "Heart Rate Measurement",
	"00002a5b-0000-1000-8000-00805f9b34fb": "CSC Measurement",
	"00002a5d-0000-1000-8000-00805f9b34fb": "Sensor Location",
	"00002a63-0000-1000-8000-00805f9b34fb": "Cycling Power Measurement",
	"00002a65-0000-1000-8000-00805f9b34fb": "Cycling Power Feature",
	"00002a66-0000-1000-8000-00805f9b34fb": "Cycling Power Control Point",
	"00002ad2-0000-1000-8000-00805f9b34fb": "Indoor Bike Data",
	"00002ad9-0000-1000-8000-00805f9b34fb": "Fitness Machine Control Point",
	"00002ada-0000-1000-8000-00805f9b34fb": "Fitness Machine Status",
	"00002902-0000-1000-8000-00805f9b34fb": "Client Characteristic Configuration",
	"00002901-0000-1000-8000-00805f9b34fb": "Characteristic User Description",
	"6e40fec1-b5a3-f393-e0a9-e50e24dcca9e": "FE-C over BLE",
	"6e40fec2-b5a3-f393-e0a9-e50e24dcca9e": "FE-C Notify",
	"6e40fec3-b5a3-f393-e0a9-e50e24dcca9e": "FE-C Write",
}

// Describe returns a human name for uuid, or "Unknown".
func Describe(uuid string) string {
	id, err := CanonicalUUID(uuid)
	if err != nil {
		id = strings.ToLower(uuid)
	}
	if name, ok := knownNames[id]; ok {
		return name
	}
	return "Unknown"
}
