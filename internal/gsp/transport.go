package gsp

import "context"

// Well-known GATT identifiers for the datalogger's GSP service (spec.md §4.1).
const (
	ServiceUUID          = "34802252-7185-4d5d-b431-630e7050e8f0"
	WriteCharacteristic  = "34800001-7185-4d5d-b431-630e7050e8f0"
	NotifyCharacteristic = "34800002-7185-4d5d-b431-630e7050e8f0"
)

// Advertisement is the minimal view of a BLE advertisement the Session needs
// to match a device by serial-number suffix.
type Advertisement interface {
	Name() string
	Address() string
}

// Client identifies a live BLE connection handle returned by Connect.
type Client interface {
	Address() string
}

// ScanHandle identifies an in-progress scan so it can be stopped.
type ScanHandle interface{}

// Transport is the capability set the core requires from a concrete BLE
// library (spec.md §4.1): scan-with-callback, connect-by-address,
// write-with-response, notification subscribe/unsubscribe and disconnect.
// The core is ignorant of which BLE library implements it.
type Transport interface {
	// Scan starts a scan, invoking onDiscover for every advertisement seen,
	// until the returned handle is stopped or ctx is done.
	Scan(ctx context.Context, onDiscover func(Advertisement)) (ScanHandle, error)
	StopScan(handle ScanHandle)

	// Connect opens a BLE connection and subscribes the caller to its
	// disconnect event; onDisconnect may be invoked at most once, from an
	// arbitrary goroutine, at any point up to Disconnect being called.
	Connect(ctx context.Context, address string, onDisconnect func()) (Client, error)
	Disconnect(client Client)

	// Write performs a GATT write to charUUID. requireAck selects the
	// "write with response" variant so the BLE stack itself provides
	// framing back-pressure (spec.md §4.1).
	Write(client Client, charUUID string, data []byte, requireAck bool) error

	// Subscribe arms onNotify for every notification/indication on
	// charUUID; Unsubscribe detaches it.
	Subscribe(client Client, charUUID string, onNotify func(data []byte)) error
	Unsubscribe(client Client, charUUID string) error
}
