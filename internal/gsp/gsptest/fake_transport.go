//go:build test

// Package gsptest provides an in-memory gsp.Transport double for exercising
// Session/FetchLog/Fleet logic without a real BLE stack, in the style of
// teacher's MockBLEPeripheralSuite (internal/testutils/mock_peripheral_suite.go)
// but scoped to GSP's fixed two-characteristic protocol rather than a
// generic multi-service GATT peripheral.
package gsptest

import (
	"context"
	"fmt"
	"sync"

	"github.com/srg/gspctl/internal/gsp"
)

// Handler decodes one outbound write and reacts by calling notify zero or
// more times (e.g. a CommandResponse followed by DataFrames), simulating
// the device's side of the protocol.
type Handler func(write []byte, notify func([]byte))

// Peripheral is one simulated device: an advertised name/address and the
// Handler that drives its responses.
type Peripheral struct {
	Name    string
	Address string
	Handler Handler

	mu     sync.Mutex
	notify func([]byte)
}

type advertisement struct{ name, address string }

func (a advertisement) Name() string    { return a.name }
func (a advertisement) Address() string { return a.address }

type client struct{ address string }

func (c *client) Address() string { return c.address }

type scanHandle struct{ cancel context.CancelFunc }

// Transport is a gsp.Transport backed by a fixed set of Peripherals.
type Transport struct {
	mu                  sync.Mutex
	peripherals         map[string]*Peripheral
	disconnectCallbacks map[string]func()
}

// NewTransport creates a Transport advertising the given peripherals.
func NewTransport(peripherals ...*Peripheral) *Transport {
	t := &Transport{peripherals: make(map[string]*Peripheral)}
	for _, p := range peripherals {
		t.peripherals[p.Address] = p
	}
	return t
}

// SimulateDisconnect simulates an unexpected transport-level disconnect for
// address, invoking the onDisconnect callback registered at Connect time.
func (t *Transport) SimulateDisconnect(address string) {
	t.mu.Lock()
	cb := t.disconnectCallbacks[address]
	t.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (t *Transport) Scan(ctx context.Context, onDiscover func(gsp.Advertisement)) (gsp.ScanHandle, error) {
	scanCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	peripherals := make([]*Peripheral, 0, len(t.peripherals))
	for _, p := range t.peripherals {
		peripherals = append(peripherals, p)
	}
	t.mu.Unlock()

	go func() {
		for _, p := range peripherals {
			select {
			case <-scanCtx.Done():
				return
			default:
				onDiscover(advertisement{name: p.Name, address: p.Address})
			}
		}
	}()
	return &scanHandle{cancel: cancel}, nil
}

func (t *Transport) StopScan(handle gsp.ScanHandle) {
	if h, ok := handle.(*scanHandle); ok {
		h.cancel()
	}
}

func (t *Transport) Connect(_ context.Context, address string, onDisconnect func()) (gsp.Client, error) {
	t.mu.Lock()
	p, ok := t.peripherals[address]
	if ok {
		if t.disconnectCallbacks == nil {
			t.disconnectCallbacks = make(map[string]func())
		}
		t.disconnectCallbacks[address] = onDisconnect
	}
	t.mu.Unlock()
	if !ok {
		return nil, gsp.ErrDeviceNotFound
	}
	return &client{address: address}, nil
}

func (t *Transport) Disconnect(gc gsp.Client) {
	c, ok := gc.(*client)
	if !ok {
		return
	}
	t.mu.Lock()
	delete(t.disconnectCallbacks, c.address)
	t.mu.Unlock()
}

func (t *Transport) Write(gc gsp.Client, charUUID string, data []byte, _ bool) error {
	c, ok := gc.(*client)
	if !ok {
		return gsp.ErrDisconnected
	}
	if charUUID != gsp.WriteCharacteristic {
		return fmt.Errorf("unexpected write characteristic %s", charUUID)
	}
	t.mu.Lock()
	p, ok := t.peripherals[c.address]
	t.mu.Unlock()
	if !ok {
		return gsp.ErrDisconnected
	}

	p.mu.Lock()
	notify := p.notify
	p.mu.Unlock()
	if notify == nil || p.Handler == nil {
		return nil
	}
	p.Handler(data, notify)
	return nil
}

func (t *Transport) Subscribe(gc gsp.Client, charUUID string, onNotify func(data []byte)) error {
	c, ok := gc.(*client)
	if !ok {
		return gsp.ErrDisconnected
	}
	if charUUID != gsp.NotifyCharacteristic {
		return fmt.Errorf("unexpected notify characteristic %s", charUUID)
	}
	t.mu.Lock()
	p := t.peripherals[c.address]
	t.mu.Unlock()
	if p == nil {
		return gsp.ErrDisconnected
	}
	p.mu.Lock()
	p.notify = onNotify
	p.mu.Unlock()
	return nil
}

func (t *Transport) Unsubscribe(gc gsp.Client, charUUID string) error {
	c, ok := gc.(*client)
	if !ok {
		return nil
	}
	t.mu.Lock()
	p := t.peripherals[c.address]
	t.mu.Unlock()
	if p == nil {
		return nil
	}
	p.mu.Lock()
	p.notify = nil
	p.mu.Unlock()
	return nil
}
