// Package bletransport implements gsp.Transport over github.com/go-ble/ble,
// scoped to the GSP service's two fixed characteristics rather than a
// generic multi-service GATT browser.
package bletransport

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
	"github.com/sirupsen/logrus"

	"github.com/srg/gspctl/internal/groutine"
	"github.com/srg/gspctl/internal/gsp"
)

// DeviceFactory creates the local ble.Device; overridable in tests.
//
//nolint:revive // mirrors teacher's goble.DeviceFactory mocking seam
var DeviceFactory = func() (ble.Device, error) {
	return darwin.NewDevice()
}

// Transport implements gsp.Transport against go-ble/ble.
type Transport struct {
	logger *logrus.Logger
}

// New creates a Transport. A nil logger is replaced by logrus.New().
func New(logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	return &Transport{logger: logger}
}

type advertisement struct{ adv ble.Advertisement }

func (a advertisement) Name() string    { return a.adv.LocalName() }
func (a advertisement) Address() string { return a.adv.Addr().String() }

// client wraps a live ble.Client plus the two GSP characteristics resolved
// during Connect, so Write/Subscribe never need to re-walk the profile.
type client struct {
	cln   ble.Client
	write *ble.Characteristic
	notify *ble.Characteristic
}

func (c *client) Address() string { return c.cln.Addr().String() }

type scanHandle struct {
	cancel context.CancelFunc
}

func normalizeUUID(uuid string) string {
	return strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
}

// Scan implements gsp.Transport. It starts a background scan using the
// platform device and feeds every advertisement seen to onDiscover until
// StopScan is called or ctx is done (spec.md §4.1).
func (t *Transport) Scan(ctx context.Context, onDiscover func(gsp.Advertisement)) (gsp.ScanHandle, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, normalizeError(err)
	}
	ble.SetDefaultDevice(dev)

	scanCtx, cancel := context.WithCancel(ctx)
	groutine.Go(context.Background(), "gsp-scan", func(_ context.Context) {
		err := dev.Scan(scanCtx, true, func(adv ble.Advertisement) {
			onDiscover(advertisement{adv: adv})
		})
		if err != nil && scanCtx.Err() == nil {
			t.logger.WithError(normalizeError(err)).Warn("BLE scan ended with error")
		}
	})
	return &scanHandle{cancel: cancel}, nil
}

// StopScan implements gsp.Transport.
func (t *Transport) StopScan(handle gsp.ScanHandle) {
	if h, ok := handle.(*scanHandle); ok && h.cancel != nil {
		h.cancel()
	}
}

// Connect implements gsp.Transport: dials address, discovers only the GSP
// service (spec.md §4.1), resolves its write/notify characteristics, and
// wires onDisconnect to the platform's Disconnected() channel the same way
// teacher's BLEConnection.Connect does for Darwin.
func (t *Transport) Connect(ctx context.Context, address string, onDisconnect func()) (gsp.Client, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, normalizeError(err)
	}
	ble.SetDefaultDevice(dev)

	cln, err := ble.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, normalizeError(err)
	}

	profile, err := cln.DiscoverProfile(true)
	if err != nil {
		_ = cln.CancelConnection()
		return nil, normalizeError(err)
	}

	var writeChar, notifyChar *ble.Characteristic
	for _, svc := range profile.Services {
		if normalizeUUID(svc.UUID.String()) != normalizeUUID(gsp.ServiceUUID) {
			continue
		}
		for _, ch := range svc.Characteristics {
			switch normalizeUUID(ch.UUID.String()) {
			case normalizeUUID(gsp.WriteCharacteristic):
				writeChar = ch
			case normalizeUUID(gsp.NotifyCharacteristic):
				notifyChar = ch
			}
		}
	}
	if writeChar == nil || notifyChar == nil {
		_ = cln.CancelConnection()
		return nil, &gsp.ConnectFailedError{Reason: fmt.Errorf("GSP service %s not found or incomplete on %s", gsp.ServiceUUID, address)}
	}

	c := &client{cln: cln, write: writeChar, notify: notifyChar}

	if dc, ok := cln.(interface{ Disconnected() <-chan struct{} }); ok && onDisconnect != nil {
		groutine.Go(context.Background(), "gsp-connection-monitor", func(_ context.Context) {
			<-dc.Disconnected()
			onDisconnect()
		})
	}
	return c, nil
}

// Disconnect implements gsp.Transport.
func (t *Transport) Disconnect(gc gsp.Client) {
	c, ok := gc.(*client)
	if !ok || c == nil {
		return
	}
	if err := c.cln.CancelConnection(); err != nil {
		t.logger.WithError(normalizeError(err)).Debug("error cancelling BLE connection")
	}
}

// Write implements gsp.Transport. requireAck selects write-with-response so
// the GATT stack itself provides framing back-pressure (spec.md §4.1).
func (t *Transport) Write(gc gsp.Client, charUUID string, data []byte, requireAck bool) error {
	c, ok := gc.(*client)
	if !ok || c == nil {
		return gsp.ErrDisconnected
	}
	target := c.resolve(charUUID)
	if target == nil {
		return fmt.Errorf("characteristic %s not resolved on this connection", charUUID)
	}
	return normalizeError(c.cln.WriteCharacteristic(target, data, !requireAck))
}

// Subscribe implements gsp.Transport.
func (t *Transport) Subscribe(gc gsp.Client, charUUID string, onNotify func(data []byte)) error {
	c, ok := gc.(*client)
	if !ok || c == nil {
		return gsp.ErrDisconnected
	}
	target := c.resolve(charUUID)
	if target == nil {
		return fmt.Errorf("characteristic %s not resolved on this connection", charUUID)
	}
	return normalizeError(c.cln.Subscribe(target, false, onNotify))
}

// Unsubscribe implements gsp.Transport.
func (t *Transport) Unsubscribe(gc gsp.Client, charUUID string) error {
	c, ok := gc.(*client)
	if !ok || c == nil {
		return nil
	}
	target := c.resolve(charUUID)
	if target == nil {
		return nil
	}
	return normalizeError(c.cln.Unsubscribe(target, false))
}

func (c *client) resolve(charUUID string) *ble.Characteristic {
	switch normalizeUUID(charUUID) {
	case normalizeUUID(gsp.WriteCharacteristic):
		return c.write
	case normalizeUUID(gsp.NotifyCharacteristic):
		return c.notify
	default:
		return nil
	}
}
