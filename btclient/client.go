package main

import (
	"fmt"
	"strings"
	"time"

	"tinygo.org/x/bluetooth"
)

const (
	// deviceName is the advertised local name of the deterrent board.
	deviceName = "Arduino101-LED"

	// ledCharacteristicUUID is the writable control characteristic of the
	// board's LED service.
	ledCharacteristicUUID = "19b10001-e8f2-537e-4f6c-d104768a1214"

	// writeCooldown paces commands so the board's loop can keep up.
	writeCooldown = 100 * time.Millisecond

	// toggleHold is how long the LED stays on during a toggle pulse.
	toggleHold = 200 * time.Millisecond
)

// commandByte maps a textual command to the single byte the board expects.
// Movement keys go over the wire as their ASCII value.
func commandByte(command string) (byte, bool) {
	switch command {
	case "on":
		return 0x01, true
	case "off":
		return 0x00, true
	case "w", "a", "s", "d":
		return command[0], true
	}
	return 0, false
}

// Client is a connected session with the deterrent board.
type Client struct {
	adapter    *bluetooth.Adapter
	device     bluetooth.Device
	control    bluetooth.DeviceCharacteristic
	noResponse bool
	lastWrite  time.Time
}

// Connect scans for the board, connects, and resolves the control
// characteristic. An empty address scans by advertised name instead.
func Connect(address string, timeout time.Duration, noResponse bool) (*Client, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("failed to enable BLE adapter: %w", err)
	}

	addr, err := scanForBoard(adapter, address, timeout)
	if err != nil {
		return nil, err
	}

	device, err := adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr.String(), err)
	}

	control, err := findControlCharacteristic(device)
	if err != nil {
		device.Disconnect()
		return nil, err
	}

	return &Client{
		adapter:    adapter,
		device:     device,
		control:    control,
		noResponse: noResponse,
	}, nil
}

// scanForBoard scans until it sees the board, matching by MAC address when
// one is given and by advertised name otherwise.
func scanForBoard(adapter *bluetooth.Adapter, address string, timeout time.Duration) (bluetooth.Address, error) {
	var (
		found bluetooth.Address
		ok    bool
	)

	timer := time.AfterFunc(timeout, func() {
		adapter.StopScan()
	})
	defer timer.Stop()

	err := adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
		if address != "" {
			if !strings.EqualFold(result.Address.String(), address) {
				return
			}
		} else if result.LocalName() != deviceName {
			return
		}
		found = result.Address
		ok = true
		a.StopScan()
	})
	if err != nil {
		return found, fmt.Errorf("scan failed: %w", err)
	}
	if !ok {
		if address != "" {
			return found, fmt.Errorf("device %s not found within %v", address, timeout)
		}
		return found, fmt.Errorf("no device named %q found within %v", deviceName, timeout)
	}
	return found, nil
}

// findControlCharacteristic walks the device's services for the LED control
// characteristic.
func findControlCharacteristic(device bluetooth.Device) (bluetooth.DeviceCharacteristic, error) {
	var control bluetooth.DeviceCharacteristic

	uuid, err := bluetooth.ParseUUID(ledCharacteristicUUID)
	if err != nil {
		return control, fmt.Errorf("bad characteristic UUID: %w", err)
	}

	services, err := device.DiscoverServices(nil)
	if err != nil {
		return control, fmt.Errorf("service discovery failed: %w", err)
	}

	for _, service := range services {
		chars, err := service.DiscoverCharacteristics([]bluetooth.UUID{uuid})
		if err != nil {
			continue
		}
		if len(chars) > 0 {
			return chars[0], nil
		}
	}
	return control, fmt.Errorf("control characteristic %s not found on device", ledCharacteristicUUID)
}

// Send writes one command byte, honoring the write cooldown.
func (c *Client) Send(b byte) error {
	if since := time.Since(c.lastWrite); since < writeCooldown {
		time.Sleep(writeCooldown - since)
	}

	var err error
	if c.noResponse {
		_, err = c.control.WriteWithoutResponse([]byte{b})
	} else {
		_, err = c.control.Write([]byte{b})
	}
	if err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	c.lastWrite = time.Now()
	return nil
}

// Toggle pulses the LED: on, a short hold, then off.
func (c *Client) Toggle() error {
	if err := c.Send(0x01); err != nil {
		return err
	}
	time.Sleep(toggleHold)
	return c.Send(0x00)
}

// Close disconnects from the board.
func (c *Client) Close() error {
	return c.device.Disconnect()
}
