// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package led maps appliance link state onto the single WS2812 indicator
// pixel. Bit-banging the WS2812's 350ns/800ns and 700ns/600ns timing is
// delegated to a vendor pulse-generator driver; this package only decides
// which color to show.
package led

import "fmt"

// Color is a single GRB pixel value, the wire order a WS2812 expects.
type Color struct {
	G, R, B uint8
}

// Status colors: orange for Unconfigured/Disconnected, red for Error,
// yellow for Connecting, green for Connected.
var (
	Orange = Color{G: 0x80, R: 0xFF, B: 0x00}
	Red    = Color{G: 0x00, R: 0xFF, B: 0x00}
	Yellow = Color{G: 0xFF, R: 0xFF, B: 0x00}
	Green  = Color{G: 0xFF, R: 0x00, B: 0x00}
	Off    = Color{}
)

// Status is the set of link states the indicator can represent. It mirrors
// wifi.State one-for-one but lives here, label-free, so this package never
// needs to import the wifi package.
type Status int

// Valid Status values.
const (
	StatusUnconfigured Status = iota
	StatusConnecting
	StatusConnected
	StatusDisconnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusUnconfigured:
		return "Unconfigured"
	case StatusConnecting:
		return "Connecting"
	case StatusConnected:
		return "Connected"
	case StatusDisconnected:
		return "Disconnected"
	case StatusError:
		return "Error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ColorFor maps a link status onto its indicator color.
func ColorFor(s Status) Color {
	switch s {
	case StatusError:
		return Red
	case StatusConnecting:
		return Yellow
	case StatusConnected:
		return Green
	default: // Unconfigured, Disconnected
		return Orange
	}
}

// Driver is the vendor collaborator that actually drives the GPIO pin with
// WS2812 timing. The WiFi coordinator calls Set on every pass of its event
// loop, so the same color may be set several times in a row.
type Driver interface {
	Set(c Color) error
}

// Indicator drives Driver from status transitions. Indicator failures are
// best-effort; callers log them rather than treating them as fatal.
type Indicator struct {
	driver Driver
}

// New wraps a vendor WS2812 driver.
func New(driver Driver) *Indicator {
	return &Indicator{driver: driver}
}

// Set drives the indicator to the color for status s.
func (i *Indicator) Set(s Status) error {
	return i.driver.Set(ColorFor(s))
}
