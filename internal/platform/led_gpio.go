// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package platform

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/periph-home/eclss/internal/led"
)

// GPIOLed drives the status indicator with three plain GPIO pins (one per
// color channel) instead of bit-banging a WS2812's single-wire protocol.
// It satisfies led.Driver by thresholding each channel of the requested
// color to on/off.
type GPIOLed struct {
	g, r, b gpio.PinIO
}

// NewGPIOLed resolves three pin names via periph.io's global pin registry.
func NewGPIOLed(gPin, rPin, bPin string) (*GPIOLed, error) {
	l := &GPIOLed{
		g: gpioreg.ByName(gPin),
		r: gpioreg.ByName(rPin),
		b: gpioreg.ByName(bPin),
	}
	for name, p := range map[string]gpio.PinIO{gPin: l.g, rPin: l.r, bPin: l.b} {
		if p == nil {
			return nil, fmt.Errorf("platform: unknown pin %q", name)
		}
	}
	return l, nil
}

var _ led.Driver = (*GPIOLed)(nil)

// Set drives each channel high if its component is above the midpoint,
// giving a coarse eight-color approximation of the requested pixel.
func (l *GPIOLed) Set(c led.Color) error {
	if err := l.g.Out(gpio.Level(c.G >= 0x80)); err != nil {
		return err
	}
	if err := l.r.Out(gpio.Level(c.R >= 0x80)); err != nil {
		return err
	}
	return l.b.Out(gpio.Level(c.B >= 0x80))
}
