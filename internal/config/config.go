// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config contains the structures used to represent the YAML file
// that configures an eclss appliance.
//
// Configuration
//
// The configuration yaml file is expected to look like this:
//
//   board: "eclss-rpi"
//   i2c:
//     bus: ""
//   http:
//     listen: ":80"
//   mdns:
//     instance: "eclss"
//   wifi:
//     interface: "wlan0"
//   access_point:
//     ssid: "eclss-setup"
//     channel: 6
//   sensors:
//     scd30:
//       poll_interval: 2s
//     sgp30:
//       poll_interval: 988ms
//
package config

import (
	"bytes"
	"errors"
	"time"

	"gopkg.in/yaml.v2"
)

// Root is the configuration file format.
type Root struct {
	Board       string            `yaml:"board"`
	I2C         I2C               `yaml:"i2c"`
	HTTP        HTTP              `yaml:"http"`
	MDNS        MDNS              `yaml:"mdns"`
	WiFi        WiFi              `yaml:"wifi"`
	AccessPoint AccessPoint       `yaml:"access_point"`
	Sensors     map[string]Sensor `yaml:"sensors"`

	_ struct{}
}

// LoadYaml loads the config from serialized yaml.
//
// It deserializes with strict checking, so a typo'd key is caught at load
// time rather than silently ignored, then validates the result. The
// validation is not exhaustive; some combinations can still fail later when
// passed to appliance.New.
func (r *Root) LoadYaml(b []byte) error {
	d := yaml.NewDecoder(bytes.NewReader(b))
	d.SetStrict(true)
	if err := d.Decode(r); err != nil {
		return err
	}
	return r.validate()
}

func (r *Root) validate() error {
	if err := r.I2C.validate(); err != nil {
		return err
	}
	if err := r.HTTP.validate(); err != nil {
		return err
	}
	if err := r.AccessPoint.validate(); err != nil {
		return err
	}
	for name, s := range r.Sensors {
		if err := s.validate(); err != nil {
			return errors.New("sensors/" + name + ": " + err.Error())
		}
	}
	return nil
}

// SensorPollInterval returns the configured poll-interval override for
// name, or (0, false) if the operator didn't override it — the adapter's
// own PollInterval() default then applies.
func (r *Root) SensorPollInterval(name string) (time.Duration, bool) {
	s, ok := r.Sensors[name]
	if !ok || s.PollInterval == 0 {
		return 0, false
	}
	return s.PollInterval, true
}

// I2C is the "i2c" section: which bus the sensor supervisors share.
type I2C struct {
	// Bus names the periph.io i2c bus to open, e.g. "/dev/i2c-1". An empty
	// string opens the default bus (periph.io/x/conn/v3/i2c/i2creg.Open("")).
	Bus string `yaml:"bus"`

	_ struct{}
}

func (i *I2C) validate() error { return nil }

// HTTP is the "http" section.
type HTTP struct {
	// Listen is the address net/http.Server listens on, e.g. ":80".
	Listen string `yaml:"listen"`

	_ struct{}
}

func (h *HTTP) validate() error {
	if h.Listen == "" {
		return errors.New("http: listen is required")
	}
	return nil
}

// MDNS is the "mdns" section: the advertised instance name.
type MDNS struct {
	Instance string `yaml:"instance"`

	_ struct{}
}

// WiFi is the "wifi" section: which Linux interface the station and softAP
// run on, and where the last station credentials are persisted.
type WiFi struct {
	// Interface is the wireless interface name; defaults to "wlan0".
	Interface string `yaml:"interface"`
	// StateFile is where the last station credentials are saved; defaults
	// to "/var/lib/eclss/wifi.json".
	StateFile string `yaml:"state_file"`

	_ struct{}
}

// InterfaceOrDefault returns Interface, or "wlan0" if unset.
func (w *WiFi) InterfaceOrDefault() string {
	if w.Interface == "" {
		return "wlan0"
	}
	return w.Interface
}

// StateFileOrDefault returns StateFile, or the default path if unset.
func (w *WiFi) StateFileOrDefault() string {
	if w.StateFile == "" {
		return "/var/lib/eclss/wifi.json"
	}
	return w.StateFile
}

// AccessPoint is the "access_point" section: the appliance's own softAP,
// used before a station configuration exists or after a hard WiFi failure.
type AccessPoint struct {
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password"`
	Channel  int    `yaml:"channel"`

	_ struct{}
}

func (a *AccessPoint) validate() error {
	if a.SSID == "" {
		return errors.New("access_point: ssid is required")
	}
	if a.Channel < 0 || a.Channel > 14 {
		return errors.New("access_point: channel out of range")
	}
	return nil
}

// Sensor is a per-sensor override in the "sensors" map, keyed by the
// adapter's name (scd30, bme680, sgp30, ens160, pmsa003i).
type Sensor struct {
	PollInterval time.Duration `yaml:"poll_interval"`

	_ struct{}
}

func (s *Sensor) validate() error {
	if s.PollInterval < 0 {
		return errors.New("poll_interval must not be negative")
	}
	return nil
}
