// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const sampleConf = `
board: "eclss-rpi"

i2c:
  bus: "/dev/i2c-1"

http:
  listen: ":8080"

mdns:
  instance: "eclss-kitchen"

access_point:
  ssid: "eclss-setup"
  password: "sensors123"
  channel: 6

sensors:
  scd30:
    poll_interval: 2s
  sgp30:
    poll_interval: 988ms
`

func TestRootLoadYaml(t *testing.T) {
	got := Root{}
	if err := got.LoadYaml([]byte(sampleConf)); err != nil {
		t.Fatal(err)
	}
	want := Root{
		Board: "eclss-rpi",
		I2C:   I2C{Bus: "/dev/i2c-1"},
		HTTP:  HTTP{Listen: ":8080"},
		MDNS:  MDNS{Instance: "eclss-kitchen"},
		AccessPoint: AccessPoint{
			SSID:     "eclss-setup",
			Password: "sensors123",
			Channel:  6,
		},
		Sensors: map[string]Sensor{
			"scd30": {PollInterval: 2 * time.Second},
			"sgp30": {PollInterval: 988 * time.Millisecond},
		},
	}
	opts := cmpopts.IgnoreUnexported(Root{}, I2C{}, HTTP{}, MDNS{}, WiFi{}, AccessPoint{}, Sensor{})
	if diff := cmp.Diff(want, got, opts); diff != "" {
		t.Errorf("Root mismatch (-want +got):\n%s", diff)
	}
}

func TestRootLoadYaml_Err(t *testing.T) {
	got := Root{}
	if err := got.LoadYaml([]byte("unexpected: false")); err == nil {
		t.Fatal("expected error")
	}
}

func TestRootLoadYaml_MissingAccessPointSSID(t *testing.T) {
	got := Root{}
	err := got.LoadYaml([]byte(`
http:
  listen: ":80"
`))
	if err == nil {
		t.Fatal("expected error for missing access_point.ssid")
	}
}

func TestSensorPollInterval(t *testing.T) {
	r := Root{}
	if err := r.LoadYaml([]byte(sampleConf)); err != nil {
		t.Fatal(err)
	}
	if d, ok := r.SensorPollInterval("scd30"); !ok || d != 2*time.Second {
		t.Errorf("SensorPollInterval(scd30) = %v, %v; want 2s, true", d, ok)
	}
	if _, ok := r.SensorPollInterval("bme680"); ok {
		t.Errorf("SensorPollInterval(bme680) should report no override")
	}
}
