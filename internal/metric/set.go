// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package metric

import (
	"encoding/json"
	"io"
)

// maxSensors bounds how many distinct sensor-label series a per-sensor
// gauge family can hold. The appliance has a fixed set of five sensor
// adapters, so this leaves headroom without being unbounded.
const maxSensors = 8

// Set is the process-wide registry of every metric family the appliance
// exposes: temperature, humidity, pressure, gas resistance, CO2/eCO2/tVOC,
// and particulate concentration/count broken out by particle diameter.
type Set struct {
	Temperature     *Family[Gauge]
	RelHumidity     *Family[Gauge]
	AbsHumidity     *Family[Gauge]
	Pressure        *Family[Gauge]
	GasResistance   *Family[Gauge]
	CO2             *Family[Gauge]
	ECO2            *Family[Gauge]
	TVOC            *Family[Gauge]
	PMConcentration *Family[Gauge]
	PMCount         *Family[Gauge]
	SensorErrors    *Family[Counter]
}

// NewSet constructs every family with its Prometheus help/unit metadata.
func NewSet() *Set {
	return &Set{
		Temperature:   NewFamily[Gauge]("temperature_degrees_celsius", "Temperature in degrees Celsius.", "celsius", KindGauge, maxSensors),
		RelHumidity:   NewFamily[Gauge]("humidity_percent", "Relative humidity (RH) percentage.", "percent", KindGauge, maxSensors),
		AbsHumidity:   NewFamily[Gauge]("absolute_humidity_grams_m3", "Absolute humidity in grams per cubic meter.", "g/m^3", KindGauge, maxSensors),
		Pressure:      NewFamily[Gauge]("pressure_hpa", "Barometric pressure, in hectopascals (hPa).", "hPa", KindGauge, maxSensors),
		GasResistance: NewFamily[Gauge]("gas_resistance_ohms", "VOC sensor gas resistance, in Ohms.", "Ohms", KindGauge, maxSensors),
		CO2:           NewFamily[Gauge]("co2_ppm", "CO2 in parts per million (ppm).", "ppm", KindGauge, maxSensors),
		ECO2:          NewFamily[Gauge]("eco2_ppm", "VOC-equivalent CO2 (eCO2), in parts per million (ppm).", "ppm", KindGauge, maxSensors),
		TVOC:          NewFamily[Gauge]("tvoc_ppb", "Total Volatile Organic Compounds (TVOC), in parts per billion (ppb).", "ppb", KindGauge, maxSensors),
		// Three particle diameters times {environmental, standard-atmosphere}.
		PMConcentration: NewFamily[Gauge]("pm_concentration_ug_m3", "Particulate matter concentration, in ug/m^3.", "ug/m^3", KindGauge, 8),
		// Six particle-count bins.
		PMCount:         NewFamily[Gauge]("pm_count", "Particle count per 0.1L of air.", "count", KindGauge, 8),
		SensorErrors:    NewFamily[Counter]("sensor_errors_total", "Count of sensor bring-up failures and transitions into the Down state.", "", KindCounter, maxSensors),
	}
}

// RenderPrometheus writes every family's Prometheus exposition in a fixed
// order, one blank line between families.
func (s *Set) RenderPrometheus(w io.Writer) error {
	gaugeFamilies := []*Family[Gauge]{
		s.Temperature, s.RelHumidity, s.AbsHumidity, s.Pressure,
		s.GasResistance, s.CO2, s.ECO2, s.TVOC, s.PMConcentration, s.PMCount,
	}
	for i, f := range gaugeFamilies {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if err := f.FormatPrometheus(w); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	return s.SensorErrors.FormatPrometheus(w)
}

// jsonSet is the wire shape for /sensors.json: one key per metric family.
type jsonSet struct {
	Temperature     map[string]JSONCell `json:"temperature_degrees_celsius"`
	RelHumidity     map[string]JSONCell `json:"humidity_percent"`
	AbsHumidity     map[string]JSONCell `json:"absolute_humidity_grams_m3"`
	Pressure        map[string]JSONCell `json:"pressure_hpa"`
	GasResistance   map[string]JSONCell `json:"gas_resistance_ohms"`
	CO2             map[string]JSONCell `json:"co2_ppm"`
	ECO2            map[string]JSONCell `json:"eco2_ppm"`
	TVOC            map[string]JSONCell `json:"tvoc_ppb"`
	PMConcentration map[string]JSONCell `json:"pm_concentration_ug_m3"`
	PMCount         map[string]JSONCell `json:"pm_count"`
	SensorErrors    map[string]JSONCell `json:"sensor_errors_total"`
}

// MarshalJSON renders the full registry as a single JSON object, one key
// per metric family.
func (s *Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonSet{
		Temperature:     s.Temperature.JSON(),
		RelHumidity:     s.RelHumidity.JSON(),
		AbsHumidity:     s.AbsHumidity.JSON(),
		Pressure:        s.Pressure.JSON(),
		GasResistance:   s.GasResistance.JSON(),
		CO2:             s.CO2.JSON(),
		ECO2:            s.ECO2.JSON(),
		TVOC:            s.TVOC.JSON(),
		PMConcentration: s.PMConcentration.JSON(),
		PMCount:         s.PMCount.JSON(),
		SensorErrors:    s.SensorErrors.JSON(),
	})
}

// AverageAbsHumidity computes the mean of every currently-registered
// absolute-humidity cell. Used by the SGP30 adapter to push cross-sensor
// humidity compensation into the device.
func (s *Set) AverageAbsHumidity() (avg float32, ok bool) {
	var sum float32
	var n int
	s.AbsHumidity.forEach(func(_ Labels, c *Gauge) bool {
		sum += c.Value()
		n++
		return true
	})
	if n == 0 {
		return 0, false
	}
	return sum / float32(n), true
}

// AverageTempHumidity computes the mean temperature and relative humidity
// across every currently-registered sensor, used by the ENS160 adapter for
// on-chip compensation.
func (s *Set) AverageTempHumidity() (temp, rh float32, ok bool) {
	var sumT, sumH float32
	var nT, nH int
	s.Temperature.forEach(func(_ Labels, c *Gauge) bool {
		sumT += c.Value()
		nT++
		return true
	})
	s.RelHumidity.forEach(func(_ Labels, c *Gauge) bool {
		sumH += c.Value()
		nH++
		return true
	})
	if nT == 0 || nH == 0 {
		return 0, 0, false
	}
	return sumT / float32(nT), sumH / float32(nH), true
}
