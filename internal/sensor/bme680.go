// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sensor

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/periph-home/eclss/internal/backoff"
	"github.com/periph-home/eclss/internal/metric"
)

// bme680Addr is the Adafruit breakout's secondary I²C address.
const bme680Addr = 0x77

// BME680 registers used by this driver.
const (
	bme680RegStatus     = 0x1D
	bme680RegPressMSB   = 0x1F
	bme680RegCtrlHum    = 0x72
	bme680RegCtrlMeas   = 0x74
	bme680RegConfig     = 0x75
	bme680RegCtrlGas1   = 0x71
	bme680RegGasWait0   = 0x64
	bme680RegResHeat0   = 0x63
	bme680RegCalib1     = 0x89 // 25 bytes
	bme680RegCalib2     = 0xE1 // 16 bytes
	bme680RegResHeatVal = 0x00
	bme680RegResHeatRng = 0x02
	bme680RegRangeSwErr = 0x04
)

// absHumidityInterval is every Nth poll at which the BME680 adapter
// publishes its absolute-humidity estimate for the other sensors'
// compensation inputs.
const absHumidityInterval = 5

// BME680Control is the BME680 adapter's control-message type. The BME680
// accepts no operator commands; it exists only to satisfy Sensor[C].
type BME680Control struct{}

type bme680Calibration struct {
	t1 uint16
	t2 int16
	t3 int8

	p1  uint16
	p2  int16
	p3  int8
	p4  int16
	p5  int16
	p6  int8
	p7  int8
	p8  int16
	p9  int16
	p10 uint8

	h1 uint16
	h2 uint16
	h3 int8
	h4 int8
	h5 int8
	h6 uint8
	h7 int8

	gh1 int8
	gh2 int16
	gh3 int8

	resHeatRange uint8
	resHeatVal   int8
	rangeSwErr   int8
}

// BME680 is the pressure/VOC/gas-resistance sensor adapter.
type BME680 struct {
	bus     *Bus
	cal     bme680Calibration
	tFine   int32
	ambient float64

	pressure *metric.Gauge
	temp     *metric.Gauge
	rh       *metric.Gauge
	gas      *metric.Gauge

	metrics  *metric.Set
	pollSeq  int
}

var _ Sensor[BME680Control] = (*BME680)(nil)

// BringUp reads the factory calibration block, sets oversampling/heater
// configuration, and registers metric cells.
func (b *BME680) BringUp(ctx context.Context, bus *Bus, metrics *metric.Set) error {
	b.bus = bus
	b.metrics = metrics
	b.ambient = 25

	// The first calibration read doubles as the device probe; give it a
	// bounded retry budget before handing the failure to the supervisor's
	// unbounded backoff loop.
	probe := backoff.NewRetry("bme680.bringup", 10)
	if err := probe.Run(b.readCalibration); err != nil {
		return fmt.Errorf("bme680: reading calibration: %w", err)
	}

	// Oversampling: humidity x1, temperature x2, pressure x16 — matches the
	// "weather monitoring" profile recommended for a slow-poll appliance.
	if err := b.writeReg(bme680RegCtrlHum, 0x01); err != nil {
		return err
	}
	if err := b.writeReg(bme680RegConfig, 0x00); err != nil {
		return err
	}
	// Heater: 300C target, 148ms wait (0x65: 37 x 4ms), single profile 0.
	if err := b.writeReg(bme680RegGasWait0, 0x65); err != nil {
		return err
	}
	resHeat := b.calcResHeat(300)
	if err := b.writeReg(bme680RegResHeat0, resHeat); err != nil {
		return err
	}
	if err := b.writeReg(bme680RegCtrlGas1, 0x10); err != nil { // run_gas=1, nb_conv=0
		return err
	}

	labels := metric.Labels{{Key: "sensor", Value: "bme680"}}
	b.pressure = metrics.Pressure.Register(labels)
	b.temp = metrics.Temperature.Register(labels)
	b.rh = metrics.RelHumidity.Register(labels)
	b.gas = metrics.GasResistance.Register(labels)
	return nil
}

// PollInterval is 2 seconds.
func (b *BME680) PollInterval() time.Duration {
	return 2 * time.Second
}

// HandleControl is a no-op: the BME680 accepts no commands.
func (b *BME680) HandleControl(ctx context.Context, msg BME680Control) error {
	return nil
}

// Poll triggers a forced-mode measurement, waits for completion, and
// publishes the compensated readings.
func (b *BME680) Poll(ctx context.Context) error {
	// oversampling bits (temp x2 = 010, press x16 = 101), mode=forced (01)
	if err := b.writeReg(bme680RegCtrlMeas, 0b010_101_01); err != nil {
		return err
	}

	for {
		status, err := b.readReg(bme680RegStatus)
		if err != nil {
			return err
		}
		if status&0x80 != 0 { // new_data_0
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}

	raw := make([]byte, 15)
	if err := b.bus.Tx(bme680Addr, []byte{bme680RegPressMSB}, raw); err != nil {
		return fmt.Errorf("bme680: reading measurement block: %w", err)
	}

	adcPress := int32(raw[0])<<12 | int32(raw[1])<<4 | int32(raw[2])>>4
	adcTemp := int32(raw[3])<<12 | int32(raw[4])<<4 | int32(raw[5])>>4
	adcHum := int32(raw[6])<<8 | int32(raw[7])
	adcGasRes := int32(raw[13])<<2 | int32(raw[14])>>6
	gasRange := raw[14] & 0x0F
	gasValid := raw[14]&0x20 != 0
	heaterStable := raw[14]&0x10 != 0

	tempC := b.compensateTemp(adcTemp)
	pressPa := b.compensatePressure(adcPress)
	humPct := b.compensateHumidity(adcHum, tempC)

	b.temp.Set(tempC)
	b.pressure.Set(float32(pressPa / 100)) // Pa -> hPa
	b.rh.Set(humPct)

	if gasValid && heaterStable {
		ohms := b.compensateGasResistance(adcGasRes, gasRange)
		b.gas.Set(ohms)
	}

	b.pollSeq++
	if b.pollSeq%absHumidityInterval == 0 {
		abs := absoluteHumidity(tempC, humPct)
		b.metrics.AbsHumidity.Register(metric.Labels{{Key: "sensor", Value: "bme680"}}).Set(abs)
		b.trimHeater()
	}
	return nil
}

// trimHeater re-derives the gas heater set-point from the registry-wide
// average temperature, so the heater compensation tracks the room instead
// of the fixed 25C assumed at bring-up. Changes under a degree are noise
// and skipped.
func (b *BME680) trimHeater() {
	avg, _, ok := b.metrics.AverageTempHumidity()
	if !ok {
		return
	}
	ambient := float64(avg)
	if diff := ambient - b.ambient; diff > -1 && diff < 1 {
		return
	}
	b.ambient = ambient
	if err := b.writeReg(bme680RegResHeat0, b.calcResHeat(300)); err != nil {
		log.Printf("bme680: failed to retrim heater: %s", err)
	}
}

func (b *BME680) readCalibration() error {
	blk1 := make([]byte, 25)
	if err := b.bus.Tx(bme680Addr, []byte{bme680RegCalib1}, blk1); err != nil {
		return err
	}
	blk2 := make([]byte, 16)
	if err := b.bus.Tx(bme680Addr, []byte{bme680RegCalib2}, blk2); err != nil {
		return err
	}
	heaterCal := make([]byte, 5)
	if err := b.bus.Tx(bme680Addr, []byte{0x00}, heaterCal); err != nil {
		return err
	}

	c := &b.cal
	c.t2 = int16(binary.LittleEndian.Uint16(blk1[1:3]))
	c.t3 = int8(blk1[3])
	c.p1 = binary.LittleEndian.Uint16(blk1[5:7])
	c.p2 = int16(binary.LittleEndian.Uint16(blk1[7:9]))
	c.p3 = int8(blk1[9])
	c.p4 = int16(binary.LittleEndian.Uint16(blk1[11:13]))
	c.p5 = int16(binary.LittleEndian.Uint16(blk1[13:15]))
	c.p7 = int8(blk1[15])
	c.p6 = int8(blk1[16])
	c.p8 = int16(binary.LittleEndian.Uint16(blk1[19:21]))
	c.p9 = int16(binary.LittleEndian.Uint16(blk1[21:23]))
	c.p10 = blk1[23]

	c.h2 = uint16(blk2[0])<<4 | uint16(blk2[1])>>4
	c.h1 = uint16(blk2[1]&0x0F) | uint16(blk2[2])<<4
	c.h3 = int8(blk2[3])
	c.h4 = int8(blk2[4])
	c.h5 = int8(blk2[5])
	c.h6 = blk2[6]
	c.h7 = int8(blk2[7])
	c.t1 = binary.LittleEndian.Uint16(blk2[8:10])
	c.gh2 = int16(binary.LittleEndian.Uint16(blk2[10:12]))
	c.gh1 = int8(blk2[12])
	c.gh3 = int8(blk2[13])

	c.resHeatRange = (heaterCal[2] >> 4) & 0x03
	c.resHeatVal = int8(heaterCal[0])
	c.rangeSwErr = int8(heaterCal[4]>>4) & 0x0F
	return nil
}

// compensateTemp returns degrees Celsius, per the Bosch BME680 compensation
// formula, and caches t_fine for the pressure/humidity stages.
func (b *BME680) compensateTemp(adc int32) float32 {
	c := &b.cal
	var1 := (float64(adc)/16384.0 - float64(c.t1)/1024.0) * float64(c.t2)
	var2 := (float64(adc)/131072.0 - float64(c.t1)/8192.0) * (float64(adc)/131072.0 - float64(c.t1)/8192.0) * float64(c.t3) * 16.0
	b.tFine = int32(var1 + var2)
	return float32((var1 + var2) / 5120.0)
}

func (b *BME680) compensatePressure(adc int32) float64 {
	c := &b.cal
	fine := float64(b.tFine)
	var1 := fine/2.0 - 64000.0
	var2 := var1 * var1 * (float64(c.p6) / 131072.0)
	var2 = var2 + var1*float64(c.p5)*2.0
	var2 = var2/4.0 + float64(c.p4)*65536.0
	var1 = (float64(c.p3)*var1*var1/16384.0 + float64(c.p2)*var1) / 524288.0
	var1 = (1.0 + var1/32768.0) * float64(c.p1)
	if var1 == 0 {
		return 0
	}
	calc := 1048576.0 - float64(adc)
	calc = (calc - var2/4096.0) * 6250.0 / var1
	var1 = float64(c.p9) * calc * calc / 2147483648.0
	var2 = calc * (float64(c.p8) / 32768.0)
	var3 := (calc / 256.0) * (calc / 256.0) * (calc / 256.0) * (float64(c.p10) / 131072.0)
	return calc + (var1+var2+var3+float64(c.p7)*128.0)/16.0
}

func (b *BME680) compensateHumidity(adc int32, tempC float32) float32 {
	c := &b.cal
	t := float64(tempC)
	var1 := float64(adc) - (float64(c.h1)*16.0 + (float64(c.h3)/2.0)*t)
	var2 := var1 * (float64(c.h2) / 262144.0 * (1.0 + (float64(c.h4)/16384.0)*t + (float64(c.h5)/1048576.0)*t*t))
	var3 := float64(c.h6) / 16384.0
	var4 := float64(c.h7) / 2097152.0
	hum := var2 + (var3+var4*t)*var2*var2
	if hum > 100 {
		hum = 100
	} else if hum < 0 {
		hum = 0
	}
	return float32(hum)
}

// calcResHeat computes the res_heat_0 register value for a target heater
// temperature in Celsius, per the Bosch gas-sensor heater calibration.
func (b *BME680) calcResHeat(targetTempC float64) byte {
	c := &b.cal
	ambient := b.ambient
	var1 := float64(c.gh1)/16.0 + 49.0
	var2 := (float64(c.gh2)/32768.0*0.0005 + 0.00235) * targetTempC
	var3 := float64(c.gh3) / 1024.0 * ambient
	var4 := var1 * (1.0 + var2)
	var5 := var4 + var3
	resHeat := 3.4*(var5*(4.0/(4.0+float64(c.resHeatRange)))*(1.0/(1.0+float64(c.resHeatVal)*0.002)) - 25.0)
	return byte(resHeat)
}

// gasRangeConstants are the lookup tables from the Bosch datasheet used to
// convert the raw heater-resistance ADC reading into ohms.
var gasRangeConst1 = [16]float64{1, 1, 1, 1, 1, 0.99, 1, 0.992, 1, 1, 0.998, 0.995, 1, 0.99, 1, 1}
var gasRangeConst2 = [16]float64{8000000, 4000000, 2000000, 1000000, 499500.4995, 248262.1648, 125000, 63004.03226, 31281.28128, 15625, 7812.5, 3906.25, 1953.125, 976.5625, 488.28125, 244.140625}

func (b *BME680) compensateGasResistance(adc int32, gasRange byte) float32 {
	var1 := (1340.0 + 5.0*float64(b.cal.rangeSwErr)) * gasRangeConst1[gasRange&0x0F]
	gasResistance := var1 * gasRangeConst2[gasRange&0x0F] / (float64(adc) - 512.0 + var1)
	return float32(gasResistance)
}

func (b *BME680) writeReg(reg byte, val byte) error {
	return b.bus.Tx(bme680Addr, []byte{reg, val}, nil)
}

func (b *BME680) readReg(reg byte) (byte, error) {
	out := make([]byte, 1)
	if err := b.bus.Tx(bme680Addr, []byte{reg}, out); err != nil {
		return 0, err
	}
	return out[0], nil
}

// absoluteHumidity converts relative humidity and temperature to absolute
// humidity in g/m^3 using a Magnus-Tetens variant:
// h = 2.1674 * 6.112 * exp(17.64*T/(T+243.5)) * RH / (273.15+T).
func absoluteHumidity(tempC, relHumidityPct float32) float32 {
	t := float64(tempC)
	rh := float64(relHumidityPct)
	abs := 2.1674 * 6.112 * math.Exp((17.64*t)/(t+243.5)) * rh / (273.15 + t)
	return float32(abs)
}
