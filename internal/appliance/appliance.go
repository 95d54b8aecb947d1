// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package appliance wires every subsystem into one running process: the
// five sensor supervisors, the WiFi coordinator, the indicator LED, the
// metric and status registries, and the HTTP server, then advertises the
// result over mDNS. Everything is constructed up front and closed down in
// reverse order.
package appliance

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"periph.io/x/conn/v3/i2c/i2creg"

	"github.com/periph-home/eclss/internal/actor"
	"github.com/periph-home/eclss/internal/config"
	"github.com/periph-home/eclss/internal/httpapi"
	"github.com/periph-home/eclss/internal/led"
	"github.com/periph-home/eclss/internal/metric"
	"github.com/periph-home/eclss/internal/platform"
	"github.com/periph-home/eclss/internal/sensor"
	"github.com/periph-home/eclss/internal/wifi"
)

const version = "0.1"

// controlCapacity is the actor channel buffer depth for every sensor's
// control channel.
const controlCapacity = 10

// credentialsCapacity bounds the WiFi coordinator's incoming-credentials
// channel, fed by the /wifi/select handler.
const credentialsCapacity = 10

// Appliance is the fully wired process: every supervisor goroutine, the
// WiFi coordinator goroutine, the HTTP server, and mDNS advertisement.
type Appliance struct {
	cfg *config.Root

	metrics *metric.Set
	status  *sensor.StatusRegistry

	bus *sensor.Bus
	i2c interface{ Close() error }

	wifi *wifi.Coordinator
	zc   *zeroconf.Server

	srv *http.Server
	ln  net.Listener

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens the I²C bus, constructs the metric/status registries, starts
// one supervisor goroutine per sensor adapter, starts the WiFi coordinator,
// and starts the HTTP server. It returns a running Appliance; call Close to
// shut everything down in reverse order.
func New(ctx context.Context, cfg *config.Root) (a *Appliance, err error) {
	runCtx, cancel := context.WithCancel(ctx)
	a = &Appliance{cfg: cfg, cancel: cancel}
	defer func() {
		if err != nil {
			cancel()
			_ = a.Close()
		}
	}()

	p, err := i2creg.Open(cfg.I2C.Bus)
	if err != nil {
		return nil, fmt.Errorf("appliance: opening i2c bus %q: %w", cfg.I2C.Bus, err)
	}
	a.i2c = p
	a.bus = sensor.NewBus(p)

	a.metrics = metric.NewSet()
	a.status = sensor.NewStatusRegistry(8)

	indicator, err := a.buildIndicator()
	if err != nil {
		return nil, err
	}

	co2Client := a.startSensors(runCtx)

	radio := platform.NewNMCLIRadio(cfg.WiFi.InterfaceOrDefault(), platform.NewCredentialStore(cfg.WiFi.StateFileOrDefault()))
	radio.AccessPointSSID = cfg.AccessPoint.SSID
	radio.AccessPointPassword = cfg.AccessPoint.Password
	radio.AccessPointChannel = cfg.AccessPoint.Channel
	a.wifi = wifi.New(radio, indicator, credentialsCapacity)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.wifi.Run(runCtx); err != nil && runCtx.Err() == nil {
			log.Printf("appliance: wifi coordinator exited: %s", err)
		}
	}()

	if err := a.startHTTP(runCtx, co2Client); err != nil {
		return nil, err
	}

	if err := a.advertiseMDNS(); err != nil {
		log.Printf("appliance: mdns advertisement failed: %s", err)
	}

	return a, nil
}

// buildIndicator resolves the three GPIO pins used to approximate the
// WS2812 indicator (see internal/platform.GPIOLed).
func (a *Appliance) buildIndicator() (*led.Indicator, error) {
	driver, err := platform.NewGPIOLed("GPIO17", "GPIO27", "GPIO22")
	if err != nil {
		log.Printf("appliance: indicator unavailable, running without one: %s", err)
		return led.New(noopDriver{}), nil
	}
	return led.New(driver), nil
}

type noopDriver struct{}

func (noopDriver) Set(led.Color) error { return nil }

// startSensors launches one supervisor goroutine per adapter and returns
// the Client half of the SCD30 control channel, the only sensor the HTTP
// surface can send commands to (the CO2 calibration endpoint).
func (a *Appliance) startSensors(ctx context.Context) actor.Client[sensor.SCD30Command, actor.Result[struct{}]] {
	scd30Client, scd30Actor := actor.Split[sensor.SCD30Command, actor.Result[struct{}]](controlCapacity)
	scd30 := sensor.New("scd30", &sensor.SCD30{}, a.bus, a.metrics, a.status.Register("scd30"), scd30Actor)
	if d, ok := a.cfg.SensorPollInterval("scd30"); ok {
		scd30.WithPollInterval(d)
	}
	a.spawn(ctx, scd30.Run)

	_, bme680Actor := actor.Split[sensor.BME680Control, actor.Result[struct{}]](controlCapacity)
	bme680 := sensor.New("bme680", &sensor.BME680{}, a.bus, a.metrics, a.status.Register("bme680"), bme680Actor)
	if d, ok := a.cfg.SensorPollInterval("bme680"); ok {
		bme680.WithPollInterval(d)
	}
	a.spawn(ctx, bme680.Run)

	_, sgp30Actor := actor.Split[sensor.SGP30Control, actor.Result[struct{}]](controlCapacity)
	sgp30 := sensor.New("sgp30", &sensor.SGP30{}, a.bus, a.metrics, a.status.Register("sgp30"), sgp30Actor)
	if d, ok := a.cfg.SensorPollInterval("sgp30"); ok {
		sgp30.WithPollInterval(d)
	}
	a.spawn(ctx, sgp30.Run)

	_, ens160Actor := actor.Split[sensor.ENS160Control, actor.Result[struct{}]](controlCapacity)
	ens160 := sensor.New("ens160", &sensor.ENS160{}, a.bus, a.metrics, a.status.Register("ens160"), ens160Actor)
	if d, ok := a.cfg.SensorPollInterval("ens160"); ok {
		ens160.WithPollInterval(d)
	}
	a.spawn(ctx, ens160.Run)

	_, pmsa003iActor := actor.Split[sensor.PMSA003IControl, actor.Result[struct{}]](controlCapacity)
	pmsa003i := sensor.New("pmsa003i", &sensor.PMSA003I{}, a.bus, a.metrics, a.status.Register("pmsa003i"), pmsa003iActor)
	if d, ok := a.cfg.SensorPollInterval("pmsa003i"); ok {
		pmsa003i.WithPollInterval(d)
	}
	a.spawn(ctx, pmsa003i.Run)

	return scd30Client
}

// spawn runs fn(ctx) on its own goroutine tracked by the shutdown
// WaitGroup.
func (a *Appliance) spawn(ctx context.Context, fn func(ctx context.Context)) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn(ctx)
	}()
}

func (a *Appliance) startHTTP(ctx context.Context, co2Client actor.Client[sensor.SCD30Command, actor.Result[struct{}]]) error {
	api := &httpapi.API{
		Metrics:    a.metrics,
		Status:     a.status,
		CO2Control: co2Client,
		WiFi:       a.wifi,
	}
	a.srv = &http.Server{Handler: api.Router()}

	ln, err := net.Listen("tcp", a.cfg.HTTP.Listen)
	if err != nil {
		return fmt.Errorf("appliance: listening on %q: %w", a.cfg.HTTP.Listen, err)
	}
	a.ln = ln

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("appliance: http server exited: %s", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.srv.Shutdown(shutdownCtx)
	}()

	return nil
}

// advertiseMDNS registers both the plain HTTP surface and the Prometheus
// scrape endpoint.
func (a *Appliance) advertiseMDNS() error {
	instance := a.cfg.MDNS.Instance
	if instance == "" {
		h, err := os.Hostname()
		if err != nil {
			return err
		}
		instance = h
	}
	_, portStr, _ := net.SplitHostPort(a.cfg.HTTP.Listen)
	port := 80
	if portStr != "" {
		fmt.Sscanf(portStr, "%d", &port)
	}

	text := []string{
		"path=/metrics",
		"version=" + version,
	}
	if a.cfg.Board != "" {
		text = append(text, "board="+a.cfg.Board)
	}
	log.Printf("appliance: advertising via zeroconf %v", text)
	zc, err := zeroconf.Register(instance, "_http._tcp", "local.", port, text, nil)
	if err != nil {
		return fmt.Errorf("appliance: zeroconf register: %w", err)
	}
	a.zc = zc

	if _, err := zeroconf.Register(instance+"-metrics", "_prometheus-http._tcp", "local.", port, text, nil); err != nil {
		log.Printf("appliance: zeroconf register (prometheus): %s", err)
	}
	return nil
}

// Close shuts down the HTTP server, mDNS advertisement, WiFi coordinator,
// and every sensor supervisor, in roughly the reverse order they were
// started, then waits for their goroutines to exit.
func (a *Appliance) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.zc != nil {
		a.zc.Shutdown()
	}
	var err error
	if a.ln != nil {
		err = a.ln.Close()
	}
	if a.i2c != nil {
		if err2 := a.i2c.Close(); err == nil {
			err = err2
		}
	}
	a.wg.Wait()
	return err
}
