// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package httpapi implements the appliance's HTTP surface: the landing
// page, Prometheus and JSON metric scrapes, sensor status, CO2
// calibration, and the WiFi setup endpoints.
package httpapi

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/maruel/natural"

	"github.com/periph-home/eclss/internal/actor"
	"github.com/periph-home/eclss/internal/metric"
	"github.com/periph-home/eclss/internal/sensor"
	"github.com/periph-home/eclss/internal/wifi"
)


// maxBodySize caps the doubling-buffer body read in readBody.
const maxBodySize = 1 << 20

// landingPage is served at GET /.
//
//go:embed index.html
var landingPage []byte

// API wires the metric registry, sensor status registry, CO2 calibration
// control channel, and WiFi coordinator into a chi router.
type API struct {
	Metrics    *metric.Set
	Status     *sensor.StatusRegistry
	CO2Control actor.Client[sensor.SCD30Command, actor.Result[struct{}]]
	WiFi       *wifi.Coordinator
}

// Router builds the chi router for every route the appliance serves.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/", a.handleIndex)
	r.Get("/metrics", a.handleMetrics)
	r.Get("/sensors.json", a.handleSensorsJSON)
	r.Get("/sensors/status.json", a.handleStatusJSON)
	r.Post("/sensors/co2/calibrate", a.handleCO2Calibrate)
	r.Get("/wifi/ssids.json", a.handleWiFiSSIDs)
	r.Post("/wifi/select", a.handleWiFiSelect)
	return r
}

func (a *API) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write(landingPage)
}

func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", metric.ContentType)
	if err := a.Metrics.RenderPrometheus(w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (a *API) handleSensorsJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(a.Metrics); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (a *API) handleStatusJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(a.Status.JSON()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (a *API) handleCO2Calibrate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	values, err := parseFormBody(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ppm, err := parseUint16(values.Get("ppm"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid ppm: %s", err), http.StatusBadRequest)
		return
	}

	cmd := sensor.SCD30Command{Kind: sensor.SCD30ForceCalibrate, PPM: ppm}
	env, err := a.CO2Control.TrySend(cmd)
	if err != nil {
		writeTrySendError(w, err)
		return
	}
	rsp, err := env.Wait(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if rsp.Err != nil {
		http.Error(w, rsp.Err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

func (a *API) handleWiFiSSIDs(w http.ResponseWriter, r *http.Request) {
	aps := a.WiFi.AccessPoints()
	ssids := make([]string, len(aps))
	for i, ap := range aps {
		ssids[i] = ap.SSID
	}
	// Natural sort (so "ap2" sorts before "ap10") makes the setup portal's
	// SSID list predictable for a human scanning it.
	sort.Sort(natural.StringSlice(ssids))
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ssids)
}

func (a *API) handleWiFiSelect(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	values, err := parseFormBody(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ssid := values.Get("ssid")
	password := values.Get("password")
	if ssid == "" {
		http.Error(w, "ssid is required", http.StatusBadRequest)
		return
	}

	select {
	case a.WiFi.Credentials() <- wifi.Credentials{SSID: ssid, Password: password}:
		w.WriteHeader(http.StatusOK)
	default:
		http.Error(w, "wifi credentials channel full", http.StatusInternalServerError)
	}
}

// readBody grows its buffer 2x at a time until the reader signals EOF or
// maxBodySize is reached. An empty body is rejected.
func readBody(r io.Reader) ([]byte, error) {
	buf := make([]byte, 512)
	total := 0
	for {
		n, err := r.Read(buf[total:])
		total += n
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if total == len(buf) {
			if len(buf) >= maxBodySize {
				return nil, errors.New("request body too large")
			}
			grown := make([]byte, len(buf)*2)
			copy(grown, buf)
			buf = grown
		}
	}
	if total == 0 {
		return nil, errors.New("empty request body")
	}
	return buf[:total], nil
}

func writeTrySendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, actor.ErrFull):
		http.Error(w, "sensor control channel full", http.StatusInternalServerError)
	case errors.Is(err, actor.ErrClosed):
		http.Error(w, "sensor control channel closed", http.StatusInternalServerError)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
