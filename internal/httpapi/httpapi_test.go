// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/periph-home/eclss/internal/actor"
	"github.com/periph-home/eclss/internal/led"
	"github.com/periph-home/eclss/internal/metric"
	"github.com/periph-home/eclss/internal/sensor"
	"github.com/periph-home/eclss/internal/wifi"
)

type fakeRadio struct{ aps []wifi.AccessPoint }

func (f *fakeRadio) Start(ctx context.Context) error { return nil }
func (f *fakeRadio) Scan(ctx context.Context) ([]wifi.AccessPoint, error) {
	return f.aps, nil
}
func (f *fakeRadio) Connect(ctx context.Context, creds wifi.Credentials, channel int) error {
	return nil
}
func (f *fakeRadio) StartAccessPoint(ctx context.Context) error { return nil }
func (f *fakeRadio) SavedCredentials(ctx context.Context) (wifi.Credentials, bool, error) {
	return wifi.Credentials{}, false, nil
}
func (f *fakeRadio) HasAPClient() bool         { return false }
func (f *fakeRadio) Events() <-chan wifi.Event { return make(chan wifi.Event) }

func newTestAPI(t *testing.T) (*API, actor.Client[sensor.SCD30Command, actor.Result[struct{}]], actor.Actor[sensor.SCD30Command, actor.Result[struct{}]]) {
	t.Helper()
	metrics := metric.NewSet()
	status := sensor.NewStatusRegistry(4)
	client, srv := actor.Split[sensor.SCD30Command, actor.Result[struct{}]](1)
	coord := wifi.New(&fakeRadio{aps: []wifi.AccessPoint{{SSID: "home"}, {SSID: "office"}}}, led.New(noopDriver{}), 4)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = coord.Run(ctx) }()
	// Run performs its scan before entering the event loop; wait for the AP
	// list to be visible so /wifi/ssids.json has something to serve.
	deadline := time.After(time.Second)
	for len(coord.AccessPoints()) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for initial scan")
		case <-time.After(time.Millisecond):
		}
	}

	api := &API{Metrics: metrics, Status: status, CO2Control: client, WiFi: coord}
	return api, client, srv
}

type noopDriver struct{}

func (noopDriver) Set(c led.Color) error { return nil }

func TestHandleIndexServesHTML(t *testing.T) {
	api, _, _ := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html" {
		t.Fatalf("content-type = %q, want text/html", ct)
	}
}

func TestHandleMetricsContentType(t *testing.T) {
	api, _, _ := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != metric.ContentType {
		t.Fatalf("content-type = %q, want %q", ct, metric.ContentType)
	}
}

func TestHandleStatusJSON(t *testing.T) {
	api, _, _ := newTestAPI(t)
	api.Status.Register("scd30")
	req := httptest.NewRequest(http.MethodGet, "/sensors/status.json", nil)
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got["scd30"] != "Missing" {
		t.Fatalf(`got["scd30"] = %q, want Missing`, got["scd30"])
	}
}

func TestHandleWiFiSSIDs(t *testing.T) {
	api, _, _ := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/wifi/ssids.json", nil)
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var ssids []string
	if err := json.Unmarshal(w.Body.Bytes(), &ssids); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(ssids) != 2 || ssids[0] != "home" || ssids[1] != "office" {
		t.Fatalf("ssids = %v, want [home office]", ssids)
	}
}

func TestHandleWiFiSelectEnqueues(t *testing.T) {
	api, _, _ := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/wifi/select", strings.NewReader("ssid=home&password=hunter2"))
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestHandleWiFiSelectRejectsMissingSSID(t *testing.T) {
	api, _, _ := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/wifi/select", strings.NewReader("password=hunter2"))
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleWiFiSelectRejectsEmptyBody(t *testing.T) {
	api, _, _ := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/wifi/select", strings.NewReader(""))
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleCO2CalibrateRoundTrips(t *testing.T) {
	api, _, srv := newTestAPI(t)

	go func() {
		env, err := srv.Recv(context.Background())
		if err != nil {
			return
		}
		if env.Req.Kind != sensor.SCD30ForceCalibrate || env.Req.PPM != 420 {
			env.Reply(actor.Err[struct{}](errFromString("unexpected request")))
			return
		}
		env.Reply(actor.Ok(struct{}{}))
	}()

	req := httptest.NewRequest(http.MethodPost, "/sensors/co2/calibrate", strings.NewReader("ppm=420"))
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %q, want 200", w.Code, w.Body.String())
	}
}

func TestHandleCO2CalibrateMalformedPPM(t *testing.T) {
	api, _, _ := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/sensors/co2/calibrate", strings.NewReader("ppm=not-a-number"))
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

type stringError string

func (e stringError) Error() string { return string(e) }

func errFromString(s string) error { return stringError(s) }
