// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package platform provides the Linux vendor collaborators the rest of the
// appliance only knows through interfaces: a wifi.Radio backed by nmcli,
// a file-backed credentials store standing in for the vendor NVS
// partition, and a gpio-backed led.Driver. These pieces are vendor
// plumbing, not appliance logic.
package platform

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/periph-home/eclss/internal/wifi"
)

// NMCLIRadio drives a Linux WiFi interface through nmcli(1), the
// NetworkManager CLI. It satisfies wifi.Radio without touching netlink or
// wpa_supplicant directly; radio control stays behind a handful of nmcli
// verbs.
type NMCLIRadio struct {
	Interface string
	Store     *CredentialStore

	AccessPointSSID     string
	AccessPointPassword string
	AccessPointChannel  int

	mu        sync.Mutex
	events    chan wifi.Event
	apClients bool
}

// NewNMCLIRadio creates a radio bound to a network interface (e.g.
// "wlan0"). store persists the last station credentials that connected
// successfully, so Run can restore them across a restart.
func NewNMCLIRadio(iface string, store *CredentialStore) *NMCLIRadio {
	return &NMCLIRadio{
		Interface: iface,
		Store:     store,
		events:    make(chan wifi.Event, 8),
	}
}

// Start brings the interface up under NetworkManager's management.
func (r *NMCLIRadio) Start(ctx context.Context) error {
	return r.run(ctx, "radio", "wifi", "on")
}

// Events returns the event stream the coordinator selects on. nmcli has no
// native push API this driver subscribes to, so state transitions are
// inferred from the command results below and posted here directly.
func (r *NMCLIRadio) Events() <-chan wifi.Event {
	return r.events
}

// HasAPClient reports whether a station is associated to our self-hosted
// access point, which the coordinator checks before a reconnect attempt.
// This driver does not observe softAP associations: nothing sets
// apClients, so HasAPClient always reports false and the coordinator never
// skips a reconnect on its account.
func (r *NMCLIRadio) HasAPClient() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.apClients
}

// Scan lists visible access points via `nmcli -t -f ssid,chan,signal dev
// wifi list`.
func (r *NMCLIRadio) Scan(ctx context.Context) ([]wifi.AccessPoint, error) {
	out, err := r.output(ctx, "-t", "-f", "SSID,CHAN,SIGNAL", "dev", "wifi", "list", "ifname", r.Interface)
	if err != nil {
		return nil, err
	}
	var aps []wifi.AccessPoint
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		fields := strings.Split(sc.Text(), ":")
		if len(fields) != 3 || fields[0] == "" {
			continue
		}
		channel, _ := strconv.Atoi(fields[1])
		rssi, _ := strconv.Atoi(fields[2])
		aps = append(aps, wifi.AccessPoint{SSID: fields[0], Channel: channel, RSSI: rssi})
	}
	return aps, nil
}

// Connect associates to creds.SSID as a station. channel is advisory; nmcli
// picks the band/channel itself from its scan cache.
func (r *NMCLIRadio) Connect(ctx context.Context, creds wifi.Credentials, channel int) error {
	args := []string{"dev", "wifi", "connect", creds.SSID, "ifname", r.Interface}
	if creds.Password != "" {
		args = append(args, "password", creds.Password)
	}
	if err := r.run(ctx, args...); err != nil {
		r.events <- wifi.Event{Kind: wifi.EventStaDisconnected}
		return err
	}
	if r.Store != nil {
		if err := r.Store.Save(creds); err != nil {
			log.Printf("platform: failed to persist wifi credentials: %s", err)
		}
	}
	r.events <- wifi.Event{Kind: wifi.EventStaConnected}
	r.events <- wifi.Event{Kind: wifi.EventIPAssigned}
	return nil
}

// StartAccessPoint brings up the appliance's own softAP, used before a
// station configuration exists or after Connect gives up.
func (r *NMCLIRadio) StartAccessPoint(ctx context.Context) error {
	if r.AccessPointSSID == "" {
		return fmt.Errorf("platform: no access point ssid configured")
	}
	return r.run(ctx, "dev", "wifi", "hotspot",
		"ifname", r.Interface,
		"ssid", r.AccessPointSSID,
		"password", r.AccessPointPassword,
		"band", "bg",
		"channel", strconv.Itoa(r.AccessPointChannel))
}

// SavedCredentials loads the last station credentials this radio
// successfully connected with, if any.
func (r *NMCLIRadio) SavedCredentials(ctx context.Context) (wifi.Credentials, bool, error) {
	if r.Store == nil {
		return wifi.Credentials{}, false, nil
	}
	return r.Store.Load()
}

func (r *NMCLIRadio) run(ctx context.Context, args ...string) error {
	_, err := r.output(ctx, args...)
	return err
}

func (r *NMCLIRadio) output(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "nmcli", args...)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("platform: nmcli %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}
