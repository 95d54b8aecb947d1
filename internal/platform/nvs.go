// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package platform

import (
	"encoding/json"
	"errors"
	"os"
	"sync"

	"github.com/periph-home/eclss/internal/wifi"
)

// CredentialStore persists the last station credentials NMCLIRadio
// connected with, in a single JSON file, so the appliance survives a
// reboot without re-running the setup portal.
type CredentialStore struct {
	path string

	mu sync.Mutex
}

// NewCredentialStore creates a store backed by path. The file is created on
// first Save; a missing file is simply "no saved credentials" to Load.
func NewCredentialStore(path string) *CredentialStore {
	return &CredentialStore{path: path}
}

type credentialsFile struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

// Save overwrites the store with creds.
func (s *CredentialStore) Save(creds wifi.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := json.Marshal(credentialsFile{SSID: creds.SSID, Password: creds.Password})
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, b, 0o600)
}

// Load returns the last saved credentials, or ok=false if none exist yet.
func (s *CredentialStore) Load() (wifi.Credentials, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return wifi.Credentials{}, false, nil
	}
	if err != nil {
		return wifi.Credentials{}, false, err
	}
	var cf credentialsFile
	if err := json.Unmarshal(b, &cf); err != nil {
		return wifi.Credentials{}, false, err
	}
	if cf.SSID == "" {
		return wifi.Credentials{}, false, nil
	}
	return wifi.Credentials{SSID: cf.SSID, Password: cf.Password}, true, nil
}
