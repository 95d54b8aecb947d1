// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package httpapi

import (
	"fmt"
	"net/url"
	"strconv"
)

// parseFormBody decodes a form-encoded (ssid=foo&password=bar) request
// body.
func parseFormBody(body []byte) (url.Values, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("malformed form body: %w", err)
	}
	return values, nil
}

// parseUint16 parses a decimal form value into the u16 the control-message
// protocol expects.
func parseUint16(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(n), nil
}
