// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package metric

import (
	"strconv"
	"strings"
)

// JSONCell is the per-series payload emitted under /sensors.json: the
// current value, its monotonic timestamp, the sensor label if present, and
// the full label tuple for series with more than one label.
type JSONCell struct {
	Value     float64           `json:"value"`
	Timestamp float64           `json:"timestamp"`
	Sensor    string            `json:"sensor,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// JSON returns a map of label-tuple key to JSONCell for every registered
// series in this family, suitable for embedding into the top-level
// /sensors.json object under this family's name.
func (f *Family[V]) JSON() map[string]JSONCell {
	out := make(map[string]JSONCell, f.Len())
	f.forEach(func(labels Labels, c *V) bool {
		rv := asCell(c)
		jc := JSONCell{
			Value:     rv.value(),
			Timestamp: rv.timestamp(),
			Sensor:    labels.Get("sensor"),
		}
		if len(labels) > 1 {
			jc.Labels = make(map[string]string, len(labels))
			for _, kv := range labels {
				jc.Labels[kv.Key] = kv.Value
			}
		}
		out[labelKey(labels)] = jc
		return true
	})
	return out
}

// labelKey renders a label tuple as a stable map key, e.g.
// `sensor="scd30",diameter="2.5"`.
func labelKey(labels Labels) string {
	if len(labels) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, kv := range labels {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(kv.Key)
		sb.WriteByte('=')
		sb.WriteString(strconv.Quote(kv.Value))
	}
	return sb.String()
}
