// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sensor

import "testing"

func TestAbsoluteHumidityKnownValues(t *testing.T) {
	tests := []struct {
		tempC, rh float32
		want      float32
		tolerance float32
	}{
		{20, 50, 8.65, 0.2},
		{25, 60, 13.8, 0.3},
		{0, 100, 4.85, 0.2},
		// Tabulated values at 50C.
		{50, 0, 0, 0.5},
		{50, 10, 8.3, 0.5},
		{50, 20, 16.6, 0.5},
		{50, 30, 24.9, 0.5},
	}
	for _, tt := range tests {
		got := absoluteHumidity(tt.tempC, tt.rh)
		diff := got - tt.want
		if diff < 0 {
			diff = -diff
		}
		if diff > tt.tolerance {
			t.Errorf("absoluteHumidity(%v, %v) = %v, want within %v of %v", tt.tempC, tt.rh, got, tt.tolerance, tt.want)
		}
	}
}
