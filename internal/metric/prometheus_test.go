// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package metric

import (
	"strings"
	"testing"
)

func TestFormatPrometheusExact(t *testing.T) {
	f := NewFamily[Gauge]("test_gauge", "a test gauge", "tests", KindGauge, 4)
	c1 := f.Register(Labels{{Key: "metric", Value: "1"}, {Key: "label2", Value: "foo"}})
	c1.Set(10.0)
	c2 := f.Register(Labels{{Key: "metric", Value: "2"}, {Key: "label2", Value: "bar"}})
	c2.Set(22.2)

	var sb strings.Builder
	if err := f.FormatPrometheus(&sb); err != nil {
		t.Fatalf("FormatPrometheus: %v", err)
	}
	want := "# TYPE test_gauge gauge\n" +
		"# HELP test_gauge a test gauge\n" +
		"# UNIT test_gauge tests\n" +
		`test_gauge{metric="1",label2="foo"} 10.0` + "\n" +
		`test_gauge{metric="2",label2="bar"} 22.2` + "\n"
	if got := sb.String(); got != want {
		t.Fatalf("got:\n%q\nwant:\n%q", got, want)
	}
}

func TestFamilyRegisterDedup(t *testing.T) {
	f := NewFamily[Gauge]("g", "", "", KindGauge, 2)
	labels := Labels{{Key: "sensor", Value: "scd30"}}
	a := f.Register(labels)
	b := f.Register(labels)
	if a != b {
		t.Fatalf("expected Register to return the same cell for the same label tuple")
	}
	if f.Len() != 1 {
		t.Fatalf("expected len 1, got %d", f.Len())
	}
}

func TestFamilyCapacity(t *testing.T) {
	f := NewFamily[Gauge]("g", "", "", KindGauge, 1)
	if c := f.Register(Labels{{Key: "a", Value: "1"}}); c == nil {
		t.Fatal("expected first Register to succeed")
	}
	if c := f.Register(Labels{{Key: "a", Value: "2"}}); c != nil {
		t.Fatal("expected second distinct Register to fail at capacity")
	}
}

func TestNoBracesForEmptyLabels(t *testing.T) {
	f := NewFamily[Counter]("c", "", "", KindCounter, 1)
	c := f.Register(nil)
	c.Inc()
	var sb strings.Builder
	if err := f.FormatPrometheus(&sb); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sb.String(), "c 1\n") {
		t.Fatalf("expected unlabeled sample line, got %q", sb.String())
	}
}
