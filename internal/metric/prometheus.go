// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package metric

import (
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/common/expfmt"
)

// ContentType is the value used for the HTTP Content-Type header when
// serving a Prometheus text-format v0.0.4 exposition.
var ContentType = string(expfmt.NewFormat(expfmt.TypeTextPlain))

// FormatPrometheus writes one TYPE line, an optional HELP line, an optional
// UNIT line, then one sample line per registered cell. It writes no
// trailing blank line; Set.RenderPrometheus puts one between families.
// Labels with zero entries produce no braces.
func (f *Family[V]) FormatPrometheus(w io.Writer) error {
	bw := &errWriter{w: w}
	bw.printf("# TYPE %s %s\n", f.Name, f.Kind)
	if f.Help != "" {
		bw.printf("# HELP %s %s\n", f.Name, f.Help)
	}
	if f.Unit != "" {
		bw.printf("# UNIT %s %s\n", f.Name, f.Unit)
	}
	f.forEach(func(labels Labels, c *V) bool {
		rv := asCell(c)
		if len(labels) == 0 {
			bw.printf("%s %s\n", f.Name, rv.renderValue())
			return bw.err == nil
		}
		var sb strings.Builder
		sb.WriteByte('{')
		for i, kv := range labels {
			if i > 0 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(&sb, "%s=%q", kv.Key, kv.Value)
		}
		sb.WriteByte('}')
		bw.printf("%s%s %s\n", f.Name, sb.String(), rv.renderValue())
		return bw.err == nil
	})
	return bw.err
}

// asCell recovers the cell interface from a *Gauge or *Counter. Family is
// only ever instantiated with those two types, so this assertion always
// succeeds in practice; it exists because Go generics can't express
// "*V implements cell" as a constraint directly.
func asCell[V any](v *V) cell {
	c, ok := any(v).(cell)
	if !ok {
		panic(fmt.Sprintf("metric: %T does not implement cell", v))
	}
	return c
}

// errWriter accumulates the first error from a sequence of writes, letting
// call sites check it once at the end instead of after every Fprintf.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
