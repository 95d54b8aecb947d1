// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"log"

	"github.com/periph-home/eclss/internal/appliance"
	"github.com/periph-home/eclss/internal/config"
)

func run(ctx context.Context, cfg *config.Root) error {
	// TODO(maruel): When running as a service, the lines are already annotated,
	// so no need to set the timestamp.
	//log.SetFlags(0)

	a, err := appliance.New(ctx, cfg)
	if err != nil {
		return err
	}
	log.Printf("appliance initialized")
	<-ctx.Done()
	log.Printf("closing appliance")
	return a.Close()
}
