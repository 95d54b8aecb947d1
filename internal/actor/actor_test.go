// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package actor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSendReceiveReply(t *testing.T) {
	client, srv := Split[string, int](1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		env, err := srv.Recv(context.Background())
		if err != nil {
			t.Errorf("Recv: %v", err)
			return
		}
		if env.Req != "ping" {
			t.Errorf("Req = %q, want ping", env.Req)
		}
		env.Reply(42)
	}()

	got, err := client.Send(context.Background(), "ping")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
	<-done
}

func TestCancelYieldsCanceled(t *testing.T) {
	client, srv := Split[string, int](1)
	go func() {
		env, _ := srv.Recv(context.Background())
		env.Cancel()
	}()
	_, err := client.Send(context.Background(), "x")
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("err = %v, want ErrCanceled", err)
	}
}

func TestCloseYieldsClosed(t *testing.T) {
	client, srv := Split[string, int](1)
	srv.Close()
	_, err := client.Send(context.Background(), "x")
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

func TestTrySendFull(t *testing.T) {
	client, _ := Split[string, int](1)
	if _, err := client.TrySend("a"); err != nil {
		t.Fatalf("first TrySend: %v", err)
	}
	if _, err := client.TrySend("b"); !errors.Is(err, ErrFull) {
		t.Fatalf("err = %v, want ErrFull", err)
	}
}

func TestTryRequestCollapsesHandlerError(t *testing.T) {
	client, srv := Split[string, Result[int]](1)
	go func() {
		env, _ := srv.Recv(context.Background())
		env.Reply(Err[int](errors.New("boom")))
	}()
	_, err := TryRequest[string, int](context.Background(), client, "x")
	if err == nil || err.Error() != "boom" {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestSendContextCanceled(t *testing.T) {
	client, _ := Split[string, int](0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := client.Send(ctx, "x")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}
