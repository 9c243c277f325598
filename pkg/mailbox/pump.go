// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mailbox

import (
	"context"
	"errors"
	"io"
	"os"
	"runtime"
	"time"
)

// BytePeriod returns the time one 8N1 character occupies on a line running
// at baudRate (10 bit times).
func BytePeriod(baudRate int) time.Duration {
	if baudRate <= 0 {
		return 0
	}
	return time.Duration(10 * int64(time.Second) / int64(baudRate))
}

// Pump reads r one byte at a time and deposits every byte into ch, playing
// the role of a receive interrupt. After a deposit it gives the consumer at
// most bytePeriod to drain before the next byte may overwrite the slot, so a
// slow consumer loses bytes exactly as it would behind a UART.
//
// Pump returns when ctx is cancelled or the reader fails. Read timeouts
// (os.ErrDeadlineExceeded or a zero-length read) are retried.
func Pump(ctx context.Context, r io.Reader, ch *ByteChannel, bytePeriod time.Duration) error {
	return pump(ctx, r, ch, func() { waitDrained(ctx, ch, bytePeriod) })
}

// PumpLossless is Pump for links with flow control, such as an in-process
// pipe: every deposit waits until the consumer drained the previous byte,
// so nothing is overwritten.
func PumpLossless(ctx context.Context, r io.Reader, ch *ByteChannel) error {
	return pump(ctx, r, ch, func() { waitEmpty(ctx, ch) })
}

func pump(ctx context.Context, r io.Reader, ch *ByteChannel, wait func()) error {
	buf := make([]byte, 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := r.Read(buf)
		if n == 1 {
			ch.Deposit(buf[0])
			wait()
		}
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return ErrClosed
			}
			return err
		}
	}
}

func waitDrained(ctx context.Context, ch *ByteChannel, period time.Duration) {
	if period <= 0 {
		return
	}
	deadline := time.Now().Add(period)
	for ch.Pending() && time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return
		}
		runtime.Gosched()
	}
}

func waitEmpty(ctx context.Context, ch *ByteChannel) {
	for ch.Pending() && ctx.Err() == nil {
		runtime.Gosched()
	}
}
