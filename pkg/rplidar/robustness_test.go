// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rplidar

import (
	"io"
	"math/rand"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func envInt(t *testing.T, key string, def int64) int64 {
	t.Helper()
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	require.NoError(t, err, "%s must be an integer", key)
	return n
}

// Random requests interleaved with random line noise must never push the
// cursor past the payload window or stall the next well-formed response.
// FUZZ_SEED and FUZZ_ROUNDS override the defaults.
func TestDecoder_RandomNoise(t *testing.T) {
	seed := envInt(t, "FUZZ_SEED", 1)
	rounds := int(envInt(t, "FUZZ_ROUNDS", 2000))
	rng := rand.New(rand.NewSource(seed))
	t.Logf("seed=%d rounds=%d", seed, rounds)

	s := NewSession()
	enc := NewEncoder(io.Discard, s)
	dec := NewDecoder(s)
	disp := NewDispatcher(io.Discard, nil)
	disp.Stats = NewStatistics()

	for round := 0; round < rounds; round++ {
		op := Opcodes[rng.Intn(len(Opcodes))]
		require.NoError(t, enc.Send(op))

		noise := make([]byte, rng.Intn(64))
		rng.Read(noise)
		for _, b := range noise {
			f, err := dec.DecodeByte(b)
			if err != nil {
				require.ErrorIs(t, err, ErrPayloadOverflow)
				disp.Stats.RecordDecodeError()
			}
			if f != nil {
				_ = disp.Dispatch(f)
			}
			require.LessOrEqual(t, s.Cursor(), DescriptorSize+MaxPayloadSize)
		}

		for i := 0; i < ResetWaitTicks; i++ {
			s.Tick()
		}
		if f := dec.PollSilent(); f != nil {
			require.True(t, op.IsSilent())
			_ = disp.Dispatch(f)
		}

		// A clean response after a fresh request always completes
		require.NoError(t, enc.Send(OpGetHealth))
		frames := feed(t, dec, buildResponse(0x06, []byte{0, 0, 0}))
		require.Len(t, frames, 1, "round %d after %s", round, FormatOpcode(op))
	}

	t.Log(disp.Stats.String())
}

func TestStatistics(t *testing.T) {
	stats := NewStatistics()
	stats.RecordRequest()
	stats.RecordFrame(&Frame{Request: OpScan, Record: true}, nil, []ValidationError{{Type: AnomalyZeroDistance}})
	stats.RecordFrame(&Frame{Request: OpScan, Record: true}, ErrInvalidChecksum, nil)
	stats.RecordFrame(&Frame{Request: OpGetInfo}, ErrShortPayload, nil)
	stats.RecordFrame(&Frame{Request: OpStop, Silent: true}, nil, nil)
	stats.SetOverruns(3, 1)

	snap := stats.Snapshot()
	require.Equal(t, uint64(1), snap.Requests)
	require.Equal(t, uint64(1), snap.ScanRecords)
	require.Equal(t, uint64(1), snap.DroppedRecords)
	require.Equal(t, uint64(1), snap.Responses)
	require.Equal(t, uint64(1), snap.ShortPayloads)
	require.Equal(t, uint64(1), snap.SilentCompletions)
	require.Equal(t, uint64(1), snap.ZeroDistance)

	out := stats.String()
	require.Contains(t, out, "Scan Records:           1 (50.0% valid)")
	require.Contains(t, out, "Lost Bytes:             3 sensor, 1 console")

	stats.Reset()
	require.Zero(t, stats.Snapshot().ScanRecords)
}
