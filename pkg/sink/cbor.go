// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sink

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/Thermoquad/lidarbridge/pkg/rplidar"
	"github.com/fxamacker/cbor/v2"
)

// CBORFile appends samples to a file as a stream of CBOR items
type CBORFile struct {
	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	enc    *cbor.Encoder
	closed bool
}

// CreateCBORFile creates (or truncates) path
func CreateCBORFile(path string) (*CBORFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create scan export: %w", err)
	}
	buf := bufio.NewWriter(f)
	return &CBORFile{file: f, buf: buf, enc: cbor.NewEncoder(buf)}, nil
}

// WriteScan implements Sink
func (c *CBORFile) WriteScan(p rplidar.ScanPoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.enc.Encode(NewSample(p)); err != nil {
		return fmt.Errorf("encode scan point: %w", err)
	}
	return nil
}

// Close flushes and closes the file
func (c *CBORFile) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	flushErr := c.buf.Flush()
	return errors.Join(flushErr, c.file.Close())
}

// ReadSamples decodes a CBOR sample stream until end of input
func ReadSamples(r io.Reader) ([]Sample, error) {
	dec := cbor.NewDecoder(r)
	var samples []Sample
	for {
		var s Sample
		if err := dec.Decode(&s); err != nil {
			if errors.Is(err, io.EOF) {
				return samples, nil
			}
			return samples, fmt.Errorf("decode sample %d: %w", len(samples), err)
		}
		samples = append(samples, s)
	}
}
