// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package console implements the operator command line of the bridge: a
// byte-at-a-time line framer splitting "<name>[ <value>]" and a command
// dispatcher routing completed lines to the servo, the LiDAR motor or the
// LiDAR request encoder.
package console

import (
	"errors"
	"io"

	"github.com/golang/glog"
)

// LineCapacity bounds the total bytes of one line, delimiter included. The
// name and value tokens share it.
const LineCapacity = 64

// Line framing bytes
const (
	Delimiter      = ' '
	CarriageReturn = '\r'
	LineFeed       = '\n'
)

var (
	// ErrOverflow is returned when a line exceeds LineCapacity. The
	// offending byte is not stored and the line is reset.
	ErrOverflow = errors.New("line overflow")

	// ErrFormat is returned on the second delimiter of a line. The line is
	// reset.
	ErrFormat = errors.New("malformed line")
)

// Line is a completed command line
type Line struct {
	Name  string
	Value string
}

// Framer splits the console byte stream into lines. Every stored byte is
// echoed once to the echo writer; errors and completions are not echoed.
type Framer struct {
	echo io.Writer

	name  [LineCapacity]byte
	value [LineCapacity]byte
	// inValue selects the value token for subsequent bytes
	inValue bool
	// delim is the position of the delimiter in the line, 0 when none has
	// been seen. The first byte always belongs to the name, so 0 is free.
	delim  int
	length int
}

// NewFramer creates a framer echoing accepted bytes to echo (may be nil)
func NewFramer(echo io.Writer) *Framer {
	return &Framer{echo: echo}
}

// Len returns the number of bytes accepted for the current line
func (f *Framer) Len() int {
	return f.length
}

// Reset discards the current line
func (f *Framer) Reset() {
	f.name = [LineCapacity]byte{}
	f.value = [LineCapacity]byte{}
	f.inValue = false
	f.delim = 0
	f.length = 0
}

// Feed processes one console byte.
// Returns the completed line on carriage return, nil while the line is
// still being built, or ErrOverflow/ErrFormat after which the line is empty.
func (f *Framer) Feed(b byte) (*Line, error) {
	// Stray line feeds from CRLF terminals
	if b == LineFeed && f.length == 0 {
		return nil, nil
	}

	if b == CarriageReturn {
		line := f.line()
		f.Reset()
		return line, nil
	}

	if f.length >= LineCapacity {
		f.Reset()
		return nil, ErrOverflow
	}

	if f.length == 0 {
		f.inValue = false
		f.delim = 0
	} else if b == Delimiter {
		if f.delim > 0 {
			f.Reset()
			return nil, ErrFormat
		}
		f.inValue = true
		f.delim = f.length
	}

	switch {
	case !f.inValue:
		f.name[f.length] = b
	case f.length > f.delim:
		f.value[f.length-f.delim-1] = b
	}
	f.length++

	if f.echo != nil {
		if _, err := f.echo.Write([]byte{b}); err != nil {
			glog.Warningf("console echo failed: %v", err)
		}
	}
	return nil, nil
}

func (f *Framer) line() *Line {
	if f.delim == 0 {
		return &Line{Name: string(f.name[:f.length])}
	}
	return &Line{
		Name:  string(f.name[:f.delim]),
		Value: string(f.value[:f.length-f.delim-1]),
	}
}
