// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package fory

import (
	"math"
	"unsafe"
)

// ByteBuffer is a growable, little-endian byte container with independent
// reader and writer cursors. The invariant readerIndex <= writerIndex <=
// len(data) holds at every method boundary. Writes always grow the backing
// array as needed; a read past writerIndex does not panic: it latches
// ErrBufferUnderflow in err and returns a zero value, so callers see a
// normal error, matching the driver's "errors are surfaced synchronously"
// contract.
type ByteBuffer struct {
	data         []byte
	readerIndex  int
	writerIndex  int
	// err latches the first underflow observed; ByteBuffer read methods
	// don't return errors individually (mirrors the teacher's panic-free,
	// accessor-style buffer API), so the driver checks Error() once after a
	// batch of reads.
	err error
}

// NewByteBuffer wraps data for reading (writerIndex = len(data)) and
// writing (further writes append past it). A nil slice starts empty and
// grows from zero capacity.
func NewByteBuffer(data []byte) *ByteBuffer {
	return &ByteBuffer{data: data, writerIndex: len(data)}
}

// Error returns the first buffer-underflow error observed by a Read* call,
// or nil. The driver checks this once per Deserialize call instead of
// threading an error through every primitive read.
func (b *ByteBuffer) Error() error {
	return b.err
}

func (b *ByteBuffer) ReaderIndex() int { return b.readerIndex }
func (b *ByteBuffer) WriterIndex() int { return b.writerIndex }

func (b *ByteBuffer) SetReaderIndex(i int) { b.readerIndex = i }
func (b *ByteBuffer) SetWriterIndex(i int) { b.writerIndex = i }

// Len returns the number of unread bytes.
func (b *ByteBuffer) Len() int { return b.writerIndex - b.readerIndex }

func (b *ByteBuffer) grow(extra int) {
	need := b.writerIndex + extra
	if need <= len(b.data) {
		return
	}
	newCap := len(b.data)
	if newCap == 0 {
		newCap = 32
	}
	for newCap < need {
		newCap *= 2
	}
	newData := make([]byte, newCap)
	copy(newData, b.data[:b.writerIndex])
	b.data = newData
}

func (b *ByteBuffer) checkRead(n int) bool {
	if b.readerIndex+n > b.writerIndex {
		if b.err == nil {
			b.err = ErrBufferUnderflow
		}
		return false
	}
	return true
}

// GetByteSlice returns a copy-free view over data[start:end]; callers must
// not retain it across writes to the parent buffer (the same zero-copy
// sharing rule as Slice).
func (b *ByteBuffer) GetByteSlice(start, end int) []byte {
	if end > len(b.data) {
		end = len(b.data)
	}
	return b.data[start:end]
}

// Slice returns a non-owning view sharing the parent's storage, starting at
// start and covering length bytes, with its own independent cursors.
func (b *ByteBuffer) Slice(start, length int) *ByteBuffer {
	end := start + length
	if end > len(b.data) {
		end = len(b.data)
	}
	view := b.data[start:end]
	return &ByteBuffer{data: view, writerIndex: len(view)}
}

// --- fixed-width writes ---

func (b *ByteBuffer) WriteByte_(v byte) {
	b.grow(1)
	b.data[b.writerIndex] = v
	b.writerIndex++
}

// PutByte overwrites an already-written byte at index i without touching
// the writer cursor, for headers whose final value (e.g. a flag bit) is
// only known once the payload that follows has been written.
func (b *ByteBuffer) PutByte(i int, v byte) {
	b.data[i] = v
}

func (b *ByteBuffer) WriteBool(v bool) {
	if v {
		b.WriteByte_(1)
	} else {
		b.WriteByte_(0)
	}
}

func (b *ByteBuffer) WriteInt8(v int8) { b.WriteByte_(byte(v)) }

func (b *ByteBuffer) WriteInt16(v int16) {
	b.grow(2)
	b.data[b.writerIndex] = byte(v)
	b.data[b.writerIndex+1] = byte(v >> 8)
	b.writerIndex += 2
}

func (b *ByteBuffer) WriteInt32(v int32) {
	b.grow(4)
	b.data[b.writerIndex] = byte(v)
	b.data[b.writerIndex+1] = byte(v >> 8)
	b.data[b.writerIndex+2] = byte(v >> 16)
	b.data[b.writerIndex+3] = byte(v >> 24)
	b.writerIndex += 4
}

func (b *ByteBuffer) WriteInt64(v int64) {
	b.grow(8)
	for i := 0; i < 8; i++ {
		b.data[b.writerIndex+i] = byte(v >> (8 * uint(i)))
	}
	b.writerIndex += 8
}

func (b *ByteBuffer) WriteFloat32(v float32) {
	b.WriteInt32(int32(math.Float32bits(v)))
}

func (b *ByteBuffer) WriteFloat64(v float64) {
	b.WriteInt64(int64(math.Float64bits(v)))
}

// --- fixed-width reads ---

func (b *ByteBuffer) ReadByte_() byte {
	if !b.checkRead(1) {
		return 0
	}
	v := b.data[b.readerIndex]
	b.readerIndex++
	return v
}

func (b *ByteBuffer) ReadBool() bool { return b.ReadByte_() != 0 }

func (b *ByteBuffer) ReadInt8() int8 { return int8(b.ReadByte_()) }

func (b *ByteBuffer) ReadInt16() int16 {
	if !b.checkRead(2) {
		return 0
	}
	v := int16(b.data[b.readerIndex]) | int16(b.data[b.readerIndex+1])<<8
	b.readerIndex += 2
	return v
}

func (b *ByteBuffer) ReadInt32() int32 {
	if !b.checkRead(4) {
		return 0
	}
	v := int32(b.data[b.readerIndex]) | int32(b.data[b.readerIndex+1])<<8 |
		int32(b.data[b.readerIndex+2])<<16 | int32(b.data[b.readerIndex+3])<<24
	b.readerIndex += 4
	return v
}

func (b *ByteBuffer) ReadInt64() int64 {
	if !b.checkRead(8) {
		return 0
	}
	var v int64
	for i := 0; i < 8; i++ {
		v |= int64(b.data[b.readerIndex+i]) << (8 * uint(i))
	}
	b.readerIndex += 8
	return v
}

func (b *ByteBuffer) ReadFloat32() float32 {
	return math.Float32frombits(uint32(b.ReadInt32()))
}

func (b *ByteBuffer) ReadFloat64() float64 {
	return math.Float64frombits(uint64(b.ReadInt64()))
}

// --- variable-length integers ---
//
// WriteVarUint32/ReadVarUint32 use the standard 7-bits-per-byte, high-bit
// continuation scheme, little-endian group order (§4.1). WriteVarInt32
// zig-zag encodes the signed value first so small-magnitude negatives stay
// short; WriteVarInt64 does not zig-zag (see its own doc comment).

func (b *ByteBuffer) WriteVarUint32(v uint32) {
	for v >= 0x80 {
		b.WriteByte_(byte(v) | 0x80)
		v >>= 7
	}
	b.WriteByte_(byte(v))
}

func (b *ByteBuffer) ReadVarUint32() uint32 {
	var v uint32
	var shift uint
	for {
		c := b.ReadByte_()
		if b.err != nil {
			return 0
		}
		v |= uint32(c&0x7f) << shift
		if c&0x80 == 0 {
			break
		}
		shift += 7
	}
	return v
}

func zigzag32(v int32) uint32 { return uint32((v << 1) ^ (v >> 31)) }
func unzigzag32(v uint32) int32 {
	return int32(v>>1) ^ -int32(v&1)
}

func (b *ByteBuffer) WriteVarInt32(v int32) {
	b.WriteVarUint32(zigzag32(v))
}

func (b *ByteBuffer) ReadVarInt32() int32 {
	return unzigzag32(b.ReadVarUint32())
}

func (b *ByteBuffer) WriteVarUint64(v uint64) {
	for v >= 0x80 {
		b.WriteByte_(byte(v) | 0x80)
		v >>= 7
	}
	b.WriteByte_(byte(v))
}

func (b *ByteBuffer) ReadVarUint64() uint64 {
	var v uint64
	var shift uint
	for {
		c := b.ReadByte_()
		if b.err != nil {
			return 0
		}
		v |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			break
		}
		shift += 7
	}
	return v
}

// WriteVarInt64 emits up to eight 7-bit groups (continuation bit set while
// more follow), and only when those eight groups have not yet exhausted
// the value, one final raw byte for the remaining 8 bits (§4.1). There is
// no zig-zag step: a group is written as final as soon as what's left fits
// in six bits, i.e. its arithmetic (sign-extending) right shift by six is
// zero, so [0, 2^6) takes one byte, [2^6, 2^13) two, and so on. That
// happens quickly for small non-negative values but never for a negative
// one — shifting a negative number right never produces zero, so every negative
// int64 walks all eight groups and falls through to the nine-byte raw
// form regardless of magnitude, matching the documented size table in §8.
func (b *ByteBuffer) WriteVarInt64(v int64) {
	n := 0
	for n < 8 {
		if v>>6 == 0 {
			b.WriteByte_(byte(v & 0x7f))
			return
		}
		b.WriteByte_(byte(v&0x7f) | 0x80)
		v >>= 7
		n++
	}
	b.WriteByte_(byte(v))
}

// ReadVarInt64 mirrors WriteVarInt64: accumulate up to eight 7-bit groups,
// stopping at the first one whose continuation bit is clear, then (only if
// all eight carried the continuation bit) OR in one final raw byte at bit
// offset 56 for the remaining 8 bits.
func (b *ByteBuffer) ReadVarInt64() int64 {
	var v int64
	var shift uint
	for i := 0; i < 8; i++ {
		c := b.ReadByte_()
		if b.err != nil {
			return 0
		}
		v |= int64(c&0x7f) << shift
		if c&0x80 == 0 {
			return v
		}
		shift += 7
	}
	last := b.ReadByte_()
	if b.err != nil {
		return 0
	}
	v |= int64(last) << shift
	return v
}

// --- strings and raw byte payloads ---

func (b *ByteBuffer) WriteBinary(p []byte) {
	b.grow(len(p))
	copy(b.data[b.writerIndex:], p)
	b.writerIndex += len(p)
}

func (b *ByteBuffer) ReadBinary(n int) []byte {
	if !b.checkRead(n) {
		return nil
	}
	v := make([]byte, n)
	copy(v, b.data[b.readerIndex:b.readerIndex+n])
	b.readerIndex += n
	return v
}

// WriteString writes a length-prefixed UTF-8 string: a var-uint32 byte
// length followed by the raw bytes.
func (b *ByteBuffer) WriteString(s string) {
	p := unsafeGetBytes(s)
	b.WriteVarUint32(uint32(len(p)))
	b.WriteBinary(p)
}

func (b *ByteBuffer) ReadString() string {
	n := int(b.ReadVarUint32())
	return string(b.ReadBinary(n))
}

// unsafeGetBytes views a string's bytes without copying. Safe here because
// every call site only reads from the result before the buffer is mutated
// again.
func unsafeGetBytes(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
