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
	"fmt"
	"reflect"
)

// BufferObject is an out-of-band payload carved out of the main stream
// during Serialize, matching the teacher's zero-copy write path for large
// binary blobs (§4.7): the caller decides, via the callback passed to
// Serialize, whether a given blob travels inline or is handed back for the
// application to transport however it likes (shared memory, a side
// channel, etc.), then supplies the corresponding buffers back to
// Deserialize in the same order.
type BufferObject interface {
	Length() int
	ToBuffer() *ByteBuffer
}

type bufferObject struct {
	data []byte
}

func (b *bufferObject) Length() int { return len(b.data) }
func (b *bufferObject) ToBuffer() *ByteBuffer {
	return NewByteBuffer(append([]byte(nil), b.data...))
}

// Fory is one (de)serialization session's configuration and mutable
// working state: the ref resolver and type resolver both reset between
// top-level calls, so a single *Fory is safe to reuse sequentially (not
// concurrently) across many Marshal/Unmarshal calls.
type Fory struct {
	refResolver       refResolver
	referenceTracking bool
	language          Language
	typeResolver      *typeResolver
	buffer            *ByteBuffer

	oobCallback    func(BufferObject) bool
	oobReadBuffers []*ByteBuffer
	oobReadIndex   int
	oobWritten     bool // set once this call actually defers a blob out-of-band
}

// NewFory constructs a cross-language Fory instance. referenceTracking
// enables shared-reference and cycle preservation at the cost of a
// bookkeeping map maintained during each call.
func NewFory(referenceTracking bool) *Fory {
	f := &Fory{
		referenceTracking: referenceTracking,
		language:          XLANG,
		buffer:            NewByteBuffer(nil),
	}
	f.refResolver = newRefResolver(referenceTracking)
	f.typeResolver = newTypeResolver(f)
	return f
}

// defaultFory is the package-level instance backing the Marshal/Unmarshal
// convenience functions, with reference tracking enabled.
var defaultFory = NewFory(true)

// Marshal serializes value using a shared default Fory instance.
func Marshal(value interface{}) ([]byte, error) {
	return defaultFory.Marshal(value)
}

// Unmarshal deserializes data into to using the shared default Fory instance.
func Unmarshal(data []byte, to interface{}) error {
	return defaultFory.Unmarshal(data, to)
}

// RegisterTagType registers a struct type under a cross-language tag (e.g.
// "example.A"), the namespace.name form every peer implementation uses to
// agree on wire identity without sharing Go package paths.
func (f *Fory) RegisterTagType(tag string, sample interface{}) error {
	return f.typeResolver.RegisterTypeTag(reflect.ValueOf(sample), tag)
}

// Marshal serializes value to a freshly allocated byte slice. It is
// Serialize with no out-of-band callback and a scratch buffer, the
// common case exercised by nearly every test and caller.
func (f *Fory) Marshal(value interface{}) ([]byte, error) {
	buf := NewByteBuffer(nil)
	if err := f.Serialize(buf, value, nil); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.GetByteSlice(0, buf.WriterIndex())...), nil
}

// Unmarshal is Deserialize with no out-of-band buffers, reading the whole
// slice as one value.
func (f *Fory) Unmarshal(data []byte, to interface{}) error {
	return f.Deserialize(NewByteBuffer(data), to, nil)
}

// Serialize writes the stream header (magic number, endianness and
// cross-language flags) followed by value's dynamic type descriptor and
// payload. callback, if non-nil, is invoked once per out-of-band-eligible
// binary blob (currently []byte values); returning false excludes it from
// the stream and records a BufferObject for the caller to transport
// separately, returning true keeps it inline.
func (f *Fory) Serialize(buf *ByteBuffer, value interface{}, callback func(BufferObject) bool) error {
	f.refResolver.ResetWrite()
	f.typeResolver.resetWrite()
	f.oobCallback = callback
	f.oobWritten = false

	buf.WriteInt16(MAGIC_NUMBER)
	header := byte(headerBitLittleEndian | headerBitCrossLanguage)
	rv := reflect.ValueOf(value)
	if !rv.IsValid() {
		header |= headerBitIsNull
		buf.WriteByte_(header)
		return nil
	}
	headerPos := buf.WriterIndex()
	buf.WriteByte_(header)
	buf.WriteByte_(byte(GO))

	if rv.Kind() == reflect.Ptr && rv.Elem().Kind() == reflect.Interface {
		return fmt.Errorf("fory: pointer to interface is not supported")
	}
	if err := f.writeDynamicValue(buf, rv); err != nil {
		return err
	}
	// The out-of-band flag can only be known once the payload has actually
	// been written (a deferred blob is discovered mid-write, by
	// byteArraySerializer.Write invoking the callback), so the header byte
	// is patched in place rather than decided up front.
	if f.oobWritten {
		buf.PutByte(headerPos, header|headerBitOutOfBand)
	}
	return nil
}

// Deserialize reads back a Serialize stream into to, which must be a
// non-nil pointer. buffers supplies, in the order they were produced, the
// out-of-band blobs a prior Serialize call excluded from the stream.
func (f *Fory) Deserialize(buf *ByteBuffer, to interface{}, buffers []*ByteBuffer) error {
	f.refResolver.ResetRead()
	f.typeResolver.resetRead()
	f.oobReadBuffers = buffers
	f.oobReadIndex = 0

	magic := buf.ReadInt16()
	if magic != MAGIC_NUMBER {
		return ErrMagicMismatch
	}
	header := buf.ReadByte_()
	if buf.Error() != nil {
		return buf.Error()
	}
	if header&headerBitLittleEndian == 0 {
		return ErrEndianUnsupported
	}
	toVal := reflect.ValueOf(to)
	if toVal.Kind() != reflect.Ptr || toVal.IsNil() {
		return fmt.Errorf("fory: Deserialize target must be a non-nil pointer, got %s", toVal.Type())
	}
	if header&headerBitIsNull != 0 {
		toVal.Elem().Set(reflect.Zero(toVal.Elem().Type()))
		return nil
	}
	// The header announces out-of-band content up front (§4.7): a set bit
	// with no supplied buffers can never be satisfied by the stream alone,
	// and a caller that supplied buffers the stream never asked for is
	// almost certainly mismatching Serialize/Deserialize calls.
	if header&headerBitOutOfBand != 0 {
		if len(buffers) == 0 {
			return ErrOutOfBandMissing
		}
	} else if len(buffers) != 0 {
		return ErrOutOfBandUnexpected
	}
	buf.ReadByte_() // peer language byte, unused on read

	concrete, err := f.readDynamicValue(buf)
	if err != nil {
		return err
	}
	if buf.Error() != nil {
		return buf.Error()
	}

	target := toVal.Elem()
	if target.Kind() == reflect.Interface {
		target.Set(concrete)
	} else {
		v := concrete
		if v.Kind() == reflect.Interface {
			v = v.Elem()
		}
		target.Set(v.Convert(target.Type()))
	}
	return nil
}

// writeReferencableValue writes v's ref/null header, and (unless the
// header alone resolved the value) its payload via the serializer
// registered for v's static type. Used wherever both sides already agree
// on the type without a wire descriptor: struct fields, and concrete-typed
// slice/map elements.
func (f *Fory) writeReferencableValue(buf *ByteBuffer, v reflect.Value) error {
	if !v.IsValid() {
		buf.WriteInt8(NullFlag)
		return nil
	}
	if f.refResolver.WriteRefOrNull(buf, v) {
		return nil
	}
	ser, err := f.typeResolver.getSerializerByType(v.Type(), false)
	if err != nil {
		return err
	}
	return ser.Write(f, buf, v)
}

// writeDynamicValue writes a type descriptor ahead of the ref header and
// payload, for positions where the reader cannot know the concrete type
// statically: interface{} values, top-level Marshal targets, and elements
// of []interface{}/map[interface{}]interface{}.
func (f *Fory) writeDynamicValue(buf *ByteBuffer, v reflect.Value) error {
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if !v.IsValid() {
		buf.WriteInt8(NullFlag)
		return nil
	}
	if err := f.typeResolver.writeType(buf, v.Type()); err != nil {
		return err
	}
	return f.writeReferencableValue(buf, v)
}

// refAwareReader is implemented by serializers that can themselves contain
// a reference back to the value being read (structs reached through a
// pointer). They register the freshly allocated value before recursing into
// its fields, so a self-reference resolves to the exact value the caller
// receives rather than a same-content copy of it.
type refAwareReader interface {
	ReadWithRef(f *Fory, buf *ByteBuffer, type_ reflect.Type, refID int32) (reflect.Value, error)
}

// readReferencableValueAs mirrors writeReferencableValue: it consumes one
// ref/null header and, for a fresh value, dispatches to the serializer
// registered for type_.
func (f *Fory) readReferencableValueAs(buf *ByteBuffer, type_ reflect.Type) (reflect.Value, error) {
	refID, needRef, readValue := f.refResolver.TryPreserveRefId(buf)
	if !readValue {
		if obj, isRef := f.refResolver.LastReadRef(); isRef {
			if obj == nil {
				return reflect.Zero(type_), nil
			}
			return reflect.ValueOf(obj), nil
		}
		return reflect.Zero(type_), nil
	}
	ser, err := f.typeResolver.getSerializerByType(type_, false)
	if err != nil {
		return reflect.Value{}, err
	}
	var val reflect.Value
	if rar, ok := ser.(refAwareReader); ok && needRef {
		val, err = rar.ReadWithRef(f, buf, type_, refID)
	} else {
		val, err = ser.Read(f, buf, type_)
	}
	if err != nil {
		return reflect.Value{}, err
	}
	if needRef && val.IsValid() {
		f.refResolver.Reference(refID, val.Interface())
	}
	return val, nil
}

// readDynamicValue mirrors writeDynamicValue: it reads the type descriptor
// first, then the ref/null header and payload for that concrete type.
func (f *Fory) readDynamicValue(buf *ByteBuffer) (reflect.Value, error) {
	type_, err := f.typeResolver.readType(buf)
	if err != nil {
		return reflect.Value{}, err
	}
	return f.readReferencableValueAs(buf, type_)
}
