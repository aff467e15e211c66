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

// isPrimitiveSliceOrArrayType reports whether typ is a plain (unnamed)
// slice or array of a fixed-width primitive (bool, uint8, int16, int32,
// int64, float32, float64). A named type built on the same element kind
// (Int16Slice) carries user-visible identity and is never classified this
// way. The serializers themselves are chosen by exact type, not by this
// check: an array of these kinds is still written as a LIST.
func isPrimitiveSliceOrArrayType(typ reflect.Type) bool {
	if typ.Kind() != reflect.Slice && typ.Kind() != reflect.Array {
		return false
	}
	if typ.Name() != "" {
		return false
	}
	switch typ.Elem().Kind() {
	case reflect.Bool, reflect.Uint8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// primitiveArraySerializer writes a fixed-width element slice as a raw
// byte run: a var-uint32 element count followed by packed little-endian
// elements, avoiding per-element ref/null headers (§4.5 PRIMITIVE_ARRAY).
type primitiveArraySerializer struct {
	typeID   int16
	elemSize int
	write    func(buf *ByteBuffer, v reflect.Value, i int)
	read     func(buf *ByteBuffer, dst reflect.Value, i int)
}

func (s primitiveArraySerializer) TypeId() int16      { return s.typeID }
func (s primitiveArraySerializer) NeedWriteRef() bool { return true }

func (s primitiveArraySerializer) Write(f *Fory, buf *ByteBuffer, v reflect.Value) error {
	n := v.Len()
	buf.WriteVarUint32(uint32(n))
	for i := 0; i < n; i++ {
		s.write(buf, v, i)
	}
	return nil
}

func (s primitiveArraySerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type) (reflect.Value, error) {
	n := int(buf.ReadVarUint32())
	dst := reflect.MakeSlice(reflect.SliceOf(type_.Elem()), n, n)
	for i := 0; i < n; i++ {
		s.read(buf, dst, i)
	}
	return dst, nil
}

var (
	boolSliceSerializer = primitiveArraySerializer{
		typeID: BOOL_ARRAY, elemSize: 1,
		write: func(buf *ByteBuffer, v reflect.Value, i int) { buf.WriteBool(v.Index(i).Bool()) },
		read:  func(buf *ByteBuffer, dst reflect.Value, i int) { dst.Index(i).SetBool(buf.ReadBool()) },
	}
	int16SliceSerializer = primitiveArraySerializer{
		typeID: INT16_ARRAY, elemSize: 2,
		write: func(buf *ByteBuffer, v reflect.Value, i int) { buf.WriteInt16(int16(v.Index(i).Int())) },
		read:  func(buf *ByteBuffer, dst reflect.Value, i int) { dst.Index(i).SetInt(int64(buf.ReadInt16())) },
	}
	int32SliceSerializer = primitiveArraySerializer{
		typeID: INT32_ARRAY, elemSize: 4,
		write: func(buf *ByteBuffer, v reflect.Value, i int) { buf.WriteInt32(int32(v.Index(i).Int())) },
		read:  func(buf *ByteBuffer, dst reflect.Value, i int) { dst.Index(i).SetInt(int64(buf.ReadInt32())) },
	}
	int64SliceSerializer = primitiveArraySerializer{
		typeID: INT64_ARRAY, elemSize: 8,
		write: func(buf *ByteBuffer, v reflect.Value, i int) { buf.WriteInt64(v.Index(i).Int()) },
		read:  func(buf *ByteBuffer, dst reflect.Value, i int) { dst.Index(i).SetInt(buf.ReadInt64()) },
	}
	float32SliceSerializer = primitiveArraySerializer{
		typeID: FLOAT32_ARRAY, elemSize: 4,
		write: func(buf *ByteBuffer, v reflect.Value, i int) { buf.WriteFloat32(float32(v.Index(i).Float())) },
		read:  func(buf *ByteBuffer, dst reflect.Value, i int) { dst.Index(i).SetFloat(float64(buf.ReadFloat32())) },
	}
	float64SliceSerializer = primitiveArraySerializer{
		typeID: FLOAT64_ARRAY, elemSize: 8,
		write: func(buf *ByteBuffer, v reflect.Value, i int) { buf.WriteFloat64(v.Index(i).Float()) },
		read:  func(buf *ByteBuffer, dst reflect.Value, i int) { dst.Index(i).SetFloat(buf.ReadFloat64()) },
	}
	byteSliceSerializer = byteArraySerializer{}
)

// byteArraySerializer special-cases []byte: BINARY carries the raw run with
// no per-byte overhead at all, unlike the other PRIMITIVE_ARRAY kinds. When
// the caller supplied an out-of-band callback (§4.7 zero-copy path), the
// blob is offered to it instead of being inlined; a leading bool marks
// which path this value took so Read knows whether to pull from the
// stream or the next out-of-band buffer.
type byteArraySerializer struct{}

func (byteArraySerializer) TypeId() int16      { return BINARY }
func (byteArraySerializer) NeedWriteRef() bool { return true }
func (byteArraySerializer) Write(f *Fory, buf *ByteBuffer, v reflect.Value) error {
	if f.oobCallback != nil {
		obj := &bufferObject{data: v.Bytes()}
		if !f.oobCallback(obj) {
			f.oobWritten = true
			buf.WriteBool(true)
			return nil
		}
	}
	buf.WriteBool(false)
	buf.WriteVarUint32(uint32(v.Len()))
	buf.WriteBinary(v.Bytes())
	return nil
}
func (byteArraySerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type) (reflect.Value, error) {
	outOfBand := buf.ReadBool()
	if outOfBand {
		if f.oobReadIndex >= len(f.oobReadBuffers) {
			return reflect.Value{}, ErrOutOfBandMissing
		}
		b := f.oobReadBuffers[f.oobReadIndex]
		f.oobReadIndex++
		return reflect.ValueOf(b.GetByteSlice(0, b.Len())), nil
	}
	n := int(buf.ReadVarUint32())
	return reflect.ValueOf(buf.ReadBinary(n)), nil
}

// stringSliceSerializer wires []string as a LIST whose element serializer
// is always stringSerializer, avoiding the per-element dynamic type
// descriptor a generic sliceSerializer would otherwise write. Each element
// carries its own ref/null header, so a string repeated in the slice is
// written once and referenced afterwards when tracking is on.
type stringSliceSerializerT struct{}

var stringSliceSerializer = stringSliceSerializerT{}

func (stringSliceSerializerT) TypeId() int16      { return LIST }
func (stringSliceSerializerT) NeedWriteRef() bool { return true }
func (stringSliceSerializerT) Write(f *Fory, buf *ByteBuffer, v reflect.Value) error {
	n := v.Len()
	buf.WriteVarUint32(uint32(n))
	for i := 0; i < n; i++ {
		if err := f.writeReferencableValue(buf, v.Index(i)); err != nil {
			return err
		}
	}
	return nil
}
func (stringSliceSerializerT) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type) (reflect.Value, error) {
	n := int(buf.ReadVarUint32())
	dst := reflect.MakeSlice(stringSliceType, n, n)
	for i := 0; i < n; i++ {
		elem, err := f.readReferencableValueAs(buf, stringType)
		if err != nil {
			return reflect.Value{}, err
		}
		dst.Index(i).SetString(elem.String())
	}
	return dst, nil
}

// sliceSerializer handles []interface{}: every element is independently
// ref/null-headed and carries its own dynamic type descriptor (§4.5 LIST of
// dynamic elements).
type sliceSerializer struct{}

func (sliceSerializer) TypeId() int16      { return LIST }
func (sliceSerializer) NeedWriteRef() bool { return true }

func (sliceSerializer) Write(f *Fory, buf *ByteBuffer, v reflect.Value) error {
	n := v.Len()
	buf.WriteVarUint32(uint32(n))
	for i := 0; i < n; i++ {
		if err := f.writeDynamicValue(buf, v.Index(i).Elem()); err != nil {
			return err
		}
	}
	return nil
}

func (sliceSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type) (reflect.Value, error) {
	n := int(buf.ReadVarUint32())
	dst := reflect.MakeSlice(interfaceSliceType, n, n)
	for i := 0; i < n; i++ {
		elem, err := f.readDynamicValue(buf)
		if err != nil {
			return reflect.Value{}, err
		}
		dst.Index(i).Set(elem)
	}
	return dst, nil
}

// sliceConcreteValueSerializer handles []T for a statically-known,
// non-dynamic T (e.g. []MyStruct): one shared elemSerializer is reused for
// every element instead of re-resolving it per item.
type sliceConcreteValueSerializer struct {
	type_          reflect.Type
	elemSerializer Serializer
	referencable   bool
}

func (s *sliceConcreteValueSerializer) TypeId() int16      { return LIST }
func (s *sliceConcreteValueSerializer) NeedWriteRef() bool { return true }

func (s *sliceConcreteValueSerializer) Write(f *Fory, buf *ByteBuffer, v reflect.Value) error {
	n := v.Len()
	buf.WriteVarUint32(uint32(n))
	for i := 0; i < n; i++ {
		elem := v.Index(i)
		if s.referencable {
			if f.refResolver.WriteRefOrNull(buf, elem) {
				continue
			}
		}
		if err := s.elemSerializer.Write(f, buf, elem); err != nil {
			return err
		}
	}
	return nil
}

func (s *sliceConcreteValueSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type) (reflect.Value, error) {
	n := int(buf.ReadVarUint32())
	dst := reflect.MakeSlice(s.type_, n, n)
	for i := 0; i < n; i++ {
		if s.referencable {
			refID, needRef, readValue := f.refResolver.TryPreserveRefId(buf)
			if !readValue {
				if obj, isRef := f.refResolver.LastReadRef(); isRef && obj != nil {
					dst.Index(i).Set(reflect.ValueOf(obj).Convert(type_.Elem()))
				}
				continue
			}
			var elem reflect.Value
			var err error
			if rar, ok := s.elemSerializer.(refAwareReader); ok && needRef {
				elem, err = rar.ReadWithRef(f, buf, type_.Elem(), refID)
			} else {
				elem, err = s.elemSerializer.Read(f, buf, type_.Elem())
			}
			if err != nil {
				return reflect.Value{}, err
			}
			dst.Index(i).Set(elem.Convert(type_.Elem()))
			if needRef {
				f.refResolver.Reference(refID, dst.Index(i).Interface())
			}
			continue
		}
		elem, err := s.elemSerializer.Read(f, buf, type_.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		dst.Index(i).Set(elem.Convert(type_.Elem()))
	}
	return dst, nil
}

// arraySerializer is sliceSerializer's fixed-length counterpart, used for
// Go array types whose element is dynamic; it reuses the generic slice
// wire format and converts back to [N]T on read.
type arraySerializer struct{}

func (arraySerializer) TypeId() int16      { return LIST }
func (arraySerializer) NeedWriteRef() bool { return true }

func (arraySerializer) Write(f *Fory, buf *ByteBuffer, v reflect.Value) error {
	n := v.Len()
	buf.WriteVarUint32(uint32(n))
	for i := 0; i < n; i++ {
		if err := f.writeDynamicValue(buf, v.Index(i).Elem()); err != nil {
			return err
		}
	}
	return nil
}

func (arraySerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type) (reflect.Value, error) {
	n := int(buf.ReadVarUint32())
	dst := reflect.New(type_).Elem()
	for i := 0; i < n && i < dst.Len(); i++ {
		elem, err := f.readDynamicValue(buf)
		if err != nil {
			return reflect.Value{}, err
		}
		dst.Index(i).Set(elem.Convert(type_.Elem()))
	}
	return dst, nil
}

// arrayConcreteValueSerializer is arraySerializer's statically-typed
// element counterpart, mirroring sliceConcreteValueSerializer.
type arrayConcreteValueSerializer struct {
	type_          reflect.Type
	elemSerializer Serializer
	referencable   bool
}

func (s *arrayConcreteValueSerializer) TypeId() int16      { return LIST }
func (s *arrayConcreteValueSerializer) NeedWriteRef() bool { return true }

func (s *arrayConcreteValueSerializer) Write(f *Fory, buf *ByteBuffer, v reflect.Value) error {
	n := v.Len()
	buf.WriteVarUint32(uint32(n))
	for i := 0; i < n; i++ {
		elem := v.Index(i)
		if s.referencable {
			if f.refResolver.WriteRefOrNull(buf, elem) {
				continue
			}
		}
		if err := s.elemSerializer.Write(f, buf, elem); err != nil {
			return err
		}
	}
	return nil
}

func (s *arrayConcreteValueSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type) (reflect.Value, error) {
	n := int(buf.ReadVarUint32())
	dst := reflect.New(type_).Elem()
	for i := 0; i < n && i < dst.Len(); i++ {
		if s.referencable {
			refID, needRef, readValue := f.refResolver.TryPreserveRefId(buf)
			if !readValue {
				if obj, isRef := f.refResolver.LastReadRef(); isRef && obj != nil {
					dst.Index(i).Set(reflect.ValueOf(obj).Convert(type_.Elem()))
				}
				continue
			}
			elem, err := s.elemSerializer.Read(f, buf, type_.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			dst.Index(i).Set(elem.Convert(type_.Elem()))
			if needRef {
				f.refResolver.Reference(refID, dst.Index(i).Interface())
			}
			continue
		}
		elem, err := s.elemSerializer.Read(f, buf, type_.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		dst.Index(i).Set(elem.Convert(type_.Elem()))
	}
	return dst, nil
}

// setSerializer wires GenericSet to FORY_SET: the wire shape is a LIST of
// unique elements; round-tripping through Add de-duplicates on read so a
// corrupt or adversarial stream can't forge a non-set invariant.
type setSerializer struct{}

func (setSerializer) TypeId() int16      { return FORY_SET }
func (setSerializer) NeedWriteRef() bool { return true }

func (setSerializer) Write(f *Fory, buf *ByteBuffer, v reflect.Value) error {
	set, ok := v.Interface().(GenericSet)
	if !ok {
		return fmt.Errorf("fory: expected GenericSet, got %s", v.Type())
	}
	values := set.Values()
	buf.WriteVarUint32(uint32(len(values)))
	for _, item := range values {
		if err := f.writeDynamicValue(buf, reflect.ValueOf(item)); err != nil {
			return err
		}
	}
	return nil
}

func (setSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type) (reflect.Value, error) {
	n := int(buf.ReadVarUint32())
	set := NewGenericSet()
	for i := 0; i < n; i++ {
		elem, err := f.readDynamicValue(buf)
		if err != nil {
			return reflect.Value{}, err
		}
		set.Add(elem.Interface())
	}
	return reflect.ValueOf(*set), nil
}
