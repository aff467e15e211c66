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
	"time"
)

// Serializer is implemented by every type-specific codec the resolver
// dispatches to. Write/Read operate on an already-positioned buffer; ref
// and null handling happens one level up in the driver, except for
// serializers (structs, ptr-to-struct) that need to call back into the ref
// resolver themselves because they allocate the object before recursing.
type Serializer interface {
	TypeId() int16
	NeedWriteRef() bool
	Write(f *Fory, buf *ByteBuffer, v reflect.Value) error
	Read(f *Fory, buf *ByteBuffer, type_ reflect.Type) (reflect.Value, error)
}

func nullable(type_ reflect.Type) bool {
	switch type_.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		return true
	default:
		return false
	}
}

type boolSerializer struct{}

func (boolSerializer) TypeId() int16       { return BOOL }
func (boolSerializer) NeedWriteRef() bool  { return false }
func (boolSerializer) Write(f *Fory, buf *ByteBuffer, v reflect.Value) error {
	buf.WriteBool(v.Bool())
	return nil
}
func (boolSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type) (reflect.Value, error) {
	return reflect.ValueOf(buf.ReadBool()), nil
}

type byteSerializer struct{}

func (byteSerializer) TypeId() int16      { return INT8 }
func (byteSerializer) NeedWriteRef() bool { return false }
func (byteSerializer) Write(f *Fory, buf *ByteBuffer, v reflect.Value) error {
	buf.WriteByte_(byte(v.Uint()))
	return nil
}
func (byteSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type) (reflect.Value, error) {
	return reflect.ValueOf(buf.ReadByte_()), nil
}

type int8Serializer struct{}

func (int8Serializer) TypeId() int16      { return INT8 }
func (int8Serializer) NeedWriteRef() bool { return false }
func (int8Serializer) Write(f *Fory, buf *ByteBuffer, v reflect.Value) error {
	buf.WriteInt8(int8(v.Int()))
	return nil
}
func (int8Serializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type) (reflect.Value, error) {
	return reflect.ValueOf(buf.ReadInt8()), nil
}

type int16Serializer struct{}

func (int16Serializer) TypeId() int16      { return INT16 }
func (int16Serializer) NeedWriteRef() bool { return false }
func (int16Serializer) Write(f *Fory, buf *ByteBuffer, v reflect.Value) error {
	buf.WriteInt16(int16(v.Int()))
	return nil
}
func (int16Serializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type) (reflect.Value, error) {
	return reflect.ValueOf(buf.ReadInt16()), nil
}

type int32Serializer struct{}

func (int32Serializer) TypeId() int16      { return VAR_INT32 }
func (int32Serializer) NeedWriteRef() bool { return false }
func (int32Serializer) Write(f *Fory, buf *ByteBuffer, v reflect.Value) error {
	buf.WriteVarInt32(int32(v.Int()))
	return nil
}
func (int32Serializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type) (reflect.Value, error) {
	return reflect.ValueOf(buf.ReadVarInt32()), nil
}

type int64Serializer struct{}

func (int64Serializer) TypeId() int16      { return VAR_INT64 }
func (int64Serializer) NeedWriteRef() bool { return false }
func (int64Serializer) Write(f *Fory, buf *ByteBuffer, v reflect.Value) error {
	buf.WriteVarInt64(v.Int())
	return nil
}
func (int64Serializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type) (reflect.Value, error) {
	return reflect.ValueOf(buf.ReadVarInt64()), nil
}

// intSerializer handles Go's platform-width int, wired to the 64-bit
// var-int codec so the wire size doesn't depend on GOARCH.
type intSerializer struct{}

func (intSerializer) TypeId() int16      { return VAR_INT64 }
func (intSerializer) NeedWriteRef() bool { return false }
func (intSerializer) Write(f *Fory, buf *ByteBuffer, v reflect.Value) error {
	buf.WriteVarInt64(v.Int())
	return nil
}
func (intSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type) (reflect.Value, error) {
	return reflect.ValueOf(int(buf.ReadVarInt64())), nil
}

type float32Serializer struct{}

func (float32Serializer) TypeId() int16      { return FLOAT }
func (float32Serializer) NeedWriteRef() bool { return false }
func (float32Serializer) Write(f *Fory, buf *ByteBuffer, v reflect.Value) error {
	buf.WriteFloat32(float32(v.Float()))
	return nil
}
func (float32Serializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type) (reflect.Value, error) {
	return reflect.ValueOf(buf.ReadFloat32()), nil
}

type float64Serializer struct{}

func (float64Serializer) TypeId() int16      { return DOUBLE }
func (float64Serializer) NeedWriteRef() bool { return false }
func (float64Serializer) Write(f *Fory, buf *ByteBuffer, v reflect.Value) error {
	buf.WriteFloat64(v.Float())
	return nil
}
func (float64Serializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type) (reflect.Value, error) {
	return reflect.ValueOf(buf.ReadFloat64()), nil
}

type stringSerializer struct{}

func (stringSerializer) TypeId() int16      { return STRING }
func (stringSerializer) NeedWriteRef() bool { return true }
func (stringSerializer) Write(f *Fory, buf *ByteBuffer, v reflect.Value) error {
	buf.WriteString(v.String())
	return nil
}
func (stringSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type) (reflect.Value, error) {
	return reflect.ValueOf(buf.ReadString()), nil
}

// ptrToStringSerializer handles *string, a shape the struct serializer and
// interface dispatch both need (a field typed *string, or an interface{}
// boxing one).
type ptrToStringSerializer struct{}

func (ptrToStringSerializer) TypeId() int16      { return STRING }
func (ptrToStringSerializer) NeedWriteRef() bool { return true }
func (ptrToStringSerializer) Write(f *Fory, buf *ByteBuffer, v reflect.Value) error {
	buf.WriteString(v.Elem().String())
	return nil
}
func (ptrToStringSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type) (reflect.Value, error) {
	s := buf.ReadString()
	return reflect.ValueOf(&s), nil
}

type dateSerializer struct{}

func (dateSerializer) TypeId() int16      { return LOCAL_DATE }
func (dateSerializer) NeedWriteRef() bool { return true }
func (dateSerializer) Write(f *Fory, buf *ByteBuffer, v reflect.Value) error {
	buf.WriteInt32(dateToEpochDays(v.Interface().(Date)))
	return nil
}
func (dateSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type) (reflect.Value, error) {
	return reflect.ValueOf(epochDaysToDate(buf.ReadInt32())), nil
}

// timeSerializer wires time.Time to the TIMESTAMP type id: microseconds
// since the Unix epoch, matching the other language implementations'
// timestamp granularity.
type timeSerializer struct{}

func (timeSerializer) TypeId() int16      { return TIMESTAMP }
func (timeSerializer) NeedWriteRef() bool { return true }
func (timeSerializer) Write(f *Fory, buf *ByteBuffer, v reflect.Value) error {
	t := v.Interface().(time.Time)
	buf.WriteInt64(t.UnixMicro())
	return nil
}
func (timeSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type) (reflect.Value, error) {
	micros := buf.ReadInt64()
	return reflect.ValueOf(time.UnixMicro(micros)), nil
}

// ptrToValueSerializer wraps a value serializer so *T round-trips through
// ref handling and a single level of indirection, used for field types like
// *int, *MyStruct that aren't pointer-to-pointer/interface.
type ptrToValueSerializer struct {
	elem Serializer
}

func (s *ptrToValueSerializer) TypeId() int16      { return s.elem.TypeId() }
func (s *ptrToValueSerializer) NeedWriteRef() bool { return true }
func (s *ptrToValueSerializer) Write(f *Fory, buf *ByteBuffer, v reflect.Value) error {
	return s.elem.Write(f, buf, v.Elem())
}
func (s *ptrToValueSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type) (reflect.Value, error) {
	elemVal, err := s.elem.Read(f, buf, type_.Elem())
	if err != nil {
		return reflect.Value{}, err
	}
	ptr := reflect.New(type_.Elem())
	ptr.Elem().Set(elemVal.Convert(type_.Elem()))
	return ptr, nil
}

// interfaceSerializer dispatches by the concrete type carried inside the
// interface{} value, writing a type descriptor ahead of the payload so the
// reader can reconstruct the right concrete type (§4.5 dynamic dispatch).
type interfaceSerializer struct{}

func (interfaceSerializer) TypeId() int16      { return FORY_TYPE_TAG }
func (interfaceSerializer) NeedWriteRef() bool { return true }

func (interfaceSerializer) Write(f *Fory, buf *ByteBuffer, v reflect.Value) error {
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if !v.IsValid() {
		return fmt.Errorf("fory: cannot serialize invalid interface value")
	}
	if err := f.typeResolver.writeType(buf, v.Type()); err != nil {
		return err
	}
	return f.writeReferencableValue(buf, v)
}

func (interfaceSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type) (reflect.Value, error) {
	concreteType, err := f.typeResolver.readType(buf)
	if err != nil {
		return reflect.Value{}, err
	}
	return f.readReferencableValueAs(buf, concreteType)
}
