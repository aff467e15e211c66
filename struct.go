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
	"sort"
)

// structSerializer writes a Go struct value (not pointer) tagged with a
// cross-language name via RegisterTagType. Fields are sorted by name so
// two processes that registered the same tag always agree on field order
// without needing to exchange a schema up front; a hash folded from each
// field's type id is written once per value and checked on read so a
// genuine shape mismatch fails loudly (ErrSchemaIncompatible) instead of
// silently misreading bytes. The fold recipe (§4.5) has to reproduce the
// same 32-bit value a Java/Python/Rust peer computes for the identical
// schema, so it is not just an internal consistency check.
type structSerializer struct {
	type_      reflect.Type
	typeTag    string
	fieldOrder []int // field index into type_, in wire order
	hash       uint32
}

func newStructSerializer(r *typeResolver, type_ reflect.Type, tag string) *structSerializer {
	s := &structSerializer{type_: type_, typeTag: tag}
	s.computeFieldOrder(r)
	return s
}

// fieldTypeID returns the id a field's type contributes to the schema
// hash fold: the field's registered cross-language type id when one
// exists, or a hash of the type's canonical (package path, name, kind)
// string when it doesn't (§4.5, unregistered-field case).
func fieldTypeID(r *typeResolver, t reflect.Type) int64 {
	if ser, err := r.getSerializerByType(t, false); err == nil && ser != nil {
		return int64(ser.TypeId())
	}
	return int64(calcTypeHash(t) & 0x7fffffffffffffff)
}

func (s *structSerializer) computeFieldOrder(r *typeResolver) {
	n := s.type_.NumField()
	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		f := s.type_.Field(i)
		if f.PkgPath != "" { // unexported
			continue
		}
		order = append(order, i)
	}
	sort.Slice(order, func(a, b int) bool {
		return s.type_.Field(order[a]).Name < s.type_.Field(order[b]).Name
	})
	s.fieldOrder = order

	hash := int64(17)
	for _, idx := range order {
		f := s.type_.Field(idx)
		hash = foldHash(hash, fieldTypeID(r, f.Type))
	}
	s.hash = uint32(hash)
}

func (s *structSerializer) TypeId() int16      { return NAMED_STRUCT }
func (s *structSerializer) NeedWriteRef() bool { return true }

func (s *structSerializer) Write(f *Fory, buf *ByteBuffer, v reflect.Value) error {
	buf.WriteInt32(int32(s.hash))
	for _, idx := range s.fieldOrder {
		fv := v.Field(idx)
		if err := f.writeReferencableValue(buf, fv); err != nil {
			return fmt.Errorf("fory: field %s: %w", s.type_.Field(idx).Name, err)
		}
	}
	return nil
}

func (s *structSerializer) checkHash(buf *ByteBuffer) error {
	wireHash := uint32(buf.ReadInt32())
	if wireHash != s.hash {
		return fmt.Errorf("%w: struct %s expected hash %d got %d",
			ErrSchemaIncompatible, s.typeTag, s.hash, wireHash)
	}
	return nil
}

// readFields populates dst's registered fields in wire order. dst must
// already be addressable (and, for the pointer-serializer path, already
// registered with the ref resolver) so a self-referencing field reads back
// the right identity.
func (s *structSerializer) readFields(f *Fory, buf *ByteBuffer, dst reflect.Value) error {
	for _, idx := range s.fieldOrder {
		field := s.type_.Field(idx)
		fv, err := f.readReferencableValueAs(buf, field.Type)
		if err != nil {
			return fmt.Errorf("fory: field %s: %w", field.Name, err)
		}
		if fv.IsValid() {
			dst.Field(idx).Set(fv)
		}
	}
	return nil
}

// Read decodes a struct value. Plain struct values have no identity of
// their own (only pointers to them are trackable, see ptrToStructSerializer),
// so no ref registration happens here.
func (s *structSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type) (reflect.Value, error) {
	if err := s.checkHash(buf); err != nil {
		return reflect.Value{}, err
	}
	dst := reflect.New(s.type_).Elem()
	if err := s.readFields(f, buf, dst); err != nil {
		return reflect.Value{}, err
	}
	return dst, nil
}

// ptrToStructSerializer is the default deserialization target for a
// registered tag: cross-language peers always receive owning pointers for
// struct types, matching the teacher's convention of registering both the
// value and pointer shapes together.
type ptrToStructSerializer struct {
	structSerializer
	type_ reflect.Type // pointer type
}

func (s *ptrToStructSerializer) TypeId() int16      { return NAMED_STRUCT }
func (s *ptrToStructSerializer) NeedWriteRef() bool { return true }

func (s *ptrToStructSerializer) Write(f *Fory, buf *ByteBuffer, v reflect.Value) error {
	return s.structSerializer.Write(f, buf, v.Elem())
}

// ReadWithRef allocates the destination struct and registers its address at
// refID with the ref resolver before decoding any field, so a field that
// points back to this same struct (a cycle) resolves to the exact pointer
// callers receive, not a copy of it.
func (s *ptrToStructSerializer) ReadWithRef(f *Fory, buf *ByteBuffer, type_ reflect.Type, refID int32) (reflect.Value, error) {
	if err := s.structSerializer.checkHash(buf); err != nil {
		return reflect.Value{}, err
	}
	ptr := reflect.New(s.structSerializer.type_)
	f.refResolver.Reference(refID, ptr.Interface())
	if err := s.structSerializer.readFields(f, buf, ptr.Elem()); err != nil {
		return reflect.Value{}, err
	}
	return ptr, nil
}

// Read is the refAwareReader-less fallback (e.g. if ever invoked outside
// readReferencableValueAs); it cannot register the value before recursing,
// so a self-reference inside it won't resolve to the same pointer.
func (s *ptrToStructSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type) (reflect.Value, error) {
	return s.ReadWithRef(f, buf, type_, -1)
}
