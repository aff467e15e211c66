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

import "reflect"

// refResolver is implemented by both the tracking and untracked variants so
// Fory can hold either behind one field (§4.2).
type refResolver interface {
	// WriteRefOrNull writes a NULL/REF/REF_VALUE header for rv as needed.
	// It returns true when the header alone fully describes the value (the
	// serializer must not write a payload): that's the case for a null
	// value, or for a previously-seen object under tracking.
	WriteRefOrNull(buf *ByteBuffer, rv reflect.Value) bool
	// TryPreserveRefId reads one header byte. refID is the slot to pass to
	// Reference once the fresh value is constructed (meaningful only when
	// needRef is true). readValue reports whether any value follows at all
	// (false for NullFlag and RefFlag); when false the header alone resolved the
	// value (null, or a back-reference the caller should fetch via
	// LastReadRef) and the caller must not read a payload. needRef is true
	// only for a fresh, trackable value: the caller must construct it, call
	// Reference(refID, ...) on it (before recursing into any of its own
	// referencable fields/elements, so a cycle back to it resolves
	// correctly), then use it.
	TryPreserveRefId(buf *ByteBuffer) (refID int32, needRef bool, readValue bool)
	// LastReadRef reports whether the most recent TryPreserveRefId call was
	// resolved by its header alone (a back-reference, or a null, for which
	// obj is nil), and if so, the previously read object to reuse.
	LastReadRef() (obj interface{}, isRef bool)
	// Reference records obj as the object read for refID, immediately after
	// it is constructed (before its fields are populated), so cycles
	// resolve correctly.
	Reference(refID int32, obj interface{})
	// GetReadObject returns the object previously recorded at refID.
	GetReadObject(refID int32) interface{}
	ResetWrite()
	ResetRead()
}

// trackingRefResolver preserves shared identity and cycles by remembering
// every object written (or read) during one operation.
type trackingRefResolver struct {
	// writtenIDs maps an object's identity to the ref id it was first
	// assigned. Go has no object-identity map keyed on arbitrary values, so
	// we key by pointer for pointer-like kinds; see identityKey.
	writtenIDs map[interface{}]int32
	nextWriteID int32

	readObjects []interface{}
	// lastRef/lastRefOK hold the single-call result surface used by
	// TryPreserveRefId/LastReadRef; they're consumed immediately by the
	// driver, so a field pair is simpler than a dedicated result struct.
	lastRef   interface{}
	lastRefOK bool
}

func newRefResolver(trackRefs bool) refResolver {
	if trackRefs {
		return &trackingRefResolver{writtenIDs: make(map[interface{}]int32)}
	}
	return &untrackedRefResolver{}
}

// identityKey returns a comparable key representing rv's object identity:
// the pointer value for reference kinds (pointer, map, slice header
// address, interface-wrapped pointer) and the data pointer of a non-empty
// string. For nil values, empty strings and every other kind it returns
// (nil, false): such values are not tracked and get a NOT_NULL header.
func identityKey(rv reflect.Value) (interface{}, bool) {
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		if rv.IsNil() {
			return nil, false
		}
		return rv.Pointer(), true
	case reflect.Slice:
		if rv.IsNil() {
			return nil, false
		}
		return rv.Pointer(), true
	case reflect.String:
		if rv.Len() == 0 {
			return nil, false
		}
		return rv.Pointer(), true
	case reflect.Interface:
		if rv.IsNil() {
			return nil, false
		}
		return identityKey(rv.Elem())
	default:
		return nil, false
	}
}

func isNilValue(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Invalid:
		return true
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface, reflect.UnsafePointer:
		return rv.IsNil()
	default:
		return false
	}
}

func (r *trackingRefResolver) WriteRefOrNull(buf *ByteBuffer, rv reflect.Value) bool {
	if isNilValue(rv) {
		buf.WriteInt8(NullFlag)
		return true
	}
	if key, trackable := identityKey(rv); trackable {
		if id, seen := r.writtenIDs[key]; seen {
			buf.WriteInt8(RefFlag)
			buf.WriteVarInt32(id)
			return true
		}
		id := r.nextWriteID
		r.nextWriteID++
		r.writtenIDs[key] = id
		buf.WriteInt8(RefValueFlag)
		return false
	}
	buf.WriteInt8(NotNullFlag)
	return false
}

func (r *trackingRefResolver) TryPreserveRefId(buf *ByteBuffer) (refID int32, needRef bool, readValue bool) {
	r.lastRef, r.lastRefOK = nil, false
	header := buf.ReadInt8()
	switch header {
	case int8(RefFlag):
		id := buf.ReadVarInt32()
		r.lastRef = r.GetReadObject(id)
		r.lastRefOK = true
		return 0, false, false
	case int8(RefValueFlag):
		id := int32(len(r.readObjects))
		r.readObjects = append(r.readObjects, nil)
		return id, true, true
	case int8(NullFlag):
		r.lastRef, r.lastRefOK = nil, true
		return 0, false, false
	default:
		// NotNullFlag, or (in principle) a positive pseudo-id: value is
		// present and untracked, nothing to reserve.
		return 0, false, true
	}
}

func (r *trackingRefResolver) LastReadRef() (interface{}, bool) {
	return r.lastRef, r.lastRefOK
}

func (r *trackingRefResolver) Reference(refID int32, obj interface{}) {
	if int(refID) < 0 || int(refID) >= len(r.readObjects) {
		return
	}
	r.readObjects[refID] = obj
}

func (r *trackingRefResolver) GetReadObject(refID int32) interface{} {
	if int(refID) < 0 || int(refID) >= len(r.readObjects) {
		return nil
	}
	return r.readObjects[refID]
}

func (r *trackingRefResolver) ResetWrite() {
	r.writtenIDs = make(map[interface{}]int32)
	r.nextWriteID = 0
}

func (r *trackingRefResolver) ResetRead() {
	r.readObjects = r.readObjects[:0]
	r.lastRef, r.lastRefOK = nil, false
}

// untrackedRefResolver writes only NULL/NOT_NULL and never stores state;
// used when the caller doesn't need shared-identity or cycle support and
// wants to skip the bookkeeping cost.
type untrackedRefResolver struct {
	lastRef   interface{}
	lastRefOK bool
}

func (r *untrackedRefResolver) WriteRefOrNull(buf *ByteBuffer, rv reflect.Value) bool {
	if isNilValue(rv) {
		buf.WriteInt8(NullFlag)
		return true
	}
	buf.WriteInt8(NotNullFlag)
	return false
}

func (r *untrackedRefResolver) TryPreserveRefId(buf *ByteBuffer) (refID int32, needRef bool, readValue bool) {
	header := buf.ReadInt8()
	if header == int8(NullFlag) {
		r.lastRef, r.lastRefOK = nil, true
		return 0, false, false
	}
	r.lastRefOK = false
	return 0, false, true
}

func (r *untrackedRefResolver) LastReadRef() (interface{}, bool) {
	return r.lastRef, r.lastRefOK
}

func (r *untrackedRefResolver) Reference(refID int32, obj interface{}) {}

func (r *untrackedRefResolver) GetReadObject(refID int32) interface{} { return nil }

func (r *untrackedRefResolver) ResetWrite() {}

func (r *untrackedRefResolver) ResetRead() { r.lastRef, r.lastRefOK = nil, false }
