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

// Map chunk header flag bits (§4.5), in the bit order the spec mandates. A
// chunk groups consecutive entries that share the same null-ness and
// declared key/value type, so a map of one concrete (K, V) pays for the
// type descriptor once per chunk instead of once per entry. DeclType means
// the entry's type equals the container's statically declared type, so no
// per-chunk type header follows for that side.
const (
	mapChunkTrackKeyRef = 1 << 0
	mapChunkKeyNull     = 1 << 1
	mapChunkKeyDeclType = 1 << 2
	mapChunkTrackValRef = 1 << 3
	mapChunkValueNull   = 1 << 4
	mapChunkValDeclType = 1 << 5
)

// maxMapChunkSize is the largest number of entries one chunk may hold; it
// fits in the single byte that follows the chunk header.
const maxMapChunkSize = 255

// mapSerializer implements the chunked map codec. When keySerializer or
// valueSerializer is nil the corresponding side is dynamic (interface{}
// key/value, or a map nested in a generic position) and each entry carries
// its own type descriptor instead of sharing one with the chunk.
type mapSerializer struct {
	type_             reflect.Type
	keySerializer     Serializer
	valueSerializer   Serializer
	keyReferencable   bool
	valueReferencable bool
	mapInStruct       bool
}

func (mapSerializer) TypeId() int16      { return MAP }
func (mapSerializer) NeedWriteRef() bool { return true }

type mapEntry struct {
	key, value     reflect.Value
	keyNull, valNull bool
	keyType, valType reflect.Type
}

func (s mapSerializer) Write(f *Fory, buf *ByteBuffer, v reflect.Value) error {
	keys := v.MapKeys()
	entries := make([]mapEntry, 0, len(keys))
	for _, k := range keys {
		val := v.MapIndex(k)
		e := mapEntry{key: k, value: val}
		kv := k
		if kv.Kind() == reflect.Interface {
			kv = kv.Elem()
		}
		e.keyNull = isNilValue(kv)
		if !e.keyNull {
			e.keyType = kv.Type()
		}
		vv := val
		if vv.Kind() == reflect.Interface {
			vv = vv.Elem()
		}
		e.valNull = isNilValue(vv)
		if !e.valNull {
			e.valType = vv.Type()
		}
		entries = append(entries, e)
	}

	buf.WriteVarUint32(uint32(len(entries)))

	i := 0
	for i < len(entries) {
		j := i + 1
		// A null on either side makes the entry a standalone, size-free
		// chunk (§4.6): it never extends and never absorbs a follow-up.
		if !entries[i].keyNull && !entries[i].valNull {
			for j < len(entries) && j-i < maxMapChunkSize && chunkCompatible(entries[i], entries[j]) {
				j++
			}
		}
		if err := s.writeChunk(f, buf, entries[i:j]); err != nil {
			return err
		}
		i = j
	}
	return nil
}

// chunkCompatible reports whether b can extend the run started by a: same
// null-ness on both sides, and (when non-null) the same dynamic type, so
// the chunk's shared type descriptor still applies.
func chunkCompatible(a, b mapEntry) bool {
	if a.keyNull != b.keyNull || a.valNull != b.valNull {
		return false
	}
	if b.keyNull || b.valNull {
		return false
	}
	if a.keyType != b.keyType {
		return false
	}
	if a.valType != b.valType {
		return false
	}
	return true
}

func (s mapSerializer) writeChunk(f *Fory, buf *ByteBuffer, chunk []mapEntry) error {
	head := chunk[0]
	flags := byte(0)
	if head.keyNull {
		flags |= mapChunkKeyNull
	}
	if head.valNull {
		flags |= mapChunkValueNull
	}
	if s.keyReferencable && !head.keyNull {
		flags |= mapChunkTrackKeyRef
	}
	if s.valueReferencable && !head.valNull {
		flags |= mapChunkTrackValRef
	}
	// The *DeclType flags mean "this side's type equals the container's
	// statically declared type; omit the type header" (§4.5). That's only
	// true when the side has a static serializer at all (keySerializer/
	// valueSerializer non-nil) — a dynamic (interface{}) side always needs
	// its per-chunk header since any runtime type may show up there.
	keyIsDeclType := s.keySerializer != nil && !head.keyNull
	valIsDeclType := s.valueSerializer != nil && !head.valNull
	if keyIsDeclType {
		flags |= mapChunkKeyDeclType
	}
	if valIsDeclType {
		flags |= mapChunkValDeclType
	}

	buf.WriteByte_(flags)
	// Per §4.6, the size byte is only present when neither side of the
	// chunk's entries is null: a null-bearing entry is always a standalone
	// one-entry chunk and needs no size field to say so.
	if !head.keyNull && !head.valNull {
		buf.WriteByte_(byte(len(chunk)))
	}

	if !head.keyNull && !keyIsDeclType {
		if err := f.typeResolver.writeType(buf, head.keyType); err != nil {
			return err
		}
	}
	if !head.valNull && !valIsDeclType {
		if err := f.typeResolver.writeType(buf, head.valType); err != nil {
			return err
		}
	}

	// Type declaration happens once above, per chunk; each entry only needs
	// its ref/null header and payload via whichever serializer is resolved
	// for its (now chunk-shared) concrete type.
	for _, e := range chunk {
		if !e.keyNull {
			kv := e.key
			if kv.Kind() == reflect.Interface {
				kv = kv.Elem()
			}
			if err := f.writeReferencableValue(buf, kv); err != nil {
				return err
			}
		}
		if !e.valNull {
			vv := e.value
			if vv.Kind() == reflect.Interface {
				vv = vv.Elem()
			}
			if err := f.writeReferencableValue(buf, vv); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s mapSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type) (reflect.Value, error) {
	if type_ == nil || type_.Kind() != reflect.Map {
		type_ = interfaceMapType
	}
	total := int(buf.ReadVarUint32())
	dst := reflect.MakeMapWithSize(type_, total)

	read := 0
	for read < total {
		flags := buf.ReadByte_()
		keyNull := flags&mapChunkKeyNull != 0
		valNull := flags&mapChunkValueNull != 0
		chunkSize := 1
		if !keyNull && !valNull {
			chunkSize = int(buf.ReadByte_())
		}

		// mapChunk{Key,Val}DeclType set means the side's type is the
		// container's statically declared type, so no header was written for
		// it; unset (and non-null) means a per-chunk header follows.
		var sharedKeyType, sharedValType reflect.Type
		if !keyNull {
			if flags&mapChunkKeyDeclType != 0 {
				sharedKeyType = type_.Key()
			} else {
				t, err := f.typeResolver.readType(buf)
				if err != nil {
					return reflect.Value{}, err
				}
				sharedKeyType = t
			}
		}
		if !valNull {
			if flags&mapChunkValDeclType != 0 {
				sharedValType = type_.Elem()
			} else {
				t, err := f.typeResolver.readType(buf)
				if err != nil {
					return reflect.Value{}, err
				}
				sharedValType = t
			}
		}

		for n := 0; n < chunkSize; n++ {
			var key, val reflect.Value
			if keyNull {
				key = reflect.Zero(type_.Key())
			} else {
				kv, err := f.readReferencableValueAs(buf, sharedKeyType)
				if err != nil {
					return reflect.Value{}, err
				}
				if type_.Key().Kind() == reflect.Interface {
					key = kv
				} else {
					key = kv.Convert(type_.Key())
				}
			}

			if valNull {
				val = reflect.Zero(type_.Elem())
			} else {
				vv, err := f.readReferencableValueAs(buf, sharedValType)
				if err != nil {
					return reflect.Value{}, err
				}
				if type_.Elem().Kind() == reflect.Interface {
					val = vv
				} else {
					val = vv.Convert(type_.Elem())
				}
			}

			dst.SetMapIndex(key, val)
		}
		read += chunkSize
	}
	return dst, nil
}
