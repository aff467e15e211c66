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
	"github.com/spaolacci/murmur3"

	"github.com/fory-io/fory-go/meta"
)

// MetaStringBytes is the encoded-bytes/hash/dedup-id triple described in
// §3: hash is computed once at construction and used for both the
// process-lifetime interning table and wire-level equality, since two
// byte slices are never compared directly once hashed.
type MetaStringBytes struct {
	Data      []byte
	Encoding  meta.Encoding
	Hashcode  int64
	dynamicID int16 // set to -1 by GetMetaStrBytes; per-op write ids live in MetaStringResolver.writeIndex
}

// MetaStringResolver caches encoded namespace/type-name bytes across an
// entire framework instance (process lifetime for the hash->bytes table)
// and tracks, per write/read operation, which byte strings have already
// been put on the wire so repeats cost one var-int (§4.4).
type MetaStringResolver struct {
	hashToBytes map[int64]*MetaStringBytes

	// writtenThisOp, in first-write order, backs the back-reference index
	// used by the reused_flag in the wire format.
	writtenThisOp []*MetaStringBytes
	writeIndex    map[int64]int

	// readThisOp is the read-side mirror: index i was the i-th meta-string
	// bytes value read this operation.
	readThisOp []*MetaStringBytes
}

func NewMetaStringResolver() *MetaStringResolver {
	return &MetaStringResolver{
		hashToBytes: make(map[int64]*MetaStringBytes),
		writeIndex:  make(map[int64]int),
	}
}

func computeMetaStringHash(data []byte) int64 {
	h := murmur3.Sum64(data)
	// Mask off the low byte so it never collides with the small-string
	// one-byte encoding tag occupying the same wire slot (§4.4: "a single
	// byte encoding tag ... or a 64-bit hash").
	return int64(h &^ 0xff)
}

// GetMetaStrBytes interns ms.Data, returning the shared *MetaStringBytes
// for this process (by hash) so repeated identical namespaces/type names
// across many registered types share one allocation.
func (r *MetaStringResolver) GetMetaStrBytes(ms *meta.MetaString) *MetaStringBytes {
	hash := computeMetaStringHash(ms.Data)
	if existing, ok := r.hashToBytes[hash]; ok {
		return existing
	}
	msb := &MetaStringBytes{Data: ms.Data, Encoding: ms.Encoding, Hashcode: hash, dynamicID: -1}
	r.hashToBytes[hash] = msb
	return msb
}

// WriteMetaStringBytes implements the §4.4 wire format: a var-uint32 of
// (len<<1)|reused, then either the back-reference index (reused=1) or a
// fresh emission (length tag/hash, encoding or hash, raw bytes).
func (r *MetaStringResolver) WriteMetaStringBytes(buf *ByteBuffer, msb *MetaStringBytes) error {
	if idx, ok := r.writeIndex[msb.Hashcode]; ok {
		buf.WriteVarUint32(uint32((idx+1)<<1) | 1)
		return nil
	}
	idx := len(r.writtenThisOp)
	r.writeIndex[msb.Hashcode] = idx
	r.writtenThisOp = append(r.writtenThisOp, msb)

	buf.WriteVarUint32(uint32(len(msb.Data)) << 1)
	if len(msb.Data) <= metaStringSmallThreshold {
		buf.WriteByte_(byte(msb.Encoding))
	} else {
		buf.WriteInt64(msb.Hashcode)
	}
	buf.WriteBinary(msb.Data)
	return nil
}

// ReadMetaStringBytes mirrors WriteMetaStringBytes, caching by hash so the
// same bytes value is only ever allocated once per operation.
func (r *MetaStringResolver) ReadMetaStringBytes(buf *ByteBuffer) (*MetaStringBytes, error) {
	header := buf.ReadVarUint32()
	if header&1 == 1 {
		idx := int(header>>1) - 1
		if idx < 0 || idx >= len(r.readThisOp) {
			return nil, ErrTypeUnregistered
		}
		return r.readThisOp[idx], nil
	}
	length := int(header >> 1)
	var encoding meta.Encoding
	var hash int64
	if length <= metaStringSmallThreshold {
		encoding = meta.Encoding(buf.ReadByte_())
	} else {
		hash = buf.ReadInt64()
	}
	data := buf.ReadBinary(length)
	if buf.Error() != nil {
		return nil, buf.Error()
	}
	if length > metaStringSmallThreshold {
		if existing, ok := r.hashToBytes[hash]; ok {
			r.readThisOp = append(r.readThisOp, existing)
			return existing, nil
		}
	} else {
		hash = computeMetaStringHash(data)
		if existing, ok := r.hashToBytes[hash]; ok {
			r.readThisOp = append(r.readThisOp, existing)
			return existing, nil
		}
	}
	msb := &MetaStringBytes{Data: data, Encoding: encoding, Hashcode: hash}
	r.hashToBytes[hash] = msb
	r.readThisOp = append(r.readThisOp, msb)
	return msb, nil
}

func (r *MetaStringResolver) ResetWrite() {
	r.writtenThisOp = r.writtenThisOp[:0]
	r.writeIndex = make(map[int64]int)
}

func (r *MetaStringResolver) ResetRead() {
	r.readThisOp = r.readThisOp[:0]
}
