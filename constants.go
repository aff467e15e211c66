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

import "math"

// Numeric bounds used throughout the test suite and the var-int codec.
const (
	MaxInt8  = math.MaxInt8
	MinInt8  = math.MinInt8
	MaxUint8 = math.MaxUint8
	MaxInt16 = math.MaxInt16
	MinInt16 = math.MinInt16
	MaxInt32 = math.MaxInt32
	MinInt32 = math.MinInt32
	MaxInt64 = math.MaxInt64
	MinInt64 = math.MinInt64
	MaxInt   = math.MaxInt
	MinInt   = math.MinInt
)

// MAGIC_NUMBER is the two little-endian bytes 0xD4 0x62 that open every
// cross-language stream (§6): byte 0 = 0xD4, byte 1 = 0x62, so read back as
// an int16 it is 0x62D4.
const MAGIC_NUMBER int16 = 0x62D4

// Header byte bit flags (§6).
const (
	headerBitIsNull         = 1 << 0
	headerBitLittleEndian   = 1 << 1
	headerBitCrossLanguage  = 1 << 2
	headerBitOutOfBand      = 1 << 3
)

// Language identifies the peer that wrote or will read a stream (§6).
type Language uint8

const (
	XLANG Language = iota
	JAVA
	PYTHON
	CPP
	GO
	JAVASCRIPT
	RUST
)

// Reference-tracking header values written in place of (or ahead of) a
// value's payload (§3, §6).
const (
	NullFlag     int8 = -3
	RefFlag      int8 = -2
	NotNullFlag  int8 = -1
	RefValueFlag int8 = 0
)

// Meta-string bytes-on-the-wire: strings of this length or shorter carry a
// one-byte encoding tag instead of a 64-bit hash (§4.4).
const metaStringSmallThreshold = 16
