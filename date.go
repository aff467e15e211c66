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

import "time"

// Date is a naive calendar date with no time-of-day or timezone component,
// wired as days since the Unix epoch (§3, TypeInfo for LOCAL_DATE).
type Date struct {
	Year  int
	Month int
	Day   int
}

func dateToEpochDays(d Date) int32 {
	t := time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
	return int32(t.Unix() / 86400)
}

func epochDaysToDate(days int32) Date {
	t := time.Unix(int64(days)*86400, 0).UTC()
	return Date{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

// GenericSet models Fory's SET type: an unordered collection of unique
// elements with no native Go counterpart (map[T]struct{} would lose mixed-
// type elements). Order of Values() is insertion order for determinism in
// tests; the wire format doesn't guarantee ordering round-trips.
type GenericSet struct {
	values []interface{}
	index  map[interface{}]int
}

func NewGenericSet(items ...interface{}) *GenericSet {
	s := &GenericSet{}
	s.Add(items...)
	return s
}

// Add inserts items, skipping ones already present by == equality.
func (s *GenericSet) Add(items ...interface{}) {
	if s.index == nil {
		s.index = make(map[interface{}]int)
	}
	for _, item := range items {
		if _, ok := s.index[item]; ok {
			continue
		}
		s.index[item] = len(s.values)
		s.values = append(s.values, item)
	}
}

func (s *GenericSet) Len() int { return len(s.values) }

func (s GenericSet) Values() []interface{} {
	return s.values
}

func (s GenericSet) Has(item interface{}) bool {
	if s.index == nil {
		return false
	}
	_, ok := s.index[item]
	return ok
}

// Named primitive-array slice types. A plain []int16 is classified by the
// type resolver as a primitive array (typed, homogeneous, no per-element
// type headers); a named type like Int16Slice is treated as a generic list
// instead, since Go attaches user-visible semantics to named types the way
// Java/Python attach them to subclasses (§4.5 list vs. array distinction,
// exercised directly by type_test.go's TestSliceTypeClassification).
type (
	BoolSlice    []bool
	Int16Slice   []int16
	Int32Slice   []int32
	Int64Slice   []int64
	Float32Slice []float32
	Float64Slice []float64
)
