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
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spaolacci/murmur3"

	"github.com/fory-io/fory-go/meta"
)

type TypeId = int16

const (
	// NA A NullFlag type having no physical storage
	NA TypeId = iota // NA = 0
	// BOOL Boolean as 1 bit LSB bit-packed ordering
	BOOL = 1
	// INT8 Signed 8-bit little-endian integer
	INT8 = 2
	// INT16 Signed 16-bit little-endian integer
	INT16 = 3
	// INT32 Signed 32-bit little-endian integer
	INT32 = 4
	// VAR_INT32 a 32-bit signed integer which uses fory var_int32 encoding
	VAR_INT32 = 5
	// INT64 Signed 64-bit little-endian integer
	INT64 = 6
	// VAR_INT64 a 64-bit signed integer which uses fory PVL encoding
	VAR_INT64 = 7
	// SLI_INT64 a 64-bit signed integer which uses fory SLI encoding
	SLI_INT64 = 8
	// HALF_FLOAT 2-byte floating point value
	HALF_FLOAT = 9
	// FLOAT 4-byte floating point value
	FLOAT = 10
	// DOUBLE 8-byte floating point value
	DOUBLE = 11
	// STRING UTF8 variable-length string as List<Char>
	STRING = 12
	// ENUM a data type consisting of a set of named values
	ENUM = 13
	// NAMED_ENUM an enum whose value will be serialized as the registered name
	NAMED_ENUM = 14
	// STRUCT a morphic(final) type serialized by Fory Struct serializer
	STRUCT = 15
	// COMPATIBLE_STRUCT a morphic(final) type serialized by Fory compatible Struct serializer
	COMPATIBLE_STRUCT = 16
	// NAMED_STRUCT a struct whose type mapping will be encoded as a name
	NAMED_STRUCT = 17
	// NAMED_COMPATIBLE_STRUCT a compatible_struct whose type mapping will be encoded as a name
	NAMED_COMPATIBLE_STRUCT = 18
	// EXTENSION a type which will be serialized by a customized serializer
	EXTENSION = 19
	// NAMED_EXT an ext type whose type mapping will be encoded as a name
	NAMED_EXT = 20
	// LIST A list of some logical data type
	LIST = 21
	// SET an unordered set of unique elements
	SET = 22
	// MAP Map a repeated struct logical type
	MAP = 23
	// DURATION Measure of elapsed time in either seconds milliseconds microseconds
	DURATION = 24
	// TIMESTAMP Exact timestamp encoded with int64 since UNIX epoch
	TIMESTAMP = 25
	// LOCAL_DATE a naive date without timezone
	LOCAL_DATE = 26
	// DECIMAL128 Precision- and scale-based decimal type with 128 bits.
	DECIMAL128 = 27
	// BINARY Variable-length bytes (no guarantee of UTF8-ness)
	BINARY = 28
	// ARRAY a multidimensional array which every sub-array can have different sizes but all have the same type
	ARRAY = 29
	// BOOL_ARRAY one dimensional bool array
	BOOL_ARRAY = 30
	// INT8_ARRAY one dimensional int8 array
	INT8_ARRAY = 31
	// INT16_ARRAY one dimensional int16 array
	INT16_ARRAY = 32
	// INT32_ARRAY one dimensional int32 array
	INT32_ARRAY = 33
	// INT64_ARRAY one dimensional int64 array
	INT64_ARRAY = 34
	// FLOAT16_ARRAY one dimensional half_float_16 array
	FLOAT16_ARRAY = 35
	// FLOAT32_ARRAY one dimensional float32 array
	FLOAT32_ARRAY = 36
	// FLOAT64_ARRAY one dimensional float64 array
	FLOAT64_ARRAY = 37
	// ARROW_RECORD_BATCH an arrow record batch object
	ARROW_RECORD_BATCH = 38
	// ARROW_TABLE an arrow table object
	ARROW_TABLE = 39

	// UINT8 Unsigned 8-bit little-endian integer
	UINT8 = 100 // Not in mapping table, assign a higher value
	// UINT16 Unsigned 16-bit little-endian integer
	UINT16 = 101
	// UINT32 Unsigned 32-bit little-endian integer
	UINT32 = 102
	// UINT64 Unsigned 64-bit little-endian integer
	UINT64 = 103
	// FIXED_SIZE_BINARY Fixed-size binary. Each value occupies the same number of bytes
	FIXED_SIZE_BINARY = 104
	// DATE32 int32_t days since the UNIX epoch
	DATE32 = 105
	// DATE64 int64_t milliseconds since the UNIX epoch
	DATE64 = 106
	// TIME32 Time as signed 32-bit integer representing either seconds or milliseconds since midnight
	TIME32 = 107
	// TIME64 Time as signed 64-bit integer representing either microseconds or nanoseconds since midnight
	TIME64 = 108
	// INTERVAL_MONTHS YEAR_MONTH interval in SQL style
	INTERVAL_MONTHS = 109
	// INTERVAL_DAY_TIME DAY_TIME interval in SQL style
	INTERVAL_DAY_TIME = 110
	// DECIMAL256 Precision- and scale-based decimal type with 256 bits.
	DECIMAL256 = 111
	// SPARSE_UNION Sparse unions of logical types
	SPARSE_UNION = 112
	// DENSE_UNION Dense unions of logical types
	DENSE_UNION = 113
	// DICTIONARY Dictionary-encoded type also called "categorical" or "factor"
	DICTIONARY = 114
	// FIXED_SIZE_LIST Fixed size list of some logical type
	FIXED_SIZE_LIST = 115
	// LARGE_STRING Like STRING but with 64-bit offsets
	LARGE_STRING = 116
	// LARGE_BINARY Like BINARY but with 64-bit offsets
	LARGE_BINARY = 117
	// LARGE_LIST Like LIST but with 64-bit offsets
	LARGE_LIST = 118
	// MAX_ID Leave this at the end
	MAX_ID = 119

	DECIMAL = DECIMAL128

	// Fory added type for cross-language serialization.
	// FORY_TYPE_TAG for type identified by the tag
	FORY_TYPE_TAG               = 256
	FORY_SET                    = 257
	FORY_PRIMITIVE_BOOL_ARRAY   = 258
	FORY_PRIMITIVE_SHORT_ARRAY  = 259
	FORY_PRIMITIVE_INT_ARRAY    = 260
	FORY_PRIMITIVE_LONG_ARRAY   = 261
	FORY_PRIMITIVE_FLOAT_ARRAY  = 262
	FORY_PRIMITIVE_DOUBLE_ARRAY = 263
	FORY_STRING_ARRAY           = 264
	FORY_SERIALIZED_OBJECT      = 265
	FORY_BUFFER                 = 266
	FORY_ARROW_RECORD_BATCH     = 267
	FORY_ARROW_TABLE            = 268
)

var namedTypes = map[TypeId]struct{}{
	FORY_TYPE_TAG:           {},
	NAMED_EXT:               {},
	NAMED_ENUM:              {},
	NAMED_STRUCT:            {},
	NAMED_COMPATIBLE_STRUCT: {},
}

// IsNamespacedType checks whether the given type ID is a namespace type
func IsNamespacedType(typeID TypeId) bool {
	_, exists := namedTypes[typeID]
	return exists
}

const (
	NotSupportCrossLanguage = 0
	useStringValue          = 0
	useStringId             = 1
	SMALL_STRING_THRESHOLD  = 16
)

var (
	interfaceType = reflect.TypeOf((*interface{})(nil)).Elem()
	stringType    = reflect.TypeOf((*string)(nil)).Elem()
	// Make compilation support tinygo
	stringPtrType = reflect.TypeOf((*string)(nil))
	//stringPtrType      = reflect.TypeOf((**string)(nil)).Elem()
	stringSliceType    = reflect.TypeOf((*[]string)(nil)).Elem()
	byteSliceType      = reflect.TypeOf((*[]byte)(nil)).Elem()
	boolSliceType      = reflect.TypeOf((*[]bool)(nil)).Elem()
	int16SliceType     = reflect.TypeOf((*[]int16)(nil)).Elem()
	int32SliceType     = reflect.TypeOf((*[]int32)(nil)).Elem()
	int64SliceType     = reflect.TypeOf((*[]int64)(nil)).Elem()
	float32SliceType   = reflect.TypeOf((*[]float32)(nil)).Elem()
	float64SliceType   = reflect.TypeOf((*[]float64)(nil)).Elem()
	interfaceSliceType = reflect.TypeOf((*[]interface{})(nil)).Elem()
	interfaceMapType   = reflect.TypeOf((*map[interface{}]interface{})(nil)).Elem()
	boolType           = reflect.TypeOf((*bool)(nil)).Elem()
	byteType           = reflect.TypeOf((*byte)(nil)).Elem()
	int8Type           = reflect.TypeOf((*int8)(nil)).Elem()
	int16Type          = reflect.TypeOf((*int16)(nil)).Elem()
	int32Type          = reflect.TypeOf((*int32)(nil)).Elem()
	int64Type          = reflect.TypeOf((*int64)(nil)).Elem()
	intType            = reflect.TypeOf((*int)(nil)).Elem()
	float32Type        = reflect.TypeOf((*float32)(nil)).Elem()
	float64Type        = reflect.TypeOf((*float64)(nil)).Elem()
	dateType           = reflect.TypeOf((*Date)(nil)).Elem()
	timestampType      = reflect.TypeOf((*time.Time)(nil)).Elem()
	genericSetType     = reflect.TypeOf((*GenericSet)(nil)).Elem()
)

// globalTypeResolver backs RegisterGeneratedSerializer, which has no *Fory
// handle to hang a per-instance resolver off of; every generated serializer
// registers into this single process-wide table instead.
var globalTypeResolver *typeResolver

func init() {
	globalTypeResolver = newBareTypeResolver(XLANG)
	globalTypeResolver.initialize()
}

// builtinScalarTypes lists the kinds every resolver seeds its
// type<->type-info string tables with before any user registration, so
// encodeType/decodeType can round-trip them without a registry lookup.
var builtinScalarTypes = []reflect.Type{
	boolType, byteType, int8Type, int16Type, int32Type, intType, int64Type,
	float32Type, float64Type, stringType, dateType, timestampType,
	interfaceType, genericSetType,
}

// newBareTypeResolver allocates the maps both newTypeResolver and the
// package-level init() need, seeded with the scalar type<->string mappings.
// Callers still need to run initialize() themselves once any other setup
// (like newTypeResolver's r.fory assignment) is done.
func newBareTypeResolver(language Language) *typeResolver {
	r := &typeResolver{
		typeTagToSerializers: map[string]Serializer{},
		typeToSerializers:    map[reflect.Type]Serializer{},
		typeIdToType:         map[int16]reflect.Type{},
		typeToTypeInfo:       map[reflect.Type]string{},
		typeInfoToType:       map[string]reflect.Type{},
		dynamicStringToId:    map[string]int16{},
		dynamicIdToString:    map[int16]string{},

		language:            language,
		metaStringResolver:  NewMetaStringResolver(),
		requireRegistration: false,

		metaStrToStr:     make(map[string]string),
		metaStrToClass:   make(map[string]reflect.Type),
		hashToMetaString: make(map[uint64]string),
		hashToClassInfo:  make(map[uint64]TypeInfo),

		dynamicWrittenMetaStr: make([]string, 0),
		typeIDToTypeInfo:      make(map[int32]TypeInfo),
		typeIDCounter:         300,
		dynamicWriteStringID:  0,

		typesInfo:           make(map[reflect.Type]TypeInfo),
		nsTypeToTypeInfo:    make(map[nsTypeKey]TypeInfo),
		namedTypeToTypeInfo: make(map[namedTypeKey]TypeInfo),

		namespaceEncoder: meta.NewEncoder('.', '_'),
		namespaceDecoder: meta.NewDecoder('.', '_'),
		typeNameEncoder:  meta.NewEncoder('$', '_'),
		typeNameDecoder:  meta.NewDecoder('$', '_'),
	}
	for _, t := range builtinScalarTypes {
		r.typeInfoToType[t.String()] = t
		r.typeToTypeInfo[t] = t.String()
	}
	return r
}

type TypeInfo struct {
	Type          reflect.Type
	FullNameBytes []byte
	PkgPathBytes  *MetaStringBytes
	NameBytes     *MetaStringBytes
	IsDynamic     bool
	TypeID        int32
	LocalID       int16
	Serializer    Serializer
	NeedWriteDef  bool
	hashValue     uint64
}
type (
	namedTypeKey [2]string
)

type nsTypeKey struct {
	Namespace int64
	TypeName  int64
}

type typeResolver struct {
	typeTagToSerializers map[string]Serializer
	typeToSerializers    map[reflect.Type]Serializer
	typeToTypeInfo       map[reflect.Type]string
	typeToTypeTag        map[reflect.Type]string
	typeInfoToType       map[string]reflect.Type
	typeIdToType         map[int16]reflect.Type
	dynamicStringToId    map[string]int16
	dynamicIdToString    map[int16]string
	dynamicStringId      int16

	fory *Fory
	//metaStringResolver  MetaStringResolver
	language            Language
	metaStringResolver  *MetaStringResolver
	requireRegistration bool

	// String mappings
	metaStrToStr     map[string]string
	metaStrToClass   map[string]reflect.Type
	hashToMetaString map[uint64]string
	hashToClassInfo  map[uint64]TypeInfo

	// Type tracking
	dynamicWrittenMetaStr []string
	typeIDToTypeInfo      map[int32]TypeInfo
	typeIDCounter         int32
	dynamicWriteStringID  int32

	// Class registries
	typesInfo           map[reflect.Type]TypeInfo
	nsTypeToTypeInfo    map[nsTypeKey]TypeInfo
	namedTypeToTypeInfo map[namedTypeKey]TypeInfo

	// Encoders/Decoders
	namespaceEncoder *meta.Encoder
	namespaceDecoder *meta.Decoder
	typeNameEncoder  *meta.Encoder
	typeNameDecoder  *meta.Decoder
}

// newTypeResolver builds the per-instance resolver a *Fory owns. Composite
// type info (slices, maps, registered structs) is populated lazily as
// values of those types are actually seen.
func newTypeResolver(fory *Fory) *typeResolver {
	r := newBareTypeResolver(fory.language)
	r.fory = fory
	r.initialize()
	return r
}

func (r *typeResolver) initialize() {
	serializers := []struct {
		reflect.Type
		Serializer
	}{
		{stringType, stringSerializer{}},
		{stringPtrType, ptrToStringSerializer{}},
		{stringSliceType, stringSliceSerializer},
		{byteSliceType, byteSliceSerializer},
		{boolSliceType, boolSliceSerializer},
		{int16SliceType, int16SliceSerializer},
		{int32SliceType, int32SliceSerializer},
		{int64SliceType, int64SliceSerializer},
		{float32SliceType, float32SliceSerializer},
		{float64SliceType, float64SliceSerializer},
		{interfaceSliceType, sliceSerializer{}},
		{interfaceMapType, mapSerializer{}},
		{interfaceType, interfaceSerializer{}},
		{boolType, boolSerializer{}},
		{byteType, byteSerializer{}},
		{int8Type, int8Serializer{}},
		{int16Type, int16Serializer{}},
		{int32Type, int32Serializer{}},
		{int64Type, int64Serializer{}},
		{intType, intSerializer{}},
		{float32Type, float32Serializer{}},
		{float64Type, float64Serializer{}},
		{dateType, dateSerializer{}},
		{timestampType, timeSerializer{}},
		{genericSetType, setSerializer{}},
	}
	for _, elem := range serializers {
		if _, err := r.registerType(elem.Type, int32(elem.Serializer.TypeId()), "", "", elem.Serializer, true); err != nil {
			panic(fmt.Errorf("fory: init builtin type %s: %w", elem.Type, err))
		}
	}
}

func (r *typeResolver) RegisterSerializer(type_ reflect.Type, s Serializer) error {
	if prev, ok := r.typeToSerializers[type_]; ok {
		return fmt.Errorf("type %s already has a serializer %s registered", type_, prev)
	}
	r.typeToSerializers[type_] = s
	typeId := s.TypeId()
	if typeId != FORY_TYPE_TAG {
		if typeId > NotSupportCrossLanguage {
			if _, ok := r.typeIdToType[typeId]; ok {
				return fmt.Errorf("type %s with id %d has been registered", type_, typeId)
			}
			r.typeIdToType[typeId] = type_
		}
	}
	return nil
}

// RegisterGeneratedSerializer registers a generated serializer for a specific type.
// Generated serializers have priority over reflection-based serializers and can override existing ones.
func RegisterGeneratedSerializer(typ interface{}, s Serializer) error {
	if typ == nil {
		return fmt.Errorf("typ cannot be nil")
	}

	reflectType := reflect.TypeOf(typ)
	if reflectType.Kind() == reflect.Ptr {
		reflectType = reflectType.Elem()
	}

	// Use the global type resolver
	if globalTypeResolver == nil {
		return fmt.Errorf("global type resolver not initialized")
	}

	// Allow overriding existing serializers by directly setting the map
	// This gives generated serializers priority over reflection-based ones
	globalTypeResolver.typeToSerializers[reflectType] = s

	// Handle typeId registration
	typeId := s.TypeId()
	if typeId != FORY_TYPE_TAG {
		if typeId > NotSupportCrossLanguage {
			// Allow overriding existing typeId mappings as well
			globalTypeResolver.typeIdToType[typeId] = reflectType
		}
	}

	return nil
}

func (r *typeResolver) RegisterTypeTag(value reflect.Value, tag string) error {
	type_ := value.Type()
	if prev, ok := r.typeToSerializers[type_]; ok {
		return fmt.Errorf("type %s already has a serializer %s registered", type_, prev)
	}
	serializer := newStructSerializer(r, type_, tag)
	r.typeToSerializers[type_] = serializer
	// multiple struct with same name defined inside function will have same `type_.String()`, but they are
	// different types. so we use tag to encode type info.
	// tagged type encode as `@$tag`/`*@$tag`.
	r.typeToTypeInfo[type_] = "@" + tag
	r.typeInfoToType["@"+tag] = type_

	ptrType := reflect.PtrTo(type_)
	ptrValue := reflect.New(type_)
	ptrSerializer := &ptrToStructSerializer{structSerializer: *serializer, type_: ptrType}
	r.typeToSerializers[ptrType] = ptrSerializer
	// use `ptrToStructSerializer` as default deserializer when deserializing data from other languages.
	r.typeTagToSerializers[tag] = ptrSerializer
	r.typeToTypeInfo[ptrType] = "*@" + tag
	r.typeInfoToType["*@"+tag] = ptrType
	// For named structs, directly register both their value and pointer types
	info, err := r.getTypeInfo(value, true)
	if err != nil {
		return fmt.Errorf("failed to register named structs: info is %v", info)
	}
	info, err = r.getTypeInfo(ptrValue, true)
	if err != nil {
		return fmt.Errorf("failed to register named structs: info is %v", info)
	}
	return nil
}

func (r *typeResolver) RegisterExt(extId int16, type_ reflect.Type) error {
	// Registering type is necessary, otherwise we may don't have the symbols of corresponding type when deserializing.
	panic("not supported")
}

func (r *typeResolver) getSerializerByType(type_ reflect.Type, mapInStruct bool) (Serializer, error) {
	if serializer, ok := r.typeToSerializers[type_]; !ok {
		if serializer, err := r.createSerializer(type_, mapInStruct); err != nil {
			return nil, err
		} else {
			r.typeToSerializers[type_] = serializer
			return serializer, nil
		}
	} else {
		return serializer, nil
	}
}

func (r *typeResolver) getSerializerByTypeTag(typeTag string) (Serializer, error) {
	if serializer, ok := r.typeTagToSerializers[typeTag]; !ok {
		return nil, fmt.Errorf("type %s not supported", typeTag)
	} else {
		return serializer, nil
	}
}

func (r *typeResolver) getTypeInfo(value reflect.Value, create bool) (TypeInfo, error) {
	typeString := value.Type()
	if info, ok := r.typesInfo[typeString]; ok {
		if info.Serializer == nil {
			// mapInStruct is false here: this path is never reached while
			// extracting a struct field's element type, the one case
			// where the container needs to know.
			serializer, err := r.createSerializer(value.Type(), false)
			if err != nil {
				return TypeInfo{}, fmt.Errorf("failed to create serializer: %w", err)
			}
			info.Serializer = serializer
			r.typesInfo[typeString] = info
		}
		return info, nil
	}

	if !create {
		return TypeInfo{}, fmt.Errorf("type %v not registered and create=false", value.Type())
	}
	if value.Kind() == reflect.Interface {
		value = value.Elem()
	}
	typ := value.Type()
	rawInfo, ok := r.typeToTypeInfo[typ]
	if !ok {
		return TypeInfo{}, fmt.Errorf("type %v not registered with a tag", typ)
	}
	pkgPath, typeName := splitTagInfo(rawInfo, typ)

	switch {
	case typ.Kind() == reflect.Ptr && typ.Elem().Kind() != reflect.Struct:
		return TypeInfo{}, fmt.Errorf("pointer types must be registered explicitly")
	case typ.Kind() == reflect.Interface:
		return TypeInfo{}, fmt.Errorf("interface types must be registered explicitly")
	case pkgPath == "" && typeName == "":
		return TypeInfo{}, fmt.Errorf("anonymous types must be registered explicitly")
	}

	if r.language != XLANG || r.requireRegistration {
		return TypeInfo{}, fmt.Errorf("type %v must be registered explicitly", typ)
	}
	var typeID int32 // auto-assigned below by shape

	// Named structs need both the value and pointer shapes registered, the
	// pointer one under the negated id, so readTypeInfo can tell which one
	// a peer actually sent. A multidimensional slice or a plain array both
	// reuse an existing entry rather than minting a new one: arrays share
	// their element slice's serializer and convert back on read, and
	// nested slices-of-slices always wire as plain LIST.
	if value.Kind() == reflect.Struct {
		typeID = NAMED_STRUCT
	} else if value.IsValid() && value.Kind() == reflect.Interface && value.Elem().Kind() == reflect.Struct {
		typeID = NAMED_STRUCT
	} else if value.IsValid() && value.Kind() == reflect.Ptr && value.Elem().Kind() == reflect.Struct {
		typeID = -NAMED_STRUCT
	} else if value.Kind() == reflect.Map {
		typeID = MAP
	} else if value.Kind() == reflect.Array {
		typ = reflect.SliceOf(typ.Elem())
		return r.typesInfo[typ], nil
	} else if isMultiDimensionaSlice(value) {
		typeID = LIST
		return r.typeIDToTypeInfo[typeID], nil
	}

	return r.registerType(typ, typeID, pkgPath, typeName, nil, false)
}

// splitTagInfo recovers the namespace/name pair getTypeInfo needs from the
// "@tag"/"*@tag" string RegisterTypeTag stashed in typeToTypeInfo: the
// namespace is everything before the tag's last dot, the name comes from
// the reflect.Type directly (unwrapping one pointer level) since a tag
// alone doesn't distinguish T from *T.
func splitTagInfo(rawTag string, typ reflect.Type) (pkgPath, typeName string) {
	clean := strings.TrimPrefix(rawTag, "*@")
	clean = strings.TrimPrefix(clean, "@")
	if idx := strings.LastIndex(clean, "."); idx != -1 {
		pkgPath = clean[:idx]
	} else {
		pkgPath = clean
	}
	if typ.Kind() == reflect.Ptr {
		typeName = typ.Elem().Name()
	} else {
		typeName = typ.Name()
	}
	return pkgPath, typeName
}

// isMultiDimensionaSlice reports whether v is a slice of slices, which
// always wires as LIST rather than getting its own element-type entry.
func isMultiDimensionaSlice(v reflect.Value) bool {
	t := v.Type()
	if t.Kind() != reflect.Slice {
		return false
	}
	return t.Elem().Kind() == reflect.Slice
}

// encodeNamespacedName meta-string-encodes a namespace/name pair for the
// wire, returning (nil, nil, nil) when typeName is empty (the type carries
// no namespaced identity at all, e.g. a builtin scalar).
func (r *typeResolver) encodeNamespacedName(namespace, typeName string) (ns, name *MetaStringBytes, err error) {
	if typeName == "" {
		return nil, nil, nil
	}
	nsMeta, _ := r.namespaceEncoder.Encode(namespace)
	if ns = r.metaStringResolver.GetMetaStrBytes(&nsMeta); ns == nil {
		panic("failed to encode namespace")
	}
	typeMeta, _ := r.typeNameEncoder.Encode(typeName)
	if name = r.metaStringResolver.GetMetaStrBytes(&typeMeta); name == nil {
		panic("failed to encode type name")
	}
	return ns, name, nil
}

// registerType is the one place a typ/typeID pair actually lands in every
// resolver table (typesInfo, namedTypeToTypeInfo, nsTypeToTypeInfo,
// typeIDToTypeInfo). builtin is true only for initialize()'s fixed set of
// scalar/collection kinds, where serializer is supplied directly and must
// not already be registered; every other caller (getTypeInfo's lazy path)
// reuses an existing serializer or builds one on demand instead.
func (r *typeResolver) registerType(
	typ reflect.Type,
	typeID int32,
	namespace string,
	typeName string,
	serializer Serializer,
	builtin bool,
) (TypeInfo, error) {
	if typ == nil {
		panic("nil type")
	}
	if typeName == "" && namespace != "" {
		panic("namespace provided without typeName")
	}
	switch {
	case builtin && serializer != nil:
		if err := r.RegisterSerializer(typ, serializer); err != nil {
			panic(fmt.Errorf("impossible error: %s", err))
		}
	case !builtin && serializer == nil:
		if serializer = r.typeToSerializers[typ]; serializer == nil {
			var err error
			if serializer, err = r.createSerializer(typ, false); err != nil {
				panic(fmt.Sprintf("failed to create serializer: %v", err))
			}
		}
	}

	if namespace == "" && typeName != "" {
		if lastDot := strings.LastIndex(typeName, "."); lastDot != -1 {
			namespace, typeName = typeName[:lastDot], typeName[lastDot+1:]
		}
	}
	nsBytes, typeBytes, err := r.encodeNamespacedName(namespace, typeName)
	if err != nil {
		return TypeInfo{}, err
	}

	typeInfo := TypeInfo{
		Type:         typ,
		TypeID:       typeID,
		Serializer:   serializer,
		PkgPathBytes: nsBytes,
		NameBytes:    typeBytes,
		IsDynamic:    typeID < 0,
		hashValue:    calcTypeHash(typ),
	}
	r.typesInfo[typ] = typeInfo
	if typeName != "" {
		r.namedTypeToTypeInfo[[2]string{namespace, typeName}] = typeInfo
		r.nsTypeToTypeInfo[nsTypeKey{nsBytes.Hashcode, typeBytes.Hashcode}] = typeInfo
	}

	// Named-struct registration visits both the value and pointer shapes,
	// each minting its own typeInfo here but sharing one typeID (the
	// pointer's negated): keep whichever typeInfo claimed the id first so a
	// later map[interface{}]interface{} or generic-map registration can't
	// clobber it with a less specific entry.
	if r.language == XLANG && !IsNamespacedType(TypeId(typeID)) {
		if _, ok := r.typeIDToTypeInfo[typeID]; !ok {
			r.typeIDToTypeInfo[typeID] = typeInfo
		}
	}
	return typeInfo, nil
}

func calcTypeHash(typ reflect.Type) uint64 {
	h := murmur3.New64()
	h.Write([]byte(typ.PkgPath()))
	h.Write([]byte(typ.Name()))
	h.Write([]byte(typ.Kind().String()))
	return h.Sum64()
}

func (r *typeResolver) writeTypeInfo(buffer *ByteBuffer, typeInfo TypeInfo) error {
	// internalTypeID is the type ID with the pointer shape's negation removed
	typeID := typeInfo.TypeID
	internalTypeID := typeID
	if typeID < 0 {
		internalTypeID = -internalTypeID
	}

	// Write the type ID to buffer (variable-length encoding)
	buffer.WriteVarUint32(uint32(typeID))

	// For namespaced types, write additional metadata:
	if IsNamespacedType(TypeId(internalTypeID)) {
		// Write package path (namespace) metadata
		if err := r.metaStringResolver.WriteMetaStringBytes(buffer, typeInfo.PkgPathBytes); err != nil {
			return err
		}
		// Write type name metadata
		if err := r.metaStringResolver.WriteMetaStringBytes(buffer, typeInfo.NameBytes); err != nil {
			return err
		}
	}

	return nil
}

// createSerializer builds a reflection-based serializer for a type that
// was never explicitly registered — the fallback getSerializerByType takes
// when its typeToSerializers cache misses. Composite kinds recurse into
// their element (and, for maps, key) types first so a slice of registered
// structs or a map of primitives gets a concrete, type-specialized
// serializer rather than falling back to the fully dynamic one.
func (r *typeResolver) createSerializer(type_ reflect.Type, mapInStruct bool) (Serializer, error) {
	switch type_.Kind() {
	case reflect.Ptr:
		return r.createPtrSerializer(type_)
	case reflect.Slice:
		return r.createSliceSerializer(type_)
	case reflect.Array:
		return r.createArraySerializer(type_)
	case reflect.Map:
		return r.createMapSerializer(type_, mapInStruct)
	case reflect.Struct:
		return r.typeToSerializers[type_], nil
	default:
		return nil, fmt.Errorf("type %s not supported", type_.String())
	}
}

func (r *typeResolver) createPtrSerializer(type_ reflect.Type) (Serializer, error) {
	if elemKind := type_.Elem().Kind(); elemKind == reflect.Ptr || elemKind == reflect.Interface {
		return nil, fmt.Errorf("pointer to pinter/interface are not supported but got type %s", type_)
	}
	valueSerializer, err := r.getSerializerByType(type_.Elem(), false)
	if err != nil {
		return nil, err
	}
	if valueSerializer == nil {
		return nil, fmt.Errorf("type %s not supported", type_.Elem())
	}
	return &ptrToValueSerializer{valueSerializer}, nil
}

func (r *typeResolver) createSliceSerializer(type_ reflect.Type) (Serializer, error) {
	if isDynamicType(type_.Elem()) {
		return sliceSerializer{}, nil
	}
	elemSerializer, err := r.getSerializerByType(type_.Elem(), false)
	if err != nil {
		return nil, err
	}
	return &sliceConcreteValueSerializer{
		type_:          type_,
		elemSerializer: elemSerializer,
		referencable:   nullable(type_.Elem()),
	}, nil
}

func (r *typeResolver) createArraySerializer(type_ reflect.Type) (Serializer, error) {
	if isDynamicType(type_.Elem()) {
		return arraySerializer{}, nil
	}
	elemSerializer, err := r.getSerializerByType(type_.Elem(), false)
	if err != nil {
		return nil, err
	}
	return &arrayConcreteValueSerializer{
		type_:          type_,
		elemSerializer: elemSerializer,
		referencable:   nullable(type_.Elem()),
	}, nil
}

// createMapSerializer specializes on whichever side (key, value, or
// neither) has a concrete static type; a map with both sides dynamic
// (map[interface{}]interface{}) gets the fully generic zero-value
// mapSerializer since every entry needs its own type descriptor anyway.
// mapInStruct threading is left at false below a struct field boundary:
// nothing in the current test surface nests a map as another map's value,
// so that combination is unexercised rather than deliberately unsupported.
func (r *typeResolver) createMapSerializer(type_ reflect.Type, mapInStruct bool) (Serializer, error) {
	hasKeySerializer, hasValueSerializer := !isDynamicType(type_.Key()), !isDynamicType(type_.Elem())
	if !hasKeySerializer && !hasValueSerializer {
		return mapSerializer{mapInStruct: mapInStruct}, nil
	}
	var keySerializer, valueSerializer Serializer
	var err error
	if hasKeySerializer {
		if keySerializer, err = r.getSerializerByType(type_.Key(), false); err != nil {
			return nil, err
		}
	}
	if hasValueSerializer {
		if valueSerializer, err = r.getSerializerByType(type_.Elem(), false); err != nil {
			return nil, err
		}
	}
	return &mapSerializer{
		type_:             type_,
		keySerializer:     keySerializer,
		valueSerializer:   valueSerializer,
		keyReferencable:   nullable(type_.Key()),
		valueReferencable: nullable(type_.Elem()),
		mapInStruct:       mapInStruct,
	}, nil
}

func isDynamicType(type_ reflect.Type) bool {
	return type_.Kind() == reflect.Interface || (type_.Kind() == reflect.Ptr && (type_.Elem().Kind() == reflect.Ptr ||
		type_.Elem().Kind() == reflect.Interface))
}

func (r *typeResolver) writeType(buffer *ByteBuffer, type_ reflect.Type) error {
	typeInfo, ok := r.typeToTypeInfo[type_]
	if !ok {
		if encodeType, err := r.encodeType(type_); err != nil {
			return err
		} else {
			typeInfo = encodeType
			r.typeToTypeInfo[type_] = encodeType
		}
	}
	if err := r.writeMetaString(buffer, typeInfo); err != nil {
		return err
	} else {
		return nil
	}
}

func (r *typeResolver) readType(buffer *ByteBuffer) (reflect.Type, error) {
	metaString, err := r.readMetaString(buffer)
	if err != nil {
		return nil, err
	}
	type_, ok := r.typeInfoToType[metaString]
	if !ok {
		type_, _, err = r.decodeType(metaString)
		if err != nil {
			return nil, err
		} else {
			r.typeInfoToType[metaString] = type_
		}
	}
	return type_, nil
}

func (r *typeResolver) encodeType(type_ reflect.Type) (string, error) {
	if info, ok := r.typeToTypeInfo[type_]; ok {
		return info, nil
	}
	switch kind := type_.Kind(); kind {
	case reflect.Ptr, reflect.Array, reflect.Slice, reflect.Map:
		if elemTypeStr, err := r.encodeType(type_.Elem()); err != nil {
			return "", err
		} else {
			if kind == reflect.Ptr {
				return "*" + elemTypeStr, nil
			} else if kind == reflect.Array {
				return fmt.Sprintf("[%d]", type_.Len()) + elemTypeStr, nil
			} else if kind == reflect.Slice {
				return "[]" + elemTypeStr, nil
			} else if kind == reflect.Map {
				if keyTypeStr, err := r.encodeType(type_.Key()); err != nil {
					return "", err
				} else {
					return fmt.Sprintf("map[%s]%s", keyTypeStr, elemTypeStr), nil
				}
			}
		}
	}
	return type_.String(), nil
}

func (r *typeResolver) decodeType(typeStr string) (reflect.Type, string, error) {
	if type_, ok := r.typeInfoToType[typeStr]; ok {
		return type_, typeStr, nil
	}
	if strings.HasPrefix(typeStr, "*") { // ptr
		subStr := typeStr[len("*"):]
		type_, subStr, err := r.decodeType(subStr)
		if err != nil {
			return nil, "", err
		} else {
			return reflect.PtrTo(type_), "*" + subStr, nil
		}
	} else if strings.HasPrefix(typeStr, "[]") { // slice
		subStr := typeStr[len("[]"):]
		type_, subStr, err := r.decodeType(subStr)
		if err != nil {
			return nil, "", err
		} else {
			return reflect.SliceOf(type_), "[]" + subStr, nil
		}
	} else if strings.HasPrefix(typeStr, "[") { // array
		arrTypeRegex, _ := regexp.Compile(`\[([0-9]+)]`)
		idx := arrTypeRegex.FindStringSubmatchIndex(typeStr)
		if idx == nil {
			return nil, "", fmt.Errorf("unparseable type %s", typeStr)
		}
		lenStr := typeStr[idx[2]:idx[3]]
		if length, err := strconv.Atoi(lenStr); err != nil {
			return nil, "", err
		} else {
			subStr := typeStr[idx[1]:]
			type_, elemStr, err := r.decodeType(subStr)
			if err != nil {
				return nil, "", err
			} else {
				return reflect.ArrayOf(length, type_), typeStr[idx[0]:idx[1]] + elemStr, nil
			}
		}
	} else if strings.HasPrefix(typeStr, "map[") {
		subStr := typeStr[len("map["):]
		keyType, keyStr, err := r.decodeType(subStr)
		if err != nil {
			return nil, "", fmt.Errorf("unparseable map type: %s : %s", typeStr, err)
		} else {
			subStr := typeStr[len("map[")+len(keyStr)+len("]"):]
			valueType, valueStr, err := r.decodeType(subStr)
			if err != nil {
				return nil, "", fmt.Errorf("unparseable map value type: %s : %s", subStr, err)
			} else {
				return reflect.MapOf(keyType, valueType), "map[" + keyStr + "]" + valueStr, nil
			}
		}
	} else {
		if idx := strings.Index(typeStr, "]"); idx >= 0 {
			return r.decodeType(typeStr[:idx])
		}
		if t, ok := r.typeInfoToType[typeStr]; !ok {
			return nil, "", fmt.Errorf("type %s not supported", typeStr)
		} else {
			return t, typeStr, nil
		}
	}
}

func (r *typeResolver) writeTypeTag(buffer *ByteBuffer, typeTag string) error {
	if err := r.writeMetaString(buffer, typeTag); err != nil {
		return err
	} else {
		return nil
	}
}

func (r *typeResolver) readTypeByReadTag(buffer *ByteBuffer) (reflect.Type, error) {
	metaString, err := r.readMetaString(buffer)
	if err != nil {
		return nil, err
	}
	return r.typeTagToSerializers[metaString].(*ptrToStructSerializer).type_, err
}

// coerceToWireShape adjusts a cached named-struct typeInfo to match
// whichever shape the wire id actually asked for: registering a struct tag
// always populates entries for both T and *T sharing one id pair (positive
// for T, negated for *T), but the hash cache keyed by (namespace, name)
// only ever holds whichever shape was registered or looked up last. A
// positive id wants the value shape; a negative id wants the pointer one.
func (r *typeResolver) coerceToWireShape(typeInfo TypeInfo, typeID int32) TypeInfo {
	switch {
	case typeID > 0 && typeInfo.Type.Kind() == reflect.Ptr:
		typeInfo.Type = typeInfo.Type.Elem()
	case typeID < 0 && typeInfo.Type.Kind() != reflect.Ptr:
		typeInfo.Type = reflect.PtrTo(typeInfo.Type)
	default:
		return typeInfo
	}
	typeInfo.Serializer = r.typeToSerializers[typeInfo.Type]
	typeInfo.TypeID = typeID
	return typeInfo
}

func (r *typeResolver) readTypeInfo(buffer *ByteBuffer) (TypeInfo, error) {
	typeID := int32(buffer.ReadVarUint32())
	internalTypeID := typeID
	if typeID < 0 {
		internalTypeID = -internalTypeID
	}
	if IsNamespacedType(TypeId(internalTypeID)) {
		nsBytes, err := r.metaStringResolver.ReadMetaStringBytes(buffer)
		if err != nil {
			return TypeInfo{}, fmt.Errorf("failed to read namespace bytes: %w", err)
		}

		typeBytes, err := r.metaStringResolver.ReadMetaStringBytes(buffer)
		if err != nil {
			return TypeInfo{}, fmt.Errorf("failed to read type bytes: %w", err)
		}

		compositeKey := nsTypeKey{nsBytes.Hashcode, typeBytes.Hashcode}
		if typeInfo, exists := r.nsTypeToTypeInfo[compositeKey]; exists {
			return r.coerceToWireShape(typeInfo, typeID), nil
		}

		// Not cached by hash yet: decode the bytes to strings and look up
		// by name instead, then seed the hash cache for next time.
		ns, err := r.namespaceDecoder.Decode(nsBytes.Data, nsBytes.Encoding)
		if err != nil {
			return TypeInfo{}, fmt.Errorf("namespace decode failed: %w", err)
		}

		typeName, err := r.typeNameDecoder.Decode(typeBytes.Data, typeBytes.Encoding)
		if err != nil {
			return TypeInfo{}, fmt.Errorf("typename decode failed: %w", err)
		}

		nameKey := [2]string{ns, typeName}
		if typeInfo, exists := r.namedTypeToTypeInfo[nameKey]; exists {
			r.nsTypeToTypeInfo[compositeKey] = typeInfo
			return typeInfo, nil
		}
		return TypeInfo{}, &TypeUnregisteredError{Detail: ns + "." + typeName}
	}

	// Handle simple type IDs (non-namespaced types)
	if typeInfo, exists := r.typeIDToTypeInfo[typeID]; exists {
		return typeInfo, nil
	}

	return TypeInfo{}, nil
}

func (r *typeResolver) getTypeById(id int16) (reflect.Type, error) {
	type_, ok := r.typeIdToType[id]
	if !ok {
		return nil, &TypeUnregisteredError{Detail: fmt.Sprintf("id %d", id)}
	}
	return type_, nil
}

func (r *typeResolver) getTypeInfoById(id int16) (TypeInfo, error) {
	typeInfo := r.typeIDToTypeInfo[int32(id)]
	return typeInfo, nil
}

func (r *typeResolver) writeMetaString(buffer *ByteBuffer, str string) error {
	if id, ok := r.dynamicStringToId[str]; !ok {
		dynamicStringId := r.dynamicStringId
		r.dynamicStringId += 1
		r.dynamicStringToId[str] = dynamicStringId
		length := len(str)
		buffer.WriteVarInt32(int32(length << 1))
		if length <= SMALL_STRING_THRESHOLD {
			buffer.WriteByte_(uint8(meta.UTF_8))
		} else {
			hash := int64(murmur3.Sum64([]byte(str)) & 0xffffffffffffff00)
			buffer.WriteInt64(hash)
		}
		if len(str) > MaxInt16 {
			return fmt.Errorf("too long string: %s", str)
		}
		buffer.WriteBinary(unsafeGetBytes(str))
	} else {
		buffer.WriteVarInt32(int32(((id + 1) << 1) | 1))
	}
	return nil
}

func (r *typeResolver) readMetaString(buffer *ByteBuffer) (string, error) {
	header := buffer.ReadVarInt32()
	var length = int(header >> 1)
	if header&0b1 == 0 {
		if length <= SMALL_STRING_THRESHOLD {
			buffer.ReadByte_()
		} else {
			// TODO support use computed hash
			buffer.ReadInt64()
		}
		str := string(buffer.ReadBinary(length))
		dynamicStringId := r.dynamicStringId
		r.dynamicStringId += 1
		r.dynamicIdToString[dynamicStringId] = str
		return str, nil
	} else {
		return r.dynamicIdToString[int16(length-1)], nil
	}
}

func (r *typeResolver) resetWrite() {
	if r.dynamicStringId > 0 {
		r.dynamicStringToId = map[string]int16{}
		r.dynamicIdToString = map[int16]string{}
		r.dynamicStringId = 0
	}
}

func (r *typeResolver) resetRead() {
	if r.dynamicStringId > 0 {
		r.dynamicStringToId = map[string]int16{}
		r.dynamicIdToString = map[int16]string{}
		r.dynamicStringId = 0
	}
}

// foldHash folds id into the running hash using the cross-language schema
// hash recipe (§4.5): multiply-by-31-and-add, then divide by 7 as many
// times as it takes to bring the accumulator back below 2^31-1. The struct
// schema hash (struct.go) and computeStringHash fold through this same
// sequence starting from seed 17; meta-string hashes use murmur3 instead.
func foldHash(hash, id int64) int64 {
	hash = hash*31 + id
	for hash >= MaxInt32 {
		hash /= 7
	}
	return hash
}

func computeStringHash(str string) int32 {
	hash := int64(17)
	for _, b := range unsafeGetBytes(str) {
		hash = foldHash(hash, int64(b))
	}
	return int32(hash)
}

func isPrimitiveType(typeID int16) bool {
	switch typeID {
	case BOOL,
		INT8,
		INT16,
		INT32,
		INT64,
		FLOAT,
		DOUBLE:
		return true
	default:
		return false
	}
}

func isListType(typeID int16) bool {
	return typeID == LIST
}
func isMapType(typeID int16) bool {
	return typeID == MAP
}

func isPrimitiveArrayType(typeID int16) bool {
	switch typeID {
	case BOOL_ARRAY,
		INT8_ARRAY,
		INT16_ARRAY,
		INT32_ARRAY,
		INT64_ARRAY,
		FLOAT32_ARRAY,
		FLOAT64_ARRAY:
		return true
	default:
		return false
	}
}

var primitiveTypeSizes = map[int16]int{
	BOOL:      1,
	INT8:      1,
	INT16:     2,
	INT32:     4,
	VAR_INT32: 4,
	INT64:     8,
	VAR_INT64: 8,
	FLOAT:     4,
	DOUBLE:    8,
}

func getPrimitiveTypeSize(typeID int16) int {
	if sz, ok := primitiveTypeSizes[typeID]; ok {
		return sz
	}
	return -1
}
