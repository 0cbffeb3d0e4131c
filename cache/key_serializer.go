package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = ":"

// MaxKeyLength is the longest key the serializer emits verbatim. Longer keys
// keep their namespace and replace the rest with a digest.
const MaxKeyLength = 512

// defaultKeySerializer implements KeySerializer using reflection-based serialization.
// Keys must be identical across processes because they address a shared cache,
// so values without a stable representation (funcs, channels) are rejected
// into a fixed marker instead of using pointer addresses.
type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{}
}

// SerializeKey builds "namespace:part1:part2" with the namespace passed through
// NormalizeNamespace. An invalid namespace yields the empty key, which the
// coordinator rejects as invalid input.
func (s *defaultKeySerializer) SerializeKey(namespace string, parts ...any) string {
	ns, err := NormalizeNamespace(namespace)
	if err != nil {
		return ""
	}
	if len(parts) == 0 {
		return ns
	}

	segments := make([]string, 0, len(parts)+1)
	segments = append(segments, ns)
	for _, part := range parts {
		segments = append(segments, s.serializeValue(part))
	}

	key := strings.Join(segments, KeySeparator)
	if len(key) > MaxKeyLength {
		return ns + KeySeparator + "#" + strconv.FormatUint(xxhash.Sum64String(key), 16)
	}
	return key
}

// serializeValue handles individual argument serialization based on type.
func (s *defaultKeySerializer) serializeValue(v any) string {
	if v == nil {
		return "nil"
	}

	if str, ok := v.(fmt.Stringer); ok {
		return str.String()
	}

	rv := reflect.ValueOf(v)
	rt := rv.Type()

	switch rt.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return s.serializeValue(rv.Elem().Interface())
	case reflect.Slice:
		if rt.Elem().Kind() == reflect.Uint8 {
			return fmt.Sprintf("%x", rv.Bytes())
		}
		return s.serializeList(rv)
	case reflect.Array:
		return s.serializeList(rv)
	case reflect.Map:
		return s.serializeMap(rv)
	case reflect.Struct:
		return s.serializeStruct(rv, rt)
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return "unsupported(" + rt.String() + ")"
	}

	if s.isBasicType(rt.Kind()) {
		return fmt.Sprintf("%v", v)
	}

	return s.jsonFallback(v)
}

func (s *defaultKeySerializer) serializeList(rv reflect.Value) string {
	parts := make([]string, rv.Len())
	for i := range parts {
		parts[i] = s.serializeValue(rv.Index(i).Interface())
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// serializeMap sorts pairs by their serialized key for deterministic output.
func (s *defaultKeySerializer) serializeMap(rv reflect.Value) string {
	pairs := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, s.serializeValue(iter.Key().Interface())+"="+s.serializeValue(iter.Value().Interface()))
	}
	sort.Strings(pairs)
	return "{" + strings.Join(pairs, ",") + "}"
}

func (s *defaultKeySerializer) serializeStruct(rv reflect.Value, rt reflect.Type) string {
	parts := make([]string, 0, rv.NumField())
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		parts = append(parts, snakeCase(field.Name)+"="+s.serializeValue(rv.Field(i).Interface()))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func (s *defaultKeySerializer) isBasicType(kind reflect.Kind) bool {
	switch kind {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128,
		reflect.String:
		return true
	default:
		return false
	}
}

func (s *defaultKeySerializer) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "unsupported(" + reflect.TypeOf(v).String() + ")"
	}
	return string(data)
}
