package transformer

import (
	"net/http"
	"strings"
)

// HeaderValue is either a value to write or the unset marker. The zero value
// sets an empty header.
type HeaderValue struct {
	value string
	unset bool
}

// Set returns a HeaderValue writing v.
func Set(v string) HeaderValue {
	return HeaderValue{value: v}
}

// Unset returns the marker that removes a header written by an earlier stage,
// whatever casing that stage used.
func Unset() HeaderValue {
	return HeaderValue{unset: true}
}

func (v HeaderValue) IsUnset() bool {
	return v.unset
}

func (v HeaderValue) String() string {
	if v.unset {
		return "<unset>"
	}
	return v.value
}

type HeaderEntry struct {
	Key   string
	Value HeaderValue
}

// HeaderPatch is the ordered list of header changes contributed by one stage.
type HeaderPatch []HeaderEntry

// Set appends a write of key.
func (p HeaderPatch) Set(key, value string) HeaderPatch {
	return append(p, HeaderEntry{Key: key, Value: Set(value)})
}

// Unset appends a removal of key.
func (p HeaderPatch) Unset(key string) HeaderPatch {
	return append(p, HeaderEntry{Key: key, Value: Unset()})
}

type headerField struct {
	key   string
	value string
}

// HeaderSet is an insertion-ordered header mapping with case-insensitive keys.
// It never holds two keys that differ only in case.
type HeaderSet struct {
	fields []headerField
}

func (h *HeaderSet) index(key string) int {
	for i, f := range h.fields {
		if strings.EqualFold(f.key, key) {
			return i
		}
	}
	return -1
}

// Apply writes or removes one header. A write replaces any existing key that
// matches case-insensitively and takes the new casing.
func (h *HeaderSet) Apply(e HeaderEntry) {
	key := strings.TrimSpace(e.Key)
	if key == "" {
		return
	}

	i := h.index(key)

	if e.Value.IsUnset() {
		if i >= 0 {
			h.fields = append(h.fields[:i], h.fields[i+1:]...)
		}
		return
	}

	if i >= 0 {
		h.fields[i] = headerField{key: key, value: e.Value.value}
		return
	}

	h.fields = append(h.fields, headerField{key: key, value: e.Value.value})
}

// Merge applies every entry of p in order.
func (h *HeaderSet) Merge(p HeaderPatch) {
	for _, e := range p {
		h.Apply(e)
	}
}

// Get returns the value of key, matched case-insensitively.
func (h HeaderSet) Get(key string) (string, bool) {
	if i := h.index(key); i >= 0 {
		return h.fields[i].value, true
	}
	return "", false
}

func (h HeaderSet) Has(key string) bool {
	return h.index(key) >= 0
}

func (h HeaderSet) Len() int {
	return len(h.fields)
}

// Keys returns the keys in insertion order with the casing of their last writer.
func (h HeaderSet) Keys() []string {
	keys := make([]string, len(h.fields))
	for i, f := range h.fields {
		keys[i] = f.key
	}
	return keys
}

// Map returns the headers as a plain map keyed with their stored casing.
func (h HeaderSet) Map() map[string]string {
	m := make(map[string]string, len(h.fields))
	for _, f := range h.fields {
		m[f.key] = f.value
	}
	return m
}

func (h HeaderSet) Clone() HeaderSet {
	fields := make([]headerField, len(h.fields))
	copy(fields, h.fields)
	return HeaderSet{fields: fields}
}

// HTTPHeader converts the set to an http.Header.
func (h HeaderSet) HTTPHeader() http.Header {
	hdr := make(http.Header, len(h.fields))
	for _, f := range h.fields {
		hdr.Set(f.key, f.value)
	}
	return hdr
}
