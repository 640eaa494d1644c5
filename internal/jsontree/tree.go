// Package jsontree models untyped JSON as a recursive sum type with stable
// key order, so that searches over arbitrary documents are deterministic.
package jsontree

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// maxDepth matches the nesting limit of encoding/json.
const maxDepth = 10000

var (
	errTooDeep  = errors.New("jsontree: nesting too deep")
	errTrailing = errors.New("jsontree: trailing data after value")
)

// Node is one of *Object, Array or Scalar.
type Node interface {
	isNode()
}

// Object is a JSON object that remembers the order its keys appeared in.
type Object struct {
	keys   []string
	fields map[string]Node
}

// Array is a JSON array.
type Array []Node

// Scalar wraps a JSON string, number (json.Number), boolean or null.
type Scalar struct {
	Value any
}

func (*Object) isNode() {}
func (Array) isNode()   {}
func (Scalar) isNode()  {}

// NewObject builds an object from alternating key/value pairs.
func NewObject(pairs ...any) *Object {
	obj := &Object{fields: map[string]Node{}}
	for i := 0; i+1 < len(pairs); i += 2 {
		key, _ := pairs[i].(string)
		obj.Set(key, From(pairs[i+1]))
	}
	return obj
}

// From lifts a Go value into a Node. Unknown types become their fmt form.
func From(v any) Node {
	switch val := v.(type) {
	case Node:
		return val
	case nil:
		return Scalar{}
	case string, bool, json.Number:
		return Scalar{Value: val}
	case int:
		return Scalar{Value: json.Number(strconv.Itoa(val))}
	case int64:
		return Scalar{Value: json.Number(strconv.FormatInt(val, 10))}
	case float64:
		return Scalar{Value: json.Number(strconv.FormatFloat(val, 'f', -1, 64))}
	default:
		return Scalar{Value: fmt.Sprint(val)}
	}
}

// Set stores a field, keeping the position of a key that already exists.
func (o *Object) Set(key string, value Node) {
	if o.fields == nil {
		o.fields = map[string]Node{}
	}
	if _, ok := o.fields[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.fields[key] = value
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (Node, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.fields[key]
	return v, ok
}

// Has reports whether the key is present, regardless of its value.
func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Keys returns keys in document order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return append([]string(nil), o.keys...)
}

// Len is the number of distinct keys.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Parse decodes a single JSON document. Numbers are kept as json.Number.
func Parse(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	node, err := decodeValue(dec, 0)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errTrailing
	}
	return node, nil
}

func decodeValue(dec *json.Decoder, depth int) (Node, error) {
	if depth > maxDepth {
		return nil, errTooDeep
	}

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return Scalar{Value: tok}, nil
	}

	switch delim {
	case '{':
		return decodeObject(dec, depth)
	case '[':
		return decodeArray(dec, depth)
	default:
		return nil, fmt.Errorf("jsontree: unexpected delimiter %q", delim)
	}
}

func decodeObject(dec *json.Decoder, depth int) (Node, error) {
	obj := &Object{fields: map[string]Node{}}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("jsontree: object key is %T", tok)
		}
		value, err := decodeValue(dec, depth+1)
		if err != nil {
			return nil, err
		}
		obj.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return obj, nil
}

func decodeArray(dec *json.Decoder, depth int) (Node, error) {
	arr := Array{}
	for dec.More() {
		value, err := decodeValue(dec, depth+1)
		if err != nil {
			return nil, err
		}
		arr = append(arr, value)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return arr, nil
}
