package jsontree

import (
	"encoding/json"
	"strconv"
)

// Truthy follows the usual loose-typing rules: null, false, zero, empty
// strings and empty containers are false.
func Truthy(n Node) bool {
	switch v := n.(type) {
	case *Object:
		return v.Len() > 0
	case Array:
		return len(v) > 0
	case Scalar:
		switch val := v.Value.(type) {
		case nil:
			return false
		case bool:
			return val
		case string:
			return val != ""
		case json.Number:
			f, err := strconv.ParseFloat(val.String(), 64)
			return err != nil || f != 0
		default:
			return true
		}
	default:
		return false
	}
}

// Text renders a scalar as text. Containers and null have no text form.
func Text(n Node) (string, bool) {
	s, ok := n.(Scalar)
	if !ok {
		return "", false
	}
	switch val := s.Value.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return "", false
	}
}

// FirstTruthy returns the first truthy value among keys, in key order.
func FirstTruthy(obj *Object, keys ...string) (Node, bool) {
	for _, key := range keys {
		if v, ok := obj.Get(key); ok && Truthy(v) {
			return v, true
		}
	}
	return nil, false
}

// FindRecords walks the tree depth-first and returns the first group of
// objects accepted by match.
//
// For an array holding at least one matching object: if matching objects are
// the majority of its object members, every object member is returned;
// otherwise only the first match. Arrays without direct matches and object
// values are searched recursively, in document order.
func FindRecords(n Node, match func(*Object) bool) []*Object {
	switch v := n.(type) {
	case Array:
		var (
			members []*Object
			first   *Object
			matched int
		)
		for _, item := range v {
			obj, ok := item.(*Object)
			if !ok {
				continue
			}
			members = append(members, obj)
			if match(obj) {
				matched++
				if first == nil {
					first = obj
				}
			}
		}
		if first != nil {
			if matched*2 > len(members) {
				return members
			}
			return []*Object{first}
		}
		for _, item := range v {
			if found := FindRecords(item, match); len(found) > 0 {
				return found
			}
		}
	case *Object:
		if match(v) {
			return []*Object{v}
		}
		for _, key := range v.keys {
			if found := FindRecords(v.fields[key], match); len(found) > 0 {
				return found
			}
		}
	}
	return nil
}
