package elastic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"fandom-vis/internal/index"
)

// node is a position in a decoded json response, every accessor fails with an
// *index.QueryShapeError naming the path it was looking at.
type node struct {
	query string
	path  string
	value any
}

func parseNode(query string, body []byte) (node, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var value any
	err := decoder.Decode(&value)
	if err != nil {
		return node{}, fmt.Errorf("%s: decode response: %w", query, err)
	}
	return node{query: query, path: "$", value: value}, nil
}

func (n node) mismatch(path, expected string) error {
	return &index.QueryShapeError{
		Query:    n.query,
		Path:     path,
		Expected: expected,
	}
}

func (n node) get(key string) (node, error) {
	obj, ok := n.value.(map[string]any)
	if !ok {
		return node{}, n.mismatch(n.path, "object")
	}
	path := n.path + "." + key
	value, ok := obj[key]
	if !ok {
		return node{}, n.mismatch(path, "key to be present")
	}
	return node{query: n.query, path: path, value: value}, nil
}

// optional returns the value at key if n is an object that has it.
func (n node) optional(key string) (node, bool) {
	obj, ok := n.value.(map[string]any)
	if !ok {
		return node{}, false
	}
	value, ok := obj[key]
	if !ok || value == nil {
		return node{}, false
	}
	return node{query: n.query, path: n.path + "." + key, value: value}, true
}

// lookup follows a chain of object keys.
func (n node) lookup(keys ...string) (node, error) {
	current := n
	for _, key := range keys {
		next, err := current.get(key)
		if err != nil {
			return node{}, err
		}
		current = next
	}
	return current, nil
}

func (n node) array() ([]node, error) {
	values, ok := n.value.([]any)
	if !ok {
		return nil, n.mismatch(n.path, "array")
	}
	out := make([]node, len(values))
	for i, v := range values {
		out[i] = node{
			query: n.query,
			path:  n.path + "[" + strconv.Itoa(i) + "]",
			value: v,
		}
	}
	return out, nil
}

func (n node) str() (string, error) {
	value, ok := n.value.(string)
	if !ok {
		return "", n.mismatch(n.path, "string")
	}
	return value, nil
}

func (n node) uint() (uint64, error) {
	number, ok := n.value.(json.Number)
	if !ok {
		return 0, n.mismatch(n.path, "integer")
	}
	value, err := strconv.ParseUint(number.String(), 10, 64)
	if err != nil {
		return 0, n.mismatch(n.path, "non-negative integer")
	}
	return value, nil
}

func (n node) int() (int64, error) {
	number, ok := n.value.(json.Number)
	if !ok {
		return 0, n.mismatch(n.path, "integer")
	}
	value, err := number.Int64()
	if err != nil {
		return 0, n.mismatch(n.path, "integer")
	}
	return value, nil
}

func (n node) float() (float64, error) {
	number, ok := n.value.(json.Number)
	if !ok {
		return 0, n.mismatch(n.path, "number")
	}
	value, err := number.Float64()
	if err != nil {
		return 0, n.mismatch(n.path, "number")
	}
	return value, nil
}

func (n node) boolean() (bool, error) {
	value, ok := n.value.(bool)
	if !ok {
		return false, n.mismatch(n.path, "boolean")
	}
	return value, nil
}

// buckets returns the buckets of the aggregation found at keys.
func (n node) buckets(keys ...string) ([]node, error) {
	agg, err := n.lookup(keys...)
	if err != nil {
		return nil, err
	}
	buckets, err := agg.get("buckets")
	if err != nil {
		return nil, err
	}
	return buckets.array()
}

// keyCount reads the "key" and "doc_count" of a terms bucket.
func (n node) keyCount() (string, uint64, error) {
	keyNode, err := n.get("key")
	if err != nil {
		return "", 0, err
	}
	key, err := keyNode.str()
	if err != nil {
		return "", 0, err
	}
	countNode, err := n.get("doc_count")
	if err != nil {
		return "", 0, err
	}
	count, err := countNode.uint()
	if err != nil {
		return "", 0, err
	}
	return key, count, nil
}
