package tree

import (
	"encoding/json"
	"sort"
	"strconv"
)

// Kind identifies which variant a Node or Scalar holds
type Kind uint8

const (
	KindNull Kind = iota
	KindObject
	KindArray
	KindString
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "null"
	}
}

const (
	// AttrPrefix is prepended to XML attribute names when folded into an object
	AttrPrefix = "@_"
	// TextKey holds the text content of an element that also has attributes or children
	TextKey = "#text"
)

// Node is one value of a parsed document: null, object, array or scalar.
// The zero Node is null.
type Node struct {
	kind   Kind
	fields map[string]Node
	items  []Node
	str    string
	num    float64
	b      bool
}

// Null is the absent value
var Null = Node{}

func String(s string) Node { return Node{kind: KindString, str: s} }

func Number(n float64) Node { return Node{kind: KindNumber, num: n} }

func Bool(b bool) Node { return Node{kind: KindBool, b: b} }

// Object builds an object node. The map is owned by the node afterwards.
func Object(fields map[string]Node) Node {
	if fields == nil {
		fields = map[string]Node{}
	}
	return Node{kind: KindObject, fields: fields}
}

func Array(items ...Node) Node {
	if items == nil {
		items = []Node{}
	}
	return Node{kind: KindArray, items: items}
}

func (n Node) Kind() Kind { return n.kind }

func (n Node) IsNull() bool { return n.kind == KindNull }

func (n Node) IsObject() bool { return n.kind == KindObject }

func (n Node) IsArray() bool { return n.kind == KindArray }

// IsScalar reports whether n is a string, number or bool
func (n Node) IsScalar() bool {
	return n.kind == KindString || n.kind == KindNumber || n.kind == KindBool
}

// Get returns the named property of an object node
func (n Node) Get(key string) (Node, bool) {
	if n.kind != KindObject {
		return Null, false
	}
	v, ok := n.fields[key]
	return v, ok
}

// Has reports whether an object node carries the given property
func (n Node) Has(key string) bool {
	_, ok := n.Get(key)
	return ok
}

// Keys returns the property names of an object node in sorted order
func (n Node) Keys() []string {
	if n.kind != KindObject {
		return nil
	}
	keys := make([]string, 0, len(n.fields))
	for k := range n.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Items returns the elements of an array node
func (n Node) Items() []Node {
	if n.kind != KindArray {
		return nil
	}
	return n.items
}

// Len is the number of elements of an array or properties of an object
func (n Node) Len() int {
	switch n.kind {
	case KindArray:
		return len(n.items)
	case KindObject:
		return len(n.fields)
	}
	return 0
}

// Scalar converts a null or scalar node into a Scalar. Objects and arrays
// report false.
func (n Node) Scalar() (Scalar, bool) {
	switch n.kind {
	case KindNull:
		return Scalar{}, true
	case KindString:
		return StringScalar(n.str), true
	case KindNumber:
		return NumberScalar(n.num), true
	case KindBool:
		return BoolScalar(n.b), true
	}
	return Scalar{}, false
}

// Truthy follows the JavaScript notion of truthiness, which is how missing
// values were told apart from present ones in the stored data: null, "",
// false and 0 are falsy, objects and arrays are always truthy.
func (n Node) Truthy() bool {
	switch n.kind {
	case KindNull:
		return false
	case KindObject, KindArray:
		return true
	}
	s, _ := n.Scalar()
	return s.Truthy()
}

// Interface converts the node into plain Go values (map[string]any, []any,
// string, float64, bool, nil)
func (n Node) Interface() any {
	switch n.kind {
	case KindObject:
		m := make(map[string]any, len(n.fields))
		for k, v := range n.fields {
			m[k] = v.Interface()
		}
		return m
	case KindArray:
		s := make([]any, len(n.items))
		for i, v := range n.items {
			s[i] = v.Interface()
		}
		return s
	case KindString:
		return n.str
	case KindNumber:
		return n.num
	case KindBool:
		return n.b
	}
	return nil
}

func (n Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.Interface())
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = FromInterface(v)
	return nil
}

// FromInterface builds a Node from decoded JSON-like Go values. Unknown
// types become null.
func FromInterface(v any) Node {
	switch t := v.(type) {
	case nil:
		return Null
	case Node:
		return t
	case map[string]any:
		fields := make(map[string]Node, len(t))
		for k, e := range t {
			fields[k] = FromInterface(e)
		}
		return Object(fields)
	case []any:
		items := make([]Node, len(t))
		for i, e := range t {
			items[i] = FromInterface(e)
		}
		return Array(items...)
	case string:
		return String(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return String(t.String())
		}
		return Number(f)
	case bool:
		return Bool(t)
	}
	return Null
}

// ParseJSON decodes a JSON document into a Node
func ParseJSON(data []byte) (Node, error) {
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return Null, err
	}
	return n, nil
}

// Scalar is a leaf value: string, number, bool or null. The zero Scalar is
// null.
type Scalar struct {
	kind Kind
	str  string
	num  float64
	b    bool
}

func StringScalar(s string) Scalar { return Scalar{kind: KindString, str: s} }

func NumberScalar(n float64) Scalar { return Scalar{kind: KindNumber, num: n} }

func BoolScalar(b bool) Scalar { return Scalar{kind: KindBool, b: b} }

func (s Scalar) Kind() Kind { return s.kind }

func (s Scalar) IsNull() bool { return s.kind == KindNull }

func (s Scalar) Truthy() bool {
	switch s.kind {
	case KindString:
		return s.str != ""
	case KindNumber:
		return s.num != 0 && s.num == s.num
	case KindBool:
		return s.b
	}
	return false
}

// String renders the scalar as text; null renders as the empty string
func (s Scalar) String() string {
	switch s.kind {
	case KindString:
		return s.str
	case KindNumber:
		return strconv.FormatFloat(s.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(s.b)
	}
	return ""
}

// Ptr returns nil for null and a pointer to the text form otherwise
func (s Scalar) Ptr() *string {
	if s.kind == KindNull {
		return nil
	}
	str := s.String()
	return &str
}

// Float interprets the scalar as a number
func (s Scalar) Float() (float64, bool) {
	switch s.kind {
	case KindNumber:
		return s.num, true
	case KindString:
		f, err := strconv.ParseFloat(s.str, 64)
		return f, err == nil
	}
	return 0, false
}

// Bool interprets the scalar as a boolean
func (s Scalar) Bool() (bool, bool) {
	switch s.kind {
	case KindBool:
		return s.b, true
	case KindString:
		b, err := strconv.ParseBool(s.str)
		return b, err == nil
	}
	return false, false
}

func (s Scalar) Interface() any {
	switch s.kind {
	case KindString:
		return s.str
	case KindNumber:
		return s.num
	case KindBool:
		return s.b
	}
	return nil
}

func (s Scalar) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Interface())
}

func (s *Scalar) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case string:
		*s = StringScalar(t)
	case float64:
		*s = NumberScalar(t)
	case bool:
		*s = BoolScalar(t)
	default:
		*s = Scalar{}
	}
	return nil
}

func (s Scalar) node() Node {
	switch s.kind {
	case KindString:
		return String(s.str)
	case KindNumber:
		return Number(s.num)
	case KindBool:
		return Bool(s.b)
	}
	return Null
}
