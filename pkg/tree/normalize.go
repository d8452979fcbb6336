package tree

// Value is the normalized form of a traversal result: nil when absent,
// otherwise a flat sequence of scalars. Null entries are kept as positional
// placeholders.
type Value []Scalar

// Values builds a Value from plain Go values (string, float64, int, bool or
// nil)
func Values(vs ...any) Value {
	out := make(Value, len(vs))
	for i, v := range vs {
		s, _ := FromInterface(v).Scalar()
		out[i] = s
	}
	return out
}

// OnlySimple flattens a traversal result for storage. Falsy input yields
// nil. Falsy elements become explicit nulls and elements that are still
// objects or arrays are dropped, so the result never nests.
func OnlySimple(n Node) Value {
	if !n.Truthy() {
		return nil
	}
	switch n.kind {
	case KindObject:
		return Value{}
	case KindArray:
	default:
		s, _ := n.Scalar()
		return Value{s}
	}

	out := make(Value, 0, len(n.items))
	for _, e := range n.items {
		if e.kind == KindObject || e.kind == KindArray {
			continue
		}
		if !e.Truthy() {
			out = append(out, Scalar{})
			continue
		}
		s, _ := e.Scalar()
		out = append(out, s)
	}
	return out
}

// GetFirst returns the first element, or null for nil or empty input
func GetFirst(v Value) Scalar {
	if len(v) == 0 {
		return Scalar{}
	}
	return v[0]
}

// ClearNulls drops null entries without keeping positions. Nil stays nil.
func ClearNulls(v Value) Value {
	if v == nil {
		return nil
	}
	out := make(Value, 0, len(v))
	for _, s := range v {
		if !s.IsNull() {
			out = append(out, s)
		}
	}
	return out
}

// FirstOf returns the first argument holding at least one non-null entry
func FirstOf(values ...Value) Value {
	for _, v := range values {
		if !v.IsEmpty() {
			return v
		}
	}
	return nil
}

// IsEmpty reports whether v is nil or only holds nulls
func (v Value) IsEmpty() bool {
	for _, s := range v {
		if !s.IsNull() {
			return false
		}
	}
	return true
}

// At returns the i-th element, or null when out of range
func (v Value) At(i int) Scalar {
	if i < 0 || i >= len(v) {
		return Scalar{}
	}
	return v[i]
}

// Strings returns the text form of every non-null element
func (v Value) Strings() []string {
	if v == nil {
		return nil
	}
	out := make([]string, 0, len(v))
	for _, s := range v {
		if !s.IsNull() {
			out = append(out, s.String())
		}
	}
	return out
}

// Equal compares two values element by element; nil and empty differ
func (v Value) Equal(other Value) bool {
	if (v == nil) != (other == nil) || len(v) != len(other) {
		return false
	}
	for i := range v {
		if v[i] != other[i] {
			return false
		}
	}
	return true
}

// Node converts the value back into an array node, nil into Null
func (v Value) Node() Node {
	if v == nil {
		return Null
	}
	items := make([]Node, len(v))
	for i, s := range v {
		items[i] = s.node()
	}
	return Array(items...)
}
