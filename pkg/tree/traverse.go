package tree

import "strings"

// Traverse walks path from n and returns the matched subtree, or Null when
// any step is missing. Whenever an intermediate value is an array the rest
// of the path is applied to every element and the results are flattened one
// level; null results are dropped. An empty result is reported as Null.
func Traverse(n Node, path Path) Node {
	return traverse(n, path, true)
}

// TraverseNulls is Traverse but keeps null results in place, so sibling
// traversals over the same repeating node stay positionally aligned.
func TraverseNulls(n Node, path Path) Node {
	return traverse(n, path, false)
}

func traverse(n Node, path Path, clearNull bool) Node {
	if len(path) == 0 {
		return Null
	}

	key, ok := resolve(n, path[0])
	if !ok {
		return Null
	}
	v := n.fields[key]

	if len(path) == 1 {
		return unwrapText(v)
	}

	if v.kind != KindArray {
		return traverse(v, path[1:], clearNull)
	}

	results := make([]Node, 0, len(v.items))
	for _, item := range v.items {
		r := traverse(item, path[1:], clearNull)
		if r.kind == KindArray {
			for _, e := range r.items {
				if clearNull && e.IsNull() {
					continue
				}
				results = append(results, e)
			}
			continue
		}
		if clearNull && r.IsNull() {
			continue
		}
		results = append(results, r)
	}

	if len(results) == 0 {
		return Null
	}
	return Array(results...)
}

// resolve picks the concrete property name for a segment. Candidates are
// tried in order as written, then in order without their namespace prefix.
func resolve(n Node, seg Segment) (string, bool) {
	if n.kind != KindObject {
		return "", false
	}
	for _, key := range seg.keys {
		if _, ok := n.fields[key]; ok {
			return key, true
		}
	}
	for _, key := range seg.keys {
		if local, stripped := localName(key); stripped {
			if _, ok := n.fields[local]; ok {
				return local, true
			}
		}
	}
	return "", false
}

// localName drops the namespace prefix of an element or attribute key:
// "gmd:title" -> "title", "@_xlink:href" -> "@_href"
func localName(key string) (string, bool) {
	attr := strings.HasPrefix(key, AttrPrefix)
	name := strings.TrimPrefix(key, AttrPrefix)
	_, local, found := strings.Cut(name, ":")
	if !found || local == "" {
		return key, false
	}
	if attr {
		return AttrPrefix + local, true
	}
	return local, true
}

// unwrapText resolves mixed-content elements to their text on the last step
// of a traversal
func unwrapText(v Node) Node {
	switch v.kind {
	case KindArray:
		if len(v.items) == 0 {
			return Null
		}
		if first := v.items[0]; first.kind == KindObject {
			if text, ok := first.fields[TextKey]; ok {
				return text
			}
		}
	case KindObject:
		if text, ok := v.fields[TextKey]; ok {
			return text
		}
	}
	return v
}
