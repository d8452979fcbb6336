package tree

import (
	"errors"
	"fmt"
	"strings"
)

// Segment is one step of a Path: a single key, or an ordered list of
// alternative keys where the first one present on the current node wins.
type Segment struct {
	keys []string
}

// Key returns a segment matching exactly one property name
func Key(key string) Segment {
	return Segment{keys: []string{key}}
}

// AnyOf returns a segment trying each key in order
func AnyOf(keys ...string) Segment {
	return Segment{keys: append([]string(nil), keys...)}
}

// Keys returns the candidate keys in priority order
func (s Segment) Keys() []string { return s.keys }

// IsAlternative reports whether the segment has more than one candidate
func (s Segment) IsAlternative() bool { return len(s.keys) > 1 }

func (s Segment) String() string { return strings.Join(s.keys, "|") }

// Path is an ordered list of segments walked from a root node
type Path []Segment

// Keys builds a path of single-key segments
func Keys(keys ...string) Path {
	p := make(Path, len(keys))
	for i, k := range keys {
		p[i] = Key(k)
	}
	return p
}

// Join returns a new path made of p followed by the given segments
func (p Path) Join(rest ...Segment) Path {
	out := make(Path, 0, len(p)+len(rest))
	out = append(out, p...)
	return append(out, rest...)
}

// Concat returns a new path made of p followed by other
func (p Path) Concat(other Path) Path {
	return p.Join(other...)
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.String()
	}
	return strings.Join(parts, "/")
}

// ParsePath parses the textual path form used by mapping tables.
// Segments are separated by "/", alternatives within a segment by "|":
// "gmd:identificationInfo/gmd:MD_DataIdentification|srv:SV_ServiceIdentification/gmd:abstract".
func ParsePath(path string) (Path, error) {
	if path == "" {
		return nil, errors.New("empty path")
	}

	var segments Path

	for _, part := range strings.Split(path, "/") {
		if part == "" {
			return nil, fmt.Errorf("invalid path %q: empty segment", path)
		}

		keys := strings.Split(part, "|")
		for _, k := range keys {
			if strings.TrimSpace(k) == "" {
				return nil, fmt.Errorf("invalid path %q: empty alternative in %q", path, part)
			}
		}

		segments = append(segments, AnyOf(keys...))
	}

	return segments, nil
}

// MustParsePath is ParsePath for package-level tables; it panics on error
func MustParsePath(path string) Path {
	p, err := ParsePath(path)
	if err != nil {
		panic(err)
	}
	return p
}
