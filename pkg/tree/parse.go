package tree

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// ParseOptions configures how XML is folded into a Node
type ParseOptions struct {
	// StripNamespaces drops element and attribute prefixes ("gmd:title"
	// becomes "title") and omits xmlns declarations
	StripNamespaces bool
}

type elementBuilder struct {
	key      string
	attrs    map[string]Node
	children map[string][]Node
	text     strings.Builder
}

func (b *elementBuilder) node() Node {
	text := strings.TrimSpace(b.text.String())
	if len(b.attrs) == 0 && len(b.children) == 0 {
		return String(text)
	}

	fields := make(map[string]Node, len(b.attrs)+len(b.children)+1)
	for k, v := range b.attrs {
		fields[k] = v
	}
	for k, list := range b.children {
		fields[k] = Array(list...)
	}
	if text != "" {
		fields[TextKey] = String(text)
	}
	return Object(fields)
}

// ParseXML reads an XML document into a Node. Every child element is
// wrapped in an array even when it occurs once, attributes are stored under
// "@_"-prefixed keys and text next to attributes or children under "#text".
// The result is an object holding the root element under its name.
func ParseXML(r io.Reader, opts ParseOptions) (Node, error) {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = charset.NewReaderLabel
	decoder.Entity = xml.HTMLEntity

	var stack []*elementBuilder
	var root *elementBuilder
	var rootNode Node

	for {
		token, err := decoder.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Null, fmt.Errorf("error parsing XML: %w", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			b := &elementBuilder{
				key:      elementKey(t.Name, opts),
				attrs:    map[string]Node{},
				children: map[string][]Node{},
			}
			for _, attr := range t.Attr {
				if opts.StripNamespaces && isNamespaceDecl(attr.Name) {
					continue
				}
				b.attrs[AttrPrefix+elementKey(attr.Name, opts)] = String(attr.Value)
			}
			stack = append(stack, b)

		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}

		case xml.EndElement:
			if len(stack) == 0 {
				return Null, fmt.Errorf("error parsing XML: unexpected end element %s", t.Name.Local)
			}
			b := stack[len(stack)-1]
			if key := elementKey(t.Name, opts); key != b.key {
				return Null, fmt.Errorf("error parsing XML: element %s closed by %s", b.key, key)
			}
			stack = stack[:len(stack)-1]

			n := b.node()
			if len(stack) == 0 {
				if root == nil {
					root = b
					rootNode = n
				}
				continue
			}
			parent := stack[len(stack)-1]
			parent.children[b.key] = append(parent.children[b.key], n)
		}
	}

	if len(stack) > 0 {
		return Null, fmt.Errorf("error parsing XML: unexpected EOF inside %s", stack[len(stack)-1].key)
	}
	if root == nil {
		return Null, errors.New("error parsing XML: no root element")
	}

	return Object(map[string]Node{root.key: Array(rootNode)}), nil
}

// ParseXMLBytes is ParseXML over an in-memory document
func ParseXMLBytes(data []byte, opts ParseOptions) (Node, error) {
	return ParseXML(bytes.NewReader(data), opts)
}

func elementKey(name xml.Name, opts ParseOptions) string {
	if name.Space == "" || opts.StripNamespaces {
		return name.Local
	}
	return name.Space + ":" + name.Local
}

func isNamespaceDecl(name xml.Name) bool {
	return name.Space == "xmlns" || (name.Space == "" && name.Local == "xmlns")
}
