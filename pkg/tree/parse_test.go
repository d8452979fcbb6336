package tree

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMetadata = `<?xml version="1.0" encoding="UTF-8"?>
<gmd:MD_Metadata xmlns:gmd="http://www.isotc211.org/2005/gmd" xmlns:gco="http://www.isotc211.org/2005/gco">
  <gmd:fileIdentifier>
    <gco:CharacterString>abc123</gco:CharacterString>
  </gmd:fileIdentifier>
  <gmd:language>
    <gmd:LanguageCode codeList="http://www.loc.gov/standards/iso639-2/" codeListValue="ger">ger</gmd:LanguageCode>
  </gmd:language>
  <gmd:hierarchyLevel>
    <gmd:MD_ScopeCode codeListValue="dataset"/>
  </gmd:hierarchyLevel>
  <gmd:contact/>
  <gmd:contact/>
</gmd:MD_Metadata>`

func TestParseXMLKeepsPrefixes(t *testing.T) {
	n, err := ParseXML(strings.NewReader(sampleMetadata), ParseOptions{})
	require.NoError(t, err)

	root := Traverse(n, Keys("gmd:MD_Metadata"))
	require.True(t, root.IsArray())

	md := root.Items()[0]
	assert.True(t, md.Has("@_xmlns:gmd"))
	assert.Equal(t, Array(String("abc123")), Traverse(md, Keys("gmd:fileIdentifier", "gco:CharacterString")))
	assert.Equal(t, Array(String("ger")), Traverse(n, Keys("gmd:MD_Metadata", "gmd:language", "gmd:LanguageCode")))
	assert.Equal(t, Array(String("dataset")), Traverse(n, Keys("gmd:MD_Metadata", "gmd:hierarchyLevel", "gmd:MD_ScopeCode", "@_codeListValue")))

	contacts, ok := md.Get("gmd:contact")
	require.True(t, ok)
	assert.Equal(t, Array(String(""), String("")), contacts)
}

func TestParseXMLStripsNamespaces(t *testing.T) {
	n, err := ParseXML(strings.NewReader(sampleMetadata), ParseOptions{StripNamespaces: true})
	require.NoError(t, err)

	md := Traverse(n, Keys("MD_Metadata")).Items()[0]
	assert.False(t, md.Has("@_xmlns:gmd"))
	assert.False(t, md.Has("@_gmd"))

	prefixed := Traverse(n, Keys("gmd:MD_Metadata", "gmd:fileIdentifier", "gco:CharacterString"))
	plain := Traverse(n, Keys("MD_Metadata", "fileIdentifier", "CharacterString"))
	assert.Equal(t, plain, prefixed)
	assert.Equal(t, Array(String("abc123")), plain)
}

func TestParseXMLMixedContent(t *testing.T) {
	doc := `<root><item uuid="1">text <b>bold</b></item><empty/></root>`
	n, err := ParseXMLBytes([]byte(doc), ParseOptions{})
	require.NoError(t, err)

	root, _ := n.Get("root")
	items, _ := root.Items()[0].Get("item")
	item := items.Items()[0]
	text, _ := item.Get(TextKey)
	assert.Equal(t, String("text"), text)
	uuid, _ := item.Get("@_uuid")
	assert.Equal(t, String("1"), uuid)

	// the last step of a traversal resolves mixed content to its text
	assert.Equal(t, Array(String("text")), Traverse(n, Keys("root", "item")))

	assert.Equal(t, Array(String("")), Traverse(n, Keys("root", "empty")))
}

func TestParseXMLEntitiesAndCDATA(t *testing.T) {
	doc := `<root><a>Fish &amp; Chips</a><b><![CDATA[<raw>]]></b><c>caf&eacute;</c></root>`
	n, err := ParseXMLBytes([]byte(doc), ParseOptions{})
	require.NoError(t, err)

	assert.Equal(t, Array(String("Fish & Chips")), Traverse(n, Keys("root", "a")))
	assert.Equal(t, Array(String("<raw>")), Traverse(n, Keys("root", "b")))
	assert.Equal(t, Array(String("café")), Traverse(n, Keys("root", "c")))
}

func TestParseXMLErrors(t *testing.T) {
	_, err := ParseXMLBytes([]byte(``), ParseOptions{})
	assert.Error(t, err)

	_, err = ParseXMLBytes([]byte(`<a><b></a></b>`), ParseOptions{})
	assert.Error(t, err)

	_, err = ParseXMLBytes([]byte(`<a><b>`), ParseOptions{})
	assert.Error(t, err)
}
