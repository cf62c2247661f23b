package hostconfig

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lookup resolves dot-separated keys (for example "mcpServers.labarchives.cwd")
// against a host configuration document. Scalars yield their string value;
// nested blocks are reported as present with an empty value.
type Lookup interface {
	Lookup(key string) (string, bool)
}

// Mode names the strategy Parse settled on.
type Mode string

const (
	ModeStructured Mode = "structured"
	ModeLenient    Mode = "lenient"
)

// Key joins path segments into a lookup key.
func Key(segments ...string) string {
	return strings.Join(segments, ".")
}

// Parse returns a structured lookup when the document parses as a mapping and a
// lenient line-oriented lookup otherwise. Both honor the same key contract.
func Parse(raw []byte) (Lookup, Mode) {
	doc, err := ParseDocument(raw)
	if err != nil {
		return NewLineLookup(raw), ModeLenient
	}
	return doc, ModeStructured
}

// Document is a parsed host configuration. JSON documents are read through the
// YAML decoder, which accepts JSON as a subset.
type Document struct {
	root *yaml.Node
}

// ParseDocument decodes raw into a Document. The top level must be a mapping.
func ParseDocument(raw []byte) (*Document, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("parse host config: %w", err)
	}
	if node.Kind != yaml.DocumentNode || len(node.Content) == 0 {
		return nil, errors.New("parse host config: document is empty")
	}
	root := node.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("parse host config: top level is not a mapping")
	}
	return &Document{root: root}, nil
}

// Lookup implements Lookup.
func (d *Document) Lookup(key string) (string, bool) {
	if d == nil || d.root == nil || key == "" {
		return "", false
	}
	current := d.root
	for _, segment := range strings.Split(key, ".") {
		next, ok := child(current, segment)
		if !ok {
			return "", false
		}
		current = next
	}
	for current.Kind == yaml.AliasNode && current.Alias != nil {
		current = current.Alias
	}
	switch current.Kind {
	case yaml.ScalarNode:
		if current.Tag == "!!null" {
			return "", false
		}
		return current.Value, true
	default:
		return "", true
	}
}

func child(node *yaml.Node, name string) (*yaml.Node, bool) {
	if node.Kind != yaml.MappingNode {
		return nil, false
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == name {
			return node.Content[i+1], true
		}
	}
	return nil, false
}

// LineLookup is a tolerant scanner for documents that do not parse strictly,
// such as ones with trailing commas or a missing closing brace. Each key
// segment must appear as a direct member of the block opened by its parent;
// nesting is tracked by counting brackets outside quoted strings. The value is
// read after the colon, possibly on a following line.
type LineLookup struct {
	text string
}

// NewLineLookup prepares raw for scanning.
func NewLineLookup(raw []byte) LineLookup {
	return LineLookup{text: strings.ReplaceAll(string(raw), "\r\n", "\n")}
}

// Lookup implements Lookup.
func (l LineLookup) Lookup(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	start, end := 0, len(l.text)
	if i := skipSpace(l.text, 0); i < end && l.text[i] == '{' {
		start = i + 1
	}

	segments := strings.Split(key, ".")
	for n, segment := range segments {
		pos, ok := memberValue(l.text[start:end], segment)
		if !ok {
			return "", false
		}
		pos = skipSpace(l.text, start+pos)
		if n == len(segments)-1 {
			return scalarAt(l.text[pos:end])
		}
		if pos >= end || l.text[pos] != '{' {
			return "", false
		}
		start = pos + 1
		end = start + blockEnd(l.text[start:end])
	}
	return "", false
}

// memberValue finds `"name":` among the direct members of block and returns
// the offset just past the colon.
func memberValue(block, name string) (int, bool) {
	depth := 0
	for i := 0; i < len(block); i++ {
		switch block[i] {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth < 0 {
				return 0, false
			}
		case '"':
			closing := stringEnd(block, i)
			if closing <= i {
				return 0, false
			}
			if depth == 0 && block[i+1:closing] == name {
				if colon := skipSpace(block, closing+1); colon < len(block) && block[colon] == ':' {
					return colon + 1, true
				}
			}
			i = closing
		}
	}
	return 0, false
}

// blockEnd returns the offset of the bracket closing block, or len(block)
// when the document ends first.
func blockEnd(block string) int {
	depth := 0
	for i := 0; i < len(block); i++ {
		switch block[i] {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth < 0 {
				return i
			}
		case '"':
			i = stringEnd(block, i)
		}
	}
	return len(block)
}

// stringEnd returns the index of the quote closing the string opened at
// open, or the last index when it is unterminated.
func stringEnd(text string, open int) int {
	for i := open + 1; i < len(text); i++ {
		switch text[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return len(text) - 1
}

func skipSpace(text string, i int) int {
	for i < len(text) && strings.IndexByte(" \t\r\n", text[i]) >= 0 {
		i++
	}
	return i
}

// scalarAt reads the value starting at text. Nested blocks are present with an
// empty value; null and a missing value are absent.
func scalarAt(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	switch text[0] {
	case '{', '[':
		return "", true
	case '"':
		closing := stringEnd(text, 0)
		if closing == 0 {
			return "", false
		}
		quoted := text[:closing+1]
		value, err := strconv.Unquote(quoted)
		if err != nil {
			return strings.Trim(quoted, `"`), true
		}
		return value, true
	}
	token := text
	if i := strings.IndexAny(text, ",}] \t\r\n"); i >= 0 {
		token = text[:i]
	}
	if token == "" || token == "null" {
		return "", false
	}
	return token, true
}
