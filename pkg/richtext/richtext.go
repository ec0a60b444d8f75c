// ABOUTME: Rich-text document tree model and plain-text extraction
// ABOUTME: Pure functions over text and container nodes, no schema coupling

package richtext

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Node kinds
const (
	KindText      = "text"
	KindContainer = "container"
)

// Node is a single node in a rich-text document tree. A node is either
// a text node (Text set, Children empty) or a container node (Children
// set, Text empty). Type distinguishes the two.
type Node struct {
	Type     string  `json:"type"`
	Tag      string  `json:"tag,omitempty"` // Container tag (paragraph, heading, ...)
	Text     string  `json:"text,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

// NewText creates a text node
func NewText(text string) *Node {
	return &Node{Type: KindText, Text: text}
}

// NewContainer creates a container node with children
func NewContainer(tag string, children ...*Node) *Node {
	return &Node{Type: KindContainer, Tag: tag, Children: children}
}

// Parse decodes a JSON document tree
func Parse(data []byte) (*Node, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document")
	}

	var node Node
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return &node, nil
}

// Encode serializes a document tree to JSON
func Encode(node *Node) ([]byte, error) {
	return json.Marshal(node)
}

// ExtractText walks the tree and returns all text content. Text from
// sibling containers is joined by newlines, text nodes within one
// container by spaces.
func ExtractText(node *Node) string {
	if node == nil {
		return ""
	}

	if node.Type == KindText {
		return node.Text
	}

	var parts []string
	for _, child := range node.Children {
		text := ExtractText(child)
		if text != "" {
			parts = append(parts, text)
		}
	}

	sep := " "
	if node.Tag == "" || containsContainer(node) {
		sep = "\n"
	}

	return strings.Join(parts, sep)
}

// Summarize returns a short summary derived from the document text,
// truncated at a word boundary near maxLen
func Summarize(node *Node, maxLen int) string {
	text := strings.TrimSpace(ExtractText(node))
	text = strings.Join(strings.Fields(text), " ")

	if len(text) <= maxLen {
		return text
	}

	cut := text[:maxLen]
	if idx := strings.LastIndexFunc(cut, unicode.IsSpace); idx > 0 {
		cut = cut[:idx]
	}

	return cut + "..."
}

// CountWords counts whitespace-separated words in a string
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// WordCount counts words in the extracted text of a document tree
func WordCount(node *Node) int {
	return CountWords(ExtractText(node))
}

func containsContainer(node *Node) bool {
	for _, child := range node.Children {
		if child != nil && child.Type == KindContainer {
			return true
		}
	}
	return false
}
