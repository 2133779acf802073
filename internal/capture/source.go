package capture

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
)

// Hard ceiling on parsed nodes. Pathological hierarchies (webviews, long
// feeds) can run to tens of thousands of elements; nothing downstream needs
// more than this.
const maxHierarchyNodes = 2500

// boundsRegex matches the UIAutomator bounds format "[x1,y1][x2,y2]".
var boundsRegex = regexp.MustCompile(`\[(-?\d+),(-?\d+)\]\[(-?\d+),(-?\d+)\]`)

// Hierarchy is the flattened result of one accessibility XML dump.
type Hierarchy struct {
	PackageName string
	Nodes       []schemas.UINode
	Truncated   bool
}

// ParseHierarchy flattens an accessibility XML document into document-order
// UI nodes. It accepts both dump styles: elements named by widget class
// (UIAutomator2 page source) and generic <node> elements carrying a class
// attribute (raw uiautomator dumps).
func ParseHierarchy(raw []byte) (*Hierarchy, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("parsing accessibility XML: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("accessibility XML has no root element")
	}

	h := &Hierarchy{}
	flattenElement(root, h)
	return h, nil
}

func flattenElement(el *etree.Element, h *Hierarchy) {
	if el == nil || h.Truncated {
		return
	}

	if pkg := el.SelectAttrValue("package", ""); pkg != "" && h.PackageName == "" {
		h.PackageName = pkg
	}

	// The <hierarchy> wrapper carries rotation metadata, not UI state.
	if el.Tag != "hierarchy" {
		if len(h.Nodes) >= maxHierarchyNodes {
			h.Truncated = true
			return
		}
		h.Nodes = append(h.Nodes, elementToNode(el, len(h.Nodes)))
	}

	for _, child := range el.ChildElements() {
		flattenElement(child, h)
	}
}

func elementToNode(el *etree.Element, ordinal int) schemas.UINode {
	class := el.SelectAttrValue("class", "")
	if class == "" {
		class = el.Tag
	}

	node := schemas.UINode{
		Ordinal:     ordinal,
		Class:       class,
		ResourceID:  el.SelectAttrValue("resource-id", ""),
		Text:        strings.TrimSpace(el.SelectAttrValue("text", "")),
		ContentDesc: strings.TrimSpace(el.SelectAttrValue("content-desc", "")),
		Clickable:   attrBool(el, "clickable"),
		Enabled:     attrBool(el, "enabled"),
	}
	if rect, ok := parseBounds(el.SelectAttrValue("bounds", "")); ok {
		node.Bounds = &rect
	}
	return node
}

func attrBool(el *etree.Element, name string) bool {
	v, err := strconv.ParseBool(el.SelectAttrValue(name, "false"))
	return err == nil && v
}

func parseBounds(s string) (schemas.Rect, bool) {
	m := boundsRegex.FindStringSubmatch(s)
	if m == nil {
		return schemas.Rect{}, false
	}
	atoi := func(v string) int {
		n, _ := strconv.Atoi(v)
		return n
	}
	return schemas.Rect{X1: atoi(m[1]), Y1: atoi(m[2]), X2: atoi(m[3]), Y2: atoi(m[4])}, true
}

// CollectStrings returns the human-visible strings of the hierarchy in
// document order: each node contributes its text and then its content
// description, empty values skipped. The result is capped at max entries;
// max <= 0 means no cap.
func CollectStrings(nodes []schemas.UINode, max int) []string {
	var out []string
	for _, n := range nodes {
		for _, s := range []string{n.Text, n.ContentDesc} {
			if s == "" {
				continue
			}
			out = append(out, s)
			if max > 0 && len(out) >= max {
				return out
			}
		}
	}
	return out
}
