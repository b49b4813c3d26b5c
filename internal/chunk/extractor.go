package chunk

import "strings"

// defName extracts the identifier for a definition node using the language's
// NameField, falling back to the first identifier-like child, then to an
// unwrap of one level (export_statement, decorated_definition, and similar
// wrapper nodes that themselves carry no name).
func defName(n *Node, source []byte, config *LanguageConfig) string {
	if config.NameField != "" {
		if field := n.FindChildByField(config.NameField); field != nil {
			return identifierText(field, source)
		}
	}

	for _, child := range n.Children {
		switch child.Type {
		case "identifier", "type_identifier", "field_identifier", "property_identifier":
			return child.GetContent(source)
		case "variable_declarator":
			if name := defName(child, source, config); name != "" {
				return name
			}
		}
	}

	if config.isUnwrappable(n.Type) {
		for _, child := range n.Children {
			if kind, ok := config.classify(child.Type); ok {
				_ = kind
				if name := defName(child, source, config); name != "" {
					return name
				}
			}
		}
	}

	return ""
}

// identifierText returns the textual name for a node that may itself be a
// compound declarator (C/C++ "declarator" fields wrap the identifier inside
// pointer/array/function declarators).
func identifierText(n *Node, source []byte) string {
	switch n.Type {
	case "identifier", "type_identifier", "field_identifier", "property_identifier":
		return n.GetContent(source)
	}
	for _, child := range n.Children {
		if name := identifierText(child, source); name != "" {
			return name
		}
	}
	return n.GetContent(source)
}

// leadingComment walks backwards over a definition node's preceding siblings,
// collecting contiguous comment nodes (no more than one blank line between
// comment and definition, and between consecutive comment lines) and returns
// their combined text plus the byte offset where the combined span starts.
func leadingComment(n *Node, parent *Node, source []byte, config *LanguageConfig) (text string, startByte uint32) {
	startByte = n.StartByte
	if parent == nil {
		return "", startByte
	}

	idx := -1
	for i, sibling := range parent.Children {
		if sibling == n {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return "", startByte
	}

	var comments []*Node
	cursor := n.StartByte
	for i := idx - 1; i >= 0; i-- {
		sibling := parent.Children[i]
		if config.isComment(sibling.Type) {
			gap := string(source[sibling.EndByte:cursor])
			if strings.Count(gap, "\n") > 2 {
				break
			}
			comments = append([]*Node{sibling}, comments...)
			cursor = sibling.StartByte
			continue
		}
		break
	}

	if len(comments) == 0 {
		return "", startByte
	}

	var parts []string
	for _, c := range comments {
		parts = append(parts, c.GetContent(source))
	}
	return strings.Join(parts, "\n"), comments[0].StartByte
}
