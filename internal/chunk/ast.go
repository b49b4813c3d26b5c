package chunk

// Tree represents a parsed AST.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Point represents a position in the source code.
type Point struct {
	Row    uint32 // 0-indexed line number
	Column uint32
}

// Node represents a node in the AST, decoupled from the tree-sitter binding
// so the rest of the chunker package never imports it directly.
type Node struct {
	Type       string
	FieldName  string // field name under which this node appears in its parent, if any
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// GetContent returns the source slice covered by the node.
func (n *Node) GetContent(source []byte) string {
	if n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// FindChildByType returns the first direct child with the given type.
func (n *Node) FindChildByType(nodeType string) *Node {
	for _, child := range n.Children {
		if child.Type == nodeType {
			return child
		}
	}
	return nil
}

// FindChildByField returns the first direct child associated with fieldName.
func (n *Node) FindChildByField(fieldName string) *Node {
	for _, child := range n.Children {
		if child.FieldName == fieldName {
			return child
		}
	}
	return nil
}

// Walk traverses the tree depth-first, calling fn for each node. fn returns
// false to stop descending into that node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// LanguageConfig describes one tree-sitter grammar's definition-node
// vocabulary, per spec.md's per-language definition-node-type sets.
type LanguageConfig struct {
	Name       string
	Extensions []string

	FunctionTypes  []string
	ClassTypes     []string
	InterfaceTypes []string
	MethodTypes    []string
	TypeDefTypes   []string
	ConstantTypes  []string
	VariableTypes  []string

	// CommentTypes are node types classified as comments when attaching
	// leading comments to a following definition.
	CommentTypes []string

	// NameField is the field name tree-sitter exposes for a definition's
	// identifier (usually "name"; C/C++-style grammars use "declarator").
	NameField string

	// UnwrapTypes are node types that themselves aren't named (e.g. Go's
	// `export_statement` equivalents) and should be unwrapped one level to
	// find the actual definition, per spec.md step 3.
	UnwrapTypes []string
}

// isDefinitionType classifies a node type against one LanguageConfig,
// returning the definition kind name used for logging/diagnostics.
func (c *LanguageConfig) classify(nodeType string) (kind string, ok bool) {
	for _, t := range c.FunctionTypes {
		if t == nodeType {
			return "function", true
		}
	}
	for _, t := range c.MethodTypes {
		if t == nodeType {
			return "method", true
		}
	}
	for _, t := range c.ClassTypes {
		if t == nodeType {
			return "class", true
		}
	}
	for _, t := range c.InterfaceTypes {
		if t == nodeType {
			return "interface", true
		}
	}
	for _, t := range c.TypeDefTypes {
		if t == nodeType {
			return "type", true
		}
	}
	for _, t := range c.ConstantTypes {
		if t == nodeType {
			return "constant", true
		}
	}
	for _, t := range c.VariableTypes {
		if t == nodeType {
			return "variable", true
		}
	}
	return "", false
}

func (c *LanguageConfig) isComment(nodeType string) bool {
	for _, t := range c.CommentTypes {
		if t == nodeType {
			return true
		}
	}
	return false
}

func (c *LanguageConfig) isUnwrappable(nodeType string) bool {
	for _, t := range c.UnwrapTypes {
		if t == nodeType {
			return true
		}
	}
	return false
}
