package chunk

import (
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/csharp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/kotlin"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/swift"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageRegistry manages supported languages and their configurations
type LanguageRegistry struct {
	mu          sync.RWMutex
	configs     map[string]*LanguageConfig // keyed by language name
	extToLang   map[string]string          // extension -> language name
	tsLanguages map[string]*sitter.Language
}

// NewLanguageRegistry creates a new registry with default language configurations
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:     make(map[string]*LanguageConfig),
		extToLang:   make(map[string]string),
		tsLanguages: make(map[string]*sitter.Language),
	}

	r.registerGo()
	r.registerTypeScript()
	r.registerJavaScript()
	r.registerPython()
	r.registerRust()
	r.registerJava()
	r.registerC()
	r.registerCPP()
	r.registerCSharp()
	r.registerRuby()
	r.registerSwift()
	r.registerKotlin()

	return r
}

// GetByExtension returns the language configuration for a file extension
func (r *LanguageRegistry) GetByExtension(ext string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	langName, ok := r.extToLang[ext]
	if !ok {
		return nil, false
	}

	config, ok := r.configs[langName]
	return config, ok
}

// GetByName returns the language configuration by name
func (r *LanguageRegistry) GetByName(name string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	config, ok := r.configs[name]
	return config, ok
}

// GetTreeSitterLanguage returns the tree-sitter language for a language name
func (r *LanguageRegistry) GetTreeSitterLanguage(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lang, ok := r.tsLanguages[name]
	return lang, ok
}

// SupportedExtensions returns all supported file extensions
func (r *LanguageRegistry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.extToLang))
	for ext := range r.extToLang {
		exts = append(exts, ext)
	}
	return exts
}

// registerLanguage adds a language to the registry
func (r *LanguageRegistry) registerLanguage(config *LanguageConfig, tsLang *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs[config.Name] = config
	r.tsLanguages[config.Name] = tsLang

	for _, ext := range config.Extensions {
		r.extToLang[ext] = config.Name
	}
}

var cLikeCommentTypes = []string{"comment"}

func (r *LanguageRegistry) registerGo() {
	config := &LanguageConfig{
		Name:           "go",
		Extensions:     []string{".go"},
		FunctionTypes:  []string{"function_declaration"},
		MethodTypes:    []string{"method_declaration"},
		ClassTypes:     []string{},
		TypeDefTypes:   []string{"type_declaration"},
		InterfaceTypes: []string{},
		ConstantTypes:  []string{"const_declaration"},
		VariableTypes:  []string{"var_declaration"},
		CommentTypes:   []string{"comment"},
		NameField:      "name",
	}
	r.registerLanguage(config, golang.GetLanguage())
}

func (r *LanguageRegistry) registerTypeScript() {
	tsConfig := &LanguageConfig{
		Name:           "typescript",
		Extensions:     []string{".ts"},
		FunctionTypes:  []string{"function_declaration"},
		MethodTypes:    []string{"method_definition"},
		ClassTypes:     []string{"class_declaration"},
		InterfaceTypes: []string{"interface_declaration"},
		TypeDefTypes:   []string{"type_alias_declaration"},
		ConstantTypes:  []string{"lexical_declaration"},
		VariableTypes:  []string{"variable_declaration"},
		CommentTypes:   []string{"comment"},
		NameField:      "name",
		UnwrapTypes:    []string{"export_statement"},
	}
	r.registerLanguage(tsConfig, typescript.GetLanguage())

	tsxConfig := &LanguageConfig{
		Name:           "tsx",
		Extensions:     []string{".tsx"},
		FunctionTypes:  tsConfig.FunctionTypes,
		MethodTypes:    tsConfig.MethodTypes,
		ClassTypes:     tsConfig.ClassTypes,
		InterfaceTypes: tsConfig.InterfaceTypes,
		TypeDefTypes:   tsConfig.TypeDefTypes,
		ConstantTypes:  tsConfig.ConstantTypes,
		VariableTypes:  tsConfig.VariableTypes,
		CommentTypes:   tsConfig.CommentTypes,
		NameField:      tsConfig.NameField,
		UnwrapTypes:    tsConfig.UnwrapTypes,
	}
	r.registerLanguage(tsxConfig, tsx.GetLanguage())
}

func (r *LanguageRegistry) registerJavaScript() {
	jsConfig := &LanguageConfig{
		Name:           "javascript",
		Extensions:     []string{".js", ".mjs"},
		FunctionTypes:  []string{"function_declaration", "function"},
		MethodTypes:    []string{"method_definition"},
		ClassTypes:     []string{"class_declaration"},
		InterfaceTypes: []string{},
		TypeDefTypes:   []string{},
		ConstantTypes:  []string{"lexical_declaration"},
		VariableTypes:  []string{"variable_declaration"},
		CommentTypes:   []string{"comment"},
		NameField:      "name",
		UnwrapTypes:    []string{"export_statement"},
	}
	r.registerLanguage(jsConfig, javascript.GetLanguage())

	jsxConfig := &LanguageConfig{
		Name:           "jsx",
		Extensions:     []string{".jsx"},
		FunctionTypes:  jsConfig.FunctionTypes,
		MethodTypes:    jsConfig.MethodTypes,
		ClassTypes:     jsConfig.ClassTypes,
		InterfaceTypes: jsConfig.InterfaceTypes,
		TypeDefTypes:   jsConfig.TypeDefTypes,
		ConstantTypes:  jsConfig.ConstantTypes,
		VariableTypes:  jsConfig.VariableTypes,
		CommentTypes:   jsConfig.CommentTypes,
		NameField:      jsConfig.NameField,
		UnwrapTypes:    jsConfig.UnwrapTypes,
	}
	r.registerLanguage(jsxConfig, javascript.GetLanguage())
}

func (r *LanguageRegistry) registerPython() {
	config := &LanguageConfig{
		Name:           "python",
		Extensions:     []string{".py"},
		FunctionTypes:  []string{"function_definition"},
		MethodTypes:    []string{},
		ClassTypes:     []string{"class_definition"},
		InterfaceTypes: []string{},
		TypeDefTypes:   []string{},
		ConstantTypes:  []string{},
		VariableTypes:  []string{"assignment"},
		CommentTypes:   []string{"comment"},
		NameField:      "name",
		UnwrapTypes:    []string{"decorated_definition"},
	}
	r.registerLanguage(config, python.GetLanguage())
}

func (r *LanguageRegistry) registerRust() {
	config := &LanguageConfig{
		Name:           "rust",
		Extensions:     []string{".rs"},
		FunctionTypes:  []string{"function_item"},
		MethodTypes:    []string{},
		ClassTypes:     []string{"struct_item"},
		InterfaceTypes: []string{"trait_item"},
		TypeDefTypes:   []string{"type_item", "enum_item"},
		ConstantTypes:  []string{"const_item", "static_item"},
		VariableTypes:  []string{"let_declaration"},
		CommentTypes:   []string{"line_comment", "block_comment"},
		NameField:      "name",
	}
	r.registerLanguage(config, rust.GetLanguage())
}

func (r *LanguageRegistry) registerJava() {
	config := &LanguageConfig{
		Name:           "java",
		Extensions:     []string{".java"},
		FunctionTypes:  []string{},
		MethodTypes:    []string{"method_declaration", "constructor_declaration"},
		ClassTypes:     []string{"class_declaration", "enum_declaration", "record_declaration"},
		InterfaceTypes: []string{"interface_declaration"},
		TypeDefTypes:   []string{},
		ConstantTypes:  []string{},
		VariableTypes:  []string{"field_declaration"},
		CommentTypes:   []string{"line_comment", "block_comment"},
		NameField:      "name",
	}
	r.registerLanguage(config, java.GetLanguage())
}

func (r *LanguageRegistry) registerC() {
	config := &LanguageConfig{
		Name:           "c",
		Extensions:     []string{".c", ".h"},
		FunctionTypes:  []string{"function_definition"},
		MethodTypes:    []string{},
		ClassTypes:     []string{"struct_specifier"},
		InterfaceTypes: []string{},
		TypeDefTypes:   []string{"type_definition", "enum_specifier"},
		ConstantTypes:  []string{},
		VariableTypes:  []string{"declaration"},
		CommentTypes:   cLikeCommentTypes,
		NameField:      "declarator",
	}
	r.registerLanguage(config, c.GetLanguage())
}

func (r *LanguageRegistry) registerCPP() {
	config := &LanguageConfig{
		Name:           "cpp",
		Extensions:     []string{".cpp", ".cc", ".cxx", ".hpp", ".hh"},
		FunctionTypes:  []string{"function_definition"},
		MethodTypes:    []string{},
		ClassTypes:     []string{"class_specifier", "struct_specifier"},
		InterfaceTypes: []string{},
		TypeDefTypes:   []string{"type_definition", "enum_specifier"},
		ConstantTypes:  []string{},
		VariableTypes:  []string{"declaration"},
		CommentTypes:   cLikeCommentTypes,
		NameField:      "declarator",
	}
	r.registerLanguage(config, cpp.GetLanguage())
}

func (r *LanguageRegistry) registerCSharp() {
	config := &LanguageConfig{
		Name:           "c_sharp",
		Extensions:     []string{".cs"},
		FunctionTypes:  []string{"local_function_statement"},
		MethodTypes:    []string{"method_declaration", "constructor_declaration"},
		ClassTypes:     []string{"class_declaration", "struct_declaration", "record_declaration"},
		InterfaceTypes: []string{"interface_declaration"},
		TypeDefTypes:   []string{"enum_declaration"},
		ConstantTypes:  []string{},
		VariableTypes:  []string{"field_declaration", "property_declaration"},
		CommentTypes:   cLikeCommentTypes,
		NameField:      "name",
	}
	r.registerLanguage(config, csharp.GetLanguage())
}

func (r *LanguageRegistry) registerRuby() {
	config := &LanguageConfig{
		Name:           "ruby",
		Extensions:     []string{".rb"},
		FunctionTypes:  []string{"method"},
		MethodTypes:    []string{"singleton_method"},
		ClassTypes:     []string{"class"},
		InterfaceTypes: []string{"module"},
		TypeDefTypes:   []string{},
		ConstantTypes:  []string{"assignment"},
		VariableTypes:  []string{},
		CommentTypes:   []string{"comment"},
		NameField:      "name",
	}
	r.registerLanguage(config, ruby.GetLanguage())
}

func (r *LanguageRegistry) registerSwift() {
	config := &LanguageConfig{
		Name:           "swift",
		Extensions:     []string{".swift"},
		FunctionTypes:  []string{"function_declaration"},
		MethodTypes:    []string{},
		ClassTypes:     []string{"class_declaration"},
		InterfaceTypes: []string{"protocol_declaration"},
		TypeDefTypes:   []string{"typealias_declaration"},
		ConstantTypes:  []string{"property_declaration"},
		VariableTypes:  []string{},
		CommentTypes:   cLikeCommentTypes,
		NameField:      "name",
	}
	r.registerLanguage(config, swift.GetLanguage())
}

func (r *LanguageRegistry) registerKotlin() {
	config := &LanguageConfig{
		Name:           "kotlin",
		Extensions:     []string{".kt", ".kts"},
		FunctionTypes:  []string{"function_declaration"},
		MethodTypes:    []string{},
		ClassTypes:     []string{"class_declaration", "object_declaration"},
		InterfaceTypes: []string{},
		TypeDefTypes:   []string{"type_alias"},
		ConstantTypes:  []string{"property_declaration"},
		VariableTypes:  []string{},
		CommentTypes:   cLikeCommentTypes,
		NameField:      "name",
	}
	r.registerLanguage(config, kotlin.GetLanguage())
}

// defaultRegistry is the global language registry
var defaultRegistry = NewLanguageRegistry()

// DefaultRegistry returns the global language registry
func DefaultRegistry() *LanguageRegistry {
	return defaultRegistry
}
