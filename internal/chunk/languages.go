package chunk

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/csharp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageConfig describes how to chunk one language.
type LanguageConfig struct {
	Name       string
	Extensions []string

	// DeclKinds maps declaration node types to chunk kinds.
	DeclKinds map[string]Kind

	// Containers are node types that form named scopes: functions inside
	// them become methods, and they contribute breadcrumb segments.
	Containers map[string]bool

	// NameField is the tree-sitter field holding the declaration name.
	NameField string

	// CommentPrefixes are line-comment markers whose runs directly above
	// a declaration attach to it.
	CommentPrefixes []string
}

// LanguageRegistry maps extensions to language configurations and
// tree-sitter grammars.
type LanguageRegistry struct {
	mu        sync.RWMutex
	configs   map[string]*LanguageConfig
	extToLang map[string]string
	grammars  map[string]*sitter.Language
}

// NewLanguageRegistry creates a registry with all built-in languages.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:   make(map[string]*LanguageConfig),
		extToLang: make(map[string]string),
		grammars:  make(map[string]*sitter.Language),
	}

	slashes := []string{"//"}

	r.register(&LanguageConfig{
		Name:       "go",
		Extensions: []string{".go"},
		DeclKinds: map[string]Kind{
			"function_declaration": KindFunction,
			"method_declaration":   KindMethod,
			"type_declaration":     kindFromBody, // struct vs interface, resolved per node
		},
		Containers:      map[string]bool{},
		NameField:       "name",
		CommentPrefixes: slashes,
	}, golang.GetLanguage())

	r.register(&LanguageConfig{
		Name:       "rust",
		Extensions: []string{".rs"},
		DeclKinds: map[string]Kind{
			"function_item": KindFunction,
			"struct_item":   KindStruct,
			"enum_item":     KindEnum,
			"trait_item":    KindInterface,
			"impl_item":     KindImpl,
			"mod_item":      KindModule,
		},
		Containers: map[string]bool{
			"impl_item": true, "trait_item": true, "mod_item": true,
		},
		NameField:       "name",
		CommentPrefixes: []string{"///", "//!", "//"},
	}, rust.GetLanguage())

	r.register(&LanguageConfig{
		Name:       "python",
		Extensions: []string{".py"},
		DeclKinds: map[string]Kind{
			"function_definition": KindFunction,
			"class_definition":    KindClass,
		},
		Containers:      map[string]bool{"class_definition": true},
		NameField:       "name",
		CommentPrefixes: []string{"#"},
	}, python.GetLanguage())

	jsDecls := map[string]Kind{
		"function_declaration": KindFunction,
		"method_definition":    KindMethod,
		"class_declaration":    KindClass,
	}
	jsContainers := map[string]bool{"class_declaration": true}

	r.register(&LanguageConfig{
		Name:            "javascript",
		Extensions:      []string{".js", ".mjs", ".jsx"},
		DeclKinds:       jsDecls,
		Containers:      jsContainers,
		NameField:       "name",
		CommentPrefixes: slashes,
	}, javascript.GetLanguage())

	tsDecls := map[string]Kind{
		"function_declaration":  KindFunction,
		"method_definition":     KindMethod,
		"class_declaration":     KindClass,
		"interface_declaration": KindInterface,
		"enum_declaration":      KindEnum,
	}

	r.register(&LanguageConfig{
		Name:            "typescript",
		Extensions:      []string{".ts"},
		DeclKinds:       tsDecls,
		Containers:      jsContainers,
		NameField:       "name",
		CommentPrefixes: slashes,
	}, typescript.GetLanguage())

	r.register(&LanguageConfig{
		Name:            "tsx",
		Extensions:      []string{".tsx"},
		DeclKinds:       tsDecls,
		Containers:      jsContainers,
		NameField:       "name",
		CommentPrefixes: slashes,
	}, tsx.GetLanguage())

	r.register(&LanguageConfig{
		Name:       "java",
		Extensions: []string{".java"},
		DeclKinds: map[string]Kind{
			"method_declaration":      KindMethod,
			"constructor_declaration": KindMethod,
			"class_declaration":       KindClass,
			"interface_declaration":   KindInterface,
			"enum_declaration":        KindEnum,
		},
		Containers: map[string]bool{
			"class_declaration": true, "interface_declaration": true, "enum_declaration": true,
		},
		NameField:       "name",
		CommentPrefixes: slashes,
	}, java.GetLanguage())

	r.register(&LanguageConfig{
		Name:       "c",
		Extensions: []string{".c", ".h"},
		DeclKinds: map[string]Kind{
			"function_definition": KindFunction,
			"struct_specifier":    KindStruct,
			"enum_specifier":      KindEnum,
		},
		Containers:      map[string]bool{},
		NameField:       "name",
		CommentPrefixes: slashes,
	}, c.GetLanguage())

	r.register(&LanguageConfig{
		Name:       "cpp",
		Extensions: []string{".cc", ".cpp", ".cxx", ".hpp", ".hh"},
		DeclKinds: map[string]Kind{
			"function_definition":  KindFunction,
			"class_specifier":      KindClass,
			"struct_specifier":     KindStruct,
			"enum_specifier":       KindEnum,
			"namespace_definition": KindModule,
		},
		Containers: map[string]bool{
			"class_specifier": true, "struct_specifier": true, "namespace_definition": true,
		},
		NameField:       "name",
		CommentPrefixes: slashes,
	}, cpp.GetLanguage())

	r.register(&LanguageConfig{
		Name:       "csharp",
		Extensions: []string{".cs"},
		DeclKinds: map[string]Kind{
			"method_declaration":      KindMethod,
			"constructor_declaration": KindMethod,
			"class_declaration":       KindClass,
			"struct_declaration":      KindStruct,
			"interface_declaration":   KindInterface,
			"enum_declaration":        KindEnum,
			"namespace_declaration":   KindModule,
		},
		Containers: map[string]bool{
			"class_declaration": true, "struct_declaration": true,
			"interface_declaration": true, "namespace_declaration": true,
		},
		NameField:       "name",
		CommentPrefixes: []string{"///", "//"},
	}, csharp.GetLanguage())

	return r
}

// kindFromBody marks declarations whose chunk kind depends on the node
// body (Go type declarations resolve to struct or interface).
const kindFromBody = Kind("_from_body")

func (r *LanguageRegistry) register(cfg *LanguageConfig, grammar *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs[cfg.Name] = cfg
	r.grammars[cfg.Name] = grammar
	for _, ext := range cfg.Extensions {
		r.extToLang[ext] = cfg.Name
	}
}

// DetectLanguage returns the language tag for a path, or "" if unknown.
func (r *LanguageRegistry) DetectLanguage(path string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.extToLang[strings.ToLower(filepath.Ext(path))]
}

// Get returns the configuration for a language name.
func (r *LanguageRegistry) Get(name string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[name]
	return cfg, ok
}

// Grammar returns the tree-sitter grammar for a language name.
func (r *LanguageRegistry) Grammar(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.grammars[name]
	return g, ok
}

// SupportedExtensions returns all registered extensions.
func (r *LanguageRegistry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.extToLang))
	for ext := range r.extToLang {
		exts = append(exts, ext)
	}
	return exts
}

var defaultRegistry = NewLanguageRegistry()

// DefaultRegistry returns the process-wide language registry.
func DefaultRegistry() *LanguageRegistry {
	return defaultRegistry
}
