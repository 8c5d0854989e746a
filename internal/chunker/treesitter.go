package chunker

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

type treeSitterLanguage struct {
	language   *language
	extensions []string
}

// scope restricts some chunkable kinds to the parents listed for them.
// Outside those parents the node is renamed so the walker treats it as
// plain body text.
type scope map[string]map[string]bool

func (s scope) kind(kind, parent string) string {
	parents, ok := s[kind]
	if !ok || parents[parent] {
		return kind
	}
	return "nested_" + kind
}

func kinds(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}

var ecmaScriptKinds = []string{
	"function_declaration",
	"generator_function_declaration",
	"class_declaration",
	"method_definition",
	"export_statement",
	"import_statement",
	"lexical_declaration",
}

// declarations and imports only count at module level, so a function body
// never decays into its local const statements
var ecmaScriptScope = scope{
	"lexical_declaration": kinds("program", "export_statement"),
	"import_statement":    kinds("program"),
}

var typeScriptKinds = append([]string{
	"abstract_class_declaration",
	"interface_declaration",
	"type_alias_declaration",
	"enum_declaration",
	"module",
}, ecmaScriptKinds...)

func treeSitterLanguages() []treeSitterLanguage {
	return []treeSitterLanguage{
		{
			language:   newTreeSitterLanguage("typescript", typescript.GetLanguage(), ecmaScriptScope, typeScriptKinds...),
			extensions: []string{".ts", ".mts", ".cts"},
		},
		{
			language:   newTreeSitterLanguage("tsx", tsx.GetLanguage(), ecmaScriptScope, typeScriptKinds...),
			extensions: []string{".tsx"},
		},
		{
			language:   newTreeSitterLanguage("javascript", javascript.GetLanguage(), ecmaScriptScope, ecmaScriptKinds...),
			extensions: []string{".js", ".jsx", ".mjs", ".cjs"},
		},
		{
			language: newTreeSitterLanguage("python", python.GetLanguage(),
				scope{
					"import_statement":      kinds("module"),
					"import_from_statement": kinds("module"),
				},
				"function_definition",
				"class_definition",
				"decorated_definition",
				"import_statement",
				"import_from_statement",
			),
			extensions: []string{".py"},
		},
		{
			language: newTreeSitterLanguage("rust", rust.GetLanguage(),
				scope{"use_declaration": kinds("source_file", "declaration_list")},
				"function_item",
				"impl_item",
				"struct_item",
				"enum_item",
				"trait_item",
				"mod_item",
				"type_item",
				"use_declaration",
				"macro_definition",
			),
			extensions: []string{".rs"},
		},
		{
			language: newTreeSitterLanguage("java", java.GetLanguage(), nil,
				"class_declaration",
				"interface_declaration",
				"enum_declaration",
				"record_declaration",
				"method_declaration",
				"constructor_declaration",
				"import_declaration",
			),
			extensions: []string{".java"},
		},
	}
}

func newTreeSitterLanguage(name string, grammar *sitter.Language, scoped scope, chunkable ...string) *language {
	return &language{
		name:      name,
		chunkable: kinds(chunkable...),
		parse: func(ctx context.Context, src []byte) (*node, error) {
			parser := sitter.NewParser()
			defer parser.Close()
			parser.SetLanguage(grammar)

			tree, err := parser.ParseCtx(ctx, nil, src)
			if err != nil {
				return nil, fmt.Errorf("%s parse: %w", name, err)
			}
			defer tree.Close()

			root := tree.RootNode()
			if root == nil {
				return nil, nil
			}
			return convertSitterNode(root, "", scoped), nil
		},
	}
}

// convertSitterNode copies the named part of a tree-sitter tree so the
// native tree can be released before walking.
func convertSitterNode(n *sitter.Node, parent string, scoped scope) *node {
	kind := n.Type()
	out := &node{
		kind:      scoped.kind(kind, parent),
		startByte: int(n.StartByte()),
		endByte:   int(n.EndByte()),
		startRow:  int(n.StartPoint().Row),
		endRow:    int(n.EndPoint().Row),
	}

	count := int(n.NamedChildCount())
	if count > 0 {
		out.children = make([]*node, 0, count)
	}
	for i := 0; i < count; i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		out.children = append(out.children, convertSitterNode(child, kind, scoped))
	}

	return out
}
