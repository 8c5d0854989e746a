package chunker

import (
	"context"
	"go/ast"
	"go/parser"
	"go/token"
)

func goLanguage() *language {
	return &language{
		name: "go",
		chunkable: kinds(
			"function_declaration",
			"method_declaration",
			"import_declaration",
			"const_declaration",
			"var_declaration",
			"type_declaration",
			"type_spec",
		),
		parse: parseGo,
	}
}

// parseGo builds a node tree from top-level declarations. Doc comments are
// included in the span of the declaration they document.
func parseGo(_ context.Context, src []byte) (*node, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "", src, parser.ParseComments)
	if err != nil {
		return nil, err
	}

	tf := fset.File(file.Pos())
	span := func(kind string, doc *ast.CommentGroup, n ast.Node) *node {
		start := n.Pos()
		if doc != nil {
			start = doc.Pos()
		}
		end := n.End()
		return &node{
			kind:      kind,
			startByte: tf.Offset(start),
			endByte:   tf.Offset(end),
			startRow:  tf.Line(start) - 1,
			endRow:    tf.Line(end) - 1,
		}
	}

	root := &node{
		kind:      "source_file",
		startByte: 0,
		endByte:   len(src),
		startRow:  0,
		endRow:    tf.LineCount() - 1,
	}

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			kind := "function_declaration"
			if d.Recv != nil {
				kind = "method_declaration"
			}
			root.children = append(root.children, span(kind, d.Doc, d))

		case *ast.GenDecl:
			gen := span(genDeclKind(d.Tok), d.Doc, d)
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					gen.children = append(gen.children, span("type_spec", s.Doc, s))
				case *ast.ValueSpec:
					gen.children = append(gen.children, span("value_spec", s.Doc, s))
				case *ast.ImportSpec:
					gen.children = append(gen.children, span("import_spec", s.Doc, s))
				}
			}
			root.children = append(root.children, gen)
		}
	}

	return root, nil
}

func genDeclKind(tok token.Token) string {
	switch tok {
	case token.IMPORT:
		return "import_declaration"
	case token.CONST:
		return "const_declaration"
	case token.VAR:
		return "var_declaration"
	default:
		return "type_declaration"
	}
}
