package extract

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// PythonChecker reports whether text parses as Python using the
// tree-sitter grammar. Nothing is executed.
type PythonChecker struct{}

func (PythonChecker) Valid(src string) bool {
	// An empty block parses, but it is never a useful candidate; forgiving
	// mode moves past it to the next block.
	if src == "" {
		return false
	}
	// A fresh parser per call keeps the checker safe for parallel runs.
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, []byte(src))
	if err != nil {
		return false
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return false
	}
	return !root.HasError()
}
