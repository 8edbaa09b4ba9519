package agent

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
)

// FixValidator statically checks a generated Go fix before it can be
// published. It works against any codebase rather than one demo app:
//
//  1. The fix must parse as a valid Go source file.
//  2. Every function declared in the original file must still be
//     declared in the fix. A fix that drops functions breaks callers.
//  3. No error-check branch may be empty: `if err != nil {}` silently
//     swallows the failure the fix was supposed to handle.
//
// OriginalPath points at the buggy source under repair; when the file
// is missing or itself unparseable, the preservation check is skipped.
type FixValidator struct {
	OriginalPath string
}

// Validate implements Validator.
func (v *FixValidator) Validate(ctx context.Context, code string) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}
	if code == "" {
		return Verdict{Passed: false, Errors: []string{"no fix code provided"}}, nil
	}

	fset := token.NewFileSet()
	fixed, err := parser.ParseFile(fset, "fix.go", code, 0)
	if err != nil {
		return Verdict{
			Passed: false,
			Errors: []string{fmt.Sprintf("syntax error: %v", err)},
		}, nil
	}

	var errs []string

	if missing := v.missingFunctions(fixed); len(missing) > 0 {
		for _, name := range missing {
			errs = append(errs, fmt.Sprintf("function %q removed from original code; all original functions must be preserved", name))
		}
		return Verdict{Passed: false, Errors: errs}, nil
	}

	errs = append(errs, emptyErrorChecks(fset, fixed)...)

	if len(errs) > 0 {
		return Verdict{Passed: false, Errors: errs}, nil
	}
	return Verdict{Passed: true}, nil
}

// missingFunctions returns original function names absent from the fix,
// in declaration order. Skipped entirely when the original cannot be
// read or parsed.
func (v *FixValidator) missingFunctions(fixed *ast.File) []string {
	if v.OriginalPath == "" {
		return nil
	}
	src, err := os.ReadFile(v.OriginalPath)
	if err != nil {
		return nil
	}
	orig, err := parser.ParseFile(token.NewFileSet(), v.OriginalPath, src, 0)
	if err != nil {
		return nil
	}

	have := make(map[string]bool)
	for _, decl := range fixed.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok {
			have[funcKey(fn)] = true
		}
	}

	var missing []string
	for _, decl := range orig.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok && !have[funcKey(fn)] {
			missing = append(missing, fn.Name.Name)
		}
	}
	return missing
}

// funcKey distinguishes methods on different receivers from free
// functions with the same name.
func funcKey(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return fn.Name.Name
	}
	return recvTypeName(fn.Recv.List[0].Type) + "." + fn.Name.Name
}

func recvTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return recvTypeName(t.X)
	case *ast.IndexExpr:
		return recvTypeName(t.X)
	case *ast.IndexListExpr:
		return recvTypeName(t.X)
	}
	return ""
}

// emptyErrorChecks flags `if err != nil` branches with empty bodies.
func emptyErrorChecks(fset *token.FileSet, file *ast.File) []string {
	var errs []string
	ast.Inspect(file, func(n ast.Node) bool {
		ifStmt, ok := n.(*ast.IfStmt)
		if !ok || len(ifStmt.Body.List) > 0 {
			return true
		}
		if isErrNilCheck(ifStmt.Cond) {
			pos := fset.Position(ifStmt.Pos())
			errs = append(errs, fmt.Sprintf("empty error check at line %d: handle the error or document why it is ignored", pos.Line))
		}
		return true
	})
	return errs
}

func isErrNilCheck(cond ast.Expr) bool {
	bin, ok := cond.(*ast.BinaryExpr)
	if !ok || bin.Op != token.NEQ {
		return false
	}
	ident, ok := bin.X.(*ast.Ident)
	if !ok {
		return false
	}
	nilIdent, ok := bin.Y.(*ast.Ident)
	return ok && ident.Name == "err" && nilIdent.Name == "nil"
}
