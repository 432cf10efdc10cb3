// Command sqllint checks that every SQL string constant carries a
// "--sql <uuid>" marker and that no marker is used twice.
package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"thumbnailer/internal/infra"
)

var statementPattern = regexp.MustCompile(`(?i)^\s*(--sql [^\n]*\n\s*)?(select|insert|update|delete|with)\b`)

type finding struct {
	file    string
	line    int
	name    string
	message string
}

func (f finding) String() string {
	return fmt.Sprintf("%s:%d %s (%s)", f.file, f.line, f.message, f.name)
}

type statement struct {
	file   string
	line   int
	name   string
	marker string
}

func main() {
	flag.Parse()
	targets := flag.Args()
	if len(targets) == 0 {
		targets = []string{"internal/sqlinline"}
	}

	var stmts []statement
	var findings []finding
	for _, target := range targets {
		s, f, err := lintPath(target)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sqllint: %v\n", err)
			os.Exit(1)
		}
		stmts = append(stmts, s...)
		findings = append(findings, f...)
	}
	findings = append(findings, duplicateMarkers(stmts)...)

	if len(findings) > 0 {
		fmt.Fprintln(os.Stderr, "sqllint: SQL marker problems")
		for _, f := range findings {
			fmt.Fprintf(os.Stderr, "  %s\n", f)
		}
		os.Exit(1)
	}
	fmt.Printf("sqllint: %d statements ok\n", len(stmts))
}

func lintPath(target string) ([]statement, []finding, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, nil, err
	}
	if !info.IsDir() {
		if filepath.Ext(target) != ".go" {
			return nil, nil, nil
		}
		return lintFile(target)
	}

	var stmts []statement
	var findings []finding
	err = filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != target && (strings.HasPrefix(d.Name(), ".") || strings.HasPrefix(d.Name(), "_") || d.Name() == "vendor") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		s, f, err := lintFile(path)
		if err != nil {
			return err
		}
		stmts = append(stmts, s...)
		findings = append(findings, f...)
		return nil
	})
	return stmts, findings, err
}

func lintFile(path string) ([]statement, []finding, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return lintSource(path, src)
}

// lintSource inspects string constants and variables of one Go file.
// Strings that do not start with a DML keyword (DDL, prose) are ignored.
func lintSource(path string, src []byte) ([]statement, []finding, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, src, parser.ParseComments)
	if err != nil {
		return nil, nil, err
	}

	var stmts []statement
	var findings []finding
	ast.Inspect(file, func(n ast.Node) bool {
		vs, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for i, value := range vs.Values {
			bl, ok := value.(*ast.BasicLit)
			if !ok || bl.Kind != token.STRING {
				continue
			}
			raw, err := strconv.Unquote(bl.Value)
			if err != nil || !statementPattern.MatchString(raw) {
				continue
			}
			name := "_"
			if i < len(vs.Names) {
				name = vs.Names[i].Name
			}
			line := fset.Position(bl.Pos()).Line
			marker, _, err := infra.ExtractMarker(raw)
			if err != nil {
				findings = append(findings, finding{file: path, line: line, name: name, message: "missing or invalid --sql <uuid> marker"})
				continue
			}
			stmts = append(stmts, statement{file: path, line: line, name: name, marker: marker})
		}
		return true
	})
	return stmts, findings, nil
}

func duplicateMarkers(stmts []statement) []finding {
	first := make(map[string]statement, len(stmts))
	var findings []finding
	for _, s := range stmts {
		if prev, ok := first[s.marker]; ok {
			findings = append(findings, finding{
				file:    s.file,
				line:    s.line,
				name:    s.name,
				message: fmt.Sprintf("marker %s already used by %s", s.marker, prev.name),
			})
			continue
		}
		first[s.marker] = s
	}
	return findings
}
