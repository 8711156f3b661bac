// Command testreport merges `go test -json` output with the TestPurpose
// annotations in *_test.go files and writes JSON and Markdown reports.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Annotation is the metadata block above a test function
type Annotation struct {
	Name       string `json:"name"`
	Purpose    string `json:"purpose,omitempty"`
	Scope      string `json:"scope,omitempty"`
	Security   string `json:"security,omitempty"`
	Expected   string `json:"expected,omitempty"`
	TestCaseID string `json:"test_case_id,omitempty"`
	Package    string `json:"package"`
	Category   string `json:"category"`
}

type testEvent struct {
	Action  string  `json:"Action"`
	Package string  `json:"Package"`
	Test    string  `json:"Test"`
	Elapsed float64 `json:"Elapsed"`
	Output  string  `json:"Output"`
}

// Result is the merged outcome of one test
type Result struct {
	Name       string     `json:"name"`
	Package    string     `json:"package"`
	Status     string     `json:"status"`
	Elapsed    float64    `json:"elapsed_seconds"`
	Failure    string     `json:"failure_reason,omitempty"`
	Annotation Annotation `json:"annotations"`
}

// Summary is the whole report
type Summary struct {
	GeneratedAt time.Time `json:"generated_at"`
	Total       int       `json:"total"`
	Passed      int       `json:"passed"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
	Results     []Result  `json:"results"`
}

var categoryOrder = []string{"Access", "AuthN", "AuthZ", "Tenant", "Billing", "Rate Limit", "API Keys", "Claims", "Audit", "Store", "API", "Other"}

func main() {
	input := flag.String("input", "", "go test -json output file")
	outJSON := flag.String("out-json", "", "JSON report path")
	outMD := flag.String("out-md", "", "Markdown report path")
	root := flag.String("root", ".", "module root to scan for annotations")
	title := flag.String("title", "Test Report", "report title")
	category := flag.String("category", "", "only report this category")
	flag.Parse()

	if *input == "" || *outJSON == "" || *outMD == "" {
		fmt.Fprintln(os.Stderr, "usage: testreport -input <file> -out-json <file> -out-md <file>")
		os.Exit(2)
	}

	summary, err := build(*root, *input, *category)
	if err != nil {
		fmt.Fprintf(os.Stderr, "testreport: %v\n", err)
		os.Exit(1)
	}
	if err := writeFile(*outJSON, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}); err != nil {
		fmt.Fprintf(os.Stderr, "testreport: %v\n", err)
		os.Exit(1)
	}
	if err := writeFile(*outMD, func(w io.Writer) error { return writeMarkdown(w, summary, *title) }); err != nil {
		fmt.Fprintf(os.Stderr, "testreport: %v\n", err)
		os.Exit(1)
	}

	// Fail CI when any test failed.
	if summary.Failed > 0 {
		fmt.Fprintf(os.Stderr, "testreport: %d tests failed\n", summary.Failed)
		os.Exit(1)
	}
}

func build(root, input, category string) (*Summary, error) {
	modulePath, err := readModulePath(filepath.Join(root, "go.mod"))
	if err != nil {
		return nil, err
	}
	annotations, err := scanAnnotations(root, modulePath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(input)
	if err != nil {
		return nil, fmt.Errorf("open test output: %w", err)
	}
	defer f.Close()

	results, err := mergeResults(f, annotations)
	if err != nil {
		return nil, err
	}
	if category != "" {
		kept := results[:0]
		for _, r := range results {
			if r.Annotation.Category == category {
				kept = append(kept, r)
			}
		}
		results = kept
	}
	return summarize(results), nil
}

func readModulePath(goMod string) (string, error) {
	data, err := os.ReadFile(goMod)
	if err != nil {
		return "", fmt.Errorf("read go.mod: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), "module "); ok {
			return strings.Trim(strings.TrimSpace(rest), `"`), nil
		}
	}
	return "", fmt.Errorf("no module directive in %s", goMod)
}

// scanAnnotations maps "<import path>.<TestName>" to its parsed doc block.
func scanAnnotations(root, modulePath string) (map[string]Annotation, error) {
	out := make(map[string]Annotation)
	fset := token.NewFileSet()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, "_test.go") {
			return nil
		}

		file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, filepath.Dir(path))
		if err != nil {
			return err
		}
		pkg := modulePath
		if rel != "." {
			pkg = modulePath + "/" + filepath.ToSlash(rel)
		}

		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Recv != nil || !strings.HasPrefix(fn.Name.Name, "Test") {
				continue
			}
			a := parseDoc(fn.Doc)
			a.Name = fn.Name.Name
			a.Package = pkg
			a.Category = categorize(strings.TrimPrefix(pkg, modulePath))
			out[pkg+"."+fn.Name.Name] = a
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan annotations: %w", err)
	}
	return out, nil
}

func parseDoc(doc *ast.CommentGroup) Annotation {
	var a Annotation
	if doc == nil {
		return a
	}
	fields := map[string]*string{
		"TestPurpose:":  &a.Purpose,
		"Scope:":        &a.Scope,
		"Security:":     &a.Security,
		"Expected:":     &a.Expected,
		"Test Case ID:": &a.TestCaseID,
	}
	for _, c := range doc.List {
		text := strings.TrimSpace(strings.TrimPrefix(c.Text, "//"))
		for prefix, dst := range fields {
			if v, ok := strings.CutPrefix(text, prefix); ok {
				*dst = strings.TrimSpace(v)
				break
			}
		}
	}
	return a
}

func categorize(rel string) string {
	switch {
	case strings.Contains(rel, "/access"):
		return "Access"
	case strings.Contains(rel, "/authn"), strings.Contains(rel, "/identity"), strings.Contains(rel, "/session"):
		return "AuthN"
	case strings.Contains(rel, "/authz"):
		return "AuthZ"
	case strings.Contains(rel, "/tenant"):
		return "Tenant"
	case strings.Contains(rel, "/billing"):
		return "Billing"
	case strings.Contains(rel, "/ratelimit"):
		return "Rate Limit"
	case strings.Contains(rel, "/apikey"):
		return "API Keys"
	case strings.Contains(rel, "/claim"):
		return "Claims"
	case strings.Contains(rel, "/audit"):
		return "Audit"
	case strings.Contains(rel, "/store"):
		return "Store"
	case strings.Contains(rel, "/transport/http"):
		return "API"
	default:
		return "Other"
	}
}

// mergeResults folds go test -json events onto the annotated tests. Annotated
// tests that never ran are reported as "not run".
func mergeResults(r io.Reader, annotations map[string]Annotation) ([]Result, error) {
	states := make(map[string]*Result, len(annotations))
	for key, a := range annotations {
		states[key] = &Result{Name: a.Name, Package: a.Package, Status: "not run", Annotation: a}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var ev testEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil || ev.Test == "" {
			continue
		}
		key := ev.Package + "." + ev.Test
		res, ok := states[key]
		if !ok {
			a := Annotation{Name: ev.Test, Package: ev.Package, Category: "Other"}
			if parent, sub, found := strings.Cut(ev.Test, "/"); found {
				if pa, ok := annotations[ev.Package+"."+parent]; ok {
					a = pa
					a.Name = ev.Test
					a.Purpose = strings.TrimSpace(pa.Purpose + " (" + sub + ")")
				}
			}
			res = &Result{Name: ev.Test, Package: ev.Package, Annotation: a}
			states[key] = res
		}

		switch ev.Action {
		case "pass", "fail":
			res.Status = ev.Action
			res.Elapsed = ev.Elapsed
		case "skip":
			res.Status = "skip"
		case "output":
			if res.Status == "" || res.Status == "not run" || res.Status == "fail" {
				res.Failure += ev.Output
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read test output: %w", err)
	}

	out := make([]Result, 0, len(states))
	for _, res := range states {
		if res.Status != "fail" {
			res.Failure = ""
		}
		out = append(out, *res)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Package != out[j].Package {
			return out[i].Package < out[j].Package
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func summarize(results []Result) *Summary {
	s := &Summary{GeneratedAt: time.Now().UTC(), Results: results}
	for _, r := range results {
		s.Total++
		switch r.Status {
		case "pass":
			s.Passed++
		case "fail":
			s.Failed++
		case "skip":
			s.Skipped++
		}
	}
	return s
}

func writeMarkdown(w io.Writer, s *Summary, title string) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# ClaimDesk %s\n\n", title)
	fmt.Fprintf(&sb, "**Generated:** %s  \n", s.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	status := "PASSED"
	if s.Failed > 0 {
		status = "FAILED"
	}
	fmt.Fprintf(&sb, "**Status:** %s\n\n", status)

	rate := 0.0
	if s.Total > 0 {
		rate = float64(s.Passed) / float64(s.Total) * 100
	}
	sb.WriteString("| Total | Passed | Failed | Skipped | Pass Rate |\n")
	sb.WriteString("|-------|--------|--------|---------|-----------|\n")
	fmt.Fprintf(&sb, "| %d | %d | %d | %d | %.1f%% |\n\n", s.Total, s.Passed, s.Failed, s.Skipped, rate)

	byCategory := make(map[string][]Result)
	for _, r := range s.Results {
		byCategory[r.Annotation.Category] = append(byCategory[r.Annotation.Category], r)
	}
	for _, cat := range categoryOrder {
		tests := byCategory[cat]
		if len(tests) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "## %s\n\n", cat)
		sb.WriteString("| ID | Test | Status | Purpose | Security |\n")
		sb.WriteString("|----|------|--------|---------|----------|\n")
		for _, t := range tests {
			fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n",
				t.Annotation.TestCaseID, t.Name, t.Status, t.Annotation.Purpose, t.Annotation.Security)
		}
		sb.WriteString("\n")
	}

	if s.Failed > 0 {
		sb.WriteString("## Failures\n\n")
		for _, t := range s.Results {
			if t.Status == "fail" {
				fmt.Fprintf(&sb, "### %s (%s)\n\n```\n%s\n```\n\n", t.Name, t.Package, t.Failure)
			}
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func writeFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
