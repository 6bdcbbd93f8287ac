// Package report renders an aggregated evaluation as CSV, HTML and markdown.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"

	"github.com/c360studio/semaudit/aggregation"
)

// CSVFile is the name of the findings log appended to on every run.
const CSVFile = "findings.csv"

// CSVHeader is the first row of the findings log.
var CSVHeader = []string{
	"timestamp", "run_id", "rule_id", "rule_description",
	"element_id", "element_category", "severity", "message",
}

// Run identifies one evaluation.
type Run struct {
	ID      string    `json:"id"`
	Started time.Time `json:"started"`
	// Model names the evaluated model version, usually its file path.
	Model string `json:"model,omitempty"`
}

// WriteCSV writes one row per finding, preceded by the header row.
func WriteCSV(w io.Writer, run Run, rep *aggregation.Report) error {
	return writeCSV(w, run, rep, true)
}

func writeCSV(w io.Writer, run Run, rep *aggregation.Report, header bool) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(CSVHeader); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	}

	ts := run.Started.UTC().Format(time.RFC3339)
	for _, f := range rep.Findings {
		row := []string{
			ts, run.ID, f.RuleID, f.Rule,
			f.ElementID, f.Category, string(f.Severity), f.Message,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"time": func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Model validation {{.Run.ID}}</title>
</head>
<body>
<h1>Model validation</h1>
<p>Run <code>{{.Run.ID}}</code> at {{time .Run.Started}}{{if .Run.Model}} on <code>{{.Run.Model}}</code>{{end}}</p>
<p class="verdict-{{.Report.Verdict}}">{{.Report.Summary}}</p>
{{- if .Report.Counts}}
<h2>Findings per rule</h2>
<table id="counts">
<thead><tr><th>Rule</th><th>Findings</th></tr></thead>
<tbody>
{{- range .Report.Counts}}
<tr><td>{{.Rule}}</td><td>{{.Count}}</td></tr>
{{- end}}
</tbody>
</table>
<h2>Findings</h2>
<table id="findings">
<thead><tr><th>Severity</th><th>Rule</th><th>Element</th><th>Category</th><th>Message</th></tr></thead>
<tbody>
{{- range .Report.Findings}}
<tr class="{{.Severity}}"><td>{{.Severity}}</td><td>{{.Rule}}</td><td>{{.ElementID}}</td><td>{{.Category}}</td><td>{{.Message}}</td></tr>
{{- end}}
</tbody>
</table>
{{- end}}
</body>
</html>
`))

// WriteHTML renders the report as a standalone HTML page.
func WriteHTML(w io.Writer, run Run, rep *aggregation.Report) error {
	data := struct {
		Run    Run
		Report *aggregation.Report
	}{run, rep}
	if err := htmlTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}

var excessiveLinesRe = regexp.MustCompile(`\n{3,}`)

// Markdown converts a rendered HTML report to GitHub-flavored markdown.
func Markdown(html string) (string, error) {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	out, err := converter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("convert report to markdown: %w", err)
	}
	out = excessiveLinesRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out), nil
}

// RenderMarkdown renders the report straight to markdown.
func RenderMarkdown(run Run, rep *aggregation.Report) (string, error) {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, run, rep); err != nil {
		return "", err
	}
	return Markdown(buf.String())
}

// Writer writes report files into a directory.
type Writer struct {
	HTML bool
	CSV  bool
}

// WriteFiles writes <run>.html and appends the findings to findings.csv,
// creating dir as needed. It returns the paths written.
func (w Writer) WriteFiles(dir string, run Run, rep *aggregation.Report) ([]string, error) {
	if !w.HTML && !w.CSV {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}

	var written []string

	if w.HTML {
		path := filepath.Join(dir, run.ID+".html")
		var buf bytes.Buffer
		if err := WriteHTML(&buf, run, rep); err != nil {
			return written, err
		}
		if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
			return written, fmt.Errorf("write html report: %w", err)
		}
		written = append(written, path)
	}

	if w.CSV {
		path := filepath.Join(dir, CSVFile)
		if err := appendCSV(path, run, rep); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	return written, nil
}

func appendCSV(path string, run Run, rep *aggregation.Report) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open csv report: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat csv report: %w", err)
	}
	return writeCSV(f, run, rep, info.Size() == 0)
}
