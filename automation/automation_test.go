package automation

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semaudit/aggregation"
	"github.com/c360studio/semaudit/element"
	"github.com/c360studio/semaudit/metrics"
	"github.com/c360studio/semaudit/report"
	"github.com/c360studio/semaudit/rules"
)

const wallsModel = `{
  "id": "root",
  "speckle_type": "Base",
  "elements": [
    {"id": "w1", "category": "Muri", "properties": {"Testo": {"Fire_Rating": {"value": ""}}}},
    {"id": "w2", "category": "Muri", "properties": {"Testo": {"Fire_Rating": {"value": "EI60"}}}},
    {"id": "d1", "category": "Porte", "properties": {"Altro": {"Sigillatura_Rei_Installation": {"value": true}}}}
  ]
}`

const compliantModel = `{
  "id": "root",
  "elements": [
    {"id": "w2", "category": "Muri", "properties": {"Testo": {"Fire_Rating": {"value": "EI60"}}}}
  ]
}`

const emptyModel = `{"id": "root", "speckle_type": "Speckle.Core.Models.Collection", "elements": []}`

func writeModel(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func testRunner(opts ...Option) *Runner {
	cfg := rules.DefaultConfig()
	engine := rules.NewEngine(nil, rules.Build(cfg, rules.Dependencies{})...)

	fixed := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	base := []Option{WithClock(func() time.Time { return fixed }, func() string { return "run-test" })}
	return NewRunner(engine, append(base, opts...)...)
}

func TestRunner_FailsOnErrorFindings(t *testing.T) {
	out := t.TempDir()
	actx := NewFileContext(writeModel(t, wallsModel), "", out)
	m := metrics.New()

	outcome, err := testRunner(WithReports(report.Writer{HTML: true, CSV: true}, out), WithMetrics(m)).
		Run(context.Background(), actx)
	require.NoError(t, err)

	assert.Equal(t, "run-test", outcome.Run.ID)
	assert.Equal(t, 3, outcome.Elements)
	assert.False(t, outcome.Passed)
	assert.Equal(t, "Validation failed with a total of 1 errors.", outcome.Message)
	assert.Equal(t, 1, outcome.Report.Count("Missing Data: Fire_Rating"))
	assert.Len(t, outcome.Files, 2)

	status, msg := actx.Status()
	assert.Equal(t, StatusFailed, status)
	assert.Equal(t, outcome.Message, msg)

	data, err := os.ReadFile(filepath.Join(out, "run-test."+AnnotationsFile))
	require.NoError(t, err)
	var annotations []Annotation
	require.NoError(t, json.Unmarshal(data, &annotations))
	require.Len(t, annotations, 1)
	assert.Equal(t, "Missing Data: Fire_Rating", annotations[0].Category)
	assert.Equal(t, "red", annotations[0].Color)
	assert.Equal(t, []Object{{ID: "w1", Message: "The parameter 'Fire_Rating' is missing or empty."}}, annotations[0].Objects)

	assert.FileExists(t, filepath.Join(out, "run-test.html"))
	assert.FileExists(t, filepath.Join(out, "run-test."+StatusFile))
	assert.Equal(t, filepath.Join(out, "run-test.status.json"), actx.StatusPath())
}

func TestRunner_Passes(t *testing.T) {
	actx := NewFileContext(writeModel(t, compliantModel), "", "")

	outcome, err := testRunner().Run(context.Background(), actx)
	require.NoError(t, err)
	assert.True(t, outcome.Passed)
	assert.Equal(t, MessagePassed, outcome.Message)

	status, msg := actx.Status()
	assert.Equal(t, StatusSucceeded, status)
	assert.Equal(t, MessagePassed, msg)
}

func TestRunner_NoElements(t *testing.T) {
	actx := NewFileContext(writeModel(t, emptyModel), "", "")

	outcome, err := testRunner().Run(context.Background(), actx)
	require.NoError(t, err)
	assert.True(t, outcome.Passed)
	assert.Zero(t, outcome.Elements)

	status, msg := actx.Status()
	assert.Equal(t, StatusSucceeded, status)
	assert.Equal(t, MessageNoElements, msg)
}

func TestRunner_UnreadableModel(t *testing.T) {
	for name, content := range map[string]string{
		"unrecognized root": `"just a string"`,
		"malformed json":    `{"id": `,
	} {
		t.Run(name, func(t *testing.T) {
			actx := NewFileContext(writeModel(t, content), "", "")

			outcome, err := testRunner().Run(context.Background(), actx)
			require.Error(t, err)
			assert.Nil(t, outcome)

			status, msg := actx.Status()
			assert.Equal(t, StatusFailed, status)
			assert.Contains(t, msg, "could not be read")
		})
	}

	actx := NewFileContext(writeModel(t, `42`), "", "")
	_, err := testRunner().Run(context.Background(), actx)
	assert.ErrorIs(t, err, element.ErrUnrecognizedRoot)
}

func TestRunner_ComparesPreviousVersion(t *testing.T) {
	prev := `{"id": "root", "elements": [{"id": "w2", "category": "Muri", "volume": 10,
		"properties": {"Testo": {"Fire_Rating": {"value": "EI60"}}, "Dati identità": {"Costo": {"value": 100}}}}]}`
	curr := `{"id": "root", "elements": [{"id": "w2", "category": "Muri", "volume": 10,
		"properties": {"Testo": {"Fire_Rating": {"value": "EI60"}}, "Dati identità": {"Costo": {"value": 150}}}}]}`

	actx := NewFileContext(writeModel(t, curr), writeModel(t, prev), "")
	outcome, err := testRunner().Run(context.Background(), actx)
	require.NoError(t, err)

	assert.True(t, outcome.Passed, "cost increases are warnings")
	assert.Equal(t, 1, outcome.Report.Count("Cost Increase"))
	assert.Equal(t, "Validation passed with 1 warnings.", outcome.Message)
}

func TestRunner_MissingPreviousVersionIsSkipped(t *testing.T) {
	actx := NewFileContext(writeModel(t, compliantModel), filepath.Join(t.TempDir(), "gone.json"), "")

	outcome, err := testRunner().Run(context.Background(), actx)
	require.NoError(t, err)
	assert.True(t, outcome.Passed)
}

func TestFileContext_PreviousInMemory(t *testing.T) {
	prev, err := element.Decode([]byte(`{"id": "root", "elements": [{"id": "w2", "category": "Muri", "area": 4,
		"properties": {"Testo": {"Fire_Rating": {"value": "EI60"}}, "Dati identità": {"Costo": {"value": 10}}}}]}`))
	require.NoError(t, err)
	curr := `{"id": "root", "elements": [{"id": "w2", "category": "Muri", "area": 4,
		"properties": {"Testo": {"Fire_Rating": {"value": "EI60"}}, "Dati identità": {"Costo": {"value": 20}}}}]}`

	actx := NewFileContext(writeModel(t, curr), filepath.Join(t.TempDir(), "ignored.json"), "")
	actx.Previous = prev
	assert.Nil(t, actx.Received())

	outcome, err := testRunner().Run(context.Background(), actx)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Report.Count("Cost Increase"))

	received := actx.Received()
	require.NotNil(t, received)
	assert.Equal(t, "root", received.ID)

	status, msg := actx.Status()
	assert.Equal(t, StatusSucceeded, status)
	assert.Equal(t, outcome.Message, msg)
}

func TestRunner_SharedOutDirKeepsEachRun(t *testing.T) {
	out := t.TempDir()
	ids := []string{"run-walls", "run-compliant"}
	next := 0
	runner := testRunner(WithClock(nil, func() string {
		id := ids[next]
		next++
		return id
	}))

	failing := NewFileContext(writeModel(t, wallsModel), "", out)
	_, err := runner.Run(context.Background(), failing)
	require.NoError(t, err)

	passing := NewFileContext(writeModel(t, compliantModel), "", out)
	_, err = runner.Run(context.Background(), passing)
	require.NoError(t, err)

	assert.NotEqual(t, failing.StatusPath(), passing.StatusPath())

	var status map[string]string
	data, err := os.ReadFile(failing.StatusPath())
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &status))
	assert.Equal(t, StatusFailed, status["status"])

	var annotations []Annotation
	data, err = os.ReadFile(failing.AnnotationsPath())
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &annotations))
	assert.Len(t, annotations, 1)

	data, err = os.ReadFile(passing.StatusPath())
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &status))
	assert.Equal(t, StatusSucceeded, status["status"])
}

type recordingContext struct {
	root        *element.Node
	annotations []Annotation
	attachErr   error
	success     string
	failed      string
}

func (r *recordingContext) ReceiveVersion(context.Context) (*element.Node, error) { return r.root, nil }
func (r *recordingContext) PreviousVersion(context.Context) (*element.Node, bool, error) {
	return nil, false, nil
}
func (r *recordingContext) AttachFindings(_ context.Context, a []Annotation) error {
	r.annotations = a
	return r.attachErr
}
func (r *recordingContext) MarkSuccess(_ context.Context, m string) error { r.success = m; return nil }
func (r *recordingContext) MarkFailed(_ context.Context, m string) error  { r.failed = m; return nil }

func TestRunner_AttachFailureDoesNotAbort(t *testing.T) {
	root, err := element.Decode([]byte(wallsModel))
	require.NoError(t, err)
	actx := &recordingContext{root: root, attachErr: errors.New("host unavailable")}

	outcome, err := testRunner().Run(context.Background(), actx)
	require.NoError(t, err)
	assert.False(t, outcome.Passed)
	assert.Len(t, actx.annotations, 1)
	assert.Equal(t, "Validation failed with a total of 1 errors.", actx.failed)
	assert.Empty(t, actx.success)
}

func TestRunner_Cancelled(t *testing.T) {
	root, err := element.Decode([]byte(wallsModel))
	require.NoError(t, err)
	actx := &recordingContext{root: root}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = testRunner().Run(ctx, actx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "Validation was cancelled.", actx.failed)
}

func TestAnnotations(t *testing.T) {
	rep := aggregation.Aggregate([][]rules.Finding{
		{
			{RuleID: rules.IDSealing, Rule: "Unsealed Fire Penetration", Severity: rules.SeverityError, ElementID: "d1", Message: "same"},
			{RuleID: rules.IDSealing, Rule: "Unsealed Fire Penetration", Severity: rules.SeverityError, ElementID: "d2", Message: "same"},
		},
		{{RuleID: rules.IDBudget, Rule: "Budget Exceeded", Severity: rules.SeverityError, Category: "Muri", Message: "over"}},
		{
			{RuleID: rules.IDPlausibility, Rule: "Cost Inconsistency", Severity: rules.SeverityWarning, ElementID: "w1", Message: "a"},
			{RuleID: rules.IDPlausibility, Rule: "Cost Inconsistency", Severity: rules.SeverityWarning, ElementID: "w2", Message: "b"},
		},
	})

	got := Annotations(rep, DefaultColors())
	require.Len(t, got, 3)

	assert.Equal(t, "#FF8C00", got[0].Color, "fire penetrations keep their own colour")
	assert.Equal(t, "same", got[0].Message)
	assert.Len(t, got[0].Objects, 2)

	assert.Equal(t, "red", got[1].Color)
	assert.Equal(t, []Object{{Message: "over"}}, got[1].Objects)

	assert.Equal(t, "#FF8C00", got[2].Color)
	assert.Equal(t, "Cost Inconsistency", got[2].Message, "differing messages fall back to the category")

	assert.Empty(t, Annotations(aggregation.Aggregate(nil), DefaultColors()))
}

func TestResolveModelPaths(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{"a/v1.json", "a/b/v2.json", "c/notes.txt"} {
		full := filepath.Join(dir, p)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte("{}"), 0644))
	}

	got, err := ResolveModelPaths(filepath.Join(dir, "**", "*.json"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a", "b", "v2.json"),
		filepath.Join(dir, "a", "v1.json"),
	}, got)

	single := filepath.Join(dir, "a", "v1.json")
	got, err = ResolveModelPaths(single)
	require.NoError(t, err)
	assert.Equal(t, []string{single}, got)

	_, err = ResolveModelPaths(filepath.Join(dir, "**", "*.ifc"))
	assert.ErrorIs(t, err, ErrNoModel)

	_, err = ResolveModelPaths("")
	assert.ErrorIs(t, err, ErrNoModel)
}
