// Package automation runs the rule engine as one step of a model-change
// pipeline: it receives a model version from the host, evaluates it and
// reports the outcome back.
package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/c360studio/semaudit/element"
)

// Run status values.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Context is the host runtime seen from one run.
type Context interface {
	// ReceiveVersion returns the root of the model version under evaluation.
	ReceiveVersion(ctx context.Context) (*element.Node, error)

	// PreviousVersion returns the prior version, if the host has one.
	PreviousVersion(ctx context.Context) (*element.Node, bool, error)

	// AttachFindings attaches annotations to model objects.
	AttachFindings(ctx context.Context, annotations []Annotation) error

	MarkSuccess(ctx context.Context, message string) error
	MarkFailed(ctx context.Context, message string) error
}

// FileContext is a Context backed by model snapshot files. Annotations and
// the final status are written as JSON into OutDir, prefixed with RunID so
// runs sharing OutDir keep their own files.
type FileContext struct {
	ModelPath    string
	PreviousPath string
	OutDir       string

	// RunID prefixes the files written into OutDir. The Runner sets it.
	RunID string

	// Previous, when set, is used instead of reading PreviousPath.
	Previous *element.Node

	mu       sync.Mutex
	received *element.Node
	status   string
	message  string
}

// AnnotationsFile and StatusFile are the file name suffixes written into
// OutDir: <run id>.annotations.json and <run id>.status.json.
const (
	AnnotationsFile = "annotations.json"
	StatusFile      = "status.json"
)

// NewFileContext creates a file-backed context.
func NewFileContext(modelPath, previousPath, outDir string) *FileContext {
	return &FileContext{ModelPath: modelPath, PreviousPath: previousPath, OutDir: outDir}
}

// ReceiveVersion implements Context.
func (f *FileContext) ReceiveVersion(ctx context.Context) (*element.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root, err := element.DecodeFile(f.ModelPath)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.received = root
	f.mu.Unlock()
	return root, nil
}

// Received returns the version read by ReceiveVersion, if any.
func (f *FileContext) Received() *element.Node {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.received
}

// PreviousVersion implements Context.
func (f *FileContext) PreviousVersion(ctx context.Context) (*element.Node, bool, error) {
	if f.Previous != nil {
		return f.Previous, true, nil
	}
	if f.PreviousPath == "" {
		return nil, false, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	root, err := element.DecodeFile(f.PreviousPath)
	if err != nil {
		return nil, false, err
	}
	return root, true, nil
}

// AttachFindings implements Context.
func (f *FileContext) AttachFindings(_ context.Context, annotations []Annotation) error {
	if f.OutDir == "" {
		return nil
	}
	if annotations == nil {
		annotations = []Annotation{}
	}
	return f.writeJSON(f.fileName(AnnotationsFile), annotations)
}

// MarkSuccess implements Context.
func (f *FileContext) MarkSuccess(_ context.Context, message string) error {
	return f.mark(StatusSucceeded, message)
}

// MarkFailed implements Context.
func (f *FileContext) MarkFailed(_ context.Context, message string) error {
	return f.mark(StatusFailed, message)
}

// Status returns the recorded status and message, empty until marked.
func (f *FileContext) Status() (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.message
}

func (f *FileContext) mark(status, message string) error {
	f.mu.Lock()
	f.status = status
	f.message = message
	f.mu.Unlock()

	if f.OutDir == "" {
		return nil
	}
	return f.writeJSON(f.fileName(StatusFile), map[string]string{
		"status":  status,
		"message": message,
	})
}

// AnnotationsPath returns the annotations file written by AttachFindings.
func (f *FileContext) AnnotationsPath() string {
	return filepath.Join(f.OutDir, f.fileName(AnnotationsFile))
}

// StatusPath returns the status file written by MarkSuccess and MarkFailed.
func (f *FileContext) StatusPath() string {
	return filepath.Join(f.OutDir, f.fileName(StatusFile))
}

func (f *FileContext) fileName(suffix string) string {
	if f.RunID == "" {
		return suffix
	}
	return f.RunID + "." + suffix
}

func (f *FileContext) writeJSON(name string, v any) error {
	if err := os.MkdirAll(f.OutDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(f.OutDir, name), data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
