package jsonio

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/banshee-data/hypotrack/internal/fsutil"
	"github.com/banshee-data/hypotrack/internal/hypothesis"
)

// Files reads and writes hypotrack documents on a FileSystem.
type Files struct {
	fs fsutil.FileSystem
}

// New returns Files backed by fsys. A nil fsys uses the OS filesystem.
func New(fsys fsutil.FileSystem) *Files {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	return &Files{fs: fsys}
}

var osFiles = New(nil)

// ReadGraph decodes the hypothesis graph file at path on the OS filesystem.
func ReadGraph(path string) (*Document, error) { return osFiles.ReadGraph(path) }

// ReadResult decodes a result or ground-truth file on the OS filesystem.
func ReadResult(path string) (hypothesis.Result, error) { return osFiles.ReadResult(path) }

// WriteResult writes a result file on the OS filesystem.
func WriteResult(path string, res hypothesis.Result) error { return osFiles.WriteResult(path, res) }

// ReadWeights decodes a weights file on the OS filesystem.
func ReadWeights(path string) ([]float64, error) { return osFiles.ReadWeights(path) }

// WriteWeights writes a weights file on the OS filesystem.
func WriteWeights(path string, weights []float64, descriptions []string) error {
	return osFiles.WriteWeights(path, weights, descriptions)
}

func (f *Files) read(path, what string, decode func(io.Reader) error) error {
	r, err := f.fs.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s file: %w", what, err)
	}
	defer r.Close()
	if err := decode(r); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// ReadGraph decodes the hypothesis graph file at path.
func (f *Files) ReadGraph(path string) (*Document, error) {
	var doc *Document
	err := f.read(path, "graph", func(r io.Reader) error {
		var err error
		doc, err = DecodeGraph(r)
		return err
	})
	return doc, err
}

// ReadResult decodes a ground-truth or result file.
func (f *Files) ReadResult(path string) (hypothesis.Result, error) {
	var res hypothesis.Result
	err := f.read(path, "result", func(r io.Reader) error {
		var err error
		res, err = DecodeResult(r)
		return err
	})
	return res, err
}

// WriteResult writes res to path, replacing any existing file.
func (f *Files) WriteResult(path string, res hypothesis.Result) error {
	return fsutil.WriteAtomic(f.fs, path, func(w io.Writer) error { return EncodeResult(w, res) })
}

// ReadWeights decodes the weight vector stored at path.
func (f *Files) ReadWeights(path string) ([]float64, error) {
	var weights []float64
	err := f.read(path, "weights", func(r io.Reader) error {
		var err error
		weights, err = DecodeWeights(r)
		return err
	})
	return weights, err
}

// WriteWeights stores weights at path with optional per-entry descriptions.
func (f *Files) WriteWeights(path string, weights []float64, descriptions []string) error {
	for i, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("weight %d is %v", i, w)
		}
	}
	if len(descriptions) > 0 && len(descriptions) != len(weights) {
		return fmt.Errorf("%d descriptions for %d weights", len(descriptions), len(weights))
	}
	wf := WeightsFile{Weights: weights, Descriptions: descriptions}
	if wf.Weights == nil {
		wf.Weights = []float64{}
	}
	return fsutil.WriteAtomic(f.fs, path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(wf); err != nil {
			return fmt.Errorf("failed to encode weights: %w", err)
		}
		return nil
	})
}
