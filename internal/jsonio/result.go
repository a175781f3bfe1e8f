package jsonio

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/hypotrack/internal/hypothesis"
)

type rawResult struct {
	Detections []json.RawMessage `json:"detectionResults"`
	Links      []json.RawMessage `json:"linkingResults"`
	Divisions  []json.RawMessage `json:"divisionResults"`
}

// DecodeResult decodes a labeling. Unknown keys, missing identifiers and
// a missing or non-boolean value are structural errors.
func DecodeResult(r io.Reader) (hypothesis.Result, error) {
	var raw rawResult
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return hypothesis.Result{}, fmt.Errorf("%w: invalid result document: %v", hypothesis.ErrStructure, err)
	}

	var res hypothesis.Result
	if raw.Detections != nil {
		res.Detections = make([]hypothesis.DetectionResult, 0, len(raw.Detections))
	}
	for i, msg := range raw.Detections {
		rec, err := decodeDetectionResult(msg)
		if err != nil {
			return hypothesis.Result{}, recordError(hypothesis.SectionDetectionResults, i, err)
		}
		res.Detections = append(res.Detections, rec)
	}
	if raw.Links != nil {
		res.Links = make([]hypothesis.LinkResult, 0, len(raw.Links))
	}
	for i, msg := range raw.Links {
		rec, err := decodeLinkResult(msg)
		if err != nil {
			return hypothesis.Result{}, recordError(hypothesis.SectionLinkResults, i, err)
		}
		res.Links = append(res.Links, rec)
	}
	if raw.Divisions != nil {
		res.Divisions = make([]hypothesis.DivisionResult, 0, len(raw.Divisions))
	}
	for i, msg := range raw.Divisions {
		rec, err := decodeDivisionResult(msg)
		if err != nil {
			return hypothesis.Result{}, recordError(hypothesis.SectionDivisionResults, i, err)
		}
		res.Divisions = append(res.Divisions, rec)
	}
	return res, nil
}

func (o object) value(field string) (bool, error) {
	msg, ok := o[field]
	if !ok || isNull(msg) {
		return false, fieldError{field: field, err: errors.New("required field is missing")}
	}
	var v bool
	if err := strictUnmarshal(msg, &v); err != nil {
		return false, fieldError{field: field, err: errors.New("must be true or false")}
	}
	return v, nil
}

func decodeDetectionResult(msg json.RawMessage) (hypothesis.DetectionResult, error) {
	var rec hypothesis.DetectionResult
	obj, err := decodeObject(msg, "id", "value", "state")
	if err != nil {
		return rec, err
	}
	if rec.ID, err = obj.id("id"); err != nil {
		return rec, err
	}
	if rec.Value, err = obj.value("value"); err != nil {
		return rec, err
	}
	if state, ok := obj["state"]; ok {
		if isNull(state) || strictUnmarshal(state, &rec.State) != nil || rec.State < 0 {
			return rec, fieldError{field: "state", err: errors.New("must be a non-negative integer")}
		}
	}
	return rec, nil
}

func decodeLinkResult(msg json.RawMessage) (hypothesis.LinkResult, error) {
	var rec hypothesis.LinkResult
	obj, err := decodeObject(msg, "src", "dest", "value")
	if err != nil {
		return rec, err
	}
	if rec.Src, err = obj.id("src"); err != nil {
		return rec, err
	}
	if rec.Dest, err = obj.id("dest"); err != nil {
		return rec, err
	}
	if rec.Value, err = obj.value("value"); err != nil {
		return rec, err
	}
	return rec, nil
}

func decodeDivisionResult(msg json.RawMessage) (hypothesis.DivisionResult, error) {
	var rec hypothesis.DivisionResult
	obj, err := decodeObject(msg, "parent", "children", "value")
	if err != nil {
		return rec, err
	}
	if rec.Parent, err = obj.id("parent"); err != nil {
		return rec, err
	}
	if rec.Children, err = obj.children("children"); err != nil {
		return rec, err
	}
	if rec.Value, err = obj.value("value"); err != nil {
		return rec, err
	}
	return rec, nil
}

// EncodeResult writes res as indented JSON.
func EncodeResult(w io.Writer, res hypothesis.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return nil
}

// WeightsFile is the on-disk form of a learned weight vector.
// Descriptions are informational and ignored on read.
type WeightsFile struct {
	Weights      []float64 `json:"weights"`
	Descriptions []string  `json:"descriptions,omitempty"`
}

// DecodeWeights decodes a weights document.
func DecodeWeights(r io.Reader) ([]float64, error) {
	var wf struct {
		Weights      []json.RawMessage `json:"weights"`
		Descriptions []string          `json:"descriptions"`
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&wf); err != nil {
		return nil, fmt.Errorf("%w: invalid weights document: %v", hypothesis.ErrStructure, err)
	}
	if wf.Weights == nil {
		return nil, fmt.Errorf("%w: missing weights", hypothesis.ErrStructure)
	}
	weights, err := numbers(wf.Weights)
	if err != nil {
		return nil, fmt.Errorf("%w: weights: %v", hypothesis.ErrStructure, err)
	}
	if len(wf.Descriptions) > 0 && len(wf.Descriptions) != len(wf.Weights) {
		return nil, fmt.Errorf("%w: %d descriptions for %d weights", hypothesis.ErrStructure, len(wf.Descriptions), len(wf.Weights))
	}
	return weights, nil
}
