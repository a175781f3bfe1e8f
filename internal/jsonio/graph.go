package jsonio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/banshee-data/hypotrack/internal/config"
	"github.com/banshee-data/hypotrack/internal/hypothesis"
)

// Document is a decoded hypothesis graph file.
type Document struct {
	// Settings embedded in the file, nil when absent.
	Settings *config.Settings
	Graph    hypothesis.Graph
}

type rawDocument struct {
	Settings   json.RawMessage   `json:"settings"`
	Detections []json.RawMessage `json:"segmentationHypotheses"`
	Links      []json.RawMessage `json:"linkingHypotheses"`
	Divisions  []json.RawMessage `json:"divisionHypotheses"`
	Exclusions []json.RawMessage `json:"exclusions"`
}

// DecodeGraph decodes a hypothesis graph. Unknown keys, wrong value types
// and missing identifiers are structural errors.
func DecodeGraph(r io.Reader) (*Document, error) {
	var raw rawDocument
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: invalid graph document: %v", hypothesis.ErrStructure, err)
	}

	doc := &Document{}
	if len(raw.Settings) > 0 && !isNull(raw.Settings) {
		s, err := config.ParseSettings(raw.Settings)
		if err != nil {
			return nil, fmt.Errorf("%w: settings: %v", hypothesis.ErrStructure, err)
		}
		doc.Settings = s
	}

	doc.Graph.Detections = make([]hypothesis.DetectionRecord, 0, len(raw.Detections))
	for i, msg := range raw.Detections {
		rec, err := decodeDetection(msg)
		if err != nil {
			return nil, recordError(hypothesis.SectionDetections, i, err)
		}
		doc.Graph.Detections = append(doc.Graph.Detections, rec)
	}
	doc.Graph.Links = make([]hypothesis.LinkRecord, 0, len(raw.Links))
	for i, msg := range raw.Links {
		rec, err := decodeLink(msg)
		if err != nil {
			return nil, recordError(hypothesis.SectionLinks, i, err)
		}
		doc.Graph.Links = append(doc.Graph.Links, rec)
	}
	doc.Graph.Divisions = make([]hypothesis.DivisionRecord, 0, len(raw.Divisions))
	for i, msg := range raw.Divisions {
		rec, err := decodeDivision(msg)
		if err != nil {
			return nil, recordError(hypothesis.SectionDivisions, i, err)
		}
		doc.Graph.Divisions = append(doc.Graph.Divisions, rec)
	}
	doc.Graph.Exclusions = make([]hypothesis.ExclusionRecord, 0, len(raw.Exclusions))
	for i, msg := range raw.Exclusions {
		members, err := detectionIDs(msg)
		if err != nil {
			return nil, recordError(hypothesis.SectionExclusions, i, fieldError{err: err})
		}
		doc.Graph.Exclusions = append(doc.Graph.Exclusions, hypothesis.ExclusionRecord{Members: members})
	}
	return doc, nil
}

// fieldError carries the offending field name up to recordError.
type fieldError struct {
	field string
	err   error
}

func (e fieldError) Error() string { return e.err.Error() }

func recordError(section string, index int, err error) error {
	var fe fieldError
	field := ""
	if errors.As(err, &fe) {
		field = fe.field
		err = fe.err
	}
	return &hypothesis.RecordError{
		Section: section,
		Index:   index,
		Field:   field,
		Err:     fmt.Errorf("%w: %v", hypothesis.ErrStructure, err),
	}
}

// object splits a record into its fields and rejects unknown keys.
type object map[string]json.RawMessage

func decodeObject(msg json.RawMessage, allowed ...string) (object, error) {
	var obj object
	if err := json.Unmarshal(msg, &obj); err != nil || obj == nil {
		return nil, fieldError{err: errors.New("record must be a JSON object")}
	}
	known := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		known[k] = true
	}
	var unknown []string
	for k := range obj {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fieldError{field: unknown[0], err: fmt.Errorf("unknown field(s) %s", strings.Join(unknown, ", "))}
	}
	return obj, nil
}

func (o object) id(field string) (hypothesis.ID, error) {
	msg, ok := o[field]
	if !ok || isNull(msg) {
		return 0, fieldError{field: field, err: errors.New("required field is missing")}
	}
	var id hypothesis.ID
	if err := strictUnmarshal(msg, &id); err != nil {
		return 0, fieldError{field: field, err: fmt.Errorf("must be an integer id: %v", err)}
	}
	return id, nil
}

func (o object) timestep(field string) (int, error) {
	msg, ok := o[field]
	if !ok || isNull(msg) {
		return hypothesis.UnknownTimestep, nil
	}
	var t int
	if err := strictUnmarshal(msg, &t); err != nil || t < 0 {
		return 0, fieldError{field: field, err: errors.New("must be a non-negative integer")}
	}
	return t, nil
}

// features accepts a flat array of numbers, shared by all states, or an
// array of per-state arrays. A missing field yields no features.
func (o object) features(field string) (hypothesis.StateFeatures, error) {
	msg, ok := o[field]
	if !ok || isNull(msg) {
		return nil, nil
	}
	var elems []json.RawMessage
	if err := strictUnmarshal(msg, &elems); err != nil {
		return nil, fieldError{field: field, err: errors.New("must be an array of numbers or an array of per-state number arrays")}
	}
	if len(elems) == 0 {
		return nil, nil
	}
	if !isArray(elems[0]) {
		flat, err := numbers(elems)
		if err != nil {
			return nil, fieldError{field: field, err: err}
		}
		return hypothesis.StateFeatures{flat}, nil
	}
	nested := make(hypothesis.StateFeatures, len(elems))
	for s, e := range elems {
		var row []json.RawMessage
		if !isArray(e) || strictUnmarshal(e, &row) != nil {
			return nil, fieldError{field: field, err: fmt.Errorf("state %d must be an array of numbers", s)}
		}
		var err error
		if nested[s], err = numbers(row); err != nil {
			return nil, fieldError{field: field, err: fmt.Errorf("state %d: %v", s, err)}
		}
	}
	return nested, nil
}

// numbers decodes array elements that must all be numbers; null is not a number.
func numbers(elems []json.RawMessage) ([]float64, error) {
	out := make([]float64, len(elems))
	for i, e := range elems {
		if isNull(e) || strictUnmarshal(e, &out[i]) != nil {
			return nil, fmt.Errorf("element %d must be a number", i)
		}
	}
	return out, nil
}

// detectionIDs decodes an array of detection ids.
func detectionIDs(msg json.RawMessage) ([]hypothesis.ID, error) {
	var elems []json.RawMessage
	if err := strictUnmarshal(msg, &elems); err != nil {
		return nil, errors.New("must be an array of detection ids")
	}
	out := make([]hypothesis.ID, len(elems))
	for i, e := range elems {
		if isNull(e) || strictUnmarshal(e, &out[i]) != nil {
			return nil, fmt.Errorf("element %d must be an integer detection id", i)
		}
	}
	return out, nil
}

// children decodes the two child ids of a division.
func (o object) children(field string) ([2]hypothesis.ID, error) {
	msg, ok := o[field]
	if !ok || isNull(msg) {
		return [2]hypothesis.ID{}, fieldError{field: field, err: errors.New("required field is missing")}
	}
	pair, err := detectionIDs(msg)
	if err != nil {
		return [2]hypothesis.ID{}, fieldError{field: field, err: err}
	}
	if len(pair) != 2 {
		return [2]hypothesis.ID{}, fieldError{field: field, err: errors.New("must be an array of exactly two detection ids")}
	}
	return [2]hypothesis.ID{pair[0], pair[1]}, nil
}

func decodeDetection(msg json.RawMessage) (hypothesis.DetectionRecord, error) {
	var rec hypothesis.DetectionRecord
	obj, err := decodeObject(msg, "id", "timestep", "features", "appearanceFeatures", "disappearanceFeatures")
	if err != nil {
		return rec, err
	}
	if rec.ID, err = obj.id("id"); err != nil {
		return rec, err
	}
	if rec.Timestep, err = obj.timestep("timestep"); err != nil {
		return rec, err
	}
	if rec.Features, err = obj.features("features"); err != nil {
		return rec, err
	}
	if rec.AppearanceFeatures, err = obj.features("appearanceFeatures"); err != nil {
		return rec, err
	}
	if rec.DisappearanceFeatures, err = obj.features("disappearanceFeatures"); err != nil {
		return rec, err
	}
	return rec, nil
}

func decodeLink(msg json.RawMessage) (hypothesis.LinkRecord, error) {
	var rec hypothesis.LinkRecord
	obj, err := decodeObject(msg, "src", "dest", "features")
	if err != nil {
		return rec, err
	}
	if rec.Src, err = obj.id("src"); err != nil {
		return rec, err
	}
	if rec.Dest, err = obj.id("dest"); err != nil {
		return rec, err
	}
	if rec.Features, err = obj.features("features"); err != nil {
		return rec, err
	}
	return rec, nil
}

func decodeDivision(msg json.RawMessage) (hypothesis.DivisionRecord, error) {
	var rec hypothesis.DivisionRecord
	obj, err := decodeObject(msg, "parent", "children", "features")
	if err != nil {
		return rec, err
	}
	if rec.Parent, err = obj.id("parent"); err != nil {
		return rec, err
	}
	if rec.Children, err = obj.children("children"); err != nil {
		return rec, err
	}
	if rec.Features, err = obj.features("features"); err != nil {
		return rec, err
	}
	return rec, nil
}

func strictUnmarshal(msg json.RawMessage, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data")
	}
	return nil
}

func isArray(msg json.RawMessage) bool {
	trimmed := bytes.TrimSpace(msg)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func isNull(msg json.RawMessage) bool {
	return string(bytes.TrimSpace(msg)) == "null"
}
