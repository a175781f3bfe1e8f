// Package report renders learning diagnostics: the objective per epoch as
// an image and the learned weights as an HTML bar chart.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// LearningCurve accumulates the learning objective per epoch. Its Record
// method matches solver.Learner.OnEpoch.
type LearningCurve struct {
	Epochs     []int
	Objectives []float64
}

// Record appends one epoch.
func (c *LearningCurve) Record(epoch int, objective float64) {
	c.Epochs = append(c.Epochs, epoch)
	c.Objectives = append(c.Objectives, objective)
}

// Len returns the number of recorded epochs.
func (c *LearningCurve) Len() int { return len(c.Epochs) }

// Best returns the lowest objective and its epoch.
func (c *LearningCurve) Best() (epoch int, objective float64, ok bool) {
	objective = math.Inf(1)
	for i, o := range c.Objectives {
		if o < objective {
			epoch, objective, ok = c.Epochs[i], o, true
		}
	}
	return epoch, objective, ok
}

// SaveLearningCurve plots the objective and the running best objective per
// epoch. The image format follows the file extension (.png, .svg, .pdf).
func SaveLearningCurve(path string, c *LearningCurve) error {
	if c == nil || c.Len() == 0 {
		return errors.New("learning curve is empty")
	}

	p := plot.New()
	p.Title.Text = "Structured learning objective"
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = "Objective"

	objPts := make(plotter.XYs, c.Len())
	bestPts := make(plotter.XYs, c.Len())
	best := math.Inf(1)
	for i := range c.Epochs {
		best = math.Min(best, c.Objectives[i])
		objPts[i] = plotter.XY{X: float64(c.Epochs[i]), Y: c.Objectives[i]}
		bestPts[i] = plotter.XY{X: float64(c.Epochs[i]), Y: best}
	}

	objLine, err := plotter.NewLine(objPts)
	if err != nil {
		return fmt.Errorf("failed to build objective line: %w", err)
	}
	objLine.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	objLine.Width = vg.Points(1)

	bestLine, err := plotter.NewLine(bestPts)
	if err != nil {
		return fmt.Errorf("failed to build best-objective line: %w", err)
	}
	bestLine.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	bestLine.Width = vg.Points(1)
	bestLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(plotter.NewGrid(), objLine, bestLine)
	p.Legend.Add("objective", objLine)
	p.Legend.Add("best so far", bestLine)
	p.Legend.Top = true

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save learning curve: %w", err)
	}
	return nil
}
