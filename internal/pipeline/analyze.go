package pipeline

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/backmassage/condor/internal/condor"
	"github.com/backmassage/condor/internal/display"
	"github.com/backmassage/condor/internal/logging"
	"github.com/backmassage/condor/internal/scene"
)

// sceneRow holds the per-scene figures the outlier report looks at.
type sceneRow struct {
	ID       string
	Frames   int
	Kbps     float64
	Score    float64
	HasScore bool
}

// sceneRows collects bitrate from the encoder's recorded size and the
// quality check score, falling back to the target-quality score.
func sceneRows(c *condor.Condor) []sceneRow {
	var fps float64
	if c.Input.Info != nil {
		fps = c.Input.Info.FrameRate.Float()
	}
	rows := make([]sceneRow, 0, len(c.Scenes))
	for i, s := range c.Scenes {
		r := sceneRow{ID: scene.ID(i), Frames: s.Frames()}
		if ed, err := s.Data.Encode(); err == nil && fps > 0 && r.Frames > 0 {
			seconds := float64(r.Frames) / fps
			r.Kbps = float64(ed.Bytes) * 8 / seconds / 1000
		}
		if cd, err := s.Data.Check(); err == nil {
			r.Score, r.HasScore = cd.Pass.Score, true
		} else if qd, err := s.Data.Quality(); err == nil && qd.Quantizer != nil {
			r.Score, r.HasScore = qd.Score, true
		}
		rows = append(rows, r)
	}
	return rows
}

// iqrBounds holds the IQR-based thresholds for outlier classification.
type iqrBounds struct {
	q1, q3    float64
	outlierLo float64 // Q1 - 1.5*IQR
	outlierHi float64 // Q3 + 1.5*IQR
	extremeLo float64 // Q1 - 3.0*IQR
	extremeHi float64 // Q3 + 3.0*IQR
	valid     bool
}

func computeStats(vals []float64) iqrBounds {
	if len(vals) < 4 {
		return iqrBounds{}
	}
	sorted := slices.Clone(vals)
	slices.Sort(sorted)

	q1 := stat.Quantile(0.25, stat.LinInterp, sorted, nil)
	q3 := stat.Quantile(0.75, stat.LinInterp, sorted, nil)
	iqr := q3 - q1
	return iqrBounds{
		q1:        q1,
		q3:        q3,
		outlierLo: q1 - 1.5*iqr,
		outlierHi: q3 + 1.5*iqr,
		extremeLo: q1 - 3.0*iqr,
		extremeHi: q3 + 3.0*iqr,
		valid:     iqr > 0,
	}
}

// classify returns "" (normal), "outlier", or "extreme" for a value.
// With lowOnly set only values below the range are flagged.
func (b *iqrBounds) classify(v float64, lowOnly bool) string {
	if !b.valid || v <= 0 {
		return ""
	}
	if v < b.extremeLo || (!lowOnly && v > b.extremeHi) {
		return "extreme"
	}
	if v < b.outlierLo || (!lowOnly && v > b.outlierHi) {
		return "outlier"
	}
	return ""
}

func worstFlag(classes ...string) string {
	worst := ""
	for _, c := range classes {
		if c == "extreme" {
			return "extreme"
		}
		if c == "outlier" {
			worst = "outlier"
		}
	}
	return worst
}

// AnalyzeScenes logs the per-scene bitrate and quality spread and lists
// scenes far outside it: any bitrate outlier, and scores only on the low
// side.
func AnalyzeScenes(log *logging.Logger, c *condor.Condor) {
	rows := sceneRows(c)
	var kbps, scores []float64
	for _, r := range rows {
		if r.Kbps > 0 {
			kbps = append(kbps, r.Kbps)
		}
		if r.HasScore {
			scores = append(scores, r.Score)
		}
	}
	bStats := computeStats(kbps)
	sStats := computeStats(scores)
	if !bStats.valid && !sStats.valid {
		return
	}

	log.Info("Analyzed %d scenes", len(rows))
	if bStats.valid {
		log.Info("  Scene bitrate IQR: %.0f - %.0f kbps (outlier < %.0f or > %.0f)",
			bStats.q1, bStats.q3, bStats.outlierLo, bStats.outlierHi)
	}
	if sStats.valid {
		log.Info("  Scene score IQR: %.2f - %.2f (outlier < %.2f)", sStats.q1, sStats.q3, sStats.outlierLo)
	}

	var outliers, extremes int
	for _, r := range rows {
		flag := worstFlag(bStats.classify(r.Kbps, false), sStats.classify(r.Score, true))
		switch flag {
		case "extreme":
			extremes++
			log.Error("  [!] scene %s: %d frames, %s", r.ID, r.Frames, describeRow(r))
		case "outlier":
			outliers++
			log.Warn("  [*] scene %s: %d frames, %s", r.ID, r.Frames, describeRow(r))
		}
	}
	if outliers == 0 && extremes == 0 {
		log.Success("  No outlier scenes")
	}
}

func describeRow(r sceneRow) string {
	s := display.FormatBitrate(r.Kbps)
	if r.HasScore {
		s += fmt.Sprintf(", score %.2f", r.Score)
	}
	return s
}
