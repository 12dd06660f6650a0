package scene

import "errors"

// ErrDataNotFound is returned when a stage's data has not been recorded on a
// scene yet.
var ErrDataNotFound = errors.New("scene data not found")

// Data has one optional slot per stage that records per-scene results.
type Data struct {
	SceneDetection  *DetectionData `yaml:"scene_detection,omitempty"`
	TargetQuality   *QualityData   `yaml:"target_quality,omitempty"`
	ParallelEncoder *EncodeData    `yaml:"parallel_encoder,omitempty"`
	QualityCheck    *CheckData     `yaml:"quality_check,omitempty"`
}

// DetectionData keeps the scenecut scores that led to this scene's cuts,
// keyed by frame index.
type DetectionData struct {
	ScenecutScores map[int]ScenecutScore `yaml:"scenecut_scores,omitempty"`
	CreatedOn      int64                 `yaml:"created_on"`
}

// QualityData is the target-quality search history for a scene. Passes is
// append-only.
type QualityData struct {
	Passes    []QualityPass `yaml:"passes"`
	Quantizer *float64      `yaml:"quantizer,omitempty"` // Chosen once the search finishes.
	Score     float64       `yaml:"score,omitempty"`
}

// EncodeData is recorded by the worker that encoded the scene.
type EncodeData struct {
	StartedOn   int64  `yaml:"started_on"`
	CompletedOn int64  `yaml:"completed_on"`
	Bytes       uint64 `yaml:"bytes"`
	Attempts    int    `yaml:"attempts,omitempty"`
}

// CheckData is the quality measured on the finished encode.
type CheckData struct {
	Pass QualityPass `yaml:"pass"`
}

// Detection returns the scene-detection data.
func (d *Data) Detection() (*DetectionData, error) {
	if d.SceneDetection == nil {
		return nil, ErrDataNotFound
	}
	return d.SceneDetection, nil
}

// Quality returns the target-quality data.
func (d *Data) Quality() (*QualityData, error) {
	if d.TargetQuality == nil {
		return nil, ErrDataNotFound
	}
	return d.TargetQuality, nil
}

// Encode returns the parallel-encoder data.
func (d *Data) Encode() (*EncodeData, error) {
	if d.ParallelEncoder == nil {
		return nil, ErrDataNotFound
	}
	return d.ParallelEncoder, nil
}

// Check returns the quality-check data.
func (d *Data) Check() (*CheckData, error) {
	if d.QualityCheck == nil {
		return nil, ErrDataNotFound
	}
	return d.QualityCheck, nil
}

// EnsureDetection returns the scene-detection data, creating it if absent.
func (d *Data) EnsureDetection() *DetectionData {
	if d.SceneDetection == nil {
		d.SceneDetection = &DetectionData{CreatedOn: NowMillis()}
	}
	return d.SceneDetection
}

// EnsureQuality returns the target-quality data, creating it if absent.
func (d *Data) EnsureQuality() *QualityData {
	if d.TargetQuality == nil {
		d.TargetQuality = &QualityData{}
	}
	return d.TargetQuality
}

// EnsureEncode returns the parallel-encoder data, creating it if absent.
func (d *Data) EnsureEncode() *EncodeData {
	if d.ParallelEncoder == nil {
		d.ParallelEncoder = &EncodeData{}
	}
	return d.ParallelEncoder
}

// Record appends a probe to the history.
func (q *QualityData) Record(p QualityPass) {
	q.Passes = append(q.Passes, p)
}
