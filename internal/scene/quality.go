package scene

// QualityPass is one probe: an encode at Quantizer measured frame by frame.
// It is never modified after it is recorded.
type QualityPass struct {
	Quantizer   float64   `yaml:"quantizer"`
	Scores      []float64 `yaml:"scores"`
	Score       float64   `yaml:"score"` // Scores reduced by the configured statistic.
	Bitrate     float64   `yaml:"bitrate"`
	StartedOn   int64     `yaml:"started_on"`
	CompletedOn int64     `yaml:"completed_on"`
}

// ScenecutScore is the cost analysis for one candidate frame boundary.
type ScenecutScore struct {
	InterCost            float64 `yaml:"inter_cost"`
	ImpBlockCost         float64 `yaml:"imp_block_cost"`
	BackwardAdjustedCost float64 `yaml:"backward_adjusted_cost"`
	ForwardAdjustedCost  float64 `yaml:"forward_adjusted_cost"`
	Threshold            float64 `yaml:"threshold"`
}

// AdjustedCost is the larger of the backward and forward adjusted costs.
func (s ScenecutScore) AdjustedCost() float64 {
	return max(s.BackwardAdjustedCost, s.ForwardAdjustedCost)
}
