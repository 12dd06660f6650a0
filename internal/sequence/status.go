package sequence

import "fmt"

// Completion is how far a unit of work has progressed. The set of
// implementations is closed.
type Completion interface {
	// Fraction is progress in [0, 1].
	Fraction() float64
	completion()
}

// Percentage is progress from 0 to 100.
type Percentage float64

// Scenes counts finished scenes.
type Scenes struct{ Completed, Total int }

// Passes counts finished encoder passes.
type Passes struct{ Completed, Total int }

// Frames counts processed frames.
type Frames struct{ Completed, Total uint64 }

// PassFrames is frame progress inside a multi-pass encode: Passes is
// {current, total} and Frames is {completed, total} for the current pass.
type PassFrames struct {
	Passes [2]int
	Frames [2]uint64
}

// Custom is named progress in arbitrary units.
type Custom struct {
	Name             string
	Completed, Total float64
}

func ratio(done, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return min(max(done/total, 0), 1)
}

func (p Percentage) Fraction() float64 { return ratio(float64(p), 100) }
func (s Scenes) Fraction() float64     { return ratio(float64(s.Completed), float64(s.Total)) }
func (p Passes) Fraction() float64     { return ratio(float64(p.Completed), float64(p.Total)) }
func (f Frames) Fraction() float64     { return ratio(float64(f.Completed), float64(f.Total)) }
func (c Custom) Fraction() float64     { return ratio(c.Completed, c.Total) }

func (p PassFrames) Fraction() float64 {
	if p.Passes[1] <= 0 {
		return 0
	}
	inPass := ratio(float64(p.Frames[0]), float64(p.Frames[1]))
	return ratio(float64(max(p.Passes[0]-1, 0))+inPass, float64(p.Passes[1]))
}

func (Percentage) completion() {}
func (Scenes) completion()     {}
func (Passes) completion()     {}
func (Frames) completion()     {}
func (PassFrames) completion() {}
func (Custom) completion()     {}

// UnitKind is the state of a unit of work.
type UnitKind int

const (
	UnitProcessing UnitKind = iota
	UnitCompleted
	UnitFailed
)

func (k UnitKind) String() string {
	switch k {
	case UnitCompleted:
		return "completed"
	case UnitFailed:
		return "failed"
	}
	return "processing"
}

// Unit is the state of one identifiable piece of work: a stage, a worker
// or a scene.
type Unit struct {
	ID         string
	Kind       UnitKind
	Completion Completion // Set for UnitProcessing.
	Err        error      // Set for UnitFailed.
}

// Processing reports progress on id.
func Processing(id string, c Completion) Unit {
	return Unit{ID: id, Kind: UnitProcessing, Completion: c}
}

// Completed reports that id finished.
func Completed(id string) Unit { return Unit{ID: id, Kind: UnitCompleted} }

// Failed reports that id failed with err.
func Failed(id string, err error) Unit { return Unit{ID: id, Kind: UnitFailed, Err: err} }

func (u Unit) String() string {
	switch u.Kind {
	case UnitFailed:
		return fmt.Sprintf("%s failed: %v", u.ID, u.Err)
	case UnitCompleted:
		return u.ID + " completed"
	}
	if u.Completion == nil {
		return u.ID + " processing"
	}
	return fmt.Sprintf("%s %.1f%%", u.ID, u.Completion.Fraction()*100)
}

// Status is a progress update. A status with a Child reports nested work,
// such as one scene inside a stage.
type Status struct {
	Unit  Unit
	Child *Unit
}

// Whole reports on a stage as a whole.
func Whole(u Unit) Status { return Status{Unit: u} }

// Subprocess reports on child work inside parent.
func Subprocess(parent, child Unit) Status { return Status{Unit: parent, Child: &child} }

// Terminal reports whether any unit in s completed or failed. Terminal
// updates are never dropped.
func (s Status) Terminal() bool {
	if s.Unit.Kind != UnitProcessing {
		return true
	}
	return s.Child != nil && s.Child.Kind != UnitProcessing
}

func (s Status) String() string {
	if s.Child == nil {
		return s.Unit.String()
	}
	return s.Unit.ID + " / " + s.Child.String()
}
