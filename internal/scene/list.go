package scene

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrEmptyScene  = errors.New("scene has no frames")
	ErrSceneGap    = errors.New("scenes are not contiguous")
	ErrOutOfBounds = errors.New("scene outside clip")
	ErrNoScenes    = errors.New("no scenes")
)

// ValidateList checks that scenes form a sorted partition of [0, frames).
func ValidateList(scenes []Scene, frames int) error {
	if len(scenes) == 0 {
		if frames == 0 {
			return nil
		}
		return ErrNoScenes
	}
	next := 0
	for i, s := range scenes {
		switch {
		case s.EndFrame <= s.StartFrame:
			return fmt.Errorf("scene %s %s: %w", ID(i), s, ErrEmptyScene)
		case s.StartFrame != next:
			return fmt.Errorf("scene %s %s starts at %d, want %d: %w", ID(i), s, s.StartFrame, next, ErrSceneGap)
		case s.EndFrame > frames:
			return fmt.Errorf("scene %s %s ends past frame %d: %w", ID(i), s, frames, ErrOutOfBounds)
		}
		for _, sub := range s.SubScenes {
			if sub.StartFrame < s.StartFrame || sub.EndFrame > s.EndFrame || sub.EndFrame <= sub.StartFrame {
				return fmt.Errorf("scene %s sub-scene [%d, %d): %w", ID(i), sub.StartFrame, sub.EndFrame, ErrOutOfBounds)
			}
		}
		next = s.EndFrame
	}
	if next != frames {
		return fmt.Errorf("scenes end at %d, clip has %d frames: %w", next, frames, ErrSceneGap)
	}
	return nil
}

// Sort orders scenes by StartFrame in place.
func Sort(scenes []Scene) {
	slices.SortStableFunc(scenes, func(a, b Scene) int {
		return a.StartFrame - b.StartFrame
	})
}

// FromCuts builds scenes from ascending cut frames over [start, end).
// Cuts outside (start, end) are ignored.
func FromCuts(start, end int, cuts []int) []Scene {
	var scenes []Scene
	prev := start
	for _, c := range cuts {
		if c <= prev || c >= end {
			continue
		}
		scenes = append(scenes, Scene{StartFrame: prev, EndFrame: c})
		prev = c
	}
	if prev < end {
		scenes = append(scenes, Scene{StartFrame: prev, EndFrame: end})
	}
	return scenes
}

// TotalFrames sums the frames of every scene.
func TotalFrames(scenes []Scene) int {
	n := 0
	for _, s := range scenes {
		n += s.Frames()
	}
	return n
}
