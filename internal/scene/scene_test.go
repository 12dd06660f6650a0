package scene

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/condor/internal/encoder"
)

func TestValidateList(t *testing.T) {
	tests := []struct {
		name    string
		scenes  []Scene
		frames  int
		wantErr error
	}{
		{"partition", []Scene{{StartFrame: 0, EndFrame: 10}, {StartFrame: 10, EndFrame: 25}}, 25, nil},
		{"empty clip", nil, 0, nil},
		{"no scenes", nil, 10, ErrNoScenes},
		{"gap", []Scene{{StartFrame: 0, EndFrame: 10}, {StartFrame: 11, EndFrame: 25}}, 25, ErrSceneGap},
		{"overlap", []Scene{{StartFrame: 0, EndFrame: 10}, {StartFrame: 9, EndFrame: 25}}, 25, ErrSceneGap},
		{"short coverage", []Scene{{StartFrame: 0, EndFrame: 10}}, 25, ErrSceneGap},
		{"past end", []Scene{{StartFrame: 0, EndFrame: 30}}, 25, ErrOutOfBounds},
		{"empty scene", []Scene{{StartFrame: 0, EndFrame: 0}, {StartFrame: 0, EndFrame: 25}}, 25, ErrEmptyScene},
		{"unsorted", []Scene{{StartFrame: 10, EndFrame: 25}, {StartFrame: 0, EndFrame: 10}}, 25, ErrSceneGap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateList(tt.scenes, tt.frames)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestFromCuts(t *testing.T) {
	scenes := FromCuts(100, 200, []int{100, 130, 170, 250})
	require.Len(t, scenes, 3)
	assert.Equal(t, Scene{StartFrame: 100, EndFrame: 130}, scenes[0])
	assert.Equal(t, Scene{StartFrame: 170, EndFrame: 200}, scenes[2])
	assert.Equal(t, 100, TotalFrames(scenes))
}

func TestData_Accessors(t *testing.T) {
	var d Data
	_, err := d.Quality()
	assert.ErrorIs(t, err, ErrDataNotFound)

	d.EnsureQuality().Record(QualityPass{Quantizer: 30, Score: 95})
	q, err := d.Quality()
	require.NoError(t, err)
	assert.Len(t, q.Passes, 1)
	assert.Same(t, q, d.EnsureQuality())
}

func TestParseZones(t *testing.T) {
	input := `
# intro at a lower quality
0 100 x264 reset --preset slow --crf 18

100 200
250 -1 --film-grain 8
`
	zones, warnings, err := ParseZones(strings.NewReader(input), 300)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, zones, 3)

	assert.Equal(t, encoder.X264, zones[0].Kind)
	assert.True(t, zones[0].Reset)
	assert.Equal(t, encoder.Number("--", " ", 18), zones[0].Params["crf"])
	assert.Equal(t, 3, zones[0].Line)
	assert.Equal(t, 300, zones[2].EndFrame)
}

func TestParseZones_OutOfOrderIsSorted(t *testing.T) {
	zones, _, err := ParseZones(strings.NewReader("100 200\n0 100\n"), 200)
	require.NoError(t, err)
	assert.Equal(t, 0, zones[0].StartFrame)
	assert.Equal(t, 100, zones[1].StartFrame)
}

func TestParseZones_Overlap(t *testing.T) {
	_, _, err := ParseZones(strings.NewReader("0 100\n50 150\n"), 200)
	assert.ErrorIs(t, err, ErrOverlappingZones)
}

func TestParseZones_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"missing end", "10\n", "line 1"},
		{"bad start", "a 10\n", "invalid start"},
		{"unknown encoder", "0 10 nvenc\n", "unknown encoder"},
		{"inverted", "\n20 10\n", "line 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseZones(strings.NewReader(tt.input), 100)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseZones_ClampsPastEnd(t *testing.T) {
	zones, warnings, err := ParseZones(strings.NewReader("50 500\n"), 100)
	require.NoError(t, err)
	assert.Equal(t, 100, zones[0].EndFrame)
	assert.Len(t, warnings, 1)
}

func TestZone_Encoder(t *testing.T) {
	def := encoder.New(encoder.SVTAV1).WithParams(map[string]encoder.Parameter{
		"preset": encoder.Number("--", " ", 6),
	}, false)

	inherit := Zone{Params: map[string]encoder.Parameter{"crf": encoder.Number("-", " ", 20)}}.Encoder(def)
	assert.Equal(t, encoder.SVTAV1, inherit.Kind)
	assert.Contains(t, inherit.Params, "preset")
	q, _ := inherit.Quantizer()
	assert.Equal(t, 20.0, q)

	other := Zone{Kind: encoder.X264}.Encoder(def)
	assert.Equal(t, encoder.X264, other.Kind)
	assert.NotContains(t, other.Params, "preset")

	reset := Zone{Reset: true}.Encoder(def)
	assert.Empty(t, reset.Params)
}

func TestSegments(t *testing.T) {
	zones := []Zone{{StartFrame: 10, EndFrame: 20}, {StartFrame: 20, EndFrame: 30}}
	segs := Segments(zones, 50)
	require.Len(t, segs, 4)
	assert.Nil(t, segs[0].Zone)
	assert.Equal(t, 10, segs[0].EndFrame)
	assert.NotNil(t, segs[1].Zone)
	assert.NotNil(t, segs[2].Zone)
	assert.Equal(t, Segment{StartFrame: 30, EndFrame: 50}, segs[3])
}
