package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MimeLyc/page-narrator/internal/caption"
	"github.com/MimeLyc/page-narrator/internal/motion"
	"github.com/MimeLyc/page-narrator/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	dir       string
	name      string
	args      []string
	subtitles string
	output    string
	err       error
}

func (f *fakeRunner) Run(ctx context.Context, dir, name string, args []string, stdout io.Writer) error {
	f.dir, f.name, f.args = dir, name, args
	if data, err := os.ReadFile(filepath.Join(dir, subtitleFile)); err == nil {
		f.subtitles = string(data)
	}
	if f.err != nil {
		return f.err
	}
	_, _ = io.WriteString(stdout, f.output)
	return nil
}

func testRequest(t *testing.T, audio bool) pipeline.RenderRequest {
	t.Helper()
	dir := t.TempDir()
	pages := []pipeline.Page{
		{ID: "page-1", Name: "1.png", Path: filepath.Join(dir, "1.png")},
		{ID: "page-2", Name: "2.png", Path: filepath.Join(dir, "2.png")},
	}
	units := []caption.Unit{
		{ID: "page-1-0", Text: "Hello.", DurationMs: 1500, PageIndex: 0},
		{ID: "page-1-1", Text: "World!", DurationMs: 1500, PageIndex: 0},
		{ID: "page-2-0", Text: "Bye.", DurationMs: 2000, PageIndex: 1},
	}
	plan := motion.NewPlanner().Plan([]motion.Page{
		{ID: "page-1", Path: pages[0].Path},
		{ID: "page-2", Path: pages[1].Path},
	}, units)

	opts := pipeline.DefaultRenderOptions()
	opts.BackgroundAudio = audio
	return pipeline.RenderRequest{Pages: pages, Captions: units, Options: opts, Motion: plan}
}

func TestFFmpeg_Render(t *testing.T) {
	out := t.TempDir()
	runner := &fakeRunner{output: "out_time_us=2500000\nprogress=continue\nout_time_us=5000000\nprogress=end\n"}
	r := NewFFmpeg("ffmpeg-test", out, WithRunner(runner))

	var fractions []float64
	video, err := r.Render(context.Background(), testRequest(t, false), func(f float64) {
		fractions = append(fractions, f)
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(out, DefaultOutputName), video)
	assert.Equal(t, "ffmpeg-test", runner.name)
	assert.Equal(t, []float64{0.5, 1}, fractions)
	assert.Contains(t, runner.subtitles, "00:00:03,000 --> 00:00:05,000\nBye.")

	// The work dir is removed after the render.
	_, statErr := os.Stat(runner.dir)
	assert.True(t, os.IsNotExist(statErr))

	args := strings.Join(runner.args, " ")
	assert.Equal(t, 2, strings.Count(args, "-loop 1"))
	assert.Contains(t, args, "-t 3.000")
	assert.Contains(t, args, "-t 2.000")
	assert.NotContains(t, args, "lavfi")
	assert.Equal(t, video, runner.args[len(runner.args)-1])
}

func TestFFmpeg_RenderFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exit status 1")}
	r := NewFFmpeg("ffmpeg", t.TempDir(), WithRunner(runner))

	_, err := r.Render(context.Background(), testRequest(t, false), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 1")
}

func TestFFmpeg_RenderRejectsEmptyPlan(t *testing.T) {
	runner := &fakeRunner{}
	r := NewFFmpeg("ffmpeg", t.TempDir(), WithRunner(runner))

	req := testRequest(t, false)
	req.Motion = motion.Plan{}
	_, err := r.Render(context.Background(), req, nil)
	assert.Error(t, err)
	assert.Empty(t, runner.name)
}

func TestBuildArgs_BackgroundAudio(t *testing.T) {
	req := testRequest(t, true)
	args, err := buildArgs(req.Motion, req.Options, "/out/video.mp4")
	require.NoError(t, err)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-f lavfi -t 5.000 -i "+backgroundSource)
	assert.Contains(t, joined, "-map 2:a")
	assert.Contains(t, joined, "-shortest")
}

func TestFilterGraph(t *testing.T) {
	req := testRequest(t, false)
	graph := filterGraph(req.Motion, req.Options)

	assert.Contains(t, graph, "[0:v]scale=1280:720:force_original_aspect_ratio=decrease")
	assert.Contains(t, graph, "zoompan=z='1.0000+0.1500*on/89'")
	assert.Contains(t, graph, "y='(ih-ih/zoom)*(0.5000-0.1500*on/89)'")
	assert.Contains(t, graph, "y='(ih-ih/zoom)*(0.5000+0.1500*on/59)'")
	assert.Contains(t, graph, fmt.Sprintf("[v0][v1]concat=n=2:v=1:a=0,subtitles=%s[v]", subtitleFile))
}

func TestLerpAndFrames(t *testing.T) {
	assert.Equal(t, "0.5000", lerp(0.5, 0.5, 30))
	assert.Equal(t, "1.0000", lerp(1, 1.15, 1))
	assert.Equal(t, 1, frameCount(10, 24))
	assert.Equal(t, 45, frameCount(1500, 30))
}
