// Package render turns a caption timeline and its motion plan into a video
// with ffmpeg.
package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MimeLyc/page-narrator/internal/motion"
	"github.com/MimeLyc/page-narrator/internal/pipeline"
	"github.com/MimeLyc/page-narrator/internal/subtitle"
	"github.com/MimeLyc/page-narrator/pkg/log"
)

const (
	DefaultOutputName = "narration.mp4"

	// subtitleFile is written into the work dir and referenced relatively,
	// which keeps the subtitles filter free of path escaping.
	subtitleFile = "subtitles.srt"

	backgroundSource = "anoisesrc=color=brown:amplitude=0.02:sample_rate=44100"
)

type Option func(*FFmpeg)

func WithRunner(r Runner) Option {
	return func(f *FFmpeg) {
		f.runner = r
	}
}

func WithOutputName(name string) Option {
	return func(f *FFmpeg) {
		f.outputName = name
	}
}

// FFmpeg renders one still segment per slide with zoompan camera motion and
// burns the captions in as subtitles.
type FFmpeg struct {
	binary     string
	outputDir  string
	outputName string
	runner     Runner
}

func NewFFmpeg(binary, outputDir string, opts ...Option) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	f := &FFmpeg{
		binary:     binary,
		outputDir:  outputDir,
		outputName: DefaultOutputName,
		runner:     execRunner{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Render returns the path of the written video.
func (f *FFmpeg) Render(ctx context.Context, req pipeline.RenderRequest, progress pipeline.ProgressFunc) (string, error) {
	if len(req.Motion.Slides) == 0 {
		return "", fmt.Errorf("motion plan has no slides")
	}
	if err := req.Options.Validate(); err != nil {
		return "", err
	}

	outDir, err := filepath.Abs(f.outputDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	output := filepath.Join(outDir, f.outputName)

	workDir, err := os.MkdirTemp(outDir, ".render-*")
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	if err := subtitle.NewWriter().Write(filepath.Join(workDir, subtitleFile), subtitle.FromCaptions(req.Captions)); err != nil {
		return "", fmt.Errorf("write subtitles: %w", err)
	}

	args, err := buildArgs(req.Motion, req.Options, output)
	if err != nil {
		return "", err
	}

	log.Info("Rendering %d slides to %s", len(req.Motion.Slides), output)
	log.Debug("ffmpeg %s", strings.Join(args, " "))

	pw := newProgressWriter(req.Motion.TotalDurationMs(), progress)
	if err := f.runner.Run(ctx, workDir, f.binary, args, pw); err != nil {
		return "", fmt.Errorf("ffmpeg render: %w", err)
	}
	pw.report(1)

	log.Info("Rendered %s", output)
	return output, nil
}

func buildArgs(plan motion.Plan, opts pipeline.RenderOptions, output string) ([]string, error) {
	args := []string{"-y", "-hide_banner", "-nostats", "-progress", "pipe:1"}

	for _, slide := range plan.Slides {
		input, err := filepath.Abs(slide.Input)
		if err != nil || slide.Input == "" {
			return nil, fmt.Errorf("slide for page %s has no input image", slide.PageID)
		}
		args = append(args,
			"-loop", "1",
			"-framerate", fmt.Sprint(opts.FPS),
			"-t", seconds(slide.DurationMs),
			"-i", input,
		)
	}

	if opts.BackgroundAudio {
		args = append(args,
			"-f", "lavfi",
			"-t", seconds(plan.TotalDurationMs()),
			"-i", backgroundSource,
		)
	}

	args = append(args, "-filter_complex", filterGraph(plan, opts), "-map", "[v]")
	if opts.BackgroundAudio {
		args = append(args, "-map", fmt.Sprintf("%d:a", len(plan.Slides)), "-c:a", "aac", "-b:a", "128k", "-shortest")
	}
	args = append(args,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-r", fmt.Sprint(opts.FPS),
		"-movflags", "+faststart",
		output,
	)
	return args, nil
}

// filterGraph fits every page into the frame, animates it with zoompan and
// concatenates the slides before burning in the subtitles.
func filterGraph(plan motion.Plan, opts pipeline.RenderOptions) string {
	size := fmt.Sprintf("%dx%d", opts.Width, opts.Height)

	var b strings.Builder
	for i, slide := range plan.Slides {
		frames := frameCount(slide.DurationMs, opts.FPS)
		from, to := slideEnds(slide)
		fmt.Fprintf(&b,
			"[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black,setsar=1,"+
				"zoompan=z='%s':x='(iw-iw/zoom)*(%s)':y='(ih-ih/zoom)*(%s)':d=1:s=%s:fps=%d,"+
				"trim=duration=%s,setpts=PTS-STARTPTS[v%d];",
			i, opts.Width, opts.Height, opts.Width, opts.Height,
			lerp(from.Zoom, to.Zoom, frames),
			lerp(from.FocusX, to.FocusX, frames),
			lerp(from.FocusY, to.FocusY, frames),
			size, opts.FPS,
			seconds(slide.DurationMs), i,
		)
	}
	for i := range plan.Slides {
		fmt.Fprintf(&b, "[v%d]", i)
	}
	fmt.Fprintf(&b, "concat=n=%d:v=1:a=0,subtitles=%s[v]", len(plan.Slides), subtitleFile)
	return b.String()
}

func slideEnds(slide motion.Slide) (motion.Keyframe, motion.Keyframe) {
	still := motion.Keyframe{Zoom: 1, FocusX: 0.5, FocusY: 0.5}
	switch len(slide.Keyframes) {
	case 0:
		return still, still
	case 1:
		return slide.Keyframes[0], slide.Keyframes[0]
	default:
		return slide.Keyframes[0], slide.Keyframes[len(slide.Keyframes)-1]
	}
}

// lerp is a zoompan expression moving linearly from a to b over frames,
// driven by the output frame number "on".
func lerp(a, b float64, frames int) string {
	if a == b || frames <= 1 {
		return fmt.Sprintf("%.4f", a)
	}
	op, delta := "+", b-a
	if delta < 0 {
		op, delta = "-", -delta
	}
	return fmt.Sprintf("%.4f%s%.4f*on/%d", a, op, delta, frames-1)
}

func frameCount(durationMs, fps int) int {
	frames := (durationMs*fps + 500) / 1000
	if frames < 1 {
		frames = 1
	}
	return frames
}

func seconds(ms int) string {
	return fmt.Sprintf("%.3f", float64(ms)/1000)
}
