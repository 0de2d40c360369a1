package toolbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const (
	gifFilter = "fps=30,split[s0][s1];[s0]palettegen=max_colors=256:stats_mode=diff[p];[s1][p]paletteuse=dither=bayer:bayer_scale=5:diff_mode=rectangle"
	mp4Filter = "scale=trunc(iw/2)*2:trunc(ih/2)*2"
)

type Runner interface {
	Run(ctx context.Context, command string) (string, string, error)
}

// Picker chooses one path from the listed candidates. ok=false means the
// user cancelled.
type Picker func(options []string) (choice string, ok bool)

type Result struct {
	Message      string
	ResponseType string
}

// Converter turns downloaded videos into GIFs with ffmpeg. WebM sources
// go through a temporary MP4 first; ffmpeg's gif muxer chokes on some webm
// streams otherwise.
type Converter struct {
	downloads string
	runner    Runner
	pick      Picker
	logger    *zap.Logger
}

func New(downloads string, runner Runner, pick Picker, logger *zap.Logger) *Converter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Converter{downloads: downloads, runner: runner, pick: pick, logger: logger}
}

// ListVideos returns the mp4/webm files in the downloads directory, sorted
// for stable picker ordering.
func (c *Converter) ListVideos() ([]string, error) {
	entries, err := os.ReadDir(c.downloads)
	if err != nil {
		return nil, fmt.Errorf("could not list downloads: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".mp4", ".webm":
			files = append(files, filepath.Join(c.downloads, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Convert runs the interactive pick-and-convert flow.
func (c *Converter) Convert(ctx context.Context) Result {
	files, err := c.ListVideos()
	if err != nil {
		return Result{Message: "Error listing video files: " + err.Error(), ResponseType: "video_conversion_error"}
	}
	if len(files) == 0 {
		return Result{
			Message:      fmt.Sprintf("No .mp4 or .webm files found in %s.", c.downloads),
			ResponseType: "video_conversion_error",
		}
	}

	selected, ok := c.pick(files)
	if !ok || strings.TrimSpace(selected) == "" {
		return Result{Message: "Conversion cancelled.", ResponseType: "video_conversion_error"}
	}

	stem := strings.TrimSuffix(filepath.Base(selected), filepath.Ext(selected))
	output := filepath.Join(c.downloads, stem+".gif")

	input := selected
	var tempMP4 string
	if strings.EqualFold(filepath.Ext(selected), ".webm") {
		tempMP4 = filepath.Join(c.downloads, stem+".temp.mp4")
		c.logger.Info("transcoding webm to temporary mp4", zap.String("input", selected))
		if _, stderr, err := c.runner.Run(ctx, joinCommand(WebmToMP4Args(selected, tempMP4))); err != nil {
			_ = os.Remove(tempMP4)
			return Result{
				Message:      fmt.Sprintf("Error converting WebM to MP4: %v\n%s", err, stderr),
				ResponseType: "video_conversion_error",
			}
		}
		input = tempMP4
	}

	c.logger.Info("converting to gif", zap.String("input", input), zap.String("output", output))
	_, stderr, err := c.runner.Run(ctx, joinCommand(GifArgs(input, output)))
	if tempMP4 != "" {
		_ = os.Remove(tempMP4)
	}
	if err != nil {
		return Result{
			Message:      fmt.Sprintf("GIF conversion failed: %v\n%s", err, stderr),
			ResponseType: "video_conversion_error",
		}
	}
	return Result{Message: "Conversion complete: " + output, ResponseType: "video_conversion_success"}
}

// WebmToMP4Args yields an even-dimension H.264 transcode; palettegen needs
// even dimensions and a clean stream.
func WebmToMP4Args(input, output string) []string {
	return []string{
		"ffmpeg", "-i", input,
		"-vf", mp4Filter,
		"-c:v", "libx264", "-preset", "medium", "-crf", "23",
		"-c:a", "aac", "-b:a", "128k", "-y", output,
	}
}

// GifArgs yields a two-pass palette conversion for far better colors than
// ffmpeg's default 256-color quantizer.
func GifArgs(input, output string) []string {
	return []string{
		"ffmpeg", "-i", input, "-y",
		"-vf", gifFilter,
		"-loop", "0", output,
	}
}

// joinCommand quotes arguments that would otherwise be split or
// misinterpreted when the runner re-tokenizes the command line.
func joinCommand(argv []string) string {
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		if strings.ContainsAny(arg, " \t") {
			quoted[i] = `"` + arg + `"`
			continue
		}
		quoted[i] = arg
	}
	return strings.Join(quoted, " ")
}
