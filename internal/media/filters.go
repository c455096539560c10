package media

import (
	"fmt"
	"strconv"
)

// PanDirection is the vertical travel of the Ken Burns pan.
type PanDirection int

const (
	PanUp PanDirection = iota
	PanDown
)

func (d PanDirection) String() string {
	if d == PanDown {
		return "down"
	}
	return "up"
}

// Direction returns the pan direction for segment index i. Directions alternate
// in pairs: up, up, down, down, up, ...
func Direction(i int) PanDirection {
	if i < 0 {
		i = -i
	}
	return PanDirection((i / 2) % 2)
}

// CoverFit scales to fill width x height and crops the overflow.
func CoverFit(width, height int) string {
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d", width, height, width, height)
}

// PanY returns the zoompan y expression for a pan that completes after panFrames.
func PanY(dir PanDirection, panFrames int) string {
	progress := fmt.Sprintf("min(on/%d, 1)", panFrames)
	if dir == PanDown {
		return fmt.Sprintf("(ih*(1-1/zoom))*(%s)", progress)
	}
	return fmt.Sprintf("(ih*(1-1/zoom))*(1-%s)", progress)
}

// KenBurnsFilter builds the video filter for a still image shown for duration seconds.
func KenBurnsFilter(o Options, index int, duration float64) string {
	frames := int(duration * float64(o.ZoomFPS))
	if frames < 1 {
		frames = 1
	}
	panFrames := int(o.PanSeconds * float64(o.ZoomFPS))

	return fmt.Sprintf(
		"%s,scale=8000:-1,zoompan=z=%s:x='(iw-iw/zoom)/2':y='%s':d=%d:s=%dx%d:fps=%d,fps=%d",
		CoverFit(o.Width, o.Height),
		strconv.FormatFloat(o.Zoom, 'f', -1, 64),
		PanY(Direction(index), panFrames),
		frames,
		o.Width, o.Height,
		o.ZoomFPS,
		o.FPS,
	)
}

// ClipFilter fits a looping clip to the output frame.
func ClipFilter(o Options) string {
	return fmt.Sprintf("%s,fps=%d", CoverFit(o.Width, o.Height), o.FPS)
}

// PlaceholderFilter draws the truncated segment text centered on a solid frame.
func PlaceholderFilter(o Options, text string) string {
	return fmt.Sprintf(
		"drawtext=text='%s':fontcolor=white:fontsize=%d:x=(w-text_w)/2:y=(h-text_h)/2",
		EscapeDrawtext(TruncateText(text, o.PlaceholderMaxChars)),
		o.PlaceholderFontSize,
	)
}

// PadAudio pads narration with silence so the audio track lasts exactly duration.
func PadAudio(duration float64) string {
	return "apad=whole_dur=" + formatSeconds(duration)
}

func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
