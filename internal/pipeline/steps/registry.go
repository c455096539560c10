// Package steps defines the ordered pipeline steps, their per-job status records,
// and the transition rules that gate them.
package steps

import "fmt"

// Name identifies a pipeline step.
type Name string

const (
	Info       Name = "info"
	Transcribe Name = "transcribe"
	Research   Name = "research"
	Outline    Name = "outline"
	Script     Name = "script"
	Style      Name = "style"
	Images     Name = "images"
	Audio      Name = "audio"
	Video      Name = "video"
	Subtitles  Name = "subtitles"
	Metadata   Name = "metadata"
	Thumbnail  Name = "thumbnail"
	Upload     Name = "upload"
)

// Step categories used for progress reporting.
const (
	CategorySource     = "source"
	CategoryWriting    = "writing"
	CategoryVisuals    = "visuals"
	CategoryProduction = "production"
	CategoryPublishing = "publishing"
)

// DoneProgress is the job progress once every step has completed.
const DoneProgress = 100

// Definition defines metadata for a pipeline step.
type Definition struct {
	Name     Name
	Category string
	// Progress is the job progress reported while the step runs.
	Progress int
}

// Order is the fixed step sequence.
var Order = []Name{
	Info, Transcribe, Research, Outline, Script, Style,
	Images, Audio, Video, Subtitles, Metadata, Thumbnail, Upload,
}

// Registry holds every step definition.
var Registry = map[Name]Definition{
	Info:       {Name: Info, Category: CategorySource, Progress: 5},
	Transcribe: {Name: Transcribe, Category: CategorySource, Progress: 10},
	Research:   {Name: Research, Category: CategoryWriting, Progress: 15},
	Outline:    {Name: Outline, Category: CategoryWriting, Progress: 20},
	Script:     {Name: Script, Category: CategoryWriting, Progress: 25},
	Style:      {Name: Style, Category: CategoryVisuals, Progress: 30},
	Images:     {Name: Images, Category: CategoryVisuals, Progress: 40},
	Audio:      {Name: Audio, Category: CategoryProduction, Progress: 50},
	Video:      {Name: Video, Category: CategoryProduction, Progress: 65},
	Subtitles:  {Name: Subtitles, Category: CategoryProduction, Progress: 75},
	Metadata:   {Name: Metadata, Category: CategoryPublishing, Progress: 85},
	Thumbnail:  {Name: Thumbnail, Category: CategoryPublishing, Progress: 90},
	Upload:     {Name: Upload, Category: CategoryPublishing, Progress: 95},
}

// UnknownStepError is returned for names outside the sequence.
type UnknownStepError struct {
	Name string
}

func (e *UnknownStepError) Error() string {
	return fmt.Sprintf("unknown step: %s", e.Name)
}

// Parse validates a step name.
func Parse(s string) (Name, error) {
	n := Name(s)
	if _, ok := Registry[n]; !ok {
		return "", &UnknownStepError{Name: s}
	}
	return n, nil
}

// Index returns the position of n in Order, or -1.
func Index(n Name) int {
	for i, s := range Order {
		if s == n {
			return i
		}
	}
	return -1
}

// Previous returns the step before n.
func Previous(n Name) (Name, bool) {
	i := Index(n)
	if i <= 0 {
		return "", false
	}
	return Order[i-1], true
}

// Next returns the step after n.
func Next(n Name) (Name, bool) {
	i := Index(n)
	if i < 0 || i >= len(Order)-1 {
		return "", false
	}
	return Order[i+1], true
}

// ProgressFor returns the job progress reported while n runs.
func ProgressFor(n Name) int {
	return Registry[n].Progress
}
