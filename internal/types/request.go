package types

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	MinClipCount    = 1
	MaxClipCount    = 10
	MinFixedSeconds = 5
	MaxFixedSeconds = 120
)

type SourceKind string

const (
	SourceURL    SourceKind = "url"
	SourceUpload SourceKind = "upload"
)

type Source struct {
	Kind SourceKind `json:"kind"`
	URL  string     `json:"url,omitempty"`
	// UploadPath is a file already written by the caller. The run takes
	// ownership of it and removes it with the scratch dir.
	UploadPath string `json:"-"`
	UploadName string `json:"uploadName,omitempty"`
}

// Name is the human label stored with the run.
func (s Source) Name() string {
	if s.Kind == SourceUpload {
		if s.UploadName != "" {
			return s.UploadName
		}
		return filepath.Base(s.UploadPath)
	}
	return s.URL
}

type AspectRatio string

const (
	Ratio9x16 AspectRatio = "9:16"
	Ratio1x1  AspectRatio = "1:1"
	Ratio4x5  AspectRatio = "4:5"
	Ratio16x9 AspectRatio = "16:9"
)

type Canvas struct {
	W int `json:"w"`
	H int `json:"h"`
}

var canvases = map[AspectRatio]Canvas{
	Ratio9x16: {W: 1080, H: 1920},
	Ratio1x1:  {W: 1080, H: 1080},
	Ratio4x5:  {W: 1080, H: 1350},
	Ratio16x9: {W: 1920, H: 1080},
}

func (a AspectRatio) Valid() bool {
	_, ok := canvases[a]
	return ok
}

// Canvas returns the output frame size. Unknown ratios get the 16:9 canvas.
func (a AspectRatio) Canvas() Canvas {
	if c, ok := canvases[a]; ok {
		return c
	}
	return canvases[Ratio16x9]
}

func ParseAspectRatio(s string) (AspectRatio, error) {
	a := AspectRatio(strings.TrimSpace(s))
	if !a.Valid() {
		return "", fmt.Errorf("aspect ratio %q: want one of 9:16, 1:1, 4:5, 16:9", s)
	}
	return a, nil
}

// ClipDuration is either auto (zero) or a fixed number of seconds.
type ClipDuration struct {
	Seconds int
}

func AutoDuration() ClipDuration { return ClipDuration{} }

func FixedDuration(sec int) ClipDuration { return ClipDuration{Seconds: sec} }

func (d ClipDuration) IsAuto() bool { return d.Seconds == 0 }

func (d ClipDuration) String() string {
	if d.IsAuto() {
		return "auto"
	}
	return strconv.Itoa(d.Seconds)
}

func ParseClipDuration(s string) (ClipDuration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "auto" {
		return AutoDuration(), nil
	}
	n, err := strconv.Atoi(strings.TrimSuffix(s, "s"))
	if err != nil {
		return ClipDuration{}, fmt.Errorf("duration %q: want \"auto\" or seconds", s)
	}
	if n < MinFixedSeconds || n > MaxFixedSeconds {
		return ClipDuration{}, fmt.Errorf("duration %ds: want %d..%d", n, MinFixedSeconds, MaxFixedSeconds)
	}
	return FixedDuration(n), nil
}

func (d ClipDuration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *ClipDuration) UnmarshalText(b []byte) error {
	v, err := ParseClipDuration(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

type GenerationRequest struct {
	Source      Source       `json:"source"`
	ClipCount   int          `json:"clipCount"`
	Duration    ClipDuration `json:"duration"`
	AspectRatio AspectRatio  `json:"aspectRatio"`
	Subtitles   bool         `json:"subtitles"`
	Template    string       `json:"template"`
}

func (r GenerationRequest) Validate() error {
	var errs []error
	switch r.Source.Kind {
	case SourceURL:
		if strings.TrimSpace(r.Source.URL) == "" {
			errs = append(errs, errors.New("source url is empty"))
		}
	case SourceUpload:
		if r.Source.UploadPath == "" {
			errs = append(errs, errors.New("upload path is empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("source kind %q: want url or upload", r.Source.Kind))
	}
	if r.ClipCount < MinClipCount || r.ClipCount > MaxClipCount {
		errs = append(errs, fmt.Errorf("clip count %d: want %d..%d", r.ClipCount, MinClipCount, MaxClipCount))
	}
	if !r.Duration.IsAuto() && (r.Duration.Seconds < MinFixedSeconds || r.Duration.Seconds > MaxFixedSeconds) {
		errs = append(errs, fmt.Errorf("duration %ds: want %d..%d", r.Duration.Seconds, MinFixedSeconds, MaxFixedSeconds))
	}
	if !r.AspectRatio.Valid() {
		errs = append(errs, fmt.Errorf("aspect ratio %q: want one of 9:16, 1:1, 4:5, 16:9", r.AspectRatio))
	}
	if r.Template != "" {
		if _, ok := LookupTemplate(r.Template); !ok {
			errs = append(errs, fmt.Errorf("template %q is unknown", r.Template))
		}
	}
	return errors.Join(errs...)
}

type DetectOptions struct {
	ClipCount   int
	Duration    ClipDuration
	AspectRatio AspectRatio
}

func (r GenerationRequest) DetectOptions() DetectOptions {
	return DetectOptions{ClipCount: r.ClipCount, Duration: r.Duration, AspectRatio: r.AspectRatio}
}
