package types

// MediaInfo is what ffprobe reports about a container.
type MediaInfo struct {
	Duration   float64
	Format     string
	SizeBytes  int64
	Width      int
	Height     int
	VideoCodec string
	HasVideo   bool
	HasAudio   bool
}

// RemoteMedia is the pre-download metadata of a hosted video.
type RemoteMedia struct {
	ID             string
	Title          string
	Thumbnail      string
	Extractor      string
	Duration       float64
	FilesizeApprox int64
	IsLive         bool

	// Subtitles and AutoCaptions list the caption languages the platform
	// offers, uploaded and generated.
	Subtitles    []string
	AutoCaptions []string
}

type MediaAsset struct {
	Path       string
	Dir        string
	Duration   float64
	Format     string
	Width      int
	Height     int
	HasAudio   bool
	Title      string
	Thumbnail  string
	SourceName string

	// Captions are platform captions fetched with the source, if any.
	Captions Transcript
}

type RenderSpec struct {
	Input     string
	Start     float64
	End       float64
	Canvas    Canvas
	Subtitles string
	Output    string
}

type RenderOutcome struct {
	SubtitlesBurned bool
}
