package domain

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// FormatSelector is a yt-dlp format expression; alternatives are separated by "/"
type FormatSelector string

// Alternatives returns the fallback chain in priority order
func (f FormatSelector) Alternatives() []string {
	if f == "" {
		return nil
	}
	return strings.Split(string(f), "/")
}

var heightFilter = regexp.MustCompile(`\[height<=(\d+)\]`)

// HeightCeiling returns the height ceiling embedded in the selector, or 0 when unconstrained
func (f FormatSelector) HeightCeiling() int {
	m := heightFilter.FindStringSubmatch(string(f))
	if len(m) < 2 {
		return 0
	}
	h, _ := strconv.Atoi(m[1])
	return h
}

// PostProcessor describes a yt-dlp post-processing step
type PostProcessor struct {
	Key              string `json:"key"`
	PreferredCodec   string `json:"preferredcodec"`
	PreferredQuality string `json:"preferredquality"`
}

// ToolOptions is the configuration handed to the external extraction tool
type ToolOptions struct {
	OutputTemplate    string          `json:"outtmpl"`
	Format            FormatSelector  `json:"format"`
	MergeOutputFormat string          `json:"merge_output_format,omitempty"`
	NoPlaylist        bool            `json:"noplaylist"`
	PostProcessors    []PostProcessor `json:"postprocessors,omitempty"`
	Quiet             bool            `json:"quiet"`
	NoWarnings        bool            `json:"no_warnings"`
}

const (
	// QualityBest places no ceiling on the video height
	QualityBest = "best"

	// AudioSelector requests the best audio-only stream, falling back to the best muxed one
	AudioSelector FormatSelector = "bestaudio/best"

	// OutputNameTemplate is title (capped at 200 bytes) plus the item id as uniqueness token
	OutputNameTemplate = "%(title).200B [%(id)s].%(ext)s"

	// ExtractAudioKey names the audio extraction post-processor
	ExtractAudioKey = "FFmpegExtractAudio"

	// AudioCodecBest keeps the best source audio format
	AudioCodecBest = "best"

	videoMergeFormat = "mp4"
)

// QualityLabels are the labels offered in the UI, best first
var QualityLabels = []string{QualityBest, "2160p", "1440p", "1080p", "720p", "480p", "360p"}

// AudioCodecs are the codecs offered in the UI
var AudioCodecs = []string{"mp3", "m4a"}

// AudioBitrates are the bitrates (kbps) offered in the UI
var AudioBitrates = []int{128, 192, 320}

var qualityHeights = map[string]int{
	"2160p": 2160,
	"1440p": 1440,
	"1080p": 1080,
	"720p":  720,
	"480p":  480,
	"360p":  360,
}

// HeightForQuality maps a quality label to a height ceiling.
// Returns 0 for "best" and for any unrecognized label.
func HeightForQuality(label string) int {
	return qualityHeights[strings.ToLower(strings.TrimSpace(label))]
}

// VideoFormat builds the fallback chain for a height ceiling; 0 means no ceiling
func VideoFormat(height int) FormatSelector {
	if height <= 0 {
		return FormatSelector(strings.Join([]string{
			"bestvideo[ext=mp4]+bestaudio[ext=m4a]",
			"best[ext=mp4]",
			"bestvideo+bestaudio",
			"best",
		}, "/"))
	}
	return FormatSelector(strings.Join([]string{
		fmt.Sprintf("bestvideo[ext=mp4][height<=%d]+bestaudio[ext=m4a]", height),
		fmt.Sprintf("best[ext=mp4][height<=%d]", height),
		fmt.Sprintf("bestvideo[height<=%d]+bestaudio", height),
		fmt.Sprintf("best[height<=%d]", height),
	}, "/"))
}

// NormalizeAudioCodec lowercases a supported codec and maps anything else to "best"
func NormalizeAudioCodec(codec string) string {
	codec = strings.ToLower(strings.TrimSpace(codec))
	for _, c := range AudioCodecs {
		if c == codec {
			return c
		}
	}
	return AudioCodecBest
}

// AudioPostProcessor builds the extract-audio step with codec and bitrate copied verbatim
func AudioPostProcessor(codec string, bitrateKbps int) PostProcessor {
	return PostProcessor{
		Key:              ExtractAudioKey,
		PreferredCodec:   codec,
		PreferredQuality: strconv.Itoa(bitrateKbps),
	}
}

// MapOptions translates a request into the tool configuration
func MapOptions(req DownloadRequest) ToolOptions {
	opts := ToolOptions{
		OutputTemplate: filepath.Join(req.DestinationFolder, OutputNameTemplate),
		NoPlaylist:     true,
		Quiet:          true,
		NoWarnings:     true,
	}

	if req.Mode == ModeAudio {
		opts.Format = AudioSelector
		opts.PostProcessors = []PostProcessor{
			AudioPostProcessor(NormalizeAudioCodec(req.QualityOrCodec), req.Bitrate()),
		}
		return opts
	}

	opts.Format = VideoFormat(HeightForQuality(req.QualityOrCodec))
	opts.MergeOutputFormat = videoMergeFormat
	return opts
}
