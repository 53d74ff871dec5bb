// Package engine abstracts the media extraction and transfer backend so the
// worker and API can be tested against a scripted implementation.
package engine

import "context"

// BestQualityFormatID selects the best video and audio streams merged into
// one container.
const BestQualityFormatID = "bestvideo+bestaudio/best"

// FormatInfo describes one downloadable rendition of a media source.
type FormatInfo struct {
	FormatID       string `json:"format_id"`
	Ext            string `json:"ext"`
	QualityLabel   string `json:"quality_label"`
	FilesizeApprox int64  `json:"filesize_approx,omitempty"`
	HasVideo       bool   `json:"has_video"`
	HasAudio       bool   `json:"has_audio"`
	Note           string `json:"note,omitempty"`
}

// MediaInfo is the result of metadata extraction for one URL.
type MediaInfo struct {
	URL             string       `json:"url"`
	Title           string       `json:"title"`
	Thumbnail       string       `json:"thumbnail,omitempty"`
	DurationSeconds int64        `json:"duration,omitempty"`
	Uploader        string       `json:"uploader,omitempty"`
	Formats         []FormatInfo `json:"formats"`
}

// DownloadRequest describes one transfer.
type DownloadRequest struct {
	JobID     string
	URL       string
	FormatID  string
	OutputDir string
}

// DownloadResult reports the finished transfer.
type DownloadResult struct {
	Filename  string // base name inside OutputDir
	Title     string
	SizeBytes int64
}

// ProgressEvent is a raw engine-side progress sample. Finished marks the
// point where all bytes are transferred but post-processing (merging,
// remuxing) may still run.
type ProgressEvent struct {
	Finished        bool
	DownloadedBytes int64
	TotalBytes      int64
	Speed           float64 // bytes per second
	ETASeconds      int64
	Title           string
}

// ProgressFunc receives progress samples during a transfer. Implementations
// must not block; the engine calls it from the transfer goroutine.
type ProgressFunc func(ProgressEvent)

// Engine extracts metadata and performs transfers.
type Engine interface {
	Extract(ctx context.Context, url string) (*MediaInfo, error)
	Download(ctx context.Context, req DownloadRequest, hook ProgressFunc) (*DownloadResult, error)
}

// BestQualityFormat is the synthetic entry prepended to every extracted
// format list.
func BestQualityFormat() FormatInfo {
	return FormatInfo{
		FormatID:     BestQualityFormatID,
		Ext:          "mp4",
		QualityLabel: "Best quality",
		HasVideo:     true,
		HasAudio:     true,
		Note:         "Best available video + audio merged",
	}
}
