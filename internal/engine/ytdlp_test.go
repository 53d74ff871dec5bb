package engine

import (
	"testing"
	"time"

	"github.com/lrstanley/go-ytdlp"
)

func TestBuildMediaInfoNormalizesFormats(t *testing.T) {
	info := rawInfo{
		Title:     "A clip",
		Thumbnail: "https://example.com/t.jpg",
		Duration:  123.4,
		Uploader:  "someone",
		Formats: []rawFormat{
			// No URL: dropped.
			{FormatID: "0", Ext: "mp4", VCodec: "avc1", ACodec: "mp4a", Height: 720},
			// Storyboard-style, neither stream: dropped.
			{FormatID: "sb0", URL: "u", Ext: "mhtml", VCodec: "none", ACodec: "none"},
			{FormatID: "137", URL: "u", Ext: "mp4", VCodec: "avc1", ACodec: "none", Height: 1080, Filesize: 1000},
			// Same label/ext/stream mix as 137: deduplicated.
			{FormatID: "399", URL: "u", Ext: "mp4", VCodec: "av01", ACodec: "none", Height: 1080, FilesizeApprox: 900},
			{FormatID: "140", URL: "u", Ext: "m4a", VCodec: "none", ACodec: "mp4a", Filesize: 500},
			// Video with unknown height falls back to the format note.
			{FormatID: "hls", URL: "u", Ext: "mp4", VCodec: "avc1", ACodec: "mp4a", FormatNote: "source"},
		},
	}

	got := buildMediaInfo("https://example.com/v/1", info)

	if got.Title != "A clip" || got.Uploader != "someone" || got.DurationSeconds != 123 {
		t.Errorf("metadata = %+v", got)
	}

	if len(got.Formats) != 4 {
		t.Fatalf("got %d formats, want 4: %+v", len(got.Formats), got.Formats)
	}

	best := got.Formats[0]
	if best.FormatID != BestQualityFormatID || best.QualityLabel != "Best quality" || !best.HasVideo || !best.HasAudio {
		t.Errorf("first format should be the synthetic best entry, got %+v", best)
	}

	video := got.Formats[1]
	if video.FormatID != "137" || video.QualityLabel != "1080p" || video.FilesizeApprox != 1000 || video.HasAudio {
		t.Errorf("video format = %+v", video)
	}

	audio := got.Formats[2]
	if audio.FormatID != "140" || audio.QualityLabel != "audio only" || audio.HasVideo {
		t.Errorf("audio format = %+v", audio)
	}

	noted := got.Formats[3]
	if noted.FormatID != "hls" || noted.QualityLabel != "source" {
		t.Errorf("note-labelled format = %+v", noted)
	}
}

func TestTransferEventConversion(t *testing.T) {
	update := ytdlp.ProgressUpdate{
		Status:          ytdlp.ProgressStatusDownloading,
		DownloadedBytes: 1 << 20,
		TotalBytes:      1 << 22,
		Started:         time.Now().Add(-2 * time.Second),
	}

	got := transferEvent(update, "A clip")

	if got.Finished {
		t.Error("in-transfer sample marked finished")
	}
	if got.DownloadedBytes != 1<<20 || got.TotalBytes != 1<<22 {
		t.Errorf("bytes = %d/%d, want %d/%d", got.DownloadedBytes, got.TotalBytes, 1<<20, 1<<22)
	}
	if got.Speed <= 0 {
		t.Errorf("speed = %v, want positive for an elapsed transfer", got.Speed)
	}
	if got.Title != "A clip" {
		t.Errorf("title = %q", got.Title)
	}
}

func TestBuildMediaInfoUnknownTitle(t *testing.T) {
	got := buildMediaInfo("https://example.com/v/2", rawInfo{})
	if got.Title != "Unknown" {
		t.Errorf("title = %q, want Unknown", got.Title)
	}
	if len(got.Formats) != 1 || got.Formats[0].FormatID != BestQualityFormatID {
		t.Errorf("empty source should still expose the best-quality entry: %+v", got.Formats)
	}
}
