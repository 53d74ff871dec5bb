package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lrstanley/go-ytdlp"
)

// YtdlpEngine runs yt-dlp through the go-ytdlp wrapper.
type YtdlpEngine struct{}

// NewYtdlpEngine returns the production engine. Callers are expected to have
// yt-dlp available on PATH (or installed via ytdlp.MustInstall at startup).
func NewYtdlpEngine() *YtdlpEngine {
	return &YtdlpEngine{}
}

// rawInfo mirrors the subset of yt-dlp's --dump-single-json output we read.
type rawInfo struct {
	Title     string      `json:"title"`
	Thumbnail string      `json:"thumbnail"`
	Duration  float64     `json:"duration"`
	Uploader  string      `json:"uploader"`
	Formats   []rawFormat `json:"formats"`
}

type rawFormat struct {
	FormatID       string  `json:"format_id"`
	URL            string  `json:"url"`
	Ext            string  `json:"ext"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	Height         int     `json:"height"`
	FormatNote     string  `json:"format_note"`
	Filesize       float64 `json:"filesize"`
	FilesizeApprox float64 `json:"filesize_approx"`
}

// Extract fetches metadata without downloading and normalizes the format
// list: formats with no usable stream are dropped, near-duplicates collapse
// to one entry, and the synthetic best-quality entry goes first.
func (e *YtdlpEngine) Extract(ctx context.Context, url string) (*MediaInfo, error) {
	dl := ytdlp.New().
		Quiet().
		NoWarnings().
		SkipDownload().
		NoPlaylist().
		DumpSingleJSON()

	result, err := dl.Run(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to extract media info: %w", err)
	}

	var info rawInfo
	if err := json.Unmarshal([]byte(result.Stdout), &info); err != nil {
		return nil, fmt.Errorf("failed to parse media info: %w", err)
	}

	return buildMediaInfo(url, info), nil
}

// buildMediaInfo normalizes yt-dlp's metadata dump into the public shape.
func buildMediaInfo(url string, info rawInfo) *MediaInfo {
	title := info.Title
	if title == "" {
		title = "Unknown"
	}

	formats := []FormatInfo{BestQualityFormat()}
	type dedupKey struct {
		label    string
		ext      string
		hasVideo bool
		hasAudio bool
	}
	seen := make(map[dedupKey]bool)

	for _, f := range info.Formats {
		if f.URL == "" {
			continue
		}

		hasVideo := f.VCodec != "" && f.VCodec != "none"
		hasAudio := f.ACodec != "" && f.ACodec != "none"

		var label string
		switch {
		case hasVideo && f.Height > 0:
			label = fmt.Sprintf("%dp", f.Height)
		case hasVideo:
			label = f.FormatNote
			if label == "" {
				label = "unknown"
			}
		case hasAudio:
			label = "audio only"
		default:
			continue
		}

		key := dedupKey{label, f.Ext, hasVideo, hasAudio}
		if seen[key] {
			continue
		}
		seen[key] = true

		size := f.Filesize
		if size == 0 {
			size = f.FilesizeApprox
		}

		ext := f.Ext
		if ext == "" {
			ext = "unknown"
		}

		formats = append(formats, FormatInfo{
			FormatID:       f.FormatID,
			Ext:            ext,
			QualityLabel:   label,
			FilesizeApprox: int64(size),
			HasVideo:       hasVideo,
			HasAudio:       hasAudio,
			Note:           f.FormatNote,
		})
	}

	return &MediaInfo{
		URL:             url,
		Title:           title,
		Thumbnail:       info.Thumbnail,
		DurationSeconds: int64(info.Duration),
		Uploader:        info.Uploader,
		Formats:         formats,
	}
}

// Download transfers the requested format into req.OutputDir, forwarding raw
// progress samples to hook. Post-processing states surface as a single
// Finished event.
func (e *YtdlpEngine) Download(ctx context.Context, req DownloadRequest, hook ProgressFunc) (*DownloadResult, error) {
	formatID := req.FormatID
	if formatID == "" {
		formatID = BestQualityFormatID
	}

	dl := ytdlp.New().
		Quiet().
		NoWarnings().
		NoPlaylist().
		Format(formatID).
		MergeOutputFormat("mp4").
		RestrictFilenames().
		ForceOverwrites().
		Output(filepath.Join(req.OutputDir, "%(title)s [%(id)s].%(ext)s"))

	var title string
	finishedSent := false

	dl.ProgressFunc(100*time.Millisecond, func(update ytdlp.ProgressUpdate) {
		if update.Info != nil && update.Info.Title != nil && *update.Info.Title != "" {
			title = *update.Info.Title
		}

		if hook == nil {
			return
		}

		if update.Status == ytdlp.ProgressStatusDownloading {
			hook(transferEvent(update, title))
			return
		}

		// Everything after the transfer (merging, remuxing, finished)
		// collapses to one finalizing signal.
		if !finishedSent {
			finishedSent = true
			hook(ProgressEvent{Finished: true, Title: title})
		}
	})

	result, err := dl.Run(ctx, req.URL)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}

	filename := resolveOutputFile(result, req.OutputDir)
	if filename == "" {
		return nil, fmt.Errorf("download finished but no output file was reported")
	}

	var size int64
	if stat, err := os.Stat(filepath.Join(req.OutputDir, filename)); err == nil {
		size = stat.Size()
	}

	return &DownloadResult{
		Filename:  filename,
		Title:     title,
		SizeBytes: size,
	}, nil
}

// transferEvent converts an in-transfer yt-dlp sample to the engine's event
// shape. The wrapper reports byte counts as int; snapshots use int64 since
// outputs routinely exceed 2 GiB.
func transferEvent(update ytdlp.ProgressUpdate, title string) ProgressEvent {
	var speed float64
	if !update.Started.IsZero() {
		if elapsed := time.Since(update.Started).Seconds(); elapsed > 0 {
			speed = float64(update.DownloadedBytes) / elapsed
		}
	}
	return ProgressEvent{
		DownloadedBytes: int64(update.DownloadedBytes),
		TotalBytes:      int64(update.TotalBytes),
		Speed:           speed,
		ETASeconds:      int64(update.ETA().Seconds()),
		Title:           title,
	}
}

// resolveOutputFile finds the final output path from the run result. When a
// merge changed the extension the reported path may not exist; fall back to
// the merged container.
func resolveOutputFile(result *ytdlp.Result, outputDir string) string {
	info, err := result.GetExtractedInfo()
	if err != nil || len(info) == 0 || info[0].Filename == nil {
		return ""
	}

	path := *info[0].Filename
	if _, err := os.Stat(path); os.IsNotExist(err) {
		merged := path[:len(path)-len(filepath.Ext(path))] + ".mp4"
		if _, err := os.Stat(merged); err == nil {
			path = merged
		}
	}

	return filepath.Base(path)
}
