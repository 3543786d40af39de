package domain

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.NotNil(t, config)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 8501, config.Server.Port)
	assert.Equal(t, "downloads", config.Download.DefaultFolder)
	assert.Equal(t, QualityBest, config.Download.DefaultQuality)
	assert.Equal(t, "mp3", config.Download.DefaultCodec)
	assert.Equal(t, 192, config.Download.DefaultBitrate)
	assert.Equal(t, "yt-dlp", config.YTDLP.Binary)
	assert.False(t, config.Notification.Enabled)
	assert.True(t, config.Metrics.Enabled)
	assert.Equal(t, "info", config.Logging.Level)
}

func TestDownloadConfig_DerivedPaths(t *testing.T) {
	c := DownloadConfig{BaseDir: "/data/yt"}

	assert.Equal(t, filepath.Join("/data/yt", "logs"), c.LogsDir())
	assert.Equal(t, filepath.Join("/data/yt", "config"), c.ConfigDir())
	assert.Equal(t, filepath.Join("/data/yt", "config", "history.db"), c.HistoryDBPath())
}

func TestDownloadConfig_ResolveFolder(t *testing.T) {
	c := DownloadConfig{BaseDir: "/data/yt", DefaultFolder: "downloads"}

	tests := []struct {
		name   string
		folder string
		want   string
	}{
		{"empty uses default", "", "/data/yt/downloads"},
		{"relative goes under base", "music", "/data/yt/music"},
		{"absolute kept", "/mnt/media/", "/mnt/media"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.ResolveFolder(tt.folder))
		})
	}

	c.DefaultFolder = "/srv/videos"
	assert.Equal(t, "/srv/videos", c.ResolveFolder(""))
}

func TestDownloadConfig_ConfineFolder(t *testing.T) {
	c := DownloadConfig{BaseDir: "/data/yt/", DefaultFolder: "downloads"}

	tests := []struct {
		name    string
		folder  string
		want    string
		wantErr bool
	}{
		{"empty uses default", "", "/data/yt/downloads", false},
		{"relative inside base", "music/live", "/data/yt/music/live", false},
		{"absolute inside base", "/data/yt/music", "/data/yt/music", false},
		{"base itself", "/data/yt", "/data/yt", false},
		{"dot dot inside base", "music/../video", "/data/yt/video", false},
		{"absolute outside base", "/home/u/.ssh", "", true},
		{"relative escape", "../../..", "", true},
		{"escape to sibling", "../yt-other", "", true},
		{"sibling with shared prefix", "/data/yt-other", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.ConfineFolder(tt.folder)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrFolderOutsideBase)
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	c.DefaultFolder = "/srv/videos"
	got, err := c.ConfineFolder("/srv/videos")
	require.NoError(t, err)
	assert.Equal(t, "/srv/videos", got)
}
