package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/yt-extract-go/internal/app"
	"github.com/yourusername/yt-extract-go/internal/domain"
	"github.com/yourusername/yt-extract-go/internal/infrastructure"
	"github.com/yourusername/yt-extract-go/pkg/logger"
)

var (
	serverURL   string
	noAutoStart bool
	configPath  string
	rootCmd     = &cobra.Command{
		Use:   "yt-extract",
		Short: "yt-extract CLI - download videos and audio through yt-dlp",
		Long:  `A command-line interface for downloading media with yt-dlp, locally or through the yt-extract server.`,
	}
)

// requestFlags are shared by get and add
type requestFlags struct {
	audio   bool
	quality string
	codec   string
	bitrate int
	folder  string
}

var (
	getFlags requestFlags
	addFlags requestFlags
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8501", "Server URL")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")

	for _, c := range []struct {
		cmd   *cobra.Command
		flags *requestFlags
	}{{getCmd, &getFlags}, {addCmd, &addFlags}} {
		c.cmd.Flags().BoolVarP(&c.flags.audio, "audio", "a", false, "Extract audio only")
		c.cmd.Flags().StringVarP(&c.flags.quality, "quality", "q", "", "Max video quality (best, 2160p, 1440p, 1080p, 720p, 480p, 360p)")
		c.cmd.Flags().StringVarP(&c.flags.codec, "codec", "c", "", "Audio codec (mp3, m4a)")
		c.cmd.Flags().IntVarP(&c.flags.bitrate, "bitrate", "b", 0, "Audio bitrate in kbps (128, 192, 320)")
		c.cmd.Flags().StringVarP(&c.flags.folder, "folder", "o", "", "Destination folder")
	}
	historyCmd.Flags().IntP("limit", "n", 20, "Number of attempts to show")
	historyCmd.Flags().StringP("state", "s", "", "Filter by state (completed, failed, rejected)")
	filesCmd.Flags().StringP("folder", "o", "", "Folder to list")
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(getCmd, addCmd, statusCmd, historyCmd, filesCmd, configCmd)
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// toRequest builds a domain request, filling defaults from config
func (f requestFlags) toRequest(rawURL string, config *domain.DownloadConfig) domain.DownloadRequest {
	folder := config.ResolveFolder(f.folder)
	if f.audio {
		codec := f.codec
		if codec == "" {
			codec = config.DefaultCodec
		}
		bitrate := f.bitrate
		if bitrate <= 0 {
			bitrate = config.DefaultBitrate
		}
		return domain.NewAudioRequest(rawURL, codec, bitrate, folder)
	}
	quality := f.quality
	if quality == "" {
		quality = config.DefaultQuality
	}
	return domain.NewVideoRequest(rawURL, quality, folder)
}

var getCmd = &cobra.Command{
	Use:   "get [url]",
	Short: "Download a URL in this terminal",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if code := runGet(args[0]); code != 0 {
			os.Exit(code)
		}
	},
}

// runGet runs one attempt in this process and returns the exit code,
// so deferred cleanup runs before the process exits
func runGet(rawURL string) int {
	config, err := app.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	log, err := logger.New(logger.Config{Level: "warn", Format: "console", OutputPath: "stderr"})
	if err != nil {
		log = zap.NewNop()
	}
	defer log.Sync()

	var history domain.AttemptRepository
	if err := os.MkdirAll(config.Download.ConfigDir(), 0755); err != nil {
		log.Warn("History disabled", zap.Error(err))
	} else if repo, err := infrastructure.NewSQLiteAttemptRepository(config.Download.HistoryDBPath()); err != nil {
		log.Warn("History disabled", zap.Error(err))
	} else {
		history = repo
		defer repo.Close()
	}

	extractor := infrastructure.NewYTDLPExtractor(&config.YTDLP, config.Download.LogsDir(), nil)
	lister := infrastructure.NewDirFileLister()
	manager := app.NewDownloadManager(extractor, history, lister, nil, nil, log, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := getFlags.toRequest(rawURL, &config.Download)
	outcome := manager.Attempt(ctx, req, NewTerminalSink(os.Stdout))
	if !outcome.Succeeded() {
		return 1
	}

	printFiles(os.Stdout, req.DestinationFolder, outcome.Files)
	return 0
}

var addCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Start a download on the server",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		payload := map[string]interface{}{
			"url":    args[0],
			"folder": addFlags.folder,
		}
		if addFlags.audio {
			payload["mode"] = string(domain.ModeAudio)
			payload["codec"] = addFlags.codec
			payload["bitrate_kbps"] = addFlags.bitrate
		} else {
			payload["mode"] = string(domain.ModeVideo)
			payload["quality"] = addFlags.quality
		}

		data, _ := json.Marshal(payload)
		resp, err := http.Post(serverURL+"/api/v1/downloads", "application/json", bytes.NewBuffer(data))
		if err != nil {
			fail(err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusAccepted {
			fail(fmt.Errorf("%s", strings.TrimSpace(string(body))))
		}

		var result struct {
			AttemptID string                 `json:"attempt_id"`
			Request   domain.DownloadRequest `json:"request"`
		}
		json.Unmarshal(body, &result)
		fmt.Printf("Download started!\n")
		fmt.Printf("ID:     %s\n", result.AttemptID)
		fmt.Printf("Folder: %s\n", result.Request.DestinationFolder)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current or last attempt on the server",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var current struct {
			Running  bool         `json:"running"`
			Snapshot app.Snapshot `json:"snapshot"`
		}
		if err := getJSON("/api/v1/downloads/current", &current); err != nil {
			fail(err)
		}

		snap := current.Snapshot
		if snap.AttemptID == "" {
			fmt.Println("No attempts yet")
			return
		}

		fmt.Printf("Attempt:  %s\n", snap.AttemptID)
		fmt.Printf("URL:      %s\n", snap.URL)
		fmt.Printf("Mode:     %s\n", snap.Mode)
		fmt.Printf("State:    %s\n", snap.State)
		fmt.Printf("Progress: %.0f%%\n", snap.Fraction*100)
		if snap.Status != "" {
			fmt.Printf("Status:   %s\n", boldMarkers.ReplaceAllString(snap.Status, "$1"))
		}
		if snap.Error != "" {
			fmt.Printf("Error:    %s\n", snap.Error)
		}
		if snap.StartedAt != nil {
			fmt.Printf("Started:  %s\n", humanize.Time(*snap.StartedAt))
		}
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent attempts",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		limit, _ := cmd.Flags().GetInt("limit")
		state, _ := cmd.Flags().GetString("state")

		query := url.Values{}
		query.Set("limit", fmt.Sprint(limit))
		if state != "" {
			query.Set("state", state)
		}

		var attempts []domain.Attempt
		if err := getJSON("/api/v1/downloads?"+query.Encode(), &attempts); err != nil {
			fail(err)
		}

		printHistory(os.Stdout, attempts, time.Now())
	},
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List downloaded files",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		folder, _ := cmd.Flags().GetString("folder")

		var listing struct {
			Folder string             `json:"folder"`
			Files  []domain.FileEntry `json:"files"`
		}
		if err := getJSON("/api/v1/files?folder="+url.QueryEscape(folder), &listing); err != nil {
			fail(err)
		}

		printFiles(os.Stdout, listing.Folder, listing.Files)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with the default settings",
	Long:  `Writes the default settings to path, --config, or ~/.yt-extract/config.yaml, in that order.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := configPath
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				fail(err)
			}
			path = filepath.Join(home, ".yt-extract", "config.yaml")
		}

		force, _ := cmd.Flags().GetBool("force")
		if err := writeDefaultConfig(path, force); err != nil {
			fail(err)
		}
		fmt.Printf("Config written to %s\n", path)
	},
}

// writeDefaultConfig refuses to replace an existing file unless force is set
func writeDefaultConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	return app.SaveConfig(domain.DefaultConfig(), path)
}

func getJSON(path string, v interface{}) error {
	resp, err := http.Get(serverURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, v)
}

func printHistory(w io.Writer, attempts []domain.Attempt, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tURL\tMODE\tSTATE\tCREATED")
	for _, a := range attempts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			truncate(a.ID, 8),
			truncate(a.URL, 40),
			a.Mode,
			a.State,
			humanize.RelTime(a.CreatedAt, now, "ago", "from now"))
	}
	tw.Flush()
}

func printFiles(w io.Writer, folder string, files []domain.FileEntry) {
	fmt.Fprintf(w, "Files in %s:\n", folder)
	if len(files) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, f := range files {
		fmt.Fprintf(tw, "  %s\t%s\n", f.Name, f.SizeHuman)
	}
	tw.Flush()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
