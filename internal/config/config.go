// Package config loads runtime settings from the environment and an
// optional .env file.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Vision sources.
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// Config holds every setting the binary reads at startup.
type Config struct {
	CameraID     int
	CameraWidth  int
	CameraHeight int

	CanvasWidth  int
	CanvasHeight int
	DisplayFPS   int
	AnalysisFPS  int

	Zoom        float64
	RotationDeg int
	Mirror      bool

	VisionSource     string // SourceLocal or SourceRemote
	BridgeURL        string
	TargetIP         string
	DepthGate        bool
	DepthThresholdMM float64

	EstimatorScript string
	AudioPlayer     string
	MediaDir        string
	DataDir         string
	DBPath          string
	PluginDir       string
	HTTPAddr        string

	Headless bool
	Tray     bool

	LogLevel  string
	LogFormat string
}

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files; with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// FromEnv builds a Config from GYRE_* environment variables.
func FromEnv() Config {
	dataDir := GetEnv("GYRE_DATA_DIR", defaultDataDir())

	cfg := Config{
		CameraID:     GetEnvInt("GYRE_CAMERA_ID", 0),
		CameraWidth:  GetEnvInt("GYRE_CAMERA_WIDTH", 1280),
		CameraHeight: GetEnvInt("GYRE_CAMERA_HEIGHT", 720),

		CanvasWidth:  GetEnvInt("GYRE_CANVAS_WIDTH", 1280),
		CanvasHeight: GetEnvInt("GYRE_CANVAS_HEIGHT", 720),
		DisplayFPS:   GetEnvInt("GYRE_DISPLAY_FPS", 60),
		AnalysisFPS:  GetEnvInt("GYRE_ANALYSIS_FPS", 15),

		Zoom:        GetEnvFloat("GYRE_ZOOM", 1),
		RotationDeg: GetEnvInt("GYRE_ROTATION", 0),
		Mirror:      GetEnvBool("GYRE_MIRROR", true),

		VisionSource:     strings.ToLower(GetEnv("GYRE_VISION_SOURCE", SourceLocal)),
		BridgeURL:        GetEnv("GYRE_BRIDGE_URL", ""),
		TargetIP:         GetEnv("GYRE_TARGET_IP", ""),
		DepthGate:        GetEnvBool("GYRE_DEPTH_GATE", false),
		DepthThresholdMM: GetEnvFloat("GYRE_DEPTH_THRESHOLD_MM", 1200),

		EstimatorScript: GetEnv("GYRE_ESTIMATOR_SCRIPT", ""),
		AudioPlayer:     GetEnv("GYRE_AUDIO_PLAYER", "ffplay"),
		MediaDir:        GetEnv("GYRE_MEDIA_DIR", filepath.Join(dataDir, "media")),
		DataDir:         dataDir,
		DBPath:          GetEnv("GYRE_DB_PATH", filepath.Join(dataDir, "gyre.db")),
		PluginDir:       GetEnv("GYRE_PLUGIN_DIR", filepath.Join(dataDir, "plugins")),
		HTTPAddr:        GetEnv("GYRE_HTTP_ADDR", ":8080"),

		Headless: GetEnvBool("GYRE_HEADLESS", false),
		Tray:     GetEnvBool("GYRE_TRAY", true),

		LogLevel:  GetEnv("GYRE_LOG_LEVEL", "info"),
		LogFormat: GetEnv("GYRE_LOG_FORMAT", "text"),
	}
	cfg.RotationDeg = NormalizeRotation(cfg.RotationDeg)
	if cfg.VisionSource != SourceRemote {
		cfg.VisionSource = SourceLocal
	}
	return cfg
}

// Remote reports whether the remote bridge is the hand-data source.
func (c Config) Remote() bool {
	return c.VisionSource == SourceRemote
}

// NormalizeRotation snaps deg to the nearest of 0, 90, 180 and 270.
func NormalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return ((deg + 45) / 90 % 4) * 90
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gyre"
	}
	return filepath.Join(home, ".gyre")
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvFloat is GetEnvInt for floating point values.
func GetEnvFloat(key string, fallback float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return fallback
}

// GetEnvBool accepts the values understood by strconv.ParseBool.
func GetEnvBool(key string, fallback bool) bool {
	if s := os.Getenv(key); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return fallback
}
