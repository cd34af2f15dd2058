// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	AppName       = "ecgmon"
	ConfigType    = "yaml"
	DefaultConfig = `# ECG Monitor Configuration

# Acquisition
sample_rate: 1000        # Raw front-end sample rate in Hz
decimation_factor: 8     # Rate reduction ahead of detection (1000/8 = 125 Hz)
topology: "standard"     # Anti-alias filter: "standard" (4th order) or "light" (2nd order)

# Signal conditioning
mains_frequency: 50      # Power-line frequency for the notch filter (50 or 60)
notch_q: 30              # Notch quality factor (higher = narrower rejection band)
highpass_cutoff: 0.5     # Baseline-wander high-pass corner in Hz
lowpass_cutoff: 40       # Smoothing low-pass corner in Hz

# Beat detection
refractory_ms: 200       # Minimum interval between accepted beats
learning_ms: 2000        # Cold-start period; thresholds seed from observed signal
searchback_factor: 1.66  # Missed-beat re-scan trigger, multiple of the average R-R
threshold_fraction: 0.25 # Acceptance threshold position between noise and signal levels

# Heart rate
rr_capacity: 8           # R-R interval history length
min_rr_ms: 300           # Intervals shorter than this are rejected (200 bpm)
max_rr_ms: 2000          # Intervals longer than this are rejected (30 bpm)
rate_timeout_ms: 5000    # Estimate becomes unavailable after this long without a beat

# Input source
source: "sim"            # "sim" (synthetic ECG) or "serial" (front end on a tty)
sim_bpm: 72              # Synthetic source heart rate
sim_noise: 0.02          # Synthetic source noise amplitude
serial_port: "/dev/ttyUSB0"
serial_baud: 115200

# Output
queue_size: 256          # Bounded consumer queue; oldest unread outputs drop
nats_url: "nats://127.0.0.1:4222"
debug: false             # Enable debug output
`
)

// Settings holds all application configuration
type Settings struct {
	// Acquisition
	SampleRate       float64 `mapstructure:"sample_rate"`
	DecimationFactor int     `mapstructure:"decimation_factor"`
	Topology         string  `mapstructure:"topology"`

	// Signal conditioning
	MainsFrequency float64 `mapstructure:"mains_frequency"`
	NotchQ         float64 `mapstructure:"notch_q"`
	HighpassCutoff float64 `mapstructure:"highpass_cutoff"`
	LowpassCutoff  float64 `mapstructure:"lowpass_cutoff"`

	// Beat detection
	RefractoryMs      int     `mapstructure:"refractory_ms"`
	LearningMs        int     `mapstructure:"learning_ms"`
	SearchbackFactor  float64 `mapstructure:"searchback_factor"`
	ThresholdFraction float64 `mapstructure:"threshold_fraction"`

	// Heart rate
	RRCapacity    int `mapstructure:"rr_capacity"`
	MinRRMs       int `mapstructure:"min_rr_ms"`
	MaxRRMs       int `mapstructure:"max_rr_ms"`
	RateTimeoutMs int `mapstructure:"rate_timeout_ms"`

	// Input source
	Source     string  `mapstructure:"source"`
	SimBPM     float64 `mapstructure:"sim_bpm"`
	SimNoise   float64 `mapstructure:"sim_noise"`
	SerialPort string  `mapstructure:"serial_port"`
	SerialBaud int     `mapstructure:"serial_baud"`

	// Output
	QueueSize int    `mapstructure:"queue_size"`
	NatsURL   string `mapstructure:"nats_url"`
	Debug     bool   `mapstructure:"debug"`
}

// Init initializes Viper with defaults and config file.
// Config file search order: current directory, then ~/.config/ecgmon/
func Init() error {
	// Set defaults
	viper.SetDefault("sample_rate", 1000)
	viper.SetDefault("decimation_factor", 8)
	viper.SetDefault("topology", "standard")
	viper.SetDefault("mains_frequency", 50)
	viper.SetDefault("notch_q", 30)
	viper.SetDefault("highpass_cutoff", 0.5)
	viper.SetDefault("lowpass_cutoff", 40)
	viper.SetDefault("refractory_ms", 200)
	viper.SetDefault("learning_ms", 2000)
	viper.SetDefault("searchback_factor", 1.66)
	viper.SetDefault("threshold_fraction", 0.25)
	viper.SetDefault("rr_capacity", 8)
	viper.SetDefault("min_rr_ms", 300)
	viper.SetDefault("max_rr_ms", 2000)
	viper.SetDefault("rate_timeout_ms", 5000)
	viper.SetDefault("source", "sim")
	viper.SetDefault("sim_bpm", 72)
	viper.SetDefault("sim_noise", 0.02)
	viper.SetDefault("serial_port", "/dev/ttyUSB0")
	viper.SetDefault("serial_baud", 115200)
	viper.SetDefault("queue_size", 256)
	viper.SetDefault("nats_url", "nats://127.0.0.1:4222")
	viper.SetDefault("debug", false)

	// Support both config.yaml and .config.yaml
	viper.SetConfigType(ConfigType)

	// Priority order: current directory first, then XDG config
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	viper.AddConfigPath(filepath.Join(configDir, AppName))

	// Try .config.yaml first (hidden file), then config.yaml
	viper.SetConfigName(".config")
	if err = viper.ReadInConfig(); err != nil {
		// Try config.yaml as fallback
		viper.SetConfigName("config")
		err = viper.ReadInConfig()
	}

	// Read config file - if not found, create default in XDG config dir
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// No config found - create default in ~/.config/ecgmon/
			xdgConfigPath := filepath.Join(configDir, AppName)
			if err = ensureConfigExists(xdgConfigPath); err != nil {
				return err
			}
			// Read the newly created config
			if err = viper.ReadInConfig(); err != nil {
				return fmt.Errorf("read config: %w", err)
			}
		} else {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return nil
}

func ensureConfigExists(configPath string) error {
	configFile := filepath.Join(configPath, "config.yaml")

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err = os.MkdirAll(configPath, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err = os.WriteFile(configFile, []byte(DefaultConfig), 0644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}

// Get returns the current settings
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

// Validate checks that all settings are within acceptable ranges
func (s *Settings) Validate() error {
	var errs []error

	// Acquisition
	if s.SampleRate < 100 || s.SampleRate > 8000 {
		errs = append(errs, fmt.Errorf("sample_rate must be between 100 and 8000 Hz, got %v", s.SampleRate))
	}
	if s.DecimationFactor < 1 || s.DecimationFactor > 64 {
		errs = append(errs, fmt.Errorf("decimation_factor must be between 1 and 64, got %d", s.DecimationFactor))
	}
	if s.Topology != "standard" && s.Topology != "light" {
		errs = append(errs, fmt.Errorf("topology must be standard or light, got %q", s.Topology))
	}

	// Signal conditioning
	if s.MainsFrequency != 50 && s.MainsFrequency != 60 {
		errs = append(errs, fmt.Errorf("mains_frequency must be 50 or 60 Hz, got %v", s.MainsFrequency))
	}
	if s.NotchQ < 1 || s.NotchQ > 100 {
		errs = append(errs, fmt.Errorf("notch_q must be between 1 and 100, got %v", s.NotchQ))
	}
	if s.HighpassCutoff <= 0 || s.HighpassCutoff > 5 {
		errs = append(errs, fmt.Errorf("highpass_cutoff must be between 0 and 5 Hz, got %v", s.HighpassCutoff))
	}
	if s.LowpassCutoff < 10 || s.LowpassCutoff >= s.SampleRate/2 {
		errs = append(errs, fmt.Errorf("lowpass_cutoff must be between 10 Hz and Nyquist (%v Hz), got %v", s.SampleRate/2, s.LowpassCutoff))
	}

	// The decimated rate must leave headroom above the conditioned bandwidth
	if s.DecimationFactor > 0 && s.SampleRate/float64(s.DecimationFactor) < 2*s.LowpassCutoff {
		errs = append(errs, fmt.Errorf("decimated rate (%v Hz) must be at least twice lowpass_cutoff (%v Hz)",
			s.SampleRate/float64(s.DecimationFactor), s.LowpassCutoff))
	}

	// Beat detection
	if s.RefractoryMs < 100 || s.RefractoryMs > 500 {
		errs = append(errs, fmt.Errorf("refractory_ms must be between 100 and 500, got %d", s.RefractoryMs))
	}
	if s.LearningMs < 500 || s.LearningMs > 10000 {
		errs = append(errs, fmt.Errorf("learning_ms must be between 500 and 10000, got %d", s.LearningMs))
	}
	if s.SearchbackFactor <= 1.0 || s.SearchbackFactor > 3.0 {
		errs = append(errs, fmt.Errorf("searchback_factor must be between 1.0 and 3.0, got %v", s.SearchbackFactor))
	}
	if s.ThresholdFraction <= 0 || s.ThresholdFraction >= 1 {
		errs = append(errs, fmt.Errorf("threshold_fraction must be between 0.0 and 1.0, got %v", s.ThresholdFraction))
	}

	// Heart rate
	if s.RRCapacity < 2 || s.RRCapacity > 64 {
		errs = append(errs, fmt.Errorf("rr_capacity must be between 2 and 64, got %d", s.RRCapacity))
	}
	if s.MinRRMs <= 0 || s.MinRRMs >= s.MaxRRMs {
		errs = append(errs, fmt.Errorf("min_rr_ms must be positive and less than max_rr_ms, got %d/%d", s.MinRRMs, s.MaxRRMs))
	}
	if s.RateTimeoutMs <= s.MaxRRMs {
		errs = append(errs, fmt.Errorf("rate_timeout_ms must be greater than max_rr_ms, got %d/%d", s.RateTimeoutMs, s.MaxRRMs))
	}

	// Input source
	if s.Source != "sim" && s.Source != "serial" {
		errs = append(errs, fmt.Errorf("source must be sim or serial, got %q", s.Source))
	}
	if s.SimBPM < 20 || s.SimBPM > 240 {
		errs = append(errs, fmt.Errorf("sim_bpm must be between 20 and 240, got %v", s.SimBPM))
	}
	if s.SimNoise < 0 || s.SimNoise > 0.5 {
		errs = append(errs, fmt.Errorf("sim_noise must be between 0.0 and 0.5, got %v", s.SimNoise))
	}
	if s.SerialBaud < 9600 || s.SerialBaud > 921600 {
		errs = append(errs, fmt.Errorf("serial_baud must be between 9600 and 921600, got %d", s.SerialBaud))
	}

	// Output
	if s.QueueSize < 1 || s.QueueSize > 65536 {
		errs = append(errs, fmt.Errorf("queue_size must be between 1 and 65536, got %d", s.QueueSize))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
