package firmware

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	fx "github.com/robotalks/compass.go/pkg/framework"
	"github.com/robotalks/compass.go/pkg/hal/periph"
)

// HAL names.
const (
	HALSim    = "sim"
	HALPeriph = "periph"
)

// Config defines the runtime configuration of the firmware.
type Config struct {
	// Link is a serial device path, tcp://host:port or listen://host:port.
	Link string `yaml:"link"`
	Baud int    `yaml:"baud"`

	HAL    string        `yaml:"hal"`
	Periph periph.Config `yaml:"periph"`
	// SimStep is how many degrees the simulated sensor turns per sample.
	SimStep float64 `yaml:"sim_step"`

	// MQTTBrokerURL mirrors telemetry to MQTT when set.
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string `yaml:"mqtt_url"`
	// WebSocketAddr serves telemetry over WebSocket when set.
	WebSocketAddr string `yaml:"ws_addr"`

	InputSize     int           `yaml:"input_size"`
	OutputSize    int           `yaml:"output_size"`
	Period        time.Duration `yaml:"period"`
	AlgorithmLoad time.Duration `yaml:"algorithm_load"`
	Rate          int           `yaml:"rate"`
}

var (
	defaultConfig = Config{
		Link:    "listen://localhost:7055",
		Baud:    9600,
		HAL:     HALSim,
		SimStep: 0.5,
		Periph: periph.Config{
			SPIHz:        1000000,
			CSMag:        "GPIO5",
			CSAcc:        "GPIO6",
			CSGyr:        "GPIO13",
			LEDOverrun:   "GPIO20",
			LEDHeartbeat: "GPIO21",
		},
		InputSize:     10,
		OutputSize:    48,
		Period:        fx.DefaultPeriod,
		AlgorithmLoad: 7 * time.Millisecond,
		Rate:          DefaultRate,
	}

	configFile string
)

func init() {
	if val := os.Getenv("COMPASS_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	if val := os.Getenv("COMPASS_LINK"); val != "" {
		defaultConfig.Link = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&configFile, "config", configFile, "YAML config file, flags take precedence.")
	flag.StringVar(&defaultConfig.Link, "link", defaultConfig.Link, "Serial device, tcp://host:port or listen://host:port.")
	flag.IntVar(&defaultConfig.Baud, "baud", defaultConfig.Baud, "Serial baud rate.")
	flag.StringVar(&defaultConfig.HAL, "hal", defaultConfig.HAL, "Hardware: sim or periph.")
	flag.Float64Var(&defaultConfig.SimStep, "sim-step", defaultConfig.SimStep, "Simulated rotation per sample in degrees.")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL, empty to disable.")
	flag.StringVar(&defaultConfig.WebSocketAddr, "ws", defaultConfig.WebSocketAddr, "WebSocket listen address, empty to disable.")
	flag.DurationVar(&defaultConfig.Period, "period", defaultConfig.Period, "Control loop period, must divide 10ms evenly.")
	flag.DurationVar(&defaultConfig.AlgorithmLoad, "load", defaultConfig.AlgorithmLoad, "Simulated algorithm time per tick.")
	flag.IntVar(&defaultConfig.Rate, "rate", defaultConfig.Rate, "Initial MAG telemetry rate in Hz.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// ApplyFile loads the file given with -config into the default config.
// It must be called after flag.Parse. Flags set on the command line
// keep precedence over the file.
func ApplyFile() error {
	if configFile == "" {
		return nil
	}
	data, err := os.ReadFile(configFile)
	if err != nil {
		return err
	}
	set := make(map[string]string)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = f.Value.String()
	})
	if err := defaultConfig.LoadYAML(data); err != nil {
		return fmt.Errorf("%s: %w", configFile, err)
	}
	for name, val := range set {
		if err := flag.Set(name, val); err != nil {
			return err
		}
	}
	return nil
}

// LoadYAML overrides fields present in data.
func (c *Config) LoadYAML(data []byte) error {
	return yaml.Unmarshal(data, c)
}

// Validate checks the config and reports every problem found.
func (c *Config) Validate() error {
	var errs fx.AggregatedError
	if c.Link == "" {
		errs.Add(fmt.Errorf("%w: link is required", ErrInvalidConfig))
	}
	if c.Baud <= 0 {
		errs.Add(fmt.Errorf("%w: baud %d", ErrInvalidConfig, c.Baud))
	}
	if c.HAL != HALSim && c.HAL != HALPeriph {
		errs.Add(fmt.Errorf("%w: %w %q", ErrInvalidConfig, ErrUnknownHAL, c.HAL))
	}
	if c.InputSize < 2 {
		errs.Add(fmt.Errorf("%w: input_size %d below 2", ErrInvalidConfig, c.InputSize))
	}
	if c.OutputSize <= MaxTelemetryLen {
		errs.Add(fmt.Errorf("%w: output_size %d can't hold a %d byte frame", ErrInvalidConfig, c.OutputSize, MaxTelemetryLen))
	}
	if c.Period <= 0 {
		errs.Add(fmt.Errorf("%w: period %v", ErrInvalidConfig, c.Period))
	} else if err := c.checkPeriod(); err != nil {
		errs.Add(err)
	}
	if c.AlgorithmLoad < 0 || c.AlgorithmLoad >= c.Period {
		errs.Add(fmt.Errorf("%w: algorithm_load %v must be within period %v", ErrInvalidConfig, c.AlgorithmLoad, c.Period))
	}
	if !ValidRate(c.Rate) {
		errs.Add(fmt.Errorf("%w: rate %d not in %v", ErrInvalidConfig, c.Rate, ValidRates))
	}
	return errs.Aggregate()
}

// checkPeriod requires every task rate, and every rate RATE accepts, to
// be a whole number of ticks.
func (c *Config) checkPeriod() error {
	tps := TicksPerSecond(c.Period)
	if tps == 0 {
		return fmt.Errorf("%w: period %v doesn't divide a second", ErrInvalidConfig, c.Period)
	}
	rates := append([]int{HeartbeatHz, AcquireHz, YawHz}, ValidRates[:]...)
	for _, hz := range rates {
		if hz > 0 && tps%hz != 0 {
			return fmt.Errorf("%w: period %v has no whole tick divisor for %d Hz", ErrInvalidConfig, c.Period, hz)
		}
	}
	return nil
}

// NewController validates the config and creates a Controller on hw.
func (c *Config) NewController(hw *Hardware) (*Controller, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	ctl := NewController(hw, c.InputSize, c.OutputSize)
	ctl.AlgorithmLoad = c.AlgorithmLoad
	ctl.TicksPerSecond = TicksPerSecond(c.Period)
	ctl.rate = c.Rate
	return ctl, nil
}
