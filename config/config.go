package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del agente.
type Config struct {
	Strategy StrategyConfig `yaml:"strategy"`
	Sizing   SizingConfig   `yaml:"sizing"`
	Bot      BotConfig      `yaml:"bot"`
	Agent    AgentConfig    `yaml:"agent"`
	API      APIConfig      `yaml:"api"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// StrategyConfig controla los filtros de entrada y la gestión de riesgo.
type StrategyConfig struct {
	MinNoPrice           float64           `yaml:"min_no_price"`
	MaxNoPrice           float64           `yaml:"max_no_price"`
	MaxYesPrice          float64           `yaml:"max_yes_price"`
	MinVolume            float64           `yaml:"min_volume"`
	MinProfitCents       float64           `yaml:"min_profit_cents"`
	MaxPositions         int               `yaml:"max_positions"`
	DaysAhead            int               `yaml:"days_ahead"`
	StopLossRatio        float64           `yaml:"stop_loss_ratio"`
	StopLossEnabled      bool              `yaml:"stop_loss_enabled"`
	PartialExitThreshold float64           `yaml:"partial_exit_threshold"`
	MaxRegionExposure    float64           `yaml:"max_region_exposure"`
	InitialCapital       float64           `yaml:"initial_capital"`
	Cities               []string          `yaml:"cities"`
	Regions              map[string]string `yaml:"regions"`
}

// SizingConfig elige y parametriza la estrategia de sizing.
type SizingConfig struct {
	Strategy        string  `yaml:"strategy"` // linear | kelly
	SizeMin         float64 `yaml:"size_min"`
	SizeMax         float64 `yaml:"size_max"`
	KellyMultiplier float64 `yaml:"kelly_multiplier"`
	KellyMaxFrac    float64 `yaml:"kelly_max_fraction"`
}

// BotConfig controla los intervalos de los loops del runner.
type BotConfig struct {
	ScanIntervalSeconds  int `yaml:"scan_interval_seconds"`
	PriceIntervalSeconds int `yaml:"price_interval_seconds"`
	VerifyTopCandidates  int `yaml:"verify_top_candidates"`
	// HighInfoHoursUTC son horas UTC donde el intervalo de scan se reduce
	// a la mitad (ventanas donde los forecasts se actualizan).
	HighInfoHoursUTC []int `yaml:"high_info_hours_utc"`
	AutoStart        bool  `yaml:"auto_start"`
}

// AgentConfig controla el oráculo de consulta (Gemini).
type AgentConfig struct {
	Enabled         bool   `yaml:"enabled"`
	APIKey          string `yaml:"api_key"` // normalmente via GEMINI_API_KEY
	Model           string `yaml:"model"`
	IntervalSeconds int    `yaml:"interval_seconds"`
}

// APIConfig contiene los base URLs de las APIs de mercado.
type APIConfig struct {
	CLOBBase  string `yaml:"clob_base"`
	GammaBase string `yaml:"gamma_base"`
}

// ServerConfig controla el API HTTP del dashboard.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// StorageConfig controla dónde se persiste el journal de trades.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben los valores del YAML.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Sin archivo se corre con defaults + entorno.
		case err != nil:
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// ScanInterval devuelve el intervalo del loop de scan como time.Duration.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Bot.ScanIntervalSeconds) * time.Second
}

// PriceInterval devuelve el intervalo del loop de precios.
func (c *Config) PriceInterval() time.Duration {
	return time.Duration(c.Bot.PriceIntervalSeconds) * time.Second
}

// AgentInterval devuelve el intervalo del loop del oráculo.
func (c *Config) AgentInterval() time.Duration {
	return time.Duration(c.Agent.IntervalSeconds) * time.Second
}

// Region devuelve la región geográfica de una ciudad.
// Una ciudad desconocida es su propia región (sin correlación asumida).
func (c *Config) Region(city string) string {
	if r, ok := c.Strategy.Regions[city]; ok {
		return r
	}
	return city
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	envFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	envFloat("MIN_NO_PRICE", &cfg.Strategy.MinNoPrice)
	envFloat("MAX_NO_PRICE", &cfg.Strategy.MaxNoPrice)
	envFloat("MAX_YES_PRICE", &cfg.Strategy.MaxYesPrice)
	envFloat("MIN_VOLUME", &cfg.Strategy.MinVolume)
	envFloat("MIN_PROFIT_CENTS", &cfg.Strategy.MinProfitCents)
	envInt("MAX_POSITIONS", &cfg.Strategy.MaxPositions)
	envFloat("STOP_LOSS_RATIO", &cfg.Strategy.StopLossRatio)
	envBool("STOP_LOSS_ENABLED", &cfg.Strategy.StopLossEnabled)
	envFloat("PARTIAL_EXIT_THRESHOLD", &cfg.Strategy.PartialExitThreshold)
	envFloat("MAX_REGION_EXPOSURE", &cfg.Strategy.MaxRegionExposure)
	envFloat("INITIAL_CAPITAL", &cfg.Strategy.InitialCapital)
	envInt("MONITOR_INTERVAL", &cfg.Bot.ScanIntervalSeconds)
	envInt("PRICE_UPDATE_INTERVAL", &cfg.Bot.PriceIntervalSeconds)
	envBool("AUTO_START", &cfg.Bot.AutoStart)
	envBool("AI_AGENT_ENABLED", &cfg.Agent.Enabled)
	envInt("AI_SCAN_INTERVAL", &cfg.Agent.IntervalSeconds)
	envInt("PORT", &cfg.Server.Port)

	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Agent.APIKey = v
	}
	if v := os.Getenv("GAMMA_API"); v != "" {
		cfg.API.GammaBase = v
	}
	if v := os.Getenv("CLOB_API"); v != "" {
		cfg.API.CLOBBase = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
// Los defaults documentados de la estrategia viven aquí, no en el código core.
func setDefaults(cfg *Config) {
	s := &cfg.Strategy
	if s.MinNoPrice <= 0 {
		s.MinNoPrice = 0.88
	}
	if s.MaxNoPrice <= 0 {
		s.MaxNoPrice = 0.94
	}
	if s.MaxYesPrice <= 0 {
		s.MaxYesPrice = 0.12
	}
	if s.MinVolume <= 0 {
		s.MinVolume = 200
	}
	if s.MinProfitCents <= 0 {
		s.MinProfitCents = 5.0
	}
	if s.MaxPositions <= 0 {
		s.MaxPositions = 20
	}
	if s.DaysAhead <= 0 {
		s.DaysAhead = 1
	}
	if s.StopLossRatio <= 0 {
		s.StopLossRatio = 0.8
		s.StopLossEnabled = true
	}
	if s.PartialExitThreshold <= 0 {
		s.PartialExitThreshold = 0.70
	}
	if s.MaxRegionExposure <= 0 {
		s.MaxRegionExposure = 0.25
	}
	if s.InitialCapital <= 0 {
		s.InitialCapital = 100.0
	}
	if len(s.Cities) == 0 {
		s.Cities = defaultCities()
	}
	if len(s.Regions) == 0 {
		s.Regions = defaultRegions()
	}

	z := &cfg.Sizing
	if z.Strategy == "" {
		z.Strategy = "linear"
	}
	if z.SizeMin <= 0 {
		z.SizeMin = 0.05
	}
	if z.SizeMax <= 0 {
		z.SizeMax = 0.10
	}
	if z.KellyMultiplier <= 0 {
		z.KellyMultiplier = 0.25 // quarter-Kelly
	}
	if z.KellyMaxFrac <= 0 {
		z.KellyMaxFrac = 0.20
	}

	if cfg.Bot.ScanIntervalSeconds <= 0 {
		cfg.Bot.ScanIntervalSeconds = 30
	}
	if cfg.Bot.PriceIntervalSeconds <= 0 {
		cfg.Bot.PriceIntervalSeconds = 10
	}
	if cfg.Bot.VerifyTopCandidates <= 0 {
		cfg.Bot.VerifyTopCandidates = 5
	}
	if cfg.Agent.IntervalSeconds <= 0 {
		cfg.Agent.IntervalSeconds = 300
	}
	if cfg.Agent.Model == "" {
		cfg.Agent.Model = "gemini-2.5-flash"
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "agente.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// validate rechaza configuraciones incoherentes que romperían la estrategia.
func validate(cfg *Config) error {
	s := cfg.Strategy
	if s.MinNoPrice >= s.MaxNoPrice {
		return fmt.Errorf("min_no_price (%.2f) must be below max_no_price (%.2f)", s.MinNoPrice, s.MaxNoPrice)
	}
	if cfg.Sizing.SizeMin > cfg.Sizing.SizeMax {
		return fmt.Errorf("size_min (%.2f) must not exceed size_max (%.2f)", cfg.Sizing.SizeMin, cfg.Sizing.SizeMax)
	}
	switch cfg.Sizing.Strategy {
	case "linear", "kelly":
	default:
		return fmt.Errorf("unknown sizing strategy %q", cfg.Sizing.Strategy)
	}
	return nil
}

// defaultCities es la lista de ciudades con mercados de temperatura activos.
func defaultCities() []string {
	return []string{
		"chicago", "dallas", "atlanta", "miami", "nyc",
		"seattle", "london", "wellington", "toronto", "seoul",
		"ankara", "paris", "sao-paulo", "buenos-aires",
		"los-angeles", "houston", "phoenix", "denver", "boston",
	}
}

// defaultRegions agrupa ciudades geográficamente correlacionadas.
// Un frente de calor regional mueve todas las ciudades del grupo a la vez.
func defaultRegions() map[string]string {
	return map[string]string{
		"chicago": "midwest", "denver": "midwest",
		"dallas": "south", "houston": "south",
		"atlanta": "south", "miami": "south", "phoenix": "south",
		"boston": "northeast", "nyc": "northeast",
		"seattle": "pacific", "los-angeles": "pacific",
		"london": "europe", "paris": "europe", "ankara": "europe",
		"wellington": "southern", "buenos-aires": "southern", "sao-paulo": "southern",
		"seoul": "asia", "toronto": "north_america",
	}
}
