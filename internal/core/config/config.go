package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/enermaps/enermaps-wms/internal/core/model"
	"github.com/enermaps/enermaps-wms/internal/geo"
)

// WMS holds the protocol limits handed to the WMS handler. It is treated
// as immutable once loaded.
type WMS struct {
	MaxSize            int                  `validate:"gt=0"`
	AllowedProjections []string             `validate:"min=1,dive,required,srs"`
	AllowedOutputs     []model.OutputFormat `validate:"min=1,dive"`
}

// Output looks up the encoder for an allowed mime type.
func (w WMS) Output(mime string) (model.OutputFormat, bool) {
	for _, o := range w.AllowedOutputs {
		if o.MIME == mime {
			return o, true
		}
	}
	return model.OutputFormat{}, false
}

func (w WMS) ProjectionAllowed(p string) bool {
	for _, a := range w.AllowedProjections {
		if strings.EqualFold(a, p) {
			return true
		}
	}
	return false
}

type LegendFeedCfg struct {
	Enabled bool
	Brokers string
	Topic   string
	GroupID string
}

type Config struct {
	Addr              string
	LogLevel          string
	LogConsole        bool
	LogSampleN        int
	DataDir           string
	WMS               WMS
	DatasetAPIURL     string
	DatasetAPITimeout time.Duration
	RedisAddr         string
	RedisPoolSize     int
	LegendFreshness   time.Duration
	LegendLRUSize     int
	CacheOpTimeout    time.Duration
	LayerCacheSize    int
	H3Res             int
	LegendFeed        LegendFeedCfg
	MetricsEnabled    bool
}

func FromEnv() Config {
	res := getint("H3_RES", 6)
	if res < 0 {
		res = 0
	}
	if res > 15 {
		res = 15
	}

	return Config{
		Addr:       getenv("ADDR", ":8000"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),
		LogSampleN: getint("LOG_SAMPLE_N", 0),
		DataDir:    getenv("DATA_DIR", "/data/wms"),
		WMS: WMS{
			MaxSize:            getint("WMS_MAX_SIZE", 2048*2048),
			AllowedProjections: parseList(getenv("WMS_ALLOWED_PROJECTIONS", "epsg:3857,epsg:4326")),
			AllowedOutputs:     parseOutputs(getenv("WMS_ALLOWED_OUTPUTS", "image/png=png,image/jpg=jpg")),
		},
		DatasetAPIURL:     getenv("DATASET_API_URL", "http://localhost:7000/api"),
		DatasetAPITimeout: getduration("DATASET_API_TIMEOUT", 10*time.Second),
		RedisAddr:         getenv("REDIS_ADDR", ""),
		RedisPoolSize:     getint("REDIS_POOL_SIZE", 64),
		LegendFreshness:   getduration("LEGEND_FRESHNESS", 30*time.Second),
		LegendLRUSize:     getint("LEGEND_LRU_SIZE", 1024),
		CacheOpTimeout:    getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		LayerCacheSize:    getint("LAYER_CACHE_SIZE", 64),
		H3Res:             res,
		LegendFeed: LegendFeedCfg{
			Enabled: getbool("LEGEND_FEED_ENABLED", false),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getenv("KAFKA_TOPIC", "enermaps-legends"),
			GroupID: getenv("KAFKA_GROUP_ID", "enermaps-wms"),
		},
		MetricsEnabled: getbool("METRICS_ENABLED", true),
	}
}

// Load reads the environment, applies the YAML file named by
// WMS_CONFIG_FILE when set and validates the WMS section.
func Load() (Config, error) {
	cfg := FromEnv()
	if path := os.Getenv("WMS_CONFIG_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := cfg.ApplyYAML(b); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type fileWMS struct {
	MaxSize            int       `yaml:"max_size"`
	AllowedProjections []string  `yaml:"allowed_projections"`
	AllowedOutputs     yaml.Node `yaml:"allowed_outputs"`
}

type fileConfig struct {
	WMS fileWMS `yaml:"wms"`
}

// ApplyYAML overlays the wms section of a config file. Keys left out keep
// their current value. allowed_outputs is a mapping of mime type to
// encoder tag and keeps its document order.
func (c *Config) ApplyYAML(b []byte) error {
	var f fileConfig
	if err := yaml.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	if f.WMS.MaxSize != 0 {
		c.WMS.MaxSize = f.WMS.MaxSize
	}
	if len(f.WMS.AllowedProjections) > 0 {
		c.WMS.AllowedProjections = lowerAll(f.WMS.AllowedProjections)
	}
	node := f.WMS.AllowedOutputs
	if node.Kind == 0 {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("wms.allowed_outputs: expected a mapping (line %d)", node.Line)
	}
	outs := make([]model.OutputFormat, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		outs = append(outs, model.OutputFormat{
			MIME: strings.TrimSpace(node.Content[i].Value),
			Tag:  strings.TrimSpace(node.Content[i+1].Value),
		})
	}
	c.WMS.AllowedOutputs = outs
	return nil
}

// image encoders available to GetMap
var imageTags = map[string]bool{"png": true, "jpg": true, "jpeg": true}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("srs", func(fl validator.FieldLevel) bool {
		_, err := geo.Normalize(fl.Field().String())
		return err == nil
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		o := sl.Current().Interface().(model.OutputFormat)
		if o.Tag != "" && !imageTags[strings.ToLower(o.Tag)] {
			sl.ReportError(o.Tag, "Tag", "Tag", "imagetag", "")
		}
	}, model.OutputFormat{})
	return v
}

func (c Config) Validate() error {
	if err := validate.Struct(c.WMS); err != nil {
		return fmt.Errorf("invalid wms config: %w", err)
	}
	if c.LegendFeed.Enabled && strings.TrimSpace(c.LegendFeed.Brokers) == "" {
		return errors.New("legend feed enabled without KAFKA_BROKERS")
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseList(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, strings.ToLower(s))
		}
	}
	return out
}

// parse "image/png=png,image/jpg=jpg" keeping the order
func parseOutputs(s string) []model.OutputFormat {
	var out []model.OutputFormat
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		mime := strings.TrimSpace(kv[0])
		tag := strings.TrimSpace(kv[1])
		if mime == "" || tag == "" {
			continue
		}
		out = append(out, model.OutputFormat{MIME: mime, Tag: tag})
	}
	return out
}
