package vocconv

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Environment variables read by Config.LoadEnv.
const (
	EnvSourceDir  = "VOCCONV_SOURCE_DIR"
	EnvOutputPath = "VOCCONV_OUTPUT_PATH"
	EnvBaseURL    = "VOCCONV_BASE_URL"
)

// Config holds the settings of a conversion run.
type Config struct {
	SourceDir  string `yaml:"source_dir" validate:"required,dir"`
	OutputPath string `yaml:"output_path" validate:"required_without=DryRun,nefield=SourceDir"`
	BaseURL    string `yaml:"base_url" validate:"required"`

	DocumentExt   string   `yaml:"document_ext" validate:"required"`
	SkipInvalid   bool     `yaml:"skip_invalid"`
	Sort          bool     `yaml:"sort"`
	LabelMappings []string `yaml:"label_mappings" validate:"dive,contains=="`
	DryRun        bool     `yaml:"dry_run"`

	TFRecord TFRecordConfig `yaml:"tfrecord"`
}

// TFRecordConfig holds the settings of the optional TFRecord export.
type TFRecordConfig struct {
	Path         string `yaml:"path"`
	LabelMapPath string `yaml:"label_map_path" validate:"required_with=Path"`
	NumShards    int    `yaml:"num_shards" validate:"min=1"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		DocumentExt: VOCExt,
		TFRecord:    TFRecordConfig{NumShards: 1},
	}
}

// LoadConfigFile reads YAML settings from path over the values in c.
func (c *Config) LoadConfigFile(path string) error {
	enc, err := os.ReadFile(path)
	if err != nil {
		return ioErrorf(err, "cannot read config file %q", path)
	}
	if err := yaml.UnmarshalStrict(enc, c); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "config file %q: %v", path, err)
	}
	return nil
}

// LoadEnv overrides the run parameters with the non-empty environment variables EnvSourceDir,
// EnvOutputPath and EnvBaseURL.
func (c *Config) LoadEnv() {
	for _, v := range []struct {
		key string
		dst *string
	}{
		{EnvSourceDir, &c.SourceDir},
		{EnvOutputPath, &c.OutputPath},
		{EnvBaseURL, &c.BaseURL},
	} {
		if s := os.Getenv(v.key); s != "" {
			*v.dst = s
		}
	}
}

var validate = validator.New()

// Validate cleans the paths in c and checks all values. Violations wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.SourceDir != "" {
		c.SourceDir = filepath.Clean(c.SourceDir)
	}
	if c.OutputPath != "" {
		c.OutputPath = filepath.Clean(c.OutputPath)
	}
	if c.TFRecord.Path != "" {
		c.TFRecord.Path = filepath.Clean(c.TFRecord.Path)
	}
	if c.TFRecord.LabelMapPath != "" {
		c.TFRecord.LabelMapPath = filepath.Clean(c.TFRecord.LabelMapPath)
	}

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return errors.Wrap(ErrInvalidConfig, err.Error())
		}
		msgs := make([]string, len(verrs))
		for i, fe := range verrs {
			msgs[i] = fe.Namespace() + ": failed on '" + fe.Tag() + "'"
		}
		return errors.Wrap(ErrInvalidConfig, strings.Join(msgs, "; "))
	}
	if c.TFRecord.Path != "" && (c.TFRecord.Path == c.OutputPath ||
		c.TFRecord.Path == c.TFRecord.LabelMapPath) {
		return errors.Wrap(ErrInvalidConfig, "the TFRecord, label map and output paths must differ")
	}
	return nil
}

// Options converts c to the options of Run.
func (c *Config) Options() []Option {
	opts := []Option{
		WithMatcher(MatchExt(c.DocumentExt)),
		WithSkipInvalid(c.SkipInvalid),
		WithSortedDiscovery(c.Sort),
		WithLabelMappings(c.LabelMappings),
		WithDryRun(c.DryRun),
	}
	if c.TFRecord.Path != "" && !c.DryRun {
		opts = append(opts, WithTFRecord(c.TFRecord.Path, c.TFRecord.LabelMapPath,
			c.TFRecord.NumShards))
	}
	return opts
}

// Run runs the conversion described by c. c should have been validated.
func (c *Config) Run() (int, error) {
	return Run(c.SourceDir, c.OutputPath, c.BaseURL, c.Options()...)
}
