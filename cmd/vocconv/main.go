// Converts a directory of Pascal VOC annotation files to a single newline-delimited JSON file of
// Dataturks-style records, optionally also exporting TFRecord files.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sensorable/vocconv"
)

var (
	cfg = vocconv.DefaultConfig()

	configFilePath string // The optional YAML config file.
	envFilePath    string // The optional .env file.
	logFilePath    string // The optional log file, rotated by size.
	verbose        bool   // Log at debug level.
)

// newLogger creates the console logger, additionally writing to a rotating log file if logPath
// is not empty.
func newLogger(logPath string, debug bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	if debug {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetReportCaller(true)
	}

	logger.SetFormatter(&formatter.Formatter{
		TimestampFormat: "02 Jan 06 - 15:04:05",
		CallerFirst:     true,
		CustomCallerFormatter: func(f *runtime.Frame) string {
			s := strings.Split(f.Function, ".")
			return fmt.Sprintf(" [%s:%d][%s()]", pathBase(f.File), f.Line, s[len(s)-1])
		},
	})

	writers := []io.Writer{os.Stderr}
	if logPath != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   logPath,
			LocalTime:  true,
			Compress:   true,
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
		})
	}
	logger.SetOutput(io.MultiWriter(writers...))

	return logger
}

func pathBase(p string) string {
	return path.Base(filepath.ToSlash(p))
}

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintln(os.Stderr, "  -src <dir> -out <file> -base-url <url> [options]")
		_, _ = fmt.Fprintln(os.Stderr, "  The run parameters may also be set with the environment variables "+
			vocconv.EnvSourceDir+", "+vocconv.EnvOutputPath+" and "+vocconv.EnvBaseURL+".")
		_, _ = fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}
}

// parseFlags parses the command line over the config file and environment settings.
func parseFlags() error {
	fs := flag.CommandLine

	// Config sources.
	fs.StringVar(&configFilePath, "config", configFilePath,
		"The `path` to an optional YAML config file")
	fs.StringVar(&envFilePath, "env-file", ".env",
		"The `path` to an optional .env file with "+vocconv.EnvSourceDir+", "+
			vocconv.EnvOutputPath+" and "+vocconv.EnvBaseURL)

	// Run parameters. Flags are applied after the file and environment, see below.
	src := fs.String("src", "", "The `path` to the directory with the VOC annotation files")
	out := fs.String("out", "", "The `path` to the newline-delimited JSON output file")
	baseURL := fs.String("base-url", "", "The URL `prefix` for the content URL of each image")

	// Options.
	ext := fs.String("ext", vocconv.VOCExt, "The case-sensitive file name `suffix` of annotation files")
	skipInvalid := fs.Bool("skip-invalid", false,
		"Skip malformed annotation files instead of failing the run")
	sorted := fs.Bool("sort", false, "Process annotation files in lexical order")
	mapLabels := fs.String("map-labels", "",
		"Comma-separated list of old=new label (sub-)string replacements")
	dryRun := fs.Bool("dry-run", false, "Convert all files without writing any output")

	// TFRecord export.
	tfRecord := fs.String("tfrecord", "", "The `path` to an additional TFRecord output file")
	tfLabelMap := fs.String("tfrecord-label-map", "",
		"The TFRecord label map file `path` (required with -tfrecord)")
	numShards := fs.Int("num-shards", 0, "The number of TFRecord shard files to create")

	// Logging.
	fs.StringVar(&logFilePath, "log-file", logFilePath, "The `path` to an optional log file")
	fs.BoolVar(&verbose, "verbose", verbose, "Log at debug level")

	flag.Parse()

	if configFilePath != "" {
		if err := cfg.LoadConfigFile(configFilePath); err != nil {
			return err
		}
	}
	if err := godotenv.Load(envFilePath); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return errors.Wrapf(vocconv.ErrInvalidConfig, "cannot load %q: %v", envFilePath, err)
	}
	cfg.LoadEnv()

	// Only explicitly set flags override the config file and environment.
	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "src":
			cfg.SourceDir = *src
		case "out":
			cfg.OutputPath = *out
		case "base-url":
			cfg.BaseURL = *baseURL
		case "ext":
			cfg.DocumentExt = *ext
		case "skip-invalid":
			cfg.SkipInvalid = *skipInvalid
		case "sort":
			cfg.Sort = *sorted
		case "map-labels":
			cfg.LabelMappings = nil
			if *mapLabels != "" {
				cfg.LabelMappings = strings.Split(*mapLabels, ",")
			}
		case "dry-run":
			cfg.DryRun = *dryRun
		case "tfrecord":
			cfg.TFRecord.Path = *tfRecord
		case "tfrecord-label-map":
			cfg.TFRecord.LabelMapPath = *tfLabelMap
		case "num-shards":
			if *numShards < 1 {
				flagErr = errors.Wrap(vocconv.ErrInvalidConfig, "-num-shards must be at least 1")
			}
			cfg.TFRecord.NumShards = *numShards
		}
	})
	if flagErr != nil {
		return flagErr
	}

	return cfg.Validate()
}

func main() {
	err := parseFlags()
	logger := newLogger(logFilePath, verbose)
	if err != nil {
		logger.Error(err)
		flag.Usage()
		os.Exit(1)
	}

	runLogger := logger.WithField("run_id", uuid.New().String())
	vocconv.SetLogger(runLogger)
	runLogger.WithFields(logrus.Fields{
		"src":      cfg.SourceDir,
		"out":      cfg.OutputPath,
		"base_url": cfg.BaseURL,
	}).Debug("Starting conversion")

	n, err := cfg.Run()
	if err != nil {
		runLogger.Fatal("Conversion failed: ", err)
	}

	if cfg.DryRun {
		runLogger.Infof("Converted %d annotation files", n)
		return
	}
	runLogger.Infof("Successfully converted %d annotation files to %s", n, cfg.OutputPath)
}
