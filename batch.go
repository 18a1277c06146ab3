package vocconv

// Batch conversion of a directory of annotation documents.

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// runOptions are the optional settings of Run.
type runOptions struct {
	match         DocumentMatcher
	skipInvalid   bool
	sortPaths     bool
	labelMappings []string
	dryRun        bool

	tfRecordPath     string
	tfRecordLabelMap string
	tfRecordShards   int
}

// Option configures Run.
type Option func(*runOptions)

// WithMatcher sets the predicate selecting annotation documents in the source directory. The
// default accepts names ending in VOCExt.
func WithMatcher(match DocumentMatcher) Option {
	return func(o *runOptions) {
		if match != nil {
			o.match = match
		}
	}
}

// WithSkipInvalid makes Run log and skip malformed documents instead of failing. I/O errors still
// fail the run.
func WithSkipInvalid(skip bool) Option {
	return func(o *runOptions) {
		o.skipInvalid = skip
	}
}

// WithSortedDiscovery makes Run process documents in lexical path order instead of directory
// listing order.
func WithSortedDiscovery(sorted bool) Option {
	return func(o *runOptions) {
		o.sortPaths = sorted
	}
}

// WithLabelMappings sets old=new label replacements applied before output.
func WithLabelMappings(mappings []string) Option {
	return func(o *runOptions) {
		o.labelMappings = mappings
	}
}

// WithDryRun makes Run convert all documents without writing any output.
func WithDryRun(dryRun bool) Option {
	return func(o *runOptions) {
		o.dryRun = dryRun
	}
}

// WithTFRecord additionally writes the batch as TFRecord file(s) to path, with the label map at
// labelMapPath.
func WithTFRecord(path, labelMapPath string, numShards int) Option {
	return func(o *runOptions) {
		o.tfRecordPath = path
		o.tfRecordLabelMap = labelMapPath
		o.tfRecordShards = numShards
	}
}

// FromVOC reads and parses all VOC documents in dir accepted by match, in discovery order.
//
// If skipInvalid is true, malformed documents are logged and skipped, and their number is
// returned. Otherwise the first error is returned.
func FromVOC(dir string, match DocumentMatcher, skipInvalid, sortPaths bool) (
	data AnnotatedFiles, skipped int, err error) {

	if match == nil {
		match = MatchExt(VOCExt)
	}
	paths, err := filesInDir(dir, match)
	if err != nil {
		return nil, 0, err
	}
	if sortPaths {
		paths = sortedCopy(paths)
	}
	logger.Debugf("Parsing VOC labels for %d files", len(paths))

	data = make(AnnotatedFiles, 0, len(paths))
	for _, path := range paths {
		fileData, err := FromVOCFile(path)
		if err != nil {
			if skipInvalid && IsMalformedDocument(err) {
				logger.WithField("file", path).Warnf("Skipping document: %v", err)
				skipped++
				continue
			}
			return nil, skipped, err
		}
		data = append(data, fileData)
	}

	return data, skipped, nil
}

// Run converts the annotation documents in sourceDir to Dataturks records with content URLs under
// baseURL and writes them to outputPath as newline-delimited JSON, replacing any existing file.
//
// Returns the number of records written. If reading or converting any document fails, nothing is
// written and an existing file at outputPath is left untouched. The optional TFRecord output is
// written after outputPath. If only the TFRecord export fails, the returned count is that of the
// records already written to outputPath.
func Run(sourceDir, outputPath, baseURL string, opts ...Option) (int, error) {
	o := runOptions{match: MatchExt(VOCExt), tfRecordShards: 1}
	for _, opt := range opts {
		opt(&o)
	}

	switch {
	case sourceDir == "":
		return 0, errors.Wrap(ErrInvalidConfig, "empty source directory")
	case outputPath == "" && !o.dryRun:
		return 0, errors.Wrap(ErrInvalidConfig, "empty output path")
	case baseURL == "":
		return 0, errors.Wrap(ErrInvalidConfig, "empty base URL")
	}

	data, skipped, err := FromVOC(sourceDir, o.match, o.skipInvalid, o.sortPaths)
	if err != nil {
		return 0, err
	}
	if skipped > 0 {
		logger.Warnf("Skipped %d malformed documents", skipped)
	}

	if _, err := data.MapLabels(o.labelMappings); err != nil {
		return 0, err
	}

	records := make([]DataturksRecord, len(data))
	for i, fileData := range data {
		records[i] = ToDataturks(fileData, baseURL)
	}

	fields := logrus.Fields{
		"records":     len(records),
		"annotations": data.NumAnnotations(),
		"skipped":     skipped,
	}
	if o.dryRun {
		logger.WithFields(fields).Debug("Dry run, no output written")
		return len(records), nil
	}

	if err := WriteDataturks(outputPath, records); err != nil {
		return 0, err
	}
	fields["output"] = outputPath

	if o.tfRecordPath != "" {
		if err := WriteTFRecord(o.tfRecordPath, o.tfRecordLabelMap, data, baseURL,
			o.tfRecordShards); err != nil {
			return len(records), err
		}
		fields["tfrecord"] = o.tfRecordPath
	}

	logger.WithFields(fields).Debugf("Wrote %d records to %s", len(records), outputPath)
	return len(records), nil
}
