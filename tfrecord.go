package vocconv

// TFRecord object detection specific functionality.

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow
)

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// TFLabelMap maps class labels to their ids. Ids start at 1; 0 is reserved for the background.
type TFLabelMap map[string]int64

// NewTFLabelMap assigns ids to the distinct labels in data, in lexical label order, so the same
// labels always get the same ids.
func NewTFLabelMap(data AnnotatedFiles) TFLabelMap {
	labels := data.Labels()
	labelMap := make(TFLabelMap, len(labels))
	for i, l := range labels {
		labelMap[l] = int64(i + 1)
	}
	return labelMap
}

// toTFFeatures converts the intermediate representation for a single file to TFRecord features.
//
// The image itself is not embedded; image/source_id holds the content URL under baseURL.
func toTFFeatures(fileData AnnotatedFile, baseURL string, labelMap TFLabelMap) TFFeatureMap {
	f := make(TFFeatureMap, 16)
	f["image/height"] = fileData.Height
	f["image/width"] = fileData.Width
	f["image/filename"] = fileData.FileName
	f["image/source_id"] = ContentURL(baseURL, fileData.FileName)
	f["image/format"] = strings.ToLower(strings.TrimPrefix(filepath.Ext(fileData.FileName), "."))

	// Prepare the per label data.
	numLabels := len(fileData.Annotations)
	xmins := make([]float32, numLabels)
	ymins := make([]float32, numLabels)
	xmaxs := make([]float32, numLabels)
	ymaxs := make([]float32, numLabels)
	classes := make([]string, numLabels)
	classIDs := make([]int64, numLabels)
	for i, a := range fileData.Annotations {
		c := a.NormalizedCoords(fileData.Width, fileData.Height)
		xmins[i] = float32(c[0])
		ymins[i] = float32(c[1])
		xmaxs[i] = float32(c[2])
		ymaxs[i] = float32(c[3])
		classes[i] = a.Label
		classIDs[i] = labelMap[a.Label]
	}
	f["image/object/bbox/xmin"] = xmins
	f["image/object/bbox/ymin"] = ymins
	f["image/object/bbox/xmax"] = xmaxs
	f["image/object/bbox/ymax"] = ymaxs
	f["image/object/class/text"] = classes
	f["image/object/class/label"] = classIDs

	return f
}

// WriteTFRecord serialises data as tensorflow.Example records to one or more TFRecord files
// stored under recordFilePath (with suffixes added when numShards>1).
//
// A label map is generated and written to labelMapPath in prototxt format. Each file is replaced
// only once it has been written completely.
func WriteTFRecord(recordFilePath, labelMapPath string, data AnnotatedFiles, baseURL string,
	numShards int) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = errors.Errorf("conversion to TensorFlow Example failed: %v", e)
		}
	}()

	if labelMapPath == "" {
		return errors.Wrap(ErrInvalidConfig, "missing TFRecord label map path")
	}
	if numShards <= 0 {
		numShards = 1
	}
	labelMap := NewTFLabelMap(data)

	fmtShardSuffix := func(idx int) string {
		return fmt.Sprintf("-%05d-of-%05d", idx, numShards)
	}

	shardSize := int(math.Ceil(float64(len(data)) / float64(numShards)))
	for shardIdx := 0; shardIdx < numShards; shardIdx++ {
		lo := shardIdx * shardSize
		hi := lo + shardSize
		if lo > len(data) {
			lo = len(data)
		}
		if hi > len(data) {
			hi = len(data)
		}

		shardPath := recordFilePath
		if numShards > 1 {
			shardPath += fmtShardSuffix(shardIdx)
		}
		err := writeFileAtomic(shardPath, func(w io.Writer) error {
			for _, fileData := range data[lo:hi] {
				tfExample := example.New(toTFFeatures(fileData, baseURL, labelMap))
				if err := writeTFRecordExample(w, tfExample); err != nil {
					return errors.Wrapf(err, "failed to write example for %q", fileData.FileName)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	logger.Debugf("Wrote %d TFRecord examples in %d shard(s)", len(data), numShards)

	return saveTFRecordLabelMap(labelMapPath, labelMap)
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}

// EncodeTFRecordLabelMap writes labelMap to w in the prototxt format of the TensorFlow object
// detection API's StringIntLabelMap, ordered by id.
func EncodeTFRecordLabelMap(w io.Writer, labelMap TFLabelMap) error {
	names := make([]string, len(labelMap))
	assigned := make([]bool, len(labelMap))
	for name, id := range labelMap {
		if id < 1 || int(id) > len(labelMap) || assigned[id-1] {
			return errors.Errorf("invalid label map entry: %s: %d", name, id)
		}
		names[id-1] = name
		assigned[id-1] = true
	}

	bw := bufio.NewWriter(w)
	for i, name := range names {
		_, err := fmt.Fprintf(bw, "item {\n  name: %s\n  id: %d\n}\n", strconv.Quote(name), i+1)
		if err != nil {
			return err
		}
	}
	return bw.Flush()
}

// saveTFRecordLabelMap converts the labelMap to prototxt format and writes it to path.
func saveTFRecordLabelMap(path string, labelMap TFLabelMap) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		return EncodeTFRecordLabelMap(w, labelMap)
	})
}
