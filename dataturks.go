package vocconv

// Dataturks-style newline-delimited JSON specific functionality.

import (
	"bufio"
	"io"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
)

// Labels and URLs are written verbatim, without HTML escaping.
var jsonCodec = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// DataturksPoint is a normalised point. Coordinates are ratios of the image size.
type DataturksPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DataturksAnnotation is a single bounding box annotation within a record.
//
// The image dimensions are repeated for every annotation; consumers of the format expect them
// here.
type DataturksAnnotation struct {
	Label       []string         `json:"label"`  // Always exactly one label.
	Notes       string           `json:"notes"`  // Always empty.
	Points      []DataturksPoint `json:"points"` // Top-left and bottom-right corners.
	ImageWidth  int              `json:"imageWidth"`
	ImageHeight int              `json:"imageHeight"`
}

// DataturksRecord defines the output structure for a single image, written as one JSON line.
type DataturksRecord struct {
	Content    string                `json:"content"`
	Annotation []DataturksAnnotation `json:"annotation"` // Never nil, so it is never null.
	Extras     interface{}           `json:"extras"`     // Always null.
}

// ContentURL joins baseURL and fileName with a slash, without any escaping.
func ContentURL(baseURL, fileName string) string {
	return baseURL + "/" + fileName
}

// ToDataturks converts the intermediate representation of a single image to a Dataturks record.
func ToDataturks(fileData AnnotatedFile, baseURL string) DataturksRecord {
	record := DataturksRecord{
		Annotation: make([]DataturksAnnotation, len(fileData.Annotations)),
		Content:    ContentURL(baseURL, fileData.FileName),
	}
	for i, a := range fileData.Annotations {
		c := a.NormalizedCoords(fileData.Width, fileData.Height)
		record.Annotation[i] = DataturksAnnotation{
			Label: []string{a.Label},
			Points: []DataturksPoint{
				{X: c[0], Y: c[1]},
				{X: c[2], Y: c[3]},
			},
			ImageWidth:  fileData.Width,
			ImageHeight: fileData.Height,
		}
	}

	return record
}

// Convert parses a single VOC document from r and converts it to a Dataturks record with its
// content URL under baseURL.
func Convert(r io.Reader, baseURL string) (DataturksRecord, error) {
	fileData, err := ParseVOC(r)
	if err != nil {
		return DataturksRecord{}, err
	}
	return ToDataturks(fileData, baseURL), nil
}

// EncodeDataturks writes the records to w, one JSON value per line.
func EncodeDataturks(w io.Writer, data []DataturksRecord) error {
	bw := bufio.NewWriter(w)
	for i := range data {
		enc, err := jsonCodec.Marshal(&data[i])
		if err != nil {
			return err
		}
		if _, err := bw.Write(enc); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteDataturks writes the records to outFile as newline-delimited JSON.
//
// The data is written to a temporary file next to outFile which then replaces outFile, so outFile
// is either left untouched or completely written.
func WriteDataturks(outFile string, data []DataturksRecord) error {
	return writeFileAtomic(outFile, func(w io.Writer) error {
		return EncodeDataturks(w, data)
	})
}

// writeFileAtomic creates a temporary file in the directory of path, passes it to write and renames
// it to path if all steps succeed. The temporary file is removed otherwise.
func writeFileAtomic(path string, write func(w io.Writer) error) (err error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return ioErrorf(err, "cannot create file in %q", dir)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return ioErrorf(err, "cannot write file %q", path)
	}
	// An existing file keeps its permissions.
	mode := os.FileMode(0644)
	if fi, statErr := os.Stat(path); statErr == nil {
		mode = fi.Mode().Perm()
	}
	if err = tmp.Chmod(mode); err != nil {
		return ioErrorf(err, "cannot write file %q", path)
	}
	if err = tmp.Sync(); err != nil {
		return ioErrorf(err, "cannot write file %q", path)
	}
	if err = tmp.Close(); err != nil {
		return ioErrorf(err, "cannot write file %q", path)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return ioErrorf(err, "cannot replace file %q", path)
	}

	return nil
}
