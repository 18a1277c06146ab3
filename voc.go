package vocconv

// Pascal VOC specific functionality.

import (
	"encoding/xml"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html/charset"
)

// VOCExt is the file extension of Pascal VOC annotation documents.
const VOCExt = ".xml"

// VOCBndBox is the bounding box of a VOC object. Values are kept as text until validated.
type VOCBndBox struct {
	XMin *string `xml:"xmin"`
	YMin *string `xml:"ymin"`
	XMax *string `xml:"xmax"`
	YMax *string `xml:"ymax"`
}

// VOCObject is a single object annotation within a VOC document.
type VOCObject struct {
	Name   *string    `xml:"name"`
	BndBox *VOCBndBox `xml:"bndbox"`
}

// VOCSize is the image size block of a VOC document.
type VOCSize struct {
	Width  *string `xml:"width"`
	Height *string `xml:"height"`
}

// VOCAnnotatedFile defines the VOC annotation structure for a single image. Only the fields used
// by the conversion are decoded; everything else in the document is ignored.
type VOCAnnotatedFile struct {
	FileName *string     `xml:"filename"`
	Size     *VOCSize    `xml:"size"`
	Objects  []VOCObject `xml:"object"`
}

// ParseVOC decodes a VOC document from r and converts it to the intermediate representation.
//
// All errors caused by the document content wrap ErrMalformedDocument. Failures to read from r
// wrap ErrIO. No partial result is returned on error.
func ParseVOC(r io.Reader) (AnnotatedFile, error) {
	rr := &errRecordingReader{r: r}

	// Annotation tools may declare non-UTF-8 encodings such as ISO-8859-1.
	decoder := xml.NewDecoder(rr)
	decoder.CharsetReader = charset.NewReaderLabel

	var vocData VOCAnnotatedFile
	if err := decoder.Decode(&vocData); err != nil {
		if rr.err != nil {
			return AnnotatedFile{}, ioErrorf(rr.err, "cannot read document")
		}
		return AnnotatedFile{}, malformedf("invalid XML: %v", err)
	}
	return vocData.toIR()
}

// errRecordingReader keeps the first read error other than io.EOF, so that the caller can tell
// I/O failures apart from syntax errors reported by the decoder.
type errRecordingReader struct {
	r   io.Reader
	err error
}

func (rr *errRecordingReader) Read(p []byte) (int, error) {
	n, err := rr.r.Read(p)
	if err != nil && err != io.EOF && rr.err == nil {
		rr.err = err
	}
	return n, err
}

// FromVOCFile reads and parses the VOC document at path.
func FromVOCFile(path string) (fileData AnnotatedFile, err error) {
	f, err := os.Open(path)
	if err != nil {
		return AnnotatedFile{}, ioErrorf(err, "cannot read file %q", path)
	}
	defer closeWithErrCheck(f, &err)

	fileData, err = ParseVOC(f)
	if err != nil {
		return AnnotatedFile{}, errors.WithMessagef(err, "%q", path)
	}
	fileData.SourcePath = path

	return fileData, nil
}

// toIR validates the decoded document and converts it to the intermediate representation.
func (v *VOCAnnotatedFile) toIR() (AnnotatedFile, error) {
	if v.FileName == nil || *v.FileName == "" {
		return AnnotatedFile{}, malformedf("missing <filename>")
	}
	if v.Size == nil {
		return AnnotatedFile{}, malformedf("missing <size>")
	}
	width, err := parseDimension("size/width", v.Size.Width)
	if err != nil {
		return AnnotatedFile{}, err
	}
	height, err := parseDimension("size/height", v.Size.Height)
	if err != nil {
		return AnnotatedFile{}, err
	}

	fileData := AnnotatedFile{
		Annotations: make([]Annotation, len(v.Objects)),
		FileName:    *v.FileName,
		Width:       width,
		Height:      height,
	}
	for i, o := range v.Objects {
		if o.Name == nil {
			return AnnotatedFile{}, malformedf("object %d: missing <name>", i)
		}
		if o.BndBox == nil {
			return AnnotatedFile{}, malformedf("object %d: missing <bndbox>", i)
		}

		a := Annotation{Label: *o.Name}
		fields := []struct {
			name  string
			value *string
		}{
			{"xmin", o.BndBox.XMin},
			{"ymin", o.BndBox.YMin},
			{"xmax", o.BndBox.XMax},
			{"ymax", o.BndBox.YMax},
		}
		for j, field := range fields {
			if a.Coords[j], err = parseInt(field.value); err != nil {
				return AnnotatedFile{}, malformedf("object %d: bndbox/%s: %v", i, field.name, err)
			}
		}

		if a.Width() < 0 || a.Height() < 0 {
			logger.Warnf("Object %d in %q has inverted bounds %v", i, fileData.FileName, a.Coords)
		}
		fileData.Annotations[i] = a
	}

	return fileData, nil
}

// parseDimension parses a required, positive image dimension.
func parseDimension(name string, s *string) (int, error) {
	v, err := parseInt(s)
	if err != nil {
		return 0, malformedf("%s: %v", name, err)
	}
	if v <= 0 {
		return 0, malformedf("%s: must be positive, got %d", name, v)
	}
	return v, nil
}

// parseInt parses the integer text of an XML leaf, ignoring surrounding whitespace.
func parseInt(s *string) (int, error) {
	if s == nil {
		return 0, errors.New("missing")
	}
	v, err := strconv.Atoi(strings.TrimSpace(*s))
	if err != nil {
		return 0, errors.Errorf("not an integer: %q", *s)
	}
	return v, nil
}
