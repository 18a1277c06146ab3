package vocconv

// The intermediate annotation metadata representation.

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Annotation is the intermediate representation of an object label.
type Annotation struct {
	Coords [4]int // Absolute x1, y1, x2, y2 pixel offsets from the top-left corner.
	Label  string
}

// Width is the object width from a.Coords.
func (a Annotation) Width() int {
	return a.Coords[2] - a.Coords[0]
}

// Height is the object height from a.Coords.
func (a Annotation) Height() int {
	return a.Coords[3] - a.Coords[1]
}

// NormalizedCoords returns a.Coords divided by the image dimensions. Values are not clamped, so
// boxes exceeding the image bounds yield values outside [0, 1].
func (a Annotation) NormalizedCoords(imageWidth, imageHeight int) [4]float64 {
	w, h := float64(imageWidth), float64(imageHeight)
	return [4]float64{
		float64(a.Coords[0]) / w,
		float64(a.Coords[1]) / h,
		float64(a.Coords[2]) / w,
		float64(a.Coords[3]) / h,
	}
}

// AnnotatedFile is the intermediate representation of the annotations of one image.
type AnnotatedFile struct {
	Annotations []Annotation // The annotations, in document order.
	FileName    string       // The image file name as given by the document.
	Width       int          // The image width in pixels.
	Height      int          // The image height in pixels.
	SourcePath  string       // The annotation document the data was read from, if any.
}

// AnnotatedFiles is the annotation metadata for a list of files.
type AnnotatedFiles []AnnotatedFile

// NumAnnotations returns the total number of annotations in data.
func (data AnnotatedFiles) NumAnnotations() int {
	n := 0
	for _, f := range data {
		n += len(f.Annotations)
	}
	return n
}

// Labels returns the distinct labels in data, sorted.
func (data AnnotatedFiles) Labels() []string {
	seen := make(map[string]struct{})
	for _, f := range data {
		for _, a := range f.Annotations {
			seen[a.Label] = struct{}{}
		}
	}

	labels := make([]string, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// MapLabels replaces label (sub-)strings with substitution values, as specified in mappings.
//
// The format of mappings is old=new. Returns the number of labels that changed.
func (data AnnotatedFiles) MapLabels(mappings []string) (int, error) {
	if len(mappings) == 0 {
		return 0, nil
	}

	// Extract the individual old and new strings to map between.
	replacements := make([]struct{ old, new string }, len(mappings))
	for i, v := range mappings {
		a := strings.Split(v, "=")
		if len(a) != 2 || a[0] == "" {
			return 0, errors.Wrapf(ErrInvalidConfig, "invalid label mapping %q", v)
		}

		replacements[i].old = a[0]
		replacements[i].new = a[1]
	}

	// Apply the replacements, in order, to all labels.
	count := 0
	for _, f := range data {
		for i := range f.Annotations {
			a := &f.Annotations[i]

			oldLabel := a.Label
			for _, r := range replacements {
				a.Label = strings.Replace(a.Label, r.old, r.new, -1)
			}

			if a.Label != oldLabel {
				count++
			}
		}
	}

	logger.Debugf("The label mappings changed %d labels", count)
	return count, nil
}
