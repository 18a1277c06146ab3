package vocconv

import (
	"bytes"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvert(t *testing.T) {
	doc := vocXML("img1.png", "200", "100", vocTestObject{"person", "20", "10", "180", "90"})

	record, err := Convert(strings.NewReader(doc), "http://x/y")
	require.NoError(t, err)

	assert.Equal(t, DataturksRecord{
		Content: "http://x/y/img1.png",
		Annotation: []DataturksAnnotation{{
			Label:       []string{"person"},
			Points:      []DataturksPoint{{X: 0.1, Y: 0.1}, {X: 0.9, Y: 0.9}},
			ImageWidth:  200,
			ImageHeight: 100,
		}},
	}, record)

	var buf bytes.Buffer
	require.NoError(t, EncodeDataturks(&buf, []DataturksRecord{record}))
	assert.JSONEq(t, `{"content":"http://x/y/img1.png","annotation":[{"label":["person"],`+
		`"notes":"","points":[{"x":0.1,"y":0.1},{"x":0.9,"y":0.9}],"imageWidth":200,`+
		`"imageHeight":100}],"extras":null}`, buf.String())
	assert.True(t, strings.HasSuffix(buf.String(), "}\n"))
}

func TestConvertMalformed(t *testing.T) {
	_, err := Convert(strings.NewReader(vocXML("a.jpg", "", "10")), "http://x")
	assert.ErrorIs(t, err, ErrMalformedDocument)
}

func TestConvertKeepsLeafTextVerbatim(t *testing.T) {
	doc := vocXML(" img 1.png ", "10", "10", vocTestObject{" person ", " 1 ", "2", "3", "4 "})

	record, err := Convert(strings.NewReader(doc), "http://x/y")
	require.NoError(t, err)
	assert.Equal(t, "http://x/y/ img 1.png ", record.Content)
	require.Len(t, record.Annotation, 1)
	assert.Equal(t, []string{" person "}, record.Annotation[0].Label)
	assert.Equal(t, []DataturksPoint{{X: 0.1, Y: 0.2}, {X: 0.3, Y: 0.4}},
		record.Annotation[0].Points)

	record, err = Convert(strings.NewReader(vocXML(" a b.png ", "10", "10")), "base")
	require.NoError(t, err)
	assert.Equal(t, "base/ a b.png ", record.Content)
}

func TestToDataturksNoAnnotations(t *testing.T) {
	record := ToDataturks(AnnotatedFile{FileName: "a.jpg", Width: 10, Height: 10}, "base")

	var buf bytes.Buffer
	require.NoError(t, EncodeDataturks(&buf, []DataturksRecord{record}))
	assert.Equal(t, `{"content":"base/a.jpg","annotation":[],"extras":null}`+"\n", buf.String())
}

func TestToDataturksPreservesOrderAndEchoesSize(t *testing.T) {
	fileData := AnnotatedFile{
		FileName: "a.jpg",
		Width:    640,
		Height:   480,
		Annotations: []Annotation{
			{Label: "c", Coords: [4]int{0, 0, 640, 480}},
			{Label: "a", Coords: [4]int{13, 17, 101, 203}},
			{Label: "b", Coords: [4]int{639, 479, 640, 480}},
		},
	}

	record := ToDataturks(fileData, "u")
	require.Len(t, record.Annotation, len(fileData.Annotations))
	for i, a := range fileData.Annotations {
		got := record.Annotation[i]
		assert.Equal(t, []string{a.Label}, got.Label)
		assert.Equal(t, "", got.Notes)
		assert.Equal(t, 640, got.ImageWidth)
		assert.Equal(t, 480, got.ImageHeight)
		require.Len(t, got.Points, 2)

		// Scaling back recovers the pixel coordinates, and in-bounds boxes stay within [0, 1].
		for j, p := range got.Points {
			assert.Equal(t, a.Coords[2*j], int(math.Round(p.X*640)))
			assert.Equal(t, a.Coords[2*j+1], int(math.Round(p.Y*480)))
			assert.True(t, p.X >= 0 && p.X <= 1 && p.Y >= 0 && p.Y <= 1, "point %v", p)
		}
	}
}

func TestToDataturksOutOfBoundsPassthrough(t *testing.T) {
	fileData := AnnotatedFile{
		FileName:    "a.jpg",
		Width:       100,
		Height:      50,
		Annotations: []Annotation{{Label: "x", Coords: [4]int{-10, 0, 150, 100}}},
	}

	record := ToDataturks(fileData, "u")
	assert.Equal(t, []DataturksPoint{{X: -0.1, Y: 0}, {X: 1.5, Y: 2}}, record.Annotation[0].Points)
}

func TestContentURLVerbatim(t *testing.T) {
	assert.Equal(t, "/content/drive/My Drive/images/ä b#1.jpg",
		ContentURL("/content/drive/My Drive/images", "ä b#1.jpg"))
	assert.Equal(t, "http://x//a.jpg", ContentURL("http://x/", "a.jpg"))
}

func TestEncodeDataturksNoEscaping(t *testing.T) {
	record := ToDataturks(AnnotatedFile{
		FileName:    "Straße & co.jpg",
		Width:       2,
		Height:      2,
		Annotations: []Annotation{{Label: "<mug>", Coords: [4]int{0, 0, 1, 1}}},
	}, "http://x?a=1&b=2")

	var buf bytes.Buffer
	require.NoError(t, EncodeDataturks(&buf, []DataturksRecord{record, record}))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"content":"http://x?a=1&b=2/Straße & co.jpg"`)
	assert.Contains(t, lines[0], `"label":["<mug>"]`)
	assert.Equal(t, lines[0], lines[1])
}

func TestWriteDataturksReplacesFile(t *testing.T) {
	dir := t.TempDir()
	out := writeTestFile(t, dir, "out.json", "old content\nmore\nlines\n")

	records := []DataturksRecord{
		ToDataturks(AnnotatedFile{FileName: "a.jpg", Width: 1, Height: 1}, "b"),
	}
	require.NoError(t, WriteDataturks(out, records))

	enc, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, `{"content":"b/a.jpg","annotation":[],"extras":null}`+"\n", string(enc))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestWriteDataturksKeepsFileMode(t *testing.T) {
	dir := t.TempDir()
	out := writeTestFile(t, dir, "out.json", "old\n")
	require.NoError(t, os.Chmod(out, 0600))

	require.NoError(t, WriteDataturks(out, nil))
	fi, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), fi.Mode().Perm())

	created := filepath.Join(dir, "new.json")
	require.NoError(t, WriteDataturks(created, nil))
	fi, err = os.Stat(created)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), fi.Mode().Perm())
}

func TestWriteFileAtomicFailureKeepsFile(t *testing.T) {
	dir := t.TempDir()
	out := writeTestFile(t, dir, "out.json", "previous\n")

	err := writeFileAtomic(out, func(w io.Writer) error {
		if _, err := w.Write([]byte("partial")); err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)

	enc, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "previous\n", string(enc))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteDataturksMissingDir(t *testing.T) {
	err := WriteDataturks(filepath.Join(t.TempDir(), "missing", "out.json"), nil)
	assert.ErrorIs(t, err, ErrIO)
}
