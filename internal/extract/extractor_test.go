package extract

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func zipOf(t *testing.T, files map[string]string, order ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range order {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func wordDoc(text string) string {
	return `<w:document><w:body><w:p w:rsidR="00A1"><w:r><w:t xml:space="preserve">` + text + `</w:t></w:r></w:p></w:body></w:document>`
}

func slide(text string) string {
	return `<p:sld><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` + text + `</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
}

func TestExtractBytes_plain(t *testing.T) {
	e := NewExtractor()
	tests := []struct {
		name    string
		content []byte
		ext     string
		want    string
	}{
		{"txt", []byte("2+2=4\nThe sky is blue"), ".txt", "2+2=4\nThe sky is blue"},
		{"markdown utf8", []byte("caf\xc3\xa9"), ".md", "café"},
		{"invalid utf8", []byte("hello\x80world"), ".rst", "hello�world"},
		{"upper-case ext", []byte("x"), ".TXT", "x"},
		{"no ext", []byte("raw"), "", "raw"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.ExtractBytes(tt.content, tt.ext)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractBytes_unknownExtension(t *testing.T) {
	_, err := NewExtractor().ExtractBytes([]byte("raw content"), ".xyz")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	got, err := NewExtractor(WithPlainFallback()).ExtractBytes([]byte("raw content"), ".xyz")
	require.NoError(t, err)
	assert.Equal(t, "raw content", got)
}

func TestSupported(t *testing.T) {
	e := NewExtractor()
	assert.True(t, e.Supported("notes/a.txt"))
	assert.True(t, e.Supported("report.PDF"))
	assert.False(t, e.Supported("image.png"))
	assert.True(t, NewExtractor(WithPlainFallback()).Supported("image.png"))
	assert.Contains(t, Extensions(), ".odt")
}

func TestExtractBytes_xlsx(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Title"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "Value 1"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", "Value 2"))
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)

	got, err := NewExtractor().ExtractBytes(buf.Bytes(), ".xlsx")
	require.NoError(t, err)
	assert.Equal(t, "Title\nValue 1\tValue 2", got)
}

func TestExtractBytes_docx(t *testing.T) {
	e := NewExtractor()

	t.Run("default part", func(t *testing.T) {
		content := zipOf(t, map[string]string{"word/document.xml": wordDoc("Searchable docx")}, "word/document.xml")
		got, err := e.ExtractBytes(content, ".docx")
		require.NoError(t, err)
		assert.Equal(t, "Searchable docx", got)
	})

	t.Run("part from content types", func(t *testing.T) {
		types := `<Types><Override PartName="/word/document2.xml" ContentType="` + docxMainContentType + `"/></Types>`
		content := zipOf(t, map[string]string{
			contentTypesPath:     types,
			"word/document2.xml": wordDoc("From document2"),
		}, contentTypesPath, "word/document2.xml")
		got, err := e.ExtractBytes(content, ".docx")
		require.NoError(t, err)
		assert.Equal(t, "From document2", got)
	})

	t.Run("content type before part name", func(t *testing.T) {
		types := `<Types><Override ContentType="` + docxMainContentType + `" PartName="/word/document3.xml"/></Types>`
		content := zipOf(t, map[string]string{
			contentTypesPath:     types,
			"word/document3.xml": wordDoc("Reversed order"),
		}, contentTypesPath, "word/document3.xml")
		got, err := e.ExtractBytes(content, ".docx")
		require.NoError(t, err)
		assert.Equal(t, "Reversed order", got)
	})

	t.Run("missing part", func(t *testing.T) {
		content := zipOf(t, map[string]string{"other.xml": ""}, "other.xml")
		_, err := e.ExtractBytes(content, ".docx")
		assert.ErrorContains(t, err, "not found")
	})
}

func TestExtractBytes_pptx(t *testing.T) {
	e := NewExtractor()
	content := zipOf(t, map[string]string{
		"ppt/slides/slide2.xml": slide("Second slide"),
		"ppt/slides/slide1.xml": slide("First slide"),
	}, "ppt/slides/slide2.xml", "ppt/slides/slide1.xml")
	got, err := e.ExtractBytes(content, ".pptx")
	require.NoError(t, err)
	assert.Equal(t, "First slide Second slide", got)

	empty := zipOf(t, map[string]string{"docProps/core.xml": ""}, "docProps/core.xml")
	got, err = e.ExtractBytes(empty, ".pptx")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = e.ExtractBytes([]byte("not a zip"), ".pptx")
	assert.ErrorContains(t, err, "not a zip")
}

func TestExtractBytes_openDocument(t *testing.T) {
	e := NewExtractor()
	odp := `<office:document><draw:page><text:h>Slide title</text:h><text:p>Body text</text:p></draw:page></office:document>`
	got, err := e.ExtractBytes(zipOf(t, map[string]string{"content.xml": odp}, "content.xml"), ".odp")
	require.NoError(t, err)
	assert.Equal(t, "Body text Slide title", got)

	ods := `<table:table-row><table:table-cell><text:p>Cell A</text:p></table:table-cell><table:table-cell><text:span>Cell B</text:span></table:table-cell></table:table-row>`
	got, err = e.ExtractBytes(zipOf(t, map[string]string{"content.xml": ods}, "content.xml"), ".ods")
	require.NoError(t, err)
	assert.Equal(t, "Cell A Cell B", got)

	_, err = e.ExtractBytes(zipOf(t, map[string]string{"other.xml": ""}, "other.xml"), ".ods")
	assert.ErrorContains(t, err, "content.xml not found")
}

func TestExtract_file(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "problems.txt")
	require.NoError(t, os.WriteFile(path, []byte("3+5=8"), 0o600))

	got, err := NewExtractor().Extract(path)
	require.NoError(t, err)
	assert.Equal(t, "3+5=8", got)

	_, err = NewExtractor(WithMaxBytes(2)).Extract(path)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = NewExtractor().Extract(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}
