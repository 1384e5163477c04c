package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
)

const (
	contentTypesPath    = "[Content_Types].xml"
	docxDefaultPath     = "word/document.xml"
	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
	pptxSlidePrefix     = "ppt/slides/slide"
	openDocContentPath  = "content.xml"
)

var (
	wordText  = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
	slideText = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)
	odfPara   = regexp.MustCompile(`<text:p[^>]*>([^<]*)</text:p>`)
	odfSpan   = regexp.MustCompile(`<text:span[^>]*>([^<]*)</text:span>`)
	odfHead   = regexp.MustCompile(`<text:h[^>]*>([^<]*)</text:h>`)

	// Override elements list PartName and ContentType in either order.
	mainPartA = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`)
	mainPartB = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`)
)

// zipPackage is an opened OOXML or OpenDocument container.
type zipPackage struct {
	kind string
	zr   *zip.Reader
}

func openPackage(kind string, content []byte) (*zipPackage, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract %s: not a zip: %w", kind, err)
	}
	return &zipPackage{kind: kind, zr: zr}, nil
}

// entry returns the bytes of name, or nil when the package has no such entry.
func (p *zipPackage) entry(name string) ([]byte, error) {
	for _, f := range p.zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("extract %s: open %s: %w", p.kind, name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("extract %s: read %s: %w", p.kind, name, err)
		}
		return data, nil
	}
	return nil, nil
}

func (p *zipPackage) mustEntry(name string) ([]byte, error) {
	data, err := p.entry(name)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("extract %s: %s not found", p.kind, name)
	}
	return data, nil
}

// textJoiner collects regex captures separated by single spaces.
type textJoiner struct {
	b strings.Builder
}

func (j *textJoiner) collect(re *regexp.Regexp, xml string) {
	for _, m := range re.FindAllStringSubmatch(xml, -1) {
		s := strings.TrimSpace(m[1])
		if s == "" {
			continue
		}
		if j.b.Len() > 0 {
			j.b.WriteByte(' ')
		}
		j.b.WriteString(s)
	}
}

func (j *textJoiner) String() string { return strings.TrimSpace(j.b.String()) }

// readDOCX pulls every <w:t> run from the main document part. The part path comes
// from [Content_Types].xml when present.
func readDOCX(content []byte) (string, error) {
	pkg, err := openPackage("DOCX", content)
	if err != nil {
		return "", err
	}
	docPath := docxDefaultPath
	types, err := pkg.entry(contentTypesPath)
	if err != nil {
		return "", err
	}
	if types != nil {
		if m := mainPartA.FindSubmatch(types); len(m) > 1 {
			docPath = strings.TrimPrefix(string(m[1]), "/")
		} else if m := mainPartB.FindSubmatch(types); len(m) > 1 {
			docPath = strings.TrimPrefix(string(m[1]), "/")
		}
	}
	doc, err := pkg.mustEntry(docPath)
	if err != nil {
		return "", err
	}
	var j textJoiner
	j.collect(wordText, string(doc))
	return j.String(), nil
}

// readPPTX pulls <a:t> runs from each slide in slide-name order.
func readPPTX(content []byte) (string, error) {
	pkg, err := openPackage("PPTX", content)
	if err != nil {
		return "", err
	}
	var slides []string
	for _, f := range pkg.zr.File {
		if strings.HasPrefix(f.Name, pptxSlidePrefix) && strings.HasSuffix(f.Name, ".xml") {
			slides = append(slides, f.Name)
		}
	}
	sort.Strings(slides)
	var j textJoiner
	for _, name := range slides {
		data, err := pkg.mustEntry(name)
		if err != nil {
			return "", err
		}
		j.collect(slideText, string(data))
	}
	return j.String(), nil
}

func readODP(content []byte) (string, error) {
	return readOpenDocument("ODP", content, odfPara, odfSpan, odfHead)
}

func readODS(content []byte) (string, error) {
	return readOpenDocument("ODS", content, odfPara, odfSpan)
}

func readOpenDocument(kind string, content []byte, tags ...*regexp.Regexp) (string, error) {
	pkg, err := openPackage(kind, content)
	if err != nil {
		return "", err
	}
	data, err := pkg.mustEntry(openDocContentPath)
	if err != nil {
		return "", err
	}
	var j textJoiner
	for _, re := range tags {
		j.collect(re, string(data))
	}
	return j.String(), nil
}
