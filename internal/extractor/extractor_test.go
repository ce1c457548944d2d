package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/doc-analyzer/backend/internal/analysis"
)

const (
	nsDecl   = `xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"`
	wordDecl = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`
)

func buildZip(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range parts {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func slide(runs ...string) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?><p:sld ` + nsDecl + `><p:cSld><p:spTree><p:sp><p:txBody><a:p>`)
	for _, r := range runs {
		sb.WriteString(`<a:r><a:t>` + r + `</a:t></a:r>`)
	}
	sb.WriteString(`</a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`)
	return sb.String()
}

func notes(runs ...string) string {
	return strings.Replace(strings.Replace(slide(runs...), "<p:sld ", "<p:notes ", 1), "</p:sld>", "</p:notes>", 1)
}

func newTestExtractor(pdf PDFTextExtractor) *Extractor {
	return New(Config{PDF: pdf})
}

func TestExtractPptxSkipsMalformedSlide(t *testing.T) {
	data := buildZip(t, map[string]string{
		"ppt/presentation.xml":  `<p:presentation ` + nsDecl + `/>`,
		"ppt/slides/slide1.xml": slide("Hello", "world"),
		"ppt/slides/slide2.xml": slide(),
		"ppt/slides/slide3.xml": `<p:sld ` + nsDecl + `><a:t>broken</p:sld>`,
	})

	res, err := newTestExtractor(nil).Extract(context.Background(), data, analysis.FormatPptx)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	want := "--- Slide 1 ---\nHello world\n\n--- Slide 2 ---"
	if res.Text != want {
		t.Fatalf("text = %q, want %q", res.Text, want)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", res.Warnings)
	}
	if w := res.Warnings[0]; w.Kind != WarningPartSkipped || w.Part != "ppt/slides/slide3.xml" {
		t.Fatalf("unexpected warning %v", w)
	}
}

func TestExtractPptxOrdersSlidesNumerically(t *testing.T) {
	data := buildZip(t, map[string]string{
		"ppt/slides/slide10.xml": slide("ten"),
		"ppt/slides/slide2.xml":  slide("two"),
		"ppt/slides/slide1.xml":  slide("one"),
	})

	res, err := newTestExtractor(nil).Extract(context.Background(), data, analysis.FormatPptx)
	if err != nil {
		t.Fatal(err)
	}
	i1 := strings.Index(res.Text, "--- Slide 1 ---")
	i2 := strings.Index(res.Text, "--- Slide 2 ---")
	i10 := strings.Index(res.Text, "--- Slide 10 ---")
	if !(i1 >= 0 && i1 < i2 && i2 < i10) {
		t.Fatalf("slides out of order:\n%s", res.Text)
	}
}

func TestExtractPptxNotesFollowRelationships(t *testing.T) {
	data := buildZip(t, map[string]string{
		"ppt/slides/slide1.xml":           slide("Intro"),
		"ppt/slides/slide2.xml":           slide("Body"),
		"ppt/notesSlides/notesSlide1.xml": notes("Speak", "slowly"),
		"ppt/notesSlides/notesSlide2.xml": notes(),
		"ppt/notesSlides/_rels/notesSlide1.xml.rels": `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/notesMaster" Target="../notesMasters/notesMaster1.xml"/>` +
			`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide" Target="../slides/slide2.xml"/>` +
			`</Relationships>`,
	})

	res, err := newTestExtractor(nil).Extract(context.Background(), data, analysis.FormatPptx)
	if err != nil {
		t.Fatal(err)
	}
	want := "--- Slide 1 ---\nIntro\n\n--- Slide 2 ---\nBody\n\n--- Notes ---\nNote for Slide 2:\nSpeak slowly"
	if res.Text != want {
		t.Fatalf("text = %q, want %q", res.Text, want)
	}
}

func TestExtractPptxAllPartsMalformed(t *testing.T) {
	data := buildZip(t, map[string]string{
		"ppt/slides/slide1.xml": `<p:sld>`,
		"ppt/slides/slide2.xml": `not xml at all <`,
	})

	_, err := newTestExtractor(nil).Extract(context.Background(), data, analysis.FormatPptx)
	var extErr *ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatalf("err = %v, want ExtractionError", err)
	}
}

func TestExtractRejectsBrokenArchive(t *testing.T) {
	for _, format := range []analysis.Format{analysis.FormatDocx, analysis.FormatPptx} {
		_, err := newTestExtractor(nil).Extract(context.Background(), []byte("PK not really"), format)
		var extErr *ExtractionError
		if !errors.As(err, &extErr) || extErr.Format != format {
			t.Errorf("%s: err = %v, want ExtractionError", format, err)
		}
	}
}

func TestExtractDocx(t *testing.T) {
	doc := `<w:document ` + wordDecl + `><w:body>` +
		`<w:p><w:r><w:t>Annual </w:t></w:r><w:r><w:t>Re</w:t></w:r><w:r><w:t>port</w:t></w:r></w:p>` +
		`<w:p></w:p>` +
		`<w:p><w:r><w:t>Name</w:t><w:tab/><w:t>Value</w:t></w:r></w:p>` +
		`</w:body></w:document>`
	foot := `<w:footnotes ` + wordDecl + `><w:footnote><w:p><w:r><w:t>See appendix.</w:t></w:r></w:p></w:footnote></w:footnotes>`

	data := buildZip(t, map[string]string{
		"word/document.xml":  doc,
		"word/footnotes.xml": foot,
	})

	res, err := newTestExtractor(nil).Extract(context.Background(), data, analysis.FormatDocx)
	if err != nil {
		t.Fatal(err)
	}
	want := "Annual Report\nName\tValue\n\nSee appendix."
	if res.Text != want {
		t.Fatalf("text = %q, want %q", res.Text, want)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings %v", res.Warnings)
	}
}

func TestExtractIndentedParts(t *testing.T) {
	slideXML := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:sld ` + nsDecl + `>
  <p:cSld>
    <p:spTree>
      <p:sp>
        <p:txBody>
          <a:p>
            <a:r>
              <a:t>Quarterly</a:t>
            </a:r>
            <a:r>
              <a:t>Review</a:t>
            </a:r>
          </a:p>
        </p:txBody>
      </p:sp>
    </p:spTree>
  </p:cSld>
</p:sld>`
	docXML := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document ` + wordDecl + `>
  <w:body>
    <w:p>
      <w:r>
        <w:t>Hello</w:t>
      </w:r>
    </w:p>
    <w:p>
      <w:r>
        <w:t>World</w:t>
      </w:r>
    </w:p>
  </w:body>
</w:document>`

	pptx := buildZip(t, map[string]string{
		"ppt/presentation.xml":  `<p:presentation ` + nsDecl + `/>`,
		"ppt/slides/slide1.xml": slideXML,
	})
	res, err := newTestExtractor(nil).Extract(context.Background(), pptx, analysis.FormatPptx)
	if err != nil {
		t.Fatalf("pptx: %v", err)
	}
	if want := "--- Slide 1 ---\nQuarterly Review"; res.Text != want {
		t.Fatalf("pptx text = %q, want %q", res.Text, want)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("pptx warnings = %v", res.Warnings)
	}

	docx := buildZip(t, map[string]string{"word/document.xml": docXML})
	res, err = newTestExtractor(nil).Extract(context.Background(), docx, analysis.FormatDocx)
	if err != nil {
		t.Fatalf("docx: %v", err)
	}
	if want := "Hello\nWorld"; res.Text != want {
		t.Fatalf("docx text = %q, want %q", res.Text, want)
	}
}

func TestExtractDocxMissingMainPart(t *testing.T) {
	data := buildZip(t, map[string]string{"word/styles.xml": `<w:styles ` + wordDecl + `/>`})

	_, err := newTestExtractor(nil).Extract(context.Background(), data, analysis.FormatDocx)
	var extErr *ExtractionError
	if !errors.As(err, &extErr) || extErr.Part != "word/document.xml" {
		t.Fatalf("err = %v, want ExtractionError for word/document.xml", err)
	}
}

func TestExtractOfficeMetadata(t *testing.T) {
	data := buildZip(t, map[string]string{
		"ppt/slides/slide1.xml": slide("Hello"),
		"docProps/core.xml": `<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/">` +
			`<dc:title>Roadmap</dc:title><dc:creator>Ana Lima</dc:creator><dcterms:created>2024-03-01T10:00:00Z</dcterms:created></cp:coreProperties>`,
		"docProps/app.xml": `<Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/extended-properties"><Slides>1</Slides><Company>Acme</Company></Properties>`,
	})

	res, err := newTestExtractor(nil).Extract(context.Background(), data, analysis.FormatPptx)
	if err != nil {
		t.Fatal(err)
	}
	m := res.Metadata
	if m["format"] != "pptx" || m["title"] != "Roadmap" || m["author"] != "Ana Lima" || m["company"] != "Acme" {
		t.Fatalf("metadata = %v", m)
	}
	if m["slides"] != 1 {
		t.Fatalf("slides = %#v, want int 1", m["slides"])
	}
	if m["created"] != "2024-03-01T10:00:00Z" {
		t.Fatalf("created = %v", m["created"])
	}
}

func TestExtractMetadataFailureIsWarning(t *testing.T) {
	data := buildZip(t, map[string]string{
		"ppt/slides/slide1.xml": slide("Hello"),
		"docProps/core.xml":     `<cp:coreProperties><dc:title>Roadmap</cp:coreProperties>`,
	})

	res, err := newTestExtractor(nil).Extract(context.Background(), data, analysis.FormatPptx)
	if err != nil {
		t.Fatalf("metadata failure must not fail extraction: %v", err)
	}
	if res.Text != "--- Slide 1 ---\nHello" {
		t.Fatalf("text = %q", res.Text)
	}
	if len(res.Metadata) != 1 || res.Metadata["format"] != "pptx" {
		t.Fatalf("metadata = %v, want format only", res.Metadata)
	}
	if !res.hasWarning(WarningMetadata) {
		t.Fatalf("warnings = %v, want metadata warning", res.Warnings)
	}
}

type failingPDF struct{ err error }

func (f failingPDF) ExtractText(context.Context, []byte) (string, error) { return "", f.err }

type stubPDF string

func (s stubPDF) ExtractText(context.Context, []byte) (string, error) { return string(s), nil }

func TestExtractPDFFallsBackToRawBytes(t *testing.T) {
	data := []byte("%PDF-1.4 visible text \xff\xfe tail")
	res, err := newTestExtractor(failingPDF{errors.New("xref broken")}).Extract(context.Background(), data, analysis.FormatPDF)
	if err != nil {
		t.Fatalf("pdf failure must not be fatal: %v", err)
	}
	if !res.Degraded {
		t.Fatal("expected degraded result")
	}
	if !strings.Contains(res.Text, "visible text") || !strings.Contains(res.Text, "\uFFFD") {
		t.Fatalf("text = %q", res.Text)
	}
	if !res.hasWarning(WarningPDFDegraded) {
		t.Fatalf("warnings = %v", res.Warnings)
	}
}

func TestExtractPDFUsesCollaborator(t *testing.T) {
	res, err := newTestExtractor(stubPDF("page one")).Extract(context.Background(), []byte("%PDF"), analysis.FormatPDF)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "page one" || res.Degraded {
		t.Fatalf("res = %+v", res)
	}
}

func TestExtractTextAndStatistics(t *testing.T) {
	res, err := newTestExtractor(nil).Extract(context.Background(), []byte("Hello world. Second sentence."), analysis.FormatTXT)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "Hello world. Second sentence." {
		t.Fatalf("text = %q", res.Text)
	}
	if res.Metadata["wordCount"] != 4 || res.Metadata["sentenceCount"] != 2 {
		t.Fatalf("metadata = %v", res.Metadata)
	}
}

func TestExtractHTML(t *testing.T) {
	page := `<html><head><title>Release notes</title><script>var x = 1;</script></head>
<body><nav>Home | Docs</nav><h1>Version 2</h1><p>Faster   startup.</p><ul><li>Fix login</li></ul><footer>(c) Acme</footer></body></html>`

	res, err := newTestExtractor(nil).Extract(context.Background(), []byte(page), analysis.FormatHTML)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "Version 2\nFaster startup.\nFix login" {
		t.Fatalf("text = %q", res.Text)
	}
	if res.Metadata["title"] != "Release notes" {
		t.Fatalf("title = %v", res.Metadata["title"])
	}
}

func TestExtractUnsupportedFormat(t *testing.T) {
	_, err := newTestExtractor(nil).Extract(context.Background(), []byte("x"), analysis.Format("odt"))
	var unsupported *UnsupportedFormatError
	if !errors.As(err, &unsupported) || unsupported.Format != "odt" {
		t.Fatalf("err = %v", err)
	}

	if _, err := DetectFormat("slides.key"); !errors.As(err, &unsupported) || unsupported.Format != ".key" {
		t.Fatalf("DetectFormat err = %v", err)
	}
}

func TestExtractHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newTestExtractor(nil).Extract(ctx, []byte("x"), analysis.FormatTXT); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestContentStreamText(t *testing.T) {
	stream := "BT\n/F1 12 Tf\n72 712 Td\n(Hello) Tj\nT*\n[(Wor) -20 (ld)] TJ\nET\n" +
		"BT (a\\(b\\)c) Tj ET\nBT (\\101\\102) Tj ET"

	got := contentStreamText([]byte(stream))
	want := "Hello\nWorld\na(b)c\nAB"
	if got != want {
		t.Fatalf("contentStreamText = %q, want %q", got, want)
	}
}
