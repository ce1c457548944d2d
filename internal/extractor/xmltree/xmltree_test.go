package xmltree

import (
	"strings"
	"testing"
)

const slideXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
  <p:cSld><p:spTree>
    <p:sp><p:txBody>
      <a:p><a:r><a:t>Quarterly</a:t></a:r><a:r><a:t>Review</a:t></a:r></a:p>
      <a:p><a:r><a:rPr lang="en-US"/><a:t>Agenda</a:t></a:r></a:p>
    </p:txBody></p:sp>
    <p:grpSp><p:sp><p:txBody><a:p><a:fld type="slidenum"><a:t>3</a:t></a:fld></a:p></p:txBody></p:sp></p:grpSp>
  </p:spTree></p:cSld>
</p:sld>`

func TestParseAndCollectTextRuns(t *testing.T) {
	root, err := Parse(strings.NewReader(slideXML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if root.Name.Local != "sld" {
		t.Fatalf("root = %q, want sld", root.Name.Local)
	}

	runs := root.Collect(IsDrawingTextRun)
	var got []string
	for _, r := range runs {
		got = append(got, r.Text)
	}
	want := []string{"Quarterly", "Review", "Agenda", "3"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("runs = %v, want %v", got, want)
	}
}

func TestTextRunPredicateAcceptsUndeclaredPrefix(t *testing.T) {
	root, err := Parse(strings.NewReader(`<sld><a:p><a:r><a:t>hi</a:t></a:r></a:p><w:t>no</w:t></sld>`))
	if err != nil {
		t.Fatal(err)
	}
	runs := root.Collect(IsDrawingTextRun)
	if len(runs) != 1 || runs[0].Text != "hi" {
		t.Fatalf("runs = %+v", runs)
	}
	if got := root.Collect(IsWordTextRun); len(got) != 1 || got[0].Text != "no" {
		t.Fatalf("word runs = %+v", got)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for name, doc := range map[string]string{
		"mismatched": `<p:sld><a:t>oops</p:sld>`,
		"unclosed":   `<p:sld><a:t>oops</a:t>`,
		"empty":      ``,
		"two roots":  `<a/><b/>`,
	} {
		if _, err := Parse(strings.NewReader(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestWalkSkipsChildren(t *testing.T) {
	root, err := Parse(strings.NewReader(`<r><skip><a:t>x</a:t></skip><a:t>y</a:t></r>`))
	if err != nil {
		t.Fatal(err)
	}
	var seen []string
	root.Walk(func(n *Node) bool {
		if IsDrawingTextRun(n) {
			seen = append(seen, n.Text)
		}
		return n.Name.Local != "skip"
	})
	if len(seen) != 1 || seen[0] != "y" {
		t.Fatalf("seen = %v, want [y]", seen)
	}
}

func TestAttrAndChild(t *testing.T) {
	root, err := Parse(strings.NewReader(`<Relationships><Relationship Id="rId2" Target="../slides/slide4.xml"/></Relationships>`))
	if err != nil {
		t.Fatal(err)
	}
	rel := root.Child("Relationship")
	if rel == nil || rel.Attr("Target") != "../slides/slide4.xml" {
		t.Fatalf("unexpected relationship node %+v", rel)
	}
	if root.Child("missing") != nil {
		t.Fatal("expected nil for missing child")
	}
}

func TestParseIndentedDocument(t *testing.T) {
	for name, doc := range map[string]string{
		"word": "<w:document>\n  <w:body>\n    <w:p><w:r><w:t>Hello</w:t></w:r></w:p>\n  </w:body>\n</w:document>",
		"deep": "<a>\n <b>\n  <c>\n   <d>\n    <e>x</e>\n   </d>\n  </c>\n </b>\n</a>",
	} {
		root, err := Parse(strings.NewReader(doc))
		if err != nil {
			t.Fatalf("%s: Parse: %v", name, err)
		}
		if len(root.Children) != 1 {
			t.Fatalf("%s: children = %d", name, len(root.Children))
		}
	}
}

func TestParseKeepsTextAroundChildren(t *testing.T) {
	root, err := Parse(strings.NewReader("<a>one <b>two</b> three<c/>four</a>"))
	if err != nil {
		t.Fatal(err)
	}
	if root.Text != "one  threefour" {
		t.Fatalf("root text = %q", root.Text)
	}
	if b := root.Child("b"); b == nil || b.Text != "two" {
		t.Fatalf("b = %+v", b)
	}
}
