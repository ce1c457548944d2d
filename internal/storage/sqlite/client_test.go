package sqlite

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/doc-analyzer/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(filepath.Join(t.TempDir(), "analyses.db"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	if err := c.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	return c
}

func sampleAnalysis(id string, created time.Time) *models.Analysis {
	return &models.Analysis{
		ID:          id,
		Fingerprint: "fp-" + id,
		Filename:    id + ".pptx",
		Format:      "pptx",
		Language:    "English",
		Options:     "summary|json",
		Summary:     "summary of " + id,
		Record:      []byte(`{"summary":"summary of ` + id + `"}`),
		Warnings:    []string{"part_skipped: ppt/slides/slide3.xml"},
		DurationMS:  1200,
		CreatedAt:   created,
	}
}

func TestInsertAndGetAnalysis(t *testing.T) {
	c := newTestClient(t)
	created := time.Unix(1700000000, 0)

	a := sampleAnalysis("a1", created)
	entities := []models.EntityMention{{Name: "Acme", Type: "organization", Mentions: 3, Relevance: 0.9}}
	if err := c.InsertAnalysis(a, entities); err != nil {
		t.Fatalf("InsertAnalysis: %v", err)
	}

	got, err := c.GetAnalysis("a1")
	if err != nil {
		t.Fatalf("GetAnalysis: %v", err)
	}
	if got.Filename != "a1.pptx" || string(got.Record) != string(a.Record) || !got.CreatedAt.Equal(created) {
		t.Fatalf("got %+v", got)
	}
	if len(got.Warnings) != 1 || got.Warnings[0] != a.Warnings[0] {
		t.Fatalf("warnings = %v", got.Warnings)
	}

	byFP, err := c.FindByFingerprint("fp-a1")
	if err != nil || byFP.ID != "a1" {
		t.Fatalf("FindByFingerprint = %+v, %v", byFP, err)
	}
}

func TestGetAnalysisNotFound(t *testing.T) {
	c := newTestClient(t)
	if _, err := c.GetAnalysis("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := c.DeleteAnalysis("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete err = %v, want ErrNotFound", err)
	}
}

func TestListAnalysesNewestFirst(t *testing.T) {
	c := newTestClient(t)
	base := time.Unix(1700000000, 0)
	for i, id := range []string{"old", "mid", "new"} {
		entities := make([]models.EntityMention, i)
		for j := range entities {
			entities[j] = models.EntityMention{Name: "Acme", Type: "organization", Mentions: 1, Relevance: 0.7}
		}
		if err := c.InsertAnalysis(sampleAnalysis(id, base.Add(time.Duration(i)*time.Hour)), entities); err != nil {
			t.Fatal(err)
		}
	}

	list, err := c.ListAnalyses(2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "new" || list[1].ID != "mid" {
		t.Fatalf("list = %+v", list)
	}
	if list[0].Entities != 2 {
		t.Fatalf("entities = %d", list[0].Entities)
	}

	top, err := c.TopEntities(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 1 || top[0].Documents != 2 || top[0].Mentions != 3 {
		t.Fatalf("top = %+v", top)
	}
}

func TestReinsertReplacesEntities(t *testing.T) {
	c := newTestClient(t)
	a := sampleAnalysis("a1", time.Unix(1700000000, 0))

	if err := c.InsertAnalysis(a, []models.EntityMention{{Name: "Old", Type: "t"}}); err != nil {
		t.Fatal(err)
	}
	a.Summary = "updated"
	if err := c.InsertAnalysis(a, []models.EntityMention{{Name: "New", Type: "t"}}); err != nil {
		t.Fatal(err)
	}

	top, err := c.TopEntities(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 1 || top[0].Name != "New" {
		t.Fatalf("top = %+v", top)
	}
	got, _ := c.GetAnalysis("a1")
	if got.Summary != "updated" {
		t.Fatalf("summary = %q", got.Summary)
	}
}

func TestDeleteAnalysisCascades(t *testing.T) {
	c := newTestClient(t)
	if err := c.InsertAnalysis(sampleAnalysis("a1", time.Now()), []models.EntityMention{{Name: "X", Type: "t"}}); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteAnalysis("a1"); err != nil {
		t.Fatal(err)
	}
	top, err := c.TopEntities(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 0 {
		t.Fatalf("entities survived delete: %+v", top)
	}
}
