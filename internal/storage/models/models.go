package models

import "time"

// Analysis is one stored analysis run. Record holds the analysis record as
// JSON so history survives changes to the in-memory types.
type Analysis struct {
	ID          string
	Fingerprint string
	Filename    string
	Format      string
	Language    string
	Options     string
	Summary     string
	Record      []byte
	Warnings    []string
	Degraded    bool
	DurationMS  int64
	CreatedAt   time.Time
}

// AnalysisSummary is the listing view of an Analysis.
type AnalysisSummary struct {
	ID         string
	Filename   string
	Format     string
	Language   string
	Summary    string
	Entities   int
	DurationMS int64
	CreatedAt  time.Time
}

// EntityMention is one entity reported by one analysis.
type EntityMention struct {
	AnalysisID string
	Name       string
	Type       string
	Mentions   int
	Relevance  float64
}

// EntityCount aggregates an entity across stored analyses.
type EntityCount struct {
	Name      string
	Type      string
	Documents int
	Mentions  int
}
