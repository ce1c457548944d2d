package neo4j

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/doc-analyzer/backend/internal/analysis"
	"github.com/doc-analyzer/backend/internal/metrics"
	"github.com/doc-analyzer/backend/pkg/circuitbreaker"
	"github.com/doc-analyzer/backend/pkg/logger"
	"github.com/doc-analyzer/backend/pkg/retry"
)

// Client writes analyses into a document/entity graph:
// (:Document)-[:MENTIONS {relevance, mentions}]->(:Entity).
type Client struct {
	driver      neo4j.DriverWithContext
	database    string
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

type Document struct {
	ID       string
	Filename string
	Format   string
	Language string
}

// RelatedDocument is a document sharing entities with another one.
type RelatedDocument struct {
	ID             string   `json:"id"`
	Filename       string   `json:"filename"`
	SharedEntities []string `json:"sharedEntities"`
}

func NewClient(ctx context.Context, uri, username, password, database string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		uri,
		neo4j.BasicAuth(username, password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	err = driver.VerifyConnectivity(ctx)
	if err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	if database == "" {
		database = "neo4j"
	}

	cb := circuitbreaker.New("neo4j", circuitbreaker.Config{
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          20 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
		OnStateChange: func(name string, _, to circuitbreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	retryConfig := retry.Config{
		Name:           "neo4j",
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Neo4j client initialized", zap.String("uri", uri), zap.String("database", database))

	return &Client{
		driver:      driver,
		database:    database,
		cb:          cb,
		retryConfig: retryConfig,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) Ping(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

func (c *Client) executeWithRetry(ctx context.Context, operation func(ctx context.Context, session neo4j.SessionWithContext) error) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return c.cb.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, c.retryConfig, func(ctx context.Context) error {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
			defer session.Close(ctx)
			return operation(ctx, session)
		})
	})
}

// EntityKey normalizes an entity so the same name and type from different
// documents meet in one node.
func EntityKey(e analysis.Entity) string {
	return strings.ToLower(strings.TrimSpace(e.Type)) + ":" + strings.ToLower(strings.Join(strings.Fields(e.Name), " "))
}

// RecordAnalysis merges the document node and one MENTIONS edge per entity.
// Re-recording a document replaces its earlier edges.
func (c *Client) RecordAnalysis(ctx context.Context, doc Document, entities []analysis.Entity) error {
	rows := make([]map[string]interface{}, 0, len(entities))
	for _, e := range entities {
		rows = append(rows, map[string]interface{}{
			"key":       EntityKey(e),
			"name":      e.Name,
			"type":      e.Type,
			"mentions":  int64(e.Mentions),
			"relevance": e.Relevance,
		})
	}

	err := c.executeWithRetry(ctx, func(ctx context.Context, session neo4j.SessionWithContext) error {
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
			query := `
				MERGE (d:Document {id: $id})
				SET d.filename = $filename,
				    d.format = $format,
				    d.language = $language,
				    d.analyzed_at = timestamp()
				WITH d
				OPTIONAL MATCH (d)-[old:MENTIONS]->(:Entity)
				DELETE old
			`
			if _, err := tx.Run(ctx, query, map[string]interface{}{
				"id":       doc.ID,
				"filename": doc.Filename,
				"format":   doc.Format,
				"language": doc.Language,
			}); err != nil {
				return nil, err
			}

			query = `
				MATCH (d:Document {id: $id})
				UNWIND $entities AS row
				MERGE (e:Entity {key: row.key})
				ON CREATE SET e.name = row.name, e.type = row.type
				MERGE (d)-[m:MENTIONS]->(e)
				SET m.mentions = row.mentions,
				    m.relevance = row.relevance
			`
			_, err := tx.Run(ctx, query, map[string]interface{}{
				"id":       doc.ID,
				"entities": rows,
			})
			return nil, err
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to record analysis: %w", err)
	}

	metrics.KGEntitiesRecorded.Add(float64(len(entities)))
	logger.Debug("Analysis recorded in KG",
		zap.String("doc_id", doc.ID),
		zap.Int("entities", len(entities)),
	)
	return nil
}

// RemoveDocument deletes a document node and its edges, then any entity no
// other document mentions.
func (c *Client) RemoveDocument(ctx context.Context, docID string) error {
	err := c.executeWithRetry(ctx, func(ctx context.Context, session neo4j.SessionWithContext) error {
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
			query := `
				MATCH (d:Document {id: $id})
				OPTIONAL MATCH (d)-[:MENTIONS]->(e:Entity)
				DETACH DELETE d
				WITH e
				WHERE e IS NOT NULL AND NOT (e)<-[:MENTIONS]-(:Document)
				DELETE e
			`
			_, err := tx.Run(ctx, query, map[string]interface{}{"id": docID})
			return nil, err
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to remove document: %w", err)
	}

	logger.Debug("Document removed from KG", zap.String("doc_id", docID))
	return nil
}

// RelatedDocuments lists other documents ranked by how many entities they
// share with docID.
func (c *Client) RelatedDocuments(ctx context.Context, docID string, limit int) ([]RelatedDocument, error) {
	if limit <= 0 {
		limit = 10
	}

	var related []RelatedDocument
	err := c.executeWithRetry(ctx, func(ctx context.Context, session neo4j.SessionWithContext) error {
		related = related[:0]

		query := `
			MATCH (d:Document {id: $id})-[:MENTIONS]->(e:Entity)<-[:MENTIONS]-(other:Document)
			WHERE other.id <> $id
			RETURN other.id AS id, other.filename AS filename, collect(e.name) AS shared
			ORDER BY size(shared) DESC, id
			LIMIT $limit
		`

		result, err := session.Run(ctx, query, map[string]interface{}{
			"id":    docID,
			"limit": int64(limit),
		})
		if err != nil {
			return fmt.Errorf("failed to query related documents: %w", err)
		}

		for result.Next(ctx) {
			record := result.Record()
			id, _ := record.Get("id")
			filename, _ := record.Get("filename")
			shared, _ := record.Get("shared")

			rd := RelatedDocument{}
			rd.ID, _ = id.(string)
			rd.Filename, _ = filename.(string)
			if names, ok := shared.([]interface{}); ok {
				for _, n := range names {
					if s, ok := n.(string); ok {
						rd.SharedEntities = append(rd.SharedEntities, s)
					}
				}
			}
			related = append(related, rd)
		}

		if err = result.Err(); err != nil {
			return fmt.Errorf("error iterating results: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return related, nil
}
