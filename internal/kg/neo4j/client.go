package neo4j

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/complymatch/backend/pkg/circuitbreaker"
	"github.com/complymatch/backend/pkg/logger"
	"github.com/complymatch/backend/pkg/retry"
)

// Client maintains the compliance-category relatedness graph. Categories are
// nodes and RELATED_TO edges carry an overlap in (0,1]; the matcher consumes
// the graph as an immutable snapshot so a Neo4j outage never blocks matching.
type Client struct {
	driver      neo4j.DriverWithContext
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

type Category struct {
	Name        string
	Description string
}

type Relation struct {
	From    string
	To      string
	Overlap float64
}

func NewClient(uri, username, password string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		uri,
		neo4j.BasicAuth(username, password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	ctx := context.Background()
	err = driver.VerifyConnectivity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	cb := circuitbreaker.NewCircuitBreaker("neo4j", circuitbreaker.Config{
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          20 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Neo4j client initialized", zap.String("uri", uri))

	return &Client{
		driver:      driver,
		cb:          cb,
		retryConfig: retryConfig,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) executeWithRetry(ctx context.Context, operation func(neo4j.SessionWithContext) error) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: "neo4j"})
			defer session.Close(ctx)
			return operation(session)
		})
	})
}

func (c *Client) UpsertCategory(ctx context.Context, category *Category) error {
	return c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		query := `
			MERGE (c:Category {name: $name})
			SET c.description = $description,
			    c.updated_at = timestamp()
		`

		_, err := session.Run(ctx, query, map[string]interface{}{
			"name":        normalizeName(category.Name),
			"description": category.Description,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert category: %w", err)
		}

		logger.Debug("Category upserted", zap.String("name", category.Name))

		return nil
	})
}

// RelateCategories records overlap in both directions so snapshot lookups
// never depend on edge direction.
func (c *Client) RelateCategories(ctx context.Context, relation *Relation) error {
	if relation.Overlap <= 0 || relation.Overlap > 1 {
		return fmt.Errorf("overlap must be in (0, 1], got %f", relation.Overlap)
	}

	return c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		query := `
			MERGE (a:Category {name: $from})
			MERGE (b:Category {name: $to})
			MERGE (a)-[r:RELATED_TO]->(b)
			SET r.overlap = $overlap,
			    r.updated_at = timestamp()
		`

		_, err := session.Run(ctx, query, map[string]interface{}{
			"from":    normalizeName(relation.From),
			"to":      normalizeName(relation.To),
			"overlap": relation.Overlap,
		})
		if err != nil {
			return fmt.Errorf("failed to relate categories: %w", err)
		}

		logger.Debug("Categories related",
			zap.String("from", relation.From),
			zap.String("to", relation.To),
			zap.Float64("overlap", relation.Overlap),
		)

		return nil
	})
}

// Snapshot reads the whole relatedness graph into a symmetric overlap map
// keyed by lowercase category name.
func (c *Client) Snapshot(ctx context.Context) (map[string]map[string]float64, error) {
	related := make(map[string]map[string]float64)

	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		query := `
			MATCH (a:Category)-[r:RELATED_TO]->(b:Category)
			RETURN a.name, b.name, r.overlap
		`

		result, err := session.Run(ctx, query, nil)
		if err != nil {
			return fmt.Errorf("failed to read relatedness graph: %w", err)
		}

		for result.Next(ctx) {
			record := result.Record()

			from, _ := record.Get("a.name")
			to, _ := record.Get("b.name")
			overlap, _ := record.Get("r.overlap")

			fromName, ok1 := from.(string)
			toName, ok2 := to.(string)
			score, ok3 := overlap.(float64)
			if !ok1 || !ok2 || !ok3 {
				continue
			}

			addOverlap(related, fromName, toName, score)
			addOverlap(related, toName, fromName, score)
		}

		if err = result.Err(); err != nil {
			return fmt.Errorf("error iterating results: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	logger.Info("Category graph snapshot loaded", zap.Int("categories", len(related)))

	return related, nil
}

func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	var categories []Category

	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		query := `
			MATCH (c:Category)
			RETURN c.name, c.description
			ORDER BY c.name
		`

		result, err := session.Run(ctx, query, nil)
		if err != nil {
			return fmt.Errorf("failed to list categories: %w", err)
		}

		for result.Next(ctx) {
			record := result.Record()
			name, _ := record.Get("c.name")
			description, _ := record.Get("c.description")

			category := Category{}
			if s, ok := name.(string); ok {
				category.Name = s
			}
			if s, ok := description.(string); ok {
				category.Description = s
			}
			categories = append(categories, category)
		}

		if err = result.Err(); err != nil {
			return fmt.Errorf("error iterating results: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return categories, nil
}

// Seed loads a baseline set of compliance domains and their overlaps into an
// empty graph. Existing nodes and edges are merged, not duplicated.
func (c *Client) Seed(ctx context.Context) error {
	for i := range seedCategories {
		if err := c.UpsertCategory(ctx, &seedCategories[i]); err != nil {
			return err
		}
	}
	for i := range seedRelations {
		if err := c.RelateCategories(ctx, &seedRelations[i]); err != nil {
			return err
		}
	}

	logger.Info("Category graph seeded",
		zap.Int("categories", len(seedCategories)),
		zap.Int("relations", len(seedRelations)),
	)

	return nil
}

func addOverlap(related map[string]map[string]float64, from, to string, overlap float64) {
	from = normalizeName(from)
	to = normalizeName(to)
	if related[from] == nil {
		related[from] = make(map[string]float64)
	}
	related[from][to] = overlap
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
