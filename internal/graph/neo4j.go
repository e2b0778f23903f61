// Package graph backs the knowledge-graph tool with a Neo4j database.
package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"quantia/internal/domain"
)

const defaultMaxHops = 2

// Neo4jStore implements domain.GraphStore. The driver is created in Connect
// and reused for every query; process bootstrap owns the Connect/Close pair.
type Neo4jStore struct {
	uri      string
	username string
	password string
	driver   neo4j.DriverWithContext
	logger   *slog.Logger
}

type Config struct {
	URI      string
	Username string
	Password string
	Logger   *slog.Logger
}

func NewNeo4jStore(cfg Config) *Neo4jStore {
	if cfg.URI == "" {
		cfg.URI = "bolt://localhost:7687"
	}
	if cfg.Username == "" {
		cfg.Username = "neo4j"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Neo4jStore{
		uri:      cfg.URI,
		username: cfg.Username,
		password: cfg.Password,
		logger:   cfg.Logger,
	}
}

func (s *Neo4jStore) Connect(ctx context.Context) error {
	driver, err := neo4j.NewDriverWithContext(s.uri, neo4j.BasicAuth(s.username, s.password, ""))
	if err != nil {
		return fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return fmt.Errorf("neo4j not reachable: %w", err)
	}
	s.driver = driver
	s.logger.Info("connected to neo4j", "uri", s.uri)
	return nil
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	err := s.driver.Close(ctx)
	s.driver = nil
	return err
}

// Neighborhood returns the distinct nodes within maxHops of the owner's
// root Patient node. Cypher cannot parameterize the hop bound, so it is
// formatted into the pattern after clamping.
func (s *Neo4jStore) Neighborhood(ctx context.Context, ownerID int64, maxHops int) ([]domain.GraphNode, error) {
	if s.driver == nil {
		return nil, fmt.Errorf("neo4j: not connected")
	}
	if maxHops < 1 {
		maxHops = defaultMaxHops
	}

	query := fmt.Sprintf(
		"MATCH (p:Patient {user_id: $owner})-[*1..%d]-(n) RETURN DISTINCT n",
		maxHops,
	)
	result, err := neo4j.ExecuteQuery(ctx, s.driver, query,
		map[string]any{"owner": ownerID},
		neo4j.EagerResultTransformer,
	)
	if err != nil {
		return nil, fmt.Errorf("neo4j query: %w", err)
	}

	nodes := make([]domain.GraphNode, 0, len(result.Records))
	for _, record := range result.Records {
		value, ok := record.Get("n")
		if !ok {
			continue
		}
		node, ok := value.(dbtype.Node)
		if !ok {
			continue
		}
		nodes = append(nodes, domain.GraphNode{
			Labels: node.Labels,
			Props:  node.Props,
		})
	}
	return nodes, nil
}

var _ domain.GraphStore = (*Neo4jStore)(nil)
