package graph

import (
	"context"
	"fmt"

	"github.com/WessleyAI/wessley-trips/engine/domain"
	"github.com/WessleyAI/wessley-trips/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// CreateClient registers a client in one write transaction: take the next
// client sequence value (locking the sequence), reject a taken email, then
// create the node with the id returned by idFor.
func (g *GraphStore) CreateClient(ctx context.Context, in domain.ClientInput, idFor func(seq int64) string) (domain.Client, error) {
	out, err := g.write(ctx, func(tx CypherRunner) (any, error) {
		seq, err := nextSequence(ctx, tx, seqClient)
		if err != nil {
			return nil, err
		}

		rec, err := single(ctx, tx, `MATCH (c:Client {email: $email}) RETURN count(c) AS count`,
			map[string]any{"email": in.Email})
		if err != nil {
			return nil, err
		}
		if countOf(rec) > 0 {
			return nil, domain.ErrEmailTaken
		}

		c := domain.Client{
			ClientID:  idFor(seq),
			FirstName: in.FirstName,
			LastName:  in.LastName,
			Email:     in.Email,
			BirthDate: in.BirthDate,
		}
		if _, err := tx.Run(ctx, `CREATE (c:Client $props)`, map[string]any{"props": clientToMap(c)}); err != nil {
			return nil, err
		}
		return c, nil
	})
	if err != nil {
		return domain.Client{}, fmt.Errorf("create client: %w", err)
	}
	return out.(domain.Client), nil
}

// GetClient returns a client by id.
func (g *GraphStore) GetClient(ctx context.Context, clientID string) (domain.Client, error) {
	c, err := g.clients.Get(ctx, clientID)
	return c, classify(err)
}

// clientPageSize is how many clients ListClients reads per query.
var clientPageSize = 500

// ListClients returns every client matching each non-empty field of f.
func (g *GraphStore) ListClients(ctx context.Context, f domain.ClientFilter) ([]domain.Client, error) {
	filter := make(map[string]any)
	if f.ClientID != "" {
		filter["clientId"] = f.ClientID
	}
	if f.Email != "" {
		filter["email"] = f.Email
	}
	items := []domain.Client{}
	for offset := 0; ; offset += clientPageSize {
		page, err := g.clients.List(ctx, repo.ListOpts{
			Filter:  filter,
			OrderBy: "clientId",
			Offset:  offset,
			Limit:   clientPageSize,
		})
		if err != nil {
			return nil, classify(err)
		}
		items = append(items, page...)
		if len(page) < clientPageSize {
			return items, nil
		}
	}
}

func clientToMap(c domain.Client) map[string]any {
	return map[string]any{
		"clientId":  c.ClientID,
		"firstName": c.FirstName,
		"lastName":  c.LastName,
		"email":     c.Email,
		"birthDate": c.BirthDate,
	}
}

func clientFromProps(props map[string]any) domain.Client {
	return domain.Client{
		ClientID:  strProp(props, "clientId"),
		FirstName: strProp(props, "firstName"),
		LastName:  strProp(props, "lastName"),
		Email:     strProp(props, "email"),
		BirthDate: strProp(props, "birthDate"),
	}
}

func clientFromRecord(rec *neo4j.Record) (domain.Client, error) {
	props, err := nodeProps(rec, "n")
	if err != nil {
		return domain.Client{}, err
	}
	return clientFromProps(props), nil
}
