package weaviate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/fault"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"paperlib/internal/chunkindex"
	"paperlib/internal/lifecycle"
	"paperlib/internal/vector"
)

const pageSize = 500

// chunkNamespace seeds deterministic object IDs.
var chunkNamespace = uuid.MustParse("6f1c9a52-3c1e-4c69-9d0e-4b7f5b2a8e11")

// ObjectID maps a chunk ID to its Weaviate object UUID.
func ObjectID(chunkID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(chunkNamespace, []byte(chunkID)).String())
}

// Store is a chunkindex.Index backed by the PaperChunk class.
type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

func chunkFields(withVector bool) []graphql.Field {
	additional := []graphql.Field{{Name: "id"}}
	if withVector {
		additional = append(additional, graphql.Field{Name: "vector"})
	}
	return []graphql.Field{
		{Name: "chunkId"},
		{Name: "documentId"},
		{Name: "page"},
		{Name: "chunkIndex"},
		{Name: "section"},
		{Name: "text"},
		{Name: "status"},
		{Name: "metadataIncomplete"},
		{Name: "crossrefVerified"},
		{Name: "chemistries"},
		{Name: "topics"},
		{Name: "_additional", Fields: additional},
	}
}

func filterProperties(f chunkindex.FilterFields) map[string]interface{} {
	return map[string]interface{}{
		"status":             string(f.Status),
		"metadataIncomplete": f.MetadataIncomplete,
		"crossrefVerified":   f.CrossrefVerified,
		"chemistries":        chunkindex.JoinTags(f.Chemistries),
		"topics":             chunkindex.JoinTags(f.Topics),
	}
}

// Upsert writes the chunk through the batch endpoint, which replaces an
// existing object with the same ID.
func (s *Store) Upsert(ctx context.Context, c chunkindex.Chunk) error {
	props := filterProperties(c.Filter)
	props["chunkId"] = c.ID
	props["documentId"] = c.DocumentID
	props["page"] = c.Page
	props["chunkIndex"] = c.Index
	props["section"] = c.Section
	props["text"] = c.Text

	res, err := s.client.Batch().ObjectsBatcher().
		WithObjects(&models.Object{
			Class:      vector.ChunkClass,
			ID:         ObjectID(c.ID),
			Properties: props,
			Vector:     c.Vector,
		}).
		Do(ctx)
	if err != nil {
		return err
	}
	for _, r := range res {
		if r.Result != nil && r.Result.Errors != nil {
			var msgs []string
			for _, e := range r.Result.Errors.Error {
				msgs = append(msgs, e.Message)
			}
			return fmt.Errorf("upsert chunk %s: %s", c.ID, strings.Join(msgs, "; "))
		}
	}
	return nil
}

// GetAll walks the class with cursor pagination.
func (s *Store) GetAll(ctx context.Context) ([]chunkindex.Chunk, error) {
	var all []chunkindex.Chunk
	after := ""
	for {
		q := s.client.GraphQL().Get().
			WithClassName(vector.ChunkClass).
			WithLimit(pageSize).
			WithFields(chunkFields(true)...)
		if after != "" {
			q = q.WithAfter(after)
		}
		res, err := q.Do(ctx)
		if err != nil {
			return nil, err
		}
		if len(res.Errors) > 0 {
			return nil, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
		}

		page := parseObjects(res.Data)
		for _, o := range page {
			all = append(all, o.chunk)
		}
		if len(page) < pageSize {
			return all, nil
		}
		after = page[len(page)-1].objectID
	}
}

// UpdateMetadata merges the filter properties into each object. Objects
// that no longer exist are skipped.
func (s *Store) UpdateMetadata(ctx context.Context, ids []string, f chunkindex.FilterFields) error {
	props := filterProperties(f)
	for _, id := range ids {
		err := s.client.Data().Updater().
			WithMerge().
			WithClassName(vector.ChunkClass).
			WithID(ObjectID(id).String()).
			WithProperties(props).
			Do(ctx)
		if isNotFound(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("update chunk %s: %w", id, err)
		}
	}
	return nil
}

func (s *Store) Nearest(ctx context.Context, vec []float32, n int) ([]chunkindex.Result, error) {
	if n <= 0 {
		return []chunkindex.Result{}, nil
	}
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	fields := chunkFields(false)
	fields[len(fields)-1] = graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "certainty"}}}

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ChunkClass).
		WithNearVector(nearVector).
		WithLimit(n).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	objs := parseObjects(res.Data)
	results := make([]chunkindex.Result, 0, len(objs))
	for _, o := range objs {
		results = append(results, chunkindex.Result{Chunk: o.chunk, Score: o.certainty})
	}
	return results, nil
}

func (s *Store) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	res, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ChunkClass).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"documentId"}).
			WithOperator(filters.Equal).
			WithValueString(documentID)).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if res == nil || res.Results == nil {
		return 0, nil
	}
	return int(res.Results.Successful), nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(vector.ChunkClass).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	agg, _ := res.Data["Aggregate"].(map[string]interface{})
	rows, _ := agg[vector.ChunkClass].([]interface{})
	if len(rows) == 0 {
		return 0, nil
	}
	row, _ := rows[0].(map[string]interface{})
	meta, _ := row["meta"].(map[string]interface{})
	count, _ := meta["count"].(float64)
	return int(count), nil
}

func isNotFound(err error) bool {
	var werr *fault.WeaviateClientError
	return errors.As(err, &werr) && werr.StatusCode == http.StatusNotFound
}

type object struct {
	objectID  string
	certainty float32
	chunk     chunkindex.Chunk
}

func parseObjects(data map[string]models.JSONObject) []object {
	get, _ := data["Get"].(map[string]interface{})
	raw, _ := get[vector.ChunkClass].([]interface{})

	out := make([]object, 0, len(raw))
	for _, r := range raw {
		props, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		var o object
		o.chunk.ID, _ = props["chunkId"].(string)
		o.chunk.DocumentID, _ = props["documentId"].(string)
		o.chunk.Section, _ = props["section"].(string)
		o.chunk.Text, _ = props["text"].(string)
		if page, ok := props["page"].(float64); ok {
			o.chunk.Page = int(page)
		}
		if idx, ok := props["chunkIndex"].(float64); ok {
			o.chunk.Index = int(idx)
		}

		status, _ := props["status"].(string)
		chems, _ := props["chemistries"].(string)
		topics, _ := props["topics"].(string)
		o.chunk.Filter.Status = lifecycle.Status(status)
		o.chunk.Filter.MetadataIncomplete, _ = props["metadataIncomplete"].(bool)
		o.chunk.Filter.CrossrefVerified, _ = props["crossrefVerified"].(bool)
		o.chunk.Filter.Chemistries = chunkindex.SplitTags(chems)
		o.chunk.Filter.Topics = chunkindex.SplitTags(topics)

		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			o.objectID, _ = additional["id"].(string)
			if c, ok := additional["certainty"].(float64); ok {
				o.certainty = float32(c)
			}
			if vec, ok := additional["vector"].([]interface{}); ok {
				o.chunk.Vector = make([]float32, 0, len(vec))
				for _, v := range vec {
					if f, ok := v.(float64); ok {
						o.chunk.Vector = append(o.chunk.Vector, float32(f))
					}
				}
			}
		}
		out = append(out, o)
	}
	return out
}
