package vector

import (
	"context"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// ChunkClass is the Weaviate class holding paper chunks.
const ChunkClass = "PaperChunk"

// SchemaClient is the subset of the Weaviate schema API used at bootstrap.
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

// ChunkProperties lists every property of ChunkClass. Filter copies are
// exact-match strings; tag sets are comma-joined.
func ChunkProperties() []*models.Property {
	return []*models.Property{
		{Name: "chunkId", DataType: []string{"string"}},
		{Name: "documentId", DataType: []string{"string"}},
		{Name: "page", DataType: []string{"int"}},
		{Name: "chunkIndex", DataType: []string{"int"}},
		{Name: "section", DataType: []string{"text"}},
		{Name: "text", DataType: []string{"text"}},
		{Name: "status", DataType: []string{"string"}},
		{Name: "metadataIncomplete", DataType: []string{"boolean"}},
		{Name: "crossrefVerified", DataType: []string{"boolean"}},
		{Name: "chemistries", DataType: []string{"string"}},
		{Name: "topics", DataType: []string{"string"}},
	}
}

// EnsureSchema creates ChunkClass, or adds any properties an older
// deployment is missing.
func EnsureSchema(ctx context.Context, client SchemaClient) error {
	exists, err := client.ClassExists(ctx, ChunkClass)
	if err != nil {
		return err
	}

	properties := ChunkProperties()
	if !exists {
		return client.CreateClass(ctx, &models.Class{
			Class:       ChunkClass,
			Description: "An embedded passage of a research paper",
			Vectorizer:  "none",
			Properties:  properties,
		})
	}

	class, err := client.GetClass(ctx, ChunkClass)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(class.Properties))
	for _, p := range class.Properties {
		have[p.Name] = true
	}
	for _, p := range properties {
		if have[p.Name] {
			continue
		}
		if err := client.AddProperty(ctx, ChunkClass, p); err != nil {
			return err
		}
	}
	return nil
}

// Schema adapts a Weaviate client to SchemaClient.
type Schema struct {
	client *weaviate.Client
}

func NewSchema(client *weaviate.Client) *Schema {
	return &Schema{client: client}
}

func (s *Schema) ClassExists(ctx context.Context, className string) (bool, error) {
	return s.client.Schema().ClassExistenceChecker().WithClassName(className).Do(ctx)
}

func (s *Schema) CreateClass(ctx context.Context, class *models.Class) error {
	return s.client.Schema().ClassCreator().WithClass(class).Do(ctx)
}

func (s *Schema) GetClass(ctx context.Context, className string) (*models.Class, error) {
	return s.client.Schema().ClassGetter().WithClassName(className).Do(ctx)
}

func (s *Schema) AddProperty(ctx context.Context, className string, property *models.Property) error {
	return s.client.Schema().PropertyCreator().WithClassName(className).WithProperty(property).Do(ctx)
}
