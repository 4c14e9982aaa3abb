// Package semantic implements the vector store used by ingestion and search:
// a Qdrant-backed store for deployments and an in-process HNSW store for
// local runs and tests.
package semantic

import (
	"context"
	"errors"
	"fmt"

	"github.com/WessleyAI/catalog-search/engine/domain"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Payload keys stored with every point.
const (
	payloadEntryID          = "entry_id"
	payloadName             = "name"
	payloadShortDescription = "shortDescription"
	payloadSKU              = "sku"
)

// PointsAPI is the subset of the Qdrant points service the store uses.
type PointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// CollectionsAPI is the subset of the Qdrant collections service the store uses.
type CollectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// QdrantStore is the sole owner of all Qdrant operations.
type QdrantStore struct {
	conn        *grpc.ClientConn
	points      PointsAPI
	collections CollectionsAPI
	collection  string
}

var _ domain.VectorStore = (*QdrantStore)(nil)

// NewQdrant connects to Qdrant at the given gRPC address.
func NewQdrant(addr string, collection string) (*QdrantStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &QdrantStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// NewWithClients builds a store over existing service clients.
func NewWithClients(points PointsAPI, collections CollectionsAPI, collection string) *QdrantStore {
	return &QdrantStore{points: points, collections: collections, collection: collection}
}

// Close closes the underlying gRPC connection, if the store owns one.
func (s *QdrantStore) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// EnsureCollection creates the collection with cosine distance if missing.
func (s *QdrantStore) EnsureCollection(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("semantic: invalid dimensions %d", dims)
	}
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			return nil
		}
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", s.collection, err)
	}
	return nil
}

// DeleteCollection drops the collection and every point in it.
func (s *QdrantStore) DeleteCollection(ctx context.Context) error {
	_, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: s.collection})
	if err != nil {
		return fmt.Errorf("semantic: delete collection %s: %w", s.collection, err)
	}
	return nil
}

// PointID maps an entry ID onto the UUID Qdrant requires. The mapping is
// deterministic, so re-upserting an entry overwrites the same point.
func PointID(entryID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(entryID)).String()
}

// Upsert writes entries and waits for Qdrant to apply them.
func (s *QdrantStore) Upsert(ctx context.Context, entries []domain.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(entries))
	for i, e := range entries {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(e.ID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: e.Values},
				},
			},
			Payload: map[string]*pb.Value{
				payloadEntryID:          stringValue(e.ID),
				payloadName:             stringValue(e.Metadata.Name),
				payloadShortDescription: stringValue(e.Metadata.ShortDescription),
				payloadSKU:              stringValue(e.Metadata.SKU),
			},
		}
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return &domain.StoreError{Op: "upsert", Err: fmt.Errorf("qdrant upsert %d points: %w", len(entries), err)}
	}
	return nil
}

// Query returns up to opts.TopK nearest entries, highest score first.
func (s *QdrantStore) Query(ctx context.Context, vec domain.Vector, opts domain.QueryOptions) ([]domain.Match, error) {
	if opts.TopK <= 0 {
		return nil, &domain.StoreError{Op: "query", Err: errors.New("topK must be positive")}
	}
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vec,
		Limit:          uint64(opts.TopK),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: opts.ReturnMetadata},
		},
	})
	if err != nil {
		return nil, &domain.StoreError{Op: "query", Err: fmt.Errorf("qdrant search: %w", err)}
	}

	matches := make([]domain.Match, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		matches[i] = domain.Match{Score: r.GetScore(), Metadata: metadataFromPayload(r.GetPayload())}
	}
	return matches, nil
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func metadataFromPayload(payload map[string]*pb.Value) domain.Metadata {
	return domain.Metadata{
		Name:             payload[payloadName].GetStringValue(),
		ShortDescription: payload[payloadShortDescription].GetStringValue(),
		SKU:              payload[payloadSKU].GetStringValue(),
	}
}
