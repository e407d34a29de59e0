package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/54b3r/docrag/internal/rag"
)

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// Qdrant implements rag.VectorStore on a Qdrant instance. Point IDs are
// numeric; payloads are stored as {"text": ..., "meta": {...}}.
type Qdrant struct {
	// client is the underlying Qdrant gRPC client. It is goroutine-safe.
	client *qdrant.Client
}

// NewQdrant creates the gRPC client. The connection is established lazily,
// so an unreachable server surfaces as ErrConnection on first use.
func NewQdrant(cfg QdrantConfig) (*Qdrant, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: %w: failed to create client: %w", rag.ErrConnection, err)
	}
	return &Qdrant{client: client}, nil
}

// EnsureCollection creates name if it does not already exist.
func (s *Qdrant) EnsureCollection(ctx context.Context, name string, dims int, metric rag.Metric) error {
	if err := checkShape(name, dims, metric); err != nil {
		return err
	}
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return classify("check collection existence", name, err)
	}
	if exists {
		info, err := s.describe(ctx, name)
		if err != nil {
			return err
		}
		return mismatch(name, info, dims, metric)
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dims),
			Distance: toDistance(metric),
		}),
	})
	if err != nil {
		return classify("create collection", name, err)
	}
	return nil
}

// Upsert writes the batch with wait=true so success means the points are
// applied. Qdrant cannot report partial success; a failed call counts zero.
func (s *Qdrant) Upsert(ctx context.Context, collection string, records []rag.VectorRecord) error {
	fail := func(err error) error {
		return &rag.UpsertError{Collection: collection, Attempted: len(records), Err: err}
	}

	info, err := s.describe(ctx, collection)
	if err != nil {
		return fail(err)
	}
	if err := rag.ValidateRecords(records, info.Dimensions); err != nil {
		return fail(fmt.Errorf("qdrant: %w", err))
	}
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(r.ID),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: qdrant.NewValueMap(toPayloadMap(r.Payload)),
		})
	}

	res, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fail(classify("upsert", collection, err))
	}
	if st := res.GetStatus(); st != qdrant.UpdateStatus_Completed {
		return fail(fmt.Errorf("qdrant: upsert into %q finished with status %s", collection, st))
	}
	return nil
}

// Search queries the collection's configured metric. It asks Qdrant for
// searchOverfetch extra points and cuts after re-sorting, so equal scores at
// the boundary are ordered by ascending ID.
func (s *Qdrant) Search(ctx context.Context, collection string, vector []float32, limit int) (rag.SearchResult, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	info, err := s.describe(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != info.Dimensions {
		return nil, fmt.Errorf("qdrant: %w: query has %d dimensions, collection %q has %d",
			rag.ErrDimensionMismatch, len(vector), collection, info.Dimensions)
	}

	n := uint64(fetchLimit(limit))
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &n,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, classify("search", collection, err)
	}

	hits := make(rag.SearchResult, 0, len(points))
	for _, p := range points {
		hits = append(hits, rag.Hit{
			ID:      p.GetId().GetNum(),
			Score:   p.GetScore(),
			Payload: fromPayloadMap(p.GetPayload()),
		})
	}
	return topHits(hits, info.Metric, limit), nil
}

// ListCollections returns every collection on the server.
func (s *Qdrant) ListCollections(ctx context.Context) ([]string, error) {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, classify("list collections", "", err)
	}
	return names, nil
}

// Collection returns the collection's shape and exact point count.
func (s *Qdrant) Collection(ctx context.Context, name string) (rag.CollectionInfo, error) {
	info, err := s.describe(ctx, name)
	if err != nil {
		return rag.CollectionInfo{}, err
	}
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return rag.CollectionInfo{}, classify("count points", name, err)
	}
	info.Points = count
	return info, nil
}

// Ping checks that the server answers health checks.
func (s *Qdrant) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return classify("health check", "", err)
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (s *Qdrant) Close() error {
	return s.client.Close()
}

// describe fetches the dimensionality and metric of a collection.
func (s *Qdrant) describe(ctx context.Context, name string) (rag.CollectionInfo, error) {
	ci, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return rag.CollectionInfo{}, classify("get collection info", name, err)
	}
	params := ci.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return rag.CollectionInfo{}, fmt.Errorf("qdrant: %w: collection %q uses named vectors, expected a single unnamed vector",
			rag.ErrConfiguration, name)
	}
	return rag.CollectionInfo{
		Name:       name,
		Dimensions: int(params.GetSize()),
		Metric:     fromDistance(params.GetDistance()),
		Points:     ci.GetPointsCount(),
	}, nil
}

// classify maps gRPC failures onto rag error kinds.
func classify(op, collection string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("qdrant: %s: %w: %w", op, rag.ErrConnection, err)
	}
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("qdrant: %s: %w: %q", op, rag.ErrCollectionNotFound, collection)
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled, codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("qdrant: %s: %w: %w", op, rag.ErrConnection, err)
	case codes.InvalidArgument:
		return fmt.Errorf("qdrant: %s: %w: %w", op, rag.ErrConfiguration, err)
	default:
		return fmt.Errorf("qdrant: %s: %w", op, err)
	}
}

func toDistance(m rag.Metric) qdrant.Distance {
	switch m {
	case rag.Euclidean:
		return qdrant.Distance_Euclid
	case rag.Dot:
		return qdrant.Distance_Dot
	default:
		return qdrant.Distance_Cosine
	}
}

func fromDistance(d qdrant.Distance) rag.Metric {
	switch d {
	case qdrant.Distance_Euclid:
		return rag.Euclidean
	case qdrant.Distance_Dot:
		return rag.Dot
	default:
		return rag.Cosine
	}
}

func toPayloadMap(p rag.Payload) map[string]any {
	meta := map[string]any{
		"source":      p.Meta.Source,
		"chunk_index": int64(p.Meta.ChunkIndex),
		"length":      int64(p.Meta.Length),
	}
	if p.Meta.Ref != "" {
		meta["ref"] = p.Meta.Ref
	}
	return map[string]any{
		"text": p.Text,
		"meta": meta,
	}
}

func fromPayloadMap(m map[string]*qdrant.Value) rag.Payload {
	var p rag.Payload
	p.Text = m["text"].GetStringValue()
	fields := m["meta"].GetStructValue().GetFields()
	p.Meta.Source = fields["source"].GetStringValue()
	p.Meta.ChunkIndex = intValue(fields["chunk_index"])
	p.Meta.Length = intValue(fields["length"])
	p.Meta.Ref = fields["ref"].GetStringValue()
	return p
}

// intValue reads an integer that may have been stored as a double by
// another client.
func intValue(v *qdrant.Value) int {
	if _, ok := v.GetKind().(*qdrant.Value_DoubleValue); ok {
		return int(v.GetDoubleValue())
	}
	return int(v.GetIntegerValue())
}
