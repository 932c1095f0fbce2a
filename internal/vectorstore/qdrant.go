package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/corpusd/internal/document"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("corpusd.vectorstore.qdrant")

// collectionNamePattern validates collection names: lowercase letters,
// numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// QdrantConfig holds configuration for the Qdrant gRPC gateway.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (6334, NOT the HTTP REST port).
	Port int

	// Collection is the point collection. One logical collection exists
	// per embedding-model/dimension combination; points are partitioned by
	// user_id in payload for multi-tenant filtering.
	Collection string

	// VectorSize is the dense embedding dimensionality. MUST match the
	// embedding provider's output.
	VectorSize uint64

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxRetries is the retry budget for transient failures.
	MaxRetries int

	// RetryBackoff is the initial backoff, doubling per retry.
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	MaxMessageSize int

	// CircuitBreakerThreshold is the failure count that opens the circuit.
	CircuitBreakerThreshold int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.CircuitBreakerThreshold == 0 {
		c.CircuitBreakerThreshold = 5
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	if !collectionNamePattern.MatchString(c.Collection) {
		return fmt.Errorf("%w: collection name must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidConfig, c.Collection)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// IsTransientError checks if an error is transient (should retry).
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantGateway is a Gateway backed by Qdrant's native gRPC client.
//
// Native gRPC (port 6334) avoids the HTTP layer's payload limits and gives
// access to named dense + sparse vectors on one collection, which the hybrid
// engine relies on.
type QdrantGateway struct {
	client *qdrant.Client
	config QdrantConfig

	circuitBreaker struct {
		failures int
		lastFail time.Time
		mu       sync.Mutex
	}
}

// NewQdrantGateway connects to Qdrant and health-checks the connection.
func NewQdrantGateway(config QdrantConfig) (*QdrantGateway, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	g := &QdrantGateway{client: client, config: config}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}
	return g, nil
}

// Close closes the gRPC connection.
func (g *QdrantGateway) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// EnsureReady creates the collection with named dense + sparse vectors and
// the payload indexes the sync and search paths filter on.
func (g *QdrantGateway) EnsureReady(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantGateway.EnsureReady")
	defer span.End()

	exists, err := g.client.CollectionExists(ctx, g.config.Collection)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("checking collection %s: %w", g.config.Collection, err)
	}
	if !exists {
		err = g.retryOperation(ctx, "create_collection", func() error {
			return g.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: g.config.Collection,
				VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
					denseVectorName: {
						Size:     g.config.VectorSize,
						Distance: qdrant.Distance_Cosine,
					},
				}),
				SparseVectorsConfig: qdrant.NewSparseVectorsConfig(map[string]*qdrant.SparseVectorParams{
					sparseVectorName: {
						Modifier: qdrant.Modifier_Idf.Enum(),
					},
				}),
			})
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("creating collection %s: %w", g.config.Collection, err)
		}
	}

	// Payload indexes for the fields every filter touches.
	keyword := qdrant.FieldType_FieldTypeKeyword
	integer := qdrant.FieldType_FieldTypeInteger
	boolean := qdrant.FieldType_FieldTypeBool
	indexes := map[string]qdrant.FieldType{
		document.FieldUserID:      keyword,
		document.FieldDocType:     keyword,
		document.FieldDocID:       keyword,
		document.FieldPath:        keyword,
		document.FieldPlaceholder: boolean,
		document.FieldIndexedAt:   integer,
		document.FieldChunkIndex:  integer,
	}
	for field, fieldType := range indexes {
		ft := fieldType
		_, err := g.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: g.config.Collection,
			FieldName:      field,
			FieldType:      &ft,
		})
		if err != nil && !isAlreadyExists(err) {
			span.RecordError(err)
			return fmt.Errorf("creating payload index %s: %w", field, err)
		}
	}

	span.SetStatus(codes.Ok, "ready")
	return nil
}

func isAlreadyExists(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == grpccodes.AlreadyExists
}

// retryOperation retries an operation with exponential backoff, honoring the
// circuit breaker.
func (g *QdrantGateway) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := g.config.RetryBackoff

	for attempt := 0; attempt <= g.config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			g.resetCircuitBreaker()
			return nil
		}

		if g.isCircuitOpen() {
			return fmt.Errorf("%w: %s: circuit breaker open", ErrStoreUnavailable, operationName)
		}
		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}
		g.recordFailure()

		if attempt == g.config.MaxRetries {
			return fmt.Errorf("%w: %s failed after %d retries: %v", ErrStoreUnavailable, operationName, g.config.MaxRetries, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

func (g *QdrantGateway) recordFailure() {
	g.circuitBreaker.mu.Lock()
	defer g.circuitBreaker.mu.Unlock()
	g.circuitBreaker.failures++
	g.circuitBreaker.lastFail = time.Now()
}

func (g *QdrantGateway) resetCircuitBreaker() {
	g.circuitBreaker.mu.Lock()
	defer g.circuitBreaker.mu.Unlock()
	g.circuitBreaker.failures = 0
}

func (g *QdrantGateway) isCircuitOpen() bool {
	g.circuitBreaker.mu.Lock()
	defer g.circuitBreaker.mu.Unlock()

	if g.circuitBreaker.failures >= g.config.CircuitBreakerThreshold {
		// Allow retry after 30 seconds.
		if time.Since(g.circuitBreaker.lastFail) > 30*time.Second {
			g.circuitBreaker.failures = 0
			return false
		}
		return true
	}
	return false
}

// Upsert writes points, overwriting by identical point id.
func (g *QdrantGateway) Upsert(ctx context.Context, points []Point) error {
	ctx, span := tracer.Start(ctx, "QdrantGateway.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.Int("point_count", len(points)),
		attribute.String("collection", g.config.Collection),
	)

	if len(points) == 0 {
		return nil
	}

	structs := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		structs[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectorsMap(pointVectors(p)),
			Payload: pointPayload(p),
		}
	}

	err := g.retryOperation(ctx, "upsert", func() error {
		_, err := g.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: g.config.Collection,
			Points:         structs,
			Wait:           qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// pointVectors builds the named-vector map for one point. Placeholder points
// carry no dense vector yet; named vectors are optional per point, so the
// entry is omitted rather than sent as a zero-length vector the collection
// would reject.
func pointVectors(p Point) map[string]*qdrant.Vector {
	vectors := make(map[string]*qdrant.Vector, 2)
	if len(p.Dense) > 0 {
		vectors[denseVectorName] = qdrant.NewVector(p.Dense...)
	}
	if !p.Sparse.Empty() {
		vectors[sparseVectorName] = qdrant.NewVectorSparse(p.Sparse.Indices, p.Sparse.Values)
	}
	return vectors
}

// DeleteByIDs removes points by id.
func (g *QdrantGateway) DeleteByIDs(ctx context.Context, ids []string) error {
	ctx, span := tracer.Start(ctx, "QdrantGateway.DeleteByIDs")
	defer span.End()
	span.SetAttributes(attribute.Int("id_count", len(ids)))

	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id)
	}

	err := g.retryOperation(ctx, "delete_by_ids", func() error {
		_, err := g.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: g.config.Collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Points{
					Points: &qdrant.PointsIdsList{Ids: pointIDs},
				},
			},
			Wait: qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// DeleteByFilter removes every point matching the filter. This is how
// path-only deletions and bulk document removals work.
func (g *QdrantGateway) DeleteByFilter(ctx context.Context, f Filter) error {
	ctx, span := tracer.Start(ctx, "QdrantGateway.DeleteByFilter")
	defer span.End()

	filter := buildFilter(f)
	if filter == nil {
		// An empty filter would wipe the collection; refuse.
		return fmt.Errorf("%w: refusing delete with empty filter", ErrInvalidConfig)
	}

	err := g.retryOperation(ctx, "delete_by_filter", func() error {
		_, err := g.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: g.config.Collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: filter},
			},
			Wait: qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search runs one retrieval channel against the collection.
func (g *QdrantGateway) Search(ctx context.Context, q Query) ([]Hit, error) {
	ctx, span := tracer.Start(ctx, "QdrantGateway.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", g.config.Collection),
		attribute.Int("limit", q.Limit),
		attribute.Bool("sparse", !q.Sparse.Empty()),
	)

	if q.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidConfig, q.Limit)
	}

	var query *qdrant.Query
	using := denseVectorName
	switch {
	case len(q.Dense) > 0:
		query = qdrant.NewQueryDense(q.Dense)
	case !q.Sparse.Empty():
		query = qdrant.NewQuerySparse(q.Sparse.Indices, q.Sparse.Values)
		using = sparseVectorName
	default:
		return nil, fmt.Errorf("%w: query carries no vector", ErrInvalidConfig)
	}

	var scored []*qdrant.ScoredPoint
	err := g.retryOperation(ctx, "search", func() error {
		res, err := g.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: g.config.Collection,
			Query:          query,
			Using:          &using,
			Filter:         buildFilter(q.Filter),
			Limit:          qdrant.PtrOf(uint64(q.Limit)),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return err
		}
		scored = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	hits := make([]Hit, len(scored))
	for i, sp := range scored {
		hits[i] = Hit{
			Point: pointFromPayload(sp.GetId().GetUuid(), sp.GetPayload(), sp.GetVectors()),
			Score: sp.GetScore(),
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(hits)))
	span.SetStatus(codes.Ok, "success")
	return hits, nil
}

// Get fetches points by id.
func (g *QdrantGateway) Get(ctx context.Context, ids []string) ([]Point, error) {
	ctx, span := tracer.Start(ctx, "QdrantGateway.Get")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id)
	}

	var retrieved []*qdrant.RetrievedPoint
	err := g.retryOperation(ctx, "get", func() error {
		res, err := g.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: g.config.Collection,
			Ids:            pointIDs,
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return err
		}
		retrieved = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	points := make([]Point, len(retrieved))
	for i, rp := range retrieved {
		points[i] = pointFromPayload(rp.GetId().GetUuid(), rp.GetPayload(), rp.GetVectors())
	}
	span.SetStatus(codes.Ok, "success")
	return points, nil
}

// scrollPageSize bounds a single scroll round-trip.
const scrollPageSize = 1024

// Scroll lists points matching the filter using the paginated scroll API.
func (g *QdrantGateway) Scroll(ctx context.Context, f Filter, limit int) ([]Point, error) {
	ctx, span := tracer.Start(ctx, "QdrantGateway.Scroll")
	defer span.End()

	filter := buildFilter(f)
	pointsClient := g.client.GetPointsClient()

	var out []Point
	var offset *qdrant.PointId
	for {
		page := uint32(scrollPageSize)
		if limit > 0 && limit-len(out) < scrollPageSize {
			page = uint32(limit - len(out))
		}
		if page == 0 {
			break
		}

		var resp *qdrant.ScrollResponse
		err := g.retryOperation(ctx, "scroll", func() error {
			var err error
			resp, err = pointsClient.Scroll(ctx, &qdrant.ScrollPoints{
				CollectionName: g.config.Collection,
				Filter:         filter,
				Limit:          &page,
				Offset:         offset,
				WithPayload:    qdrant.NewWithPayload(true),
			})
			return err
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		for _, rp := range resp.GetResult() {
			out = append(out, pointFromPayload(rp.GetId().GetUuid(), rp.GetPayload(), rp.GetVectors()))
		}
		offset = resp.GetNextPageOffset()
		if offset == nil || (limit > 0 && len(out) >= limit) {
			break
		}
	}

	span.SetAttributes(attribute.Int("point_count", len(out)))
	span.SetStatus(codes.Ok, "success")
	return out, nil
}

// Count returns the number of points matching the filter.
func (g *QdrantGateway) Count(ctx context.Context, f Filter) (uint64, error) {
	ctx, span := tracer.Start(ctx, "QdrantGateway.Count")
	defer span.End()

	var count uint64
	err := g.retryOperation(ctx, "count", func() error {
		res, err := g.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: g.config.Collection,
			Filter:         buildFilter(f),
			Exact:          qdrant.PtrOf(true),
		})
		if err != nil {
			return err
		}
		count = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	span.SetStatus(codes.Ok, "success")
	return count, nil
}

// Ensure QdrantGateway implements Gateway.
var _ Gateway = (*QdrantGateway)(nil)
