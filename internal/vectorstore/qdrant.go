package vectorstore

import (
	"context"
	"fmt"
	"math"

	"github.com/nidhogg/modelhub/internal/embedding"
	pb "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// contentKey is the payload field holding the document text. The underscore
// keeps it apart from metadata keys such as "content".
const contentKey = "_content"

// QdrantConfig holds connection settings for a Qdrant instance.
type QdrantConfig struct {
	Host       string `json:"host" yaml:"host" toml:"host"`
	Port       int    `json:"port" yaml:"port" toml:"port"`
	Collection string `json:"collection" yaml:"collection" toml:"collection"`
}

// Client wraps gRPC connections to Qdrant's collections and points services.
type Client struct {
	addr        string
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
}

// NewClient dials the Qdrant gRPC endpoint and returns a ready Client.
func NewClient(cfg QdrantConfig) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	return &Client{
		addr:        addr,
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
	}, nil
}

// EnsureCollection creates the named cosine collection if it does not exist.
func (c *Client) EnsureCollection(ctx context.Context, name string, dimension uint64) error {
	if _, err := c.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name}); err == nil {
		return nil
	}
	_, err := c.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     dimension,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

// Close tears down the underlying gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// QdrantIndex is an Index kept in a Qdrant collection. Point IDs are the
// content-derived document IDs, so re-inserting content overwrites it.
// Equal scores come back in Qdrant's order, not insertion order.
type QdrantIndex struct {
	client     *Client
	collection string
	embedder   embedding.Provider
	logger     *zap.Logger
}

// NewQdrantIndex ensures the collection exists with the embedder's dimension.
func NewQdrantIndex(ctx context.Context, client *Client, collection string, embedder embedding.Provider, logger *zap.Logger) (*QdrantIndex, error) {
	if collection == "" {
		collection = "documents"
	}
	q := &QdrantIndex{client: client, collection: collection, embedder: embedder, logger: logger}
	if err := q.ensure(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *QdrantIndex) ensure(ctx context.Context) error {
	if err := q.client.EnsureCollection(ctx, q.collection, uint64(q.embedder.Dimension())); err != nil {
		return q.storageErr("create", err)
	}
	return nil
}

func (q *QdrantIndex) storageErr(op string, err error) error {
	return &StorageError{Op: op, Location: q.location(), Err: err}
}

func (q *QdrantIndex) location() string {
	return "qdrant://" + q.client.addr + "/" + q.collection
}

// Insert embeds content and upserts it as one point.
func (q *QdrantIndex) Insert(ctx context.Context, content string, metadata map[string]any) (string, error) {
	ids, err := q.InsertMany(ctx, []Entry{{Content: content, Metadata: metadata}})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// InsertMany embeds all entries and upserts them in one request.
func (q *QdrantIndex) InsertMany(ctx context.Context, entries []Entry) ([]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.Content
	}
	vecs, err := q.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vecs) != len(entries) {
		return nil, fmt.Errorf("embed documents: got %d vectors for %d texts", len(vecs), len(entries))
	}

	ids := make([]string, len(entries))
	points := make([]*pb.PointStruct, 0, len(entries))
	for i, e := range entries {
		ids[i] = DocumentID(e.Content)
		points = append(points, &pb.PointStruct{
			Id:      uuidID(ids[i]),
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vecs[i]}}},
			Payload: buildPayload(e.Content, e.Metadata),
		})
	}

	wait := true
	if _, err := q.client.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return nil, q.storageErr("upsert", err)
	}
	return ids, nil
}

// Search runs a nearest-neighbour query with minSimilarity as the score threshold.
func (q *QdrantIndex) Search(ctx context.Context, query string, k int, minSimilarity float64) ([]Result, error) {
	if k <= 0 {
		return []Result{}, nil
	}
	qvec, err := embedding.EmbedOne(ctx, q.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if isZero(qvec) {
		// a zero vector matches nothing
		return []Result{}, nil
	}

	threshold := float32(minSimilarity)
	resp, err := q.client.points.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         qvec,
		Limit:          uint64(k),
		ScoreThreshold: &threshold,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, q.storageErr("search", err)
	}

	results := make([]Result, 0, len(resp.Result))
	for _, r := range resp.Result {
		content, meta := splitPayload(r.Payload)
		results = append(results, Result{
			ID:         r.Id.GetUuid(),
			Content:    content,
			Metadata:   meta,
			Similarity: float64(r.Score),
		})
	}
	return results, nil
}

// Delete removes one point and reports whether it existed.
func (q *QdrantIndex) Delete(ctx context.Context, id string) (bool, error) {
	got, err := q.client.points.Get(ctx, &pb.GetPoints{
		CollectionName: q.collection,
		Ids:            []*pb.PointId{uuidID(id)},
	})
	if err != nil {
		return false, q.storageErr("get", err)
	}
	if len(got.Result) == 0 {
		return false, nil
	}
	err = q.deletePoints(ctx, &pb.PointsSelector{
		PointsSelectorOneOf: &pb.PointsSelector_Points{Points: &pb.PointsIdsList{Ids: []*pb.PointId{uuidID(id)}}},
	})
	return err == nil, err
}

// DeleteWhere removes every point whose payload[key] matches value.
func (q *QdrantIndex) DeleteWhere(ctx context.Context, key string, value any) (int, error) {
	filter := &pb.Filter{Must: []*pb.Condition{{
		ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{Key: key, Match: toMatch(value)}},
	}}}
	exact := true
	count, err := q.client.points.Count(ctx, &pb.CountPoints{
		CollectionName: q.collection,
		Filter:         filter,
		Exact:          &exact,
	})
	if err != nil {
		return 0, q.storageErr("count", err)
	}
	n := int(count.GetResult().GetCount())
	if n == 0 {
		return 0, nil
	}
	if err := q.deletePoints(ctx, &pb.PointsSelector{
		PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: filter},
	}); err != nil {
		return 0, err
	}
	return n, nil
}

func (q *QdrantIndex) deletePoints(ctx context.Context, sel *pb.PointsSelector) error {
	wait := true
	if _, err := q.client.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         sel,
	}); err != nil {
		return q.storageErr("delete", err)
	}
	return nil
}

// Clear drops and recreates the collection.
func (q *QdrantIndex) Clear(ctx context.Context) error {
	if _, err := q.client.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: q.collection}); err != nil {
		return q.storageErr("drop", err)
	}
	return q.ensure(ctx)
}

// Stats counts the points in the collection.
func (q *QdrantIndex) Stats(ctx context.Context) (Stats, error) {
	exact := true
	count, err := q.client.points.Count(ctx, &pb.CountPoints{CollectionName: q.collection, Exact: &exact})
	if err != nil {
		return Stats{}, q.storageErr("count", err)
	}
	return Stats{
		Count:     int(count.GetResult().GetCount()),
		Location:  q.location(),
		Embedder:  q.embedder.Name(),
		Dimension: q.embedder.Dimension(),
	}, nil
}

func uuidID(id string) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func toValue(v any) *pb.Value {
	switch x := v.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: x}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: x}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(x)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: x}}
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(x)}}
		}
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: x}}
	case nil:
		return &pb.Value{Kind: &pb.Value_NullValue{}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(x)}}
	}
}

func fromValue(v *pb.Value) any {
	switch k := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return k.StringValue
	case *pb.Value_BoolValue:
		return k.BoolValue
	case *pb.Value_IntegerValue:
		return k.IntegerValue
	case *pb.Value_DoubleValue:
		return k.DoubleValue
	default:
		return nil
	}
}

func toMatch(v any) *pb.Match {
	switch val := toValue(v).GetKind().(type) {
	case *pb.Value_IntegerValue:
		return &pb.Match{MatchValue: &pb.Match_Integer{Integer: val.IntegerValue}}
	case *pb.Value_BoolValue:
		return &pb.Match{MatchValue: &pb.Match_Boolean{Boolean: val.BoolValue}}
	default:
		return &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: fmt.Sprint(v)}}
	}
}

// buildPayload stores content under contentKey next to the metadata fields.
func buildPayload(content string, meta map[string]any) map[string]*pb.Value {
	payload := make(map[string]*pb.Value, len(meta)+1)
	for k, v := range meta {
		payload[k] = toValue(v)
	}
	payload[contentKey] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: content}}
	return payload
}

func splitPayload(payload map[string]*pb.Value) (string, map[string]any) {
	meta := make(map[string]any, len(payload))
	var content string
	for k, v := range payload {
		if k == contentKey {
			content = v.GetStringValue()
			continue
		}
		meta[k] = fromValue(v)
	}
	return content, meta
}
