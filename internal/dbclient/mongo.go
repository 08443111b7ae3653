package dbclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"docmodel/internal/domain"
	"docmodel/internal/value"
)

// mongoConnector implements Connector for MongoDB.
type mongoConnector struct {
	client *mongo.Client
	dbName string
	log    *zap.Logger

	mu         sync.Mutex
	cursor     *mongo.Cursor
	lastAccess time.Time
	fetched    int
}

// mongoQuery is the JSON structure users write for MongoDB queries.
type mongoQuery struct {
	Collection string         `json:"collection"`
	Operation  string         `json:"operation,omitempty"` // find (default), aggregate, insertOne, updateMany, deleteMany
	Filter     map[string]any `json:"filter,omitempty"`
	Projection map[string]any `json:"projection,omitempty"`
	Sort       map[string]any `json:"sort,omitempty"`
	Limit      int64          `json:"limit,omitempty"`
	Document   map[string]any `json:"document,omitempty"`
	Update     map[string]any `json:"update,omitempty"`
	Pipeline   []any          `json:"pipeline,omitempty"`
}

// buildMongoURI returns the connection URI and the database to use.
func buildMongoURI(conn *domain.DatabaseConnection, password string) (string, string) {
	var uri string
	if strings.HasPrefix(conn.Host, "mongodb+srv://") || strings.HasPrefix(conn.Host, "mongodb://") {
		uri = conn.Host
		// Atlas connection strings carry a password placeholder.
		if password != "" {
			uri = strings.ReplaceAll(uri, "<password>", password)
			uri = strings.ReplaceAll(uri, "<db_password>", password)
		}
	} else {
		port := conn.Port
		if port == 0 {
			port = 27017
		}
		if conn.Username != "" {
			uri = fmt.Sprintf("mongodb://%s:%s@%s:%d", conn.Username, password, conn.Host, port)
		} else {
			uri = fmt.Sprintf("mongodb://%s:%d", conn.Host, port)
		}
		if conn.ExtraJSON != "" && conn.ExtraJSON != "{}" {
			var extras map[string]string
			if json.Unmarshal([]byte(conn.ExtraJSON), &extras) == nil && len(extras) > 0 {
				keys := make([]string, 0, len(extras))
				for k := range extras {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				params := make([]string, len(keys))
				for i, k := range keys {
					params[i] = k + "=" + extras[k]
				}
				uri += "/?" + strings.Join(params, "&")
			}
		}
	}

	dbName := conn.Database
	if dbName == "" {
		dbName = databaseFromURI(uri)
	}
	return uri, dbName
}

// databaseFromURI extracts the path segment of user:pass@host/DB?params,
// falling back to "test" like the mongo shell.
func databaseFromURI(uri string) string {
	rest := uri
	for _, prefix := range []string{"mongodb+srv://", "mongodb://"} {
		rest = strings.TrimPrefix(rest, prefix)
	}
	if at := strings.LastIndex(rest, "@"); at != -1 {
		rest = rest[at+1:]
	}
	if slash := strings.Index(rest, "/"); slash != -1 {
		path := rest[slash+1:]
		if q := strings.Index(path, "?"); q != -1 {
			path = path[:q]
		}
		if path != "" {
			return path
		}
	}
	return "test"
}

func newMongoConnector(conn *domain.DatabaseConnection, password string) (*mongoConnector, error) {
	uri, dbName := buildMongoURI(conn, password)
	log := zap.L().Named("mongo")

	logURI := uri
	if password != "" {
		logURI = strings.ReplaceAll(logURI, password, "***")
	}
	log.Debug("connecting", zap.String("uri", logURI), zap.String("database", dbName))

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &mongoConnector{client: client, dbName: dbName, log: log}, nil
}

// unmarshalEJSON re-encodes a field and parses it as relaxed Extended JSON
// so $oid, $date and friends become BSON types.
func unmarshalEJSON(field map[string]any) (bson.D, error) {
	if field == nil {
		return nil, nil
	}
	raw, err := json.Marshal(field)
	if err != nil {
		return nil, err
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
		return nil, fmt.Errorf("extended json: %w", err)
	}
	return doc, nil
}

func (m *mongoConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return m.client.Ping(ctx, nil)
}

func (m *mongoConnector) TableQuery(table string) string {
	q, _ := json.Marshal(mongoQuery{Collection: table})
	return string(q)
}

func (m *mongoConnector) Execute(ctx context.Context, query string, fetchSize int) (*QueryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeCursorLocked(ctx)

	if fetchSize <= 0 {
		fetchSize = 50
	}

	var mq mongoQuery
	if err := json.Unmarshal([]byte(query), &mq); err != nil {
		return nil, fmt.Errorf("invalid query JSON: %w", err)
	}
	if mq.Collection == "" {
		return nil, fmt.Errorf("query must specify 'collection'")
	}
	m.log.Debug("execute",
		zap.String("collection", mq.Collection),
		zap.String("operation", mq.Operation))

	coll := m.client.Database(m.dbName).Collection(mq.Collection)

	switch op := mq.Operation; op {
	case "", "find":
		return m.execFind(ctx, coll, mq, fetchSize)
	case "aggregate":
		return m.execAggregate(ctx, coll, mq, fetchSize)
	case "insertOne":
		return m.execInsertOne(ctx, coll, mq)
	case "updateMany":
		return m.execUpdateMany(ctx, coll, mq)
	case "deleteMany":
		return m.execDeleteMany(ctx, coll, mq)
	default:
		return nil, fmt.Errorf("unsupported operation: %s", op)
	}
}

func (m *mongoConnector) execFind(ctx context.Context, coll *mongo.Collection, mq mongoQuery, fetchSize int) (*QueryPage, error) {
	filter, err := unmarshalEJSON(mq.Filter)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	if filter == nil {
		filter = bson.D{}
	}
	opts := options.Find().SetBatchSize(int32(fetchSize))
	if mq.Projection != nil {
		proj, err := unmarshalEJSON(mq.Projection)
		if err != nil {
			return nil, fmt.Errorf("projection: %w", err)
		}
		opts.SetProjection(proj)
	}
	if mq.Sort != nil {
		// bson.D keeps the sort key order the user wrote.
		srt, err := unmarshalEJSON(mq.Sort)
		if err != nil {
			return nil, fmt.Errorf("sort: %w", err)
		}
		opts.SetSort(srt)
	}
	if mq.Limit > 0 {
		opts.SetLimit(mq.Limit)
	}

	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	m.cursor = cursor
	m.fetched = 0
	m.lastAccess = time.Now()
	return m.fetchBatchLocked(ctx, fetchSize)
}

func (m *mongoConnector) execAggregate(ctx context.Context, coll *mongo.Collection, mq mongoQuery, fetchSize int) (*QueryPage, error) {
	pipeline := mq.Pipeline
	if pipeline == nil {
		pipeline = []any{}
	}
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	m.cursor = cursor
	m.fetched = 0
	m.lastAccess = time.Now()
	return m.fetchBatchLocked(ctx, fetchSize)
}

func (m *mongoConnector) execInsertOne(ctx context.Context, coll *mongo.Collection, mq mongoQuery) (*QueryPage, error) {
	doc, err := unmarshalEJSON(mq.Document)
	if err != nil {
		return nil, fmt.Errorf("document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("insertOne requires 'document'")
	}
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insertOne: %w", err)
	}
	return &QueryPage{IsWrite: true, AffectedRows: 1}, nil
}

func (m *mongoConnector) execUpdateMany(ctx context.Context, coll *mongo.Collection, mq mongoQuery) (*QueryPage, error) {
	filter, err := unmarshalEJSON(mq.Filter)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	if filter == nil {
		filter = bson.D{}
	}
	update, err := unmarshalEJSON(mq.Update)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	if update == nil {
		return nil, fmt.Errorf("updateMany requires 'update'")
	}
	result, err := coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return nil, fmt.Errorf("updateMany: %w", err)
	}
	return &QueryPage{IsWrite: true, AffectedRows: int(result.ModifiedCount)}, nil
}

func (m *mongoConnector) execDeleteMany(ctx context.Context, coll *mongo.Collection, mq mongoQuery) (*QueryPage, error) {
	filter, err := unmarshalEJSON(mq.Filter)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	if filter == nil {
		filter = bson.D{}
	}
	result, err := coll.DeleteMany(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("deleteMany: %w", err)
	}
	return &QueryPage{IsWrite: true, AffectedRows: int(result.DeletedCount)}, nil
}

func (m *mongoConnector) FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cursor == nil {
		return nil, fmt.Errorf("no active cursor, execute a query first")
	}
	if fetchSize <= 0 {
		fetchSize = 50
	}
	m.lastAccess = time.Now()
	return m.fetchBatchLocked(ctx, fetchSize)
}

func (m *mongoConnector) fetchBatchLocked(ctx context.Context, fetchSize int) (*QueryPage, error) {
	var docs []bson.D
	for i := 0; i < fetchSize; i++ {
		if !m.cursor.Next(ctx) {
			break
		}
		var doc bson.D
		if err := m.cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := m.cursor.Err(); err != nil {
		m.closeCursorLocked(ctx)
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	m.fetched += len(docs)

	columns := documentColumns(docs)
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}
	rows := make([][]value.Value, 0, len(docs))
	for _, doc := range docs {
		row := make([]value.Value, len(columns))
		for i := range row {
			row[i] = value.Null
		}
		for _, e := range doc {
			row[index[e.Key]] = fromBSON(e.Value)
		}
		rows = append(rows, row)
	}

	hasMore := len(docs) == fetchSize
	if !hasMore {
		m.closeCursorLocked(ctx)
	}
	m.log.Debug("fetched", zap.Int("docs", len(docs)), zap.Int("total", m.fetched))

	return &QueryPage{
		Columns:      columns,
		Rows:         rows,
		TotalFetched: m.fetched,
		HasMore:      hasMore,
	}, nil
}

// documentColumns returns the union of field names in first-appearance
// order, with _id moved to the front.
func documentColumns(docs []bson.D) []string {
	seen := map[string]bool{}
	var columns []string
	for _, doc := range docs {
		for _, e := range doc {
			if !seen[e.Key] {
				seen[e.Key] = true
				columns = append(columns, e.Key)
			}
		}
	}
	sort.SliceStable(columns, func(i, j int) bool {
		return columns[i] == "_id" && columns[j] != "_id"
	})
	return columns
}

func (m *mongoConnector) WriteTable(ctx context.Context, t *Table, overwrite bool) (int, error) {
	coll := m.client.Database(m.dbName).Collection(t.Name)
	if overwrite {
		if err := coll.Drop(ctx); err != nil {
			return 0, fmt.Errorf("drop %s: %w", t.Name, err)
		}
	}
	if len(t.Rows) == 0 {
		return 0, nil
	}

	docs := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		d := make(bson.D, 0, len(t.Columns))
		for j, col := range t.Columns {
			d = append(d, bson.E{Key: col.Name, Value: toBSON(row[j])})
		}
		docs[i] = d
	}
	res, err := coll.InsertMany(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", t.Name, err)
	}
	m.log.Debug("collection written",
		zap.String("collection", t.Name),
		zap.Int("docs", len(res.InsertedIDs)),
		zap.Bool("overwrite", overwrite))
	return len(res.InsertedIDs), nil
}

func (m *mongoConnector) Introspect(ctx context.Context) (*SchemaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	db := m.client.Database(m.dbName)
	collections, err := db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	sort.Strings(collections)

	schema := &SchemaInfo{}
	for _, name := range collections {
		// One sampled document gives the field list.
		var doc bson.D
		err := db.Collection(name).FindOne(ctx, bson.D{}).Decode(&doc)
		if err != nil {
			schema.Tables = append(schema.Tables, TableInfo{Name: name})
			continue
		}
		cols := make([]ColumnInfo, 0, len(doc))
		for _, e := range doc {
			cols = append(cols, ColumnInfo{Name: e.Key, Type: value.KindOf(fromBSON(e.Value)).String()})
		}
		schema.Tables = append(schema.Tables, TableInfo{Name: name, Columns: cols})
	}
	return schema, nil
}

func (m *mongoConnector) Close() error {
	m.mu.Lock()
	m.closeCursorLocked(context.Background())
	m.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *mongoConnector) closeCursorLocked(ctx context.Context) {
	if m.cursor != nil {
		m.cursor.Close(ctx)
		m.cursor = nil
	}
}
