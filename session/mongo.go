package session

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore is a Store backed by two MongoDB collections: sessions and
// runs. NewMongoStore creates the indexes when it is called, so callers do
// not need a separate migration step.
type MongoStore struct {
	sessions *mongo.Collection
	runs     *mongo.Collection
}

// NewMongoStore builds a MongoStore from an already-connected client,
// ensuring the uniqueness indexes session lifecycle invariants depend on.
func NewMongoStore(ctx context.Context, client *mongo.Client, database string) (*MongoStore, error) {
	if client == nil {
		return nil, errors.New("session: mongo client is required")
	}
	if database == "" {
		return nil, errors.New("session: database name is required")
	}
	sessions := client.Database(database).Collection("agent_sessions")
	runs := client.Database(database).Collection("agent_runs")

	if _, err := sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, err
	}
	if _, err := runs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "run_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, err
	}
	if _, err := runs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "status", Value: 1}},
	}); err != nil {
		return nil, err
	}

	return &MongoStore{sessions: sessions, runs: runs}, nil
}

type sessionDocument struct {
	SessionID string     `bson:"session_id"`
	Status    Status     `bson:"status"`
	CreatedAt time.Time  `bson:"created_at"`
	EndedAt   *time.Time `bson:"ended_at,omitempty"`
	UpdatedAt time.Time  `bson:"updated_at"`
}

type runDocument struct {
	RunID     string            `bson:"run_id"`
	AgentID   string            `bson:"agent_id"`
	SessionID string            `bson:"session_id,omitempty"`
	Status    RunStatus         `bson:"status"`
	StartedAt time.Time         `bson:"started_at"`
	UpdatedAt time.Time         `bson:"updated_at"`
	Labels    map[string]string `bson:"labels,omitempty"`
	Metadata  map[string]any    `bson:"metadata,omitempty"`
}

// CreateSession implements Store.
func (s *MongoStore) CreateSession(ctx context.Context, sessionID string, createdAt time.Time) (Session, error) {
	existing, err := s.LoadSession(ctx, sessionID)
	if err == nil {
		if existing.Status == StatusEnded {
			return Session{}, ErrSessionEnded
		}
		return existing, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return Session{}, err
	}

	now := time.Now().UTC()
	filter := bson.M{"session_id": sessionID}
	update := bson.M{
		// a pure $setOnInsert keeps CreateSession idempotent and safe under
		// concurrent retries: it never touches an existing document.
		"$setOnInsert": bson.M{
			"session_id": sessionID,
			"status":     StatusActive,
			"created_at": createdAt.UTC(),
			"updated_at": now,
		},
	}
	if _, err := s.sessions.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true)); err != nil {
		return Session{}, err
	}
	return s.LoadSession(ctx, sessionID)
}

// LoadSession implements Store.
func (s *MongoStore) LoadSession(ctx context.Context, sessionID string) (Session, error) {
	var doc sessionDocument
	err := s.sessions.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, err
	}
	return docToSession(doc), nil
}

// EndSession implements Store.
func (s *MongoStore) EndSession(ctx context.Context, sessionID string, endedAt time.Time) (Session, error) {
	existing, err := s.LoadSession(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if existing.Status == StatusEnded {
		return existing, nil
	}
	update := bson.M{"$set": bson.M{
		"status":     StatusEnded,
		"ended_at":   endedAt.UTC(),
		"updated_at": time.Now().UTC(),
	}}
	if _, err := s.sessions.UpdateOne(ctx, bson.M{"session_id": sessionID}, update); err != nil {
		return Session{}, err
	}
	return s.LoadSession(ctx, sessionID)
}

// UpsertRun implements Store.
func (s *MongoStore) UpsertRun(ctx context.Context, run RunMeta) error {
	now := time.Now().UTC()
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	run.UpdatedAt = now
	filter := bson.M{"run_id": run.RunID}
	update := bson.M{
		"$set": bson.M{
			"run_id":     run.RunID,
			"agent_id":   run.AgentID,
			"session_id": run.SessionID,
			"status":     run.Status,
			"updated_at": run.UpdatedAt,
			"labels":     run.Labels,
			"metadata":   run.Metadata,
		},
		"$setOnInsert": bson.M{"started_at": run.StartedAt},
	}
	_, err := s.runs.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

// LoadRun implements Store.
func (s *MongoStore) LoadRun(ctx context.Context, runID string) (RunMeta, error) {
	var doc runDocument
	err := s.runs.FindOne(ctx, bson.M{"run_id": runID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return RunMeta{}, ErrRunNotFound
	}
	if err != nil {
		return RunMeta{}, err
	}
	return docToRunMeta(doc), nil
}

// ListRunsBySession implements Store.
func (s *MongoStore) ListRunsBySession(ctx context.Context, sessionID string, statuses []RunStatus) ([]RunMeta, error) {
	filter := bson.M{"session_id": sessionID}
	if len(statuses) > 0 {
		filter["status"] = bson.M{"$in": statuses}
	}
	cur, err := s.runs.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "started_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []RunMeta
	for cur.Next(ctx) {
		var doc runDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, docToRunMeta(doc))
	}
	return out, cur.Err()
}

func docToSession(doc sessionDocument) Session {
	var endedAt *time.Time
	if doc.EndedAt != nil {
		at := doc.EndedAt.UTC()
		endedAt = &at
	}
	return Session{ID: doc.SessionID, Status: doc.Status, CreatedAt: doc.CreatedAt.UTC(), EndedAt: endedAt}
}

func docToRunMeta(doc runDocument) RunMeta {
	return RunMeta{
		RunID:     doc.RunID,
		AgentID:   doc.AgentID,
		SessionID: doc.SessionID,
		Status:    doc.Status,
		StartedAt: doc.StartedAt,
		UpdatedAt: doc.UpdatedAt,
		Labels:    doc.Labels,
		Metadata:  doc.Metadata,
	}
}
