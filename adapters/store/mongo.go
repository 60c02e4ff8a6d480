package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/fleetline/dispatchvoice/config"
	"github.com/fleetline/dispatchvoice/domain/entities"
	"github.com/fleetline/dispatchvoice/domain/repositories"
)

// Mongo persists calls, results, and agent definitions in MongoDB. It is
// the self-hosted alternative to the Supabase store; both satisfy the
// same interfaces and the server picks one at boot.
type Mongo struct {
	client  *mongo.Client
	calls   *mongo.Collection
	results *mongo.Collection
	agents  *mongo.Collection
	logger  *zap.Logger
}

var (
	_ repositories.CallStore         = (*Mongo)(nil)
	_ repositories.AgentConfigSource = (*Mongo)(nil)
)

func NewMongo(ctx context.Context, cfg config.MongoConfig, logger *zap.Logger) (*Mongo, error) {
	uri := cfg.URI
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	dbName := cfg.Database
	if dbName == "" {
		dbName = "dispatchvoice"
	}

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(10).
		SetMinPoolSize(1).
		SetMaxConnIdleTime(30 * time.Minute).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	db := client.Database(dbName)
	logger.Info("connected to mongodb", zap.String("database", dbName))
	return &Mongo{
		client:  client,
		calls:   db.Collection("calls"),
		results: db.Collection("call_results"),
		agents:  db.Collection("agent_configurations"),
		logger:  logger,
	}, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnecting from mongodb: %w", err)
	}
	return nil
}

type callDoc struct {
	ID              string            `bson:"_id"`
	SessionID       string            `bson:"session_id"`
	AgentID         string            `bson:"agent_id"`
	DriverName      string            `bson:"driver_name,omitempty"`
	LoadNumber      string            `bson:"load_number,omitempty"`
	Status          string            `bson:"status"`
	RoomURL         string            `bson:"room_url,omitempty"`
	Variables       map[string]string `bson:"variables,omitempty"`
	Transcript      string            `bson:"transcript,omitempty"`
	DurationSeconds float64           `bson:"duration_seconds,omitempty"`
	ErrorMessage    string            `bson:"error_message,omitempty"`
	CreatedAt       time.Time         `bson:"created_at"`
	StartedAt       *time.Time        `bson:"started_at,omitempty"`
	EndedAt         *time.Time        `bson:"ended_at,omitempty"`
}

func (d *callDoc) toRecord() *entities.CallRecord {
	return &entities.CallRecord{
		ID:         d.ID,
		SessionID:  d.SessionID,
		AgentID:    d.AgentID,
		DriverName: d.DriverName,
		LoadNumber: d.LoadNumber,
		Status:     entities.CallStatus(d.Status),
		RoomURL:    d.RoomURL,
		Variables:  d.Variables,
		CreatedAt:  d.CreatedAt,
		StartedAt:  d.StartedAt,
		EndedAt:    d.EndedAt,
	}
}

func (m *Mongo) CreateCall(ctx context.Context, call *entities.CallRecord) error {
	doc := callDoc{
		ID:         call.ID,
		SessionID:  call.SessionID,
		AgentID:    call.AgentID,
		DriverName: call.DriverName,
		LoadNumber: call.LoadNumber,
		Status:     string(call.Status),
		RoomURL:    call.RoomURL,
		Variables:  call.Variables,
		CreatedAt:  call.CreatedAt,
		StartedAt:  call.StartedAt,
		EndedAt:    call.EndedAt,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	if _, err := m.calls.InsertOne(ctx, doc); err != nil {
		return &entities.PersistenceError{Op: "create_call", Key: call.ID, Err: err}
	}
	return nil
}

func (m *Mongo) GetCall(ctx context.Context, id string) (*entities.CallRecord, error) {
	return m.findCall(ctx, bson.M{"_id": id}, "get_call", id)
}

func (m *Mongo) FindCallBySessionID(ctx context.Context, sessionID string) (*entities.CallRecord, error) {
	return m.findCall(ctx, bson.M{"session_id": sessionID}, "find_call", sessionID)
}

func (m *Mongo) findCall(ctx context.Context, filter bson.M, op, key string) (*entities.CallRecord, error) {
	var doc callDoc
	err := m.calls.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &entities.PersistenceError{Op: op, Key: key, Err: repositories.ErrNotFound}
		}
		return nil, &entities.PersistenceError{Op: op, Key: key, Err: err}
	}
	return doc.toRecord(), nil
}

func (m *Mongo) UpdateCall(ctx context.Context, id string, update entities.CallUpdate) error {
	set := bson.M{}
	if update.Status != nil {
		set["status"] = string(*update.Status)
	}
	if update.Transcript != nil {
		set["transcript"] = *update.Transcript
	}
	if update.DurationSeconds != nil {
		set["duration_seconds"] = *update.DurationSeconds
	}
	if update.EndedAt != nil {
		set["ended_at"] = *update.EndedAt
	}
	if update.ErrorMessage != nil {
		set["error_message"] = *update.ErrorMessage
	}
	if len(set) == 0 {
		return nil
	}

	result, err := m.calls.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return &entities.PersistenceError{Op: "update_call", Key: id, Err: err}
	}
	if result.MatchedCount == 0 {
		return &entities.PersistenceError{Op: "update_call", Key: id, Err: repositories.ErrNotFound}
	}
	return nil
}

func (m *Mongo) UpsertCallResults(ctx context.Context, results *entities.CallResults) error {
	doc := bson.M{
		"call_id":          results.CallID,
		"session_id":       results.SessionID,
		"transcript":       results.Transcript,
		"duration_seconds": results.DurationSeconds,
		"cost": bson.M{
			"stt_cost":       results.Cost.STT,
			"tts_cost":       results.Cost.TTS,
			"llm_cost":       results.Cost.LLM,
			"transport_cost": results.Cost.Transport,
			"total_cost":     results.Cost.Total,
		},
		"created_at": results.CreatedAt,
	}
	_, err := m.results.UpdateOne(
		ctx,
		bson.M{"call_id": results.CallID},
		bson.M{"$set": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return &entities.PersistenceError{Op: "upsert_results", Key: results.CallID, Err: err}
	}
	return nil
}

type agentDoc struct {
	ID           string   `bson:"_id"`
	Name         string   `bson:"name"`
	SystemPrompt string   `bson:"system_prompt"`
	Greeting     string   `bson:"greeting"`
	STTProvider  string   `bson:"stt_provider,omitempty"`
	STTModel     string   `bson:"stt_model,omitempty"`
	STTLanguage  string   `bson:"stt_language,omitempty"`
	TTSProvider  string   `bson:"tts_provider,omitempty"`
	TTSVoiceID   string   `bson:"tts_voice_id,omitempty"`
	TTSModel     string   `bson:"tts_model,omitempty"`
	LLMProvider  string   `bson:"llm_provider,omitempty"`
	LLMModel     string   `bson:"llm_model,omitempty"`
	Temperature  *float64 `bson:"llm_temperature,omitempty"`
	Transport    string   `bson:"transport,omitempty"`
}

func (m *Mongo) GetAgent(ctx context.Context, id string) (*entities.AgentProfile, error) {
	var doc agentDoc
	err := m.agents.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &entities.PersistenceError{Op: "get_agent", Key: id, Err: repositories.ErrNotFound}
		}
		return nil, &entities.PersistenceError{Op: "get_agent", Key: id, Err: err}
	}

	// Unset fields fall back to the stock pipeline recipe.
	cfg := entities.DefaultPipelineConfig()
	if doc.STTProvider != "" {
		cfg.STT.Provider = entities.STTProvider(doc.STTProvider)
	}
	if doc.STTModel != "" {
		cfg.STT.Model = doc.STTModel
	}
	if doc.STTLanguage != "" {
		cfg.STT.Language = doc.STTLanguage
	}
	if doc.TTSProvider != "" {
		cfg.TTS.Provider = entities.TTSProvider(doc.TTSProvider)
	}
	if doc.TTSVoiceID != "" {
		cfg.TTS.VoiceID = doc.TTSVoiceID
	}
	if doc.TTSModel != "" {
		cfg.TTS.Model = doc.TTSModel
	}
	if doc.LLMProvider != "" {
		cfg.LLM.Provider = entities.LLMProvider(doc.LLMProvider)
	}
	if doc.LLMModel != "" {
		cfg.LLM.Model = doc.LLMModel
	}
	if doc.Temperature != nil {
		cfg.LLM.Temperature = *doc.Temperature
	}
	if doc.Transport != "" {
		cfg.Transport = entities.TransportKind(doc.Transport)
	}
	cfg.SystemPrompt = doc.SystemPrompt
	cfg.Greeting = doc.Greeting

	return &entities.AgentProfile{
		ID:           doc.ID,
		Name:         doc.Name,
		SystemPrompt: doc.SystemPrompt,
		Greeting:     doc.Greeting,
		Config:       cfg,
	}, nil
}
