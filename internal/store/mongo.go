package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/m3rciful/quizbot/internal/quiz"
)

// MongoConfig selects the deployment, database and collection.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// Mongo stores one document per user with challenges embedded as an array.
type Mongo struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// ConnectMongo dials cfg.URI, verifies the connection and ensures the
// unique (phone, botId) index exists.
func ConnectMongo(ctx context.Context, cfg MongoConfig) (*Mongo, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	m := NewMongo(client, client.Database(cfg.Database).Collection(cfg.Collection))
	if err := m.ensureIndexes(pingCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return m, nil
}

// NewMongo wraps an existing collection. client may be nil when the caller
// owns the connection.
func NewMongo(client *mongo.Client, collection *mongo.Collection) *Mongo {
	return &Mongo{client: client, collection: collection}
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "phone", Value: 1}, {Key: "botId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("phone_bot_unique"),
		},
		{
			Keys:    bson.D{{Key: "botId", Value: 1}},
			Options: options.Index().SetName("bot_lookup"),
		},
	})
	if err != nil {
		return fmt.Errorf("mongo indexes: %w", err)
	}
	return nil
}

type userDoc struct {
	ID                 string         `bson:"_id"`
	Phone              string         `bson:"phone"`
	BotID              string         `bson:"botId"`
	Language           string         `bson:"language"`
	Name               string         `bson:"name,omitempty"`
	SelectedMainTopic  string         `bson:"selectedMainTopic,omitempty"`
	SelectedSubtopic   string         `bson:"selectedSubtopic,omitempty"`
	SelectedDifficulty string         `bson:"selectedDifficulty,omitempty"`
	SelectedSet        string         `bson:"selectedSet,omitempty"`
	QuestionsAnswered  int            `bson:"questionsAnswered"`
	Score              int            `bson:"score"`
	Challenges         []challengeDoc `bson:"challenges,omitempty"`
	CreatedAt          time.Time      `bson:"createdAt"`
	UpdatedAt          time.Time      `bson:"updatedAt"`
}

type challengeDoc struct {
	Topic       string    `bson:"topic"`
	Subtopic    string    `bson:"subTopic"`
	Level       string    `bson:"level"`
	Set         string    `bson:"setNumber"`
	Score       int       `bson:"score"`
	Badge       string    `bson:"badge"`
	CompletedAt time.Time `bson:"completedAt"`
}

// Get returns the user's document.
func (m *Mongo) Get(ctx context.Context, phone, botID string) (*quiz.Session, error) {
	if err := validKey(phone, botID); err != nil {
		return nil, err
	}
	var doc userDoc
	err := m.collection.FindOne(ctx, bson.M{"phone": phone, "botId": botID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	s := doc.session()
	return &s, nil
}

// Put upserts every field except challenges. Cleared selections are unset.
func (m *Mongo) Put(ctx context.Context, s quiz.Session) error {
	if err := validKey(s.Phone, s.BotID); err != nil {
		return err
	}
	if err := m.upsert(ctx, s, userUpdate(s)); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// Complete upserts s and pushes c in a single document update.
func (m *Mongo) Complete(ctx context.Context, s quiz.Session, c quiz.Challenge) error {
	if err := validKey(s.Phone, s.BotID); err != nil {
		return err
	}
	if err := m.upsert(ctx, s, completeUpdate(s, c)); err != nil {
		return fmt.Errorf("complete user: %w", err)
	}
	return nil
}

func (m *Mongo) upsert(ctx context.Context, s quiz.Session, update bson.M) error {
	_, err := m.collection.UpdateOne(ctx,
		bson.M{"phone": s.Phone, "botId": s.BotID},
		update,
		options.UpdateOne().SetUpsert(true),
	)
	return err
}

// completeUpdate extends userUpdate with a $push of c.
func completeUpdate(s quiz.Session, c quiz.Challenge) bson.M {
	update := userUpdate(s)
	update["$push"] = bson.M{"challenges": challengeDocFrom(c)}
	return update
}

// userUpdate builds the $set/$unset/$setOnInsert document for s.
func userUpdate(s quiz.Session) bson.M {
	set := bson.M{
		"language":          s.Language,
		"questionsAnswered": s.QuestionsAnswered,
		"score":             s.Score,
		"updatedAt":         s.UpdatedAt,
	}
	unset := bson.M{}
	for field, value := range map[string]string{
		"name":               s.Name,
		"selectedMainTopic":  s.SelectedMainTopic,
		"selectedSubtopic":   s.SelectedSubtopic,
		"selectedDifficulty": s.SelectedDifficulty,
		"selectedSet":        s.SelectedSet,
	} {
		if value == "" {
			unset[field] = ""
		} else {
			set[field] = value
		}
	}
	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"_id":       s.ID,
			"createdAt": s.CreatedAt,
		},
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

// AppendChallenge pushes c onto the user's challenges array.
func (m *Mongo) AppendChallenge(ctx context.Context, phone, botID string, c quiz.Challenge) error {
	if err := validKey(phone, botID); err != nil {
		return err
	}
	res, err := m.collection.UpdateOne(ctx,
		bson.M{"phone": phone, "botId": botID},
		bson.M{"$push": bson.M{"challenges": challengeDocFrom(c)}},
	)
	if err != nil {
		return fmt.Errorf("push challenge: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("append challenge: %w", ErrNotFound)
	}
	return nil
}

// QueryByBot returns every user document of botID.
func (m *Mongo) QueryByBot(ctx context.Context, botID string) ([]quiz.Session, error) {
	cursor, err := m.collection.Find(ctx, bson.M{"botId": botID},
		options.Find().SetSort(bson.D{{Key: "phone", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	out := make([]quiz.Session, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.session())
	}
	return out, nil
}

// Close disconnects the client when this store owns it.
func (m *Mongo) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	return m.client.Disconnect(ctx)
}

func (d userDoc) session() quiz.Session {
	s := quiz.Session{
		ID:                 d.ID,
		Phone:              d.Phone,
		BotID:              d.BotID,
		Language:           d.Language,
		Name:               d.Name,
		SelectedMainTopic:  d.SelectedMainTopic,
		SelectedSubtopic:   d.SelectedSubtopic,
		SelectedDifficulty: d.SelectedDifficulty,
		SelectedSet:        d.SelectedSet,
		QuestionsAnswered:  d.QuestionsAnswered,
		Score:              d.Score,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
	for _, c := range d.Challenges {
		s.Challenges = append(s.Challenges, quiz.Challenge{
			Topic:       c.Topic,
			Subtopic:    c.Subtopic,
			Level:       c.Level,
			Set:         c.Set,
			Score:       c.Score,
			Badge:       quiz.Badge(c.Badge),
			CompletedAt: c.CompletedAt,
		})
	}
	return s
}

func challengeDocFrom(c quiz.Challenge) challengeDoc {
	return challengeDoc{
		Topic:       c.Topic,
		Subtopic:    c.Subtopic,
		Level:       c.Level,
		Set:         c.Set,
		Score:       c.Score,
		Badge:       string(c.Badge),
		CompletedAt: c.CompletedAt,
	}
}
