package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/cumplo-spotter/cumplo-spotter/internal/users"
)

const (
	usersCollection          = "users"
	configurationsCollection = "configurations"
	notificationsCollection  = "notifications"
)

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// Mongo keeps profiles, configurations and notifications in three collections.
// Configurations go through their json form so decimals are stored as strings.
type Mongo struct {
	client         *mongo.Client
	users          *mongo.Collection
	configurations *mongo.Collection
	notifications  *mongo.Collection
}

type notificationDocument struct {
	ID               string    `bson:"_id"`
	UserID           string    `bson:"user_id"`
	FundingRequestID int       `bson:"funding_request_id"`
	Date             time.Time `bson:"date"`
}

func NewMongo(ctx context.Context, cfg MongoConfig) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(cfg.Database)
	m := &Mongo{
		client:         client,
		users:          db.Collection(usersCollection),
		configurations: db.Collection(configurationsCollection),
		notifications:  db.Collection(notificationsCollection),
	}

	if err := m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return m, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	if m.client != nil {
		return m.client.Disconnect(ctx)
	}
	return nil
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	_, err := m.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "api_key", Value: 1}},
		Options: options.Index().SetUnique(true).SetSparse(true),
	})
	if err != nil {
		return fmt.Errorf("create api key index: %w", err)
	}

	for _, c := range []*mongo.Collection{m.configurations, m.notifications} {
		if _, err := c.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "user_id", Value: 1}}}); err != nil {
			return fmt.Errorf("create user index on %s: %w", c.Name(), err)
		}
	}
	return nil
}

func (m *Mongo) GetUser(ctx context.Context, id string) (*users.User, error) {
	return m.findUser(ctx, bson.M{"_id": id})
}

func (m *Mongo) GetUserByAPIKey(ctx context.Context, apiKey string) (*users.User, error) {
	if apiKey == "" {
		return nil, ErrUserNotFound
	}
	return m.findUser(ctx, bson.M{"api_key": apiKey})
}

func (m *Mongo) ListUsers(ctx context.Context) ([]*users.User, error) {
	cur, err := m.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	var profiles []profile
	if err := cur.All(ctx, &profiles); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	list := make([]*users.User, 0, len(profiles))
	for _, p := range profiles {
		u, err := m.load(ctx, p)
		if err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	return list, nil
}

func (m *Mongo) findUser(ctx context.Context, filter bson.M) (*users.User, error) {
	var p profile
	err := m.users.FindOne(ctx, filter).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return m.load(ctx, p)
}

func (m *Mongo) load(ctx context.Context, p profile) (*users.User, error) {
	u := p.user()

	cur, err := m.configurations.Find(ctx, bson.M{"user_id": p.ID})
	if err != nil {
		return nil, fmt.Errorf("configurations of user %s: %w", p.ID, err)
	}
	var documents []bson.M
	if err := cur.All(ctx, &documents); err != nil {
		return nil, fmt.Errorf("configurations of user %s: %w", p.ID, err)
	}
	for _, doc := range documents {
		cfg, err := configurationFromDocument(doc)
		if err != nil {
			return nil, fmt.Errorf("configuration of user %s: %w", p.ID, err)
		}
		u.Configurations[cfg.ID] = cfg
	}

	cur, err = m.notifications.Find(ctx, bson.M{"user_id": p.ID})
	if err != nil {
		return nil, fmt.Errorf("notifications of user %s: %w", p.ID, err)
	}
	var notifications []notificationDocument
	if err := cur.All(ctx, &notifications); err != nil {
		return nil, fmt.Errorf("notifications of user %s: %w", p.ID, err)
	}
	for _, n := range notifications {
		u.Notifications[n.FundingRequestID] = users.Notification{FundingRequestID: n.FundingRequestID, Date: n.Date}
	}

	return u, nil
}

// SaveUser upserts the profile, upserts every configuration and removes the ones the user no longer has.
func (m *Mongo) SaveUser(ctx context.Context, u *users.User) error {
	_, err := m.users.ReplaceOne(ctx, bson.M{"_id": u.ID}, profileOf(u), options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save user %s: %w", u.ID, err)
	}

	ids := make([]int, 0, len(u.Configurations))
	writes := make([]mongo.WriteModel, 0, len(u.Configurations)+1)
	for _, id := range u.ConfigurationIDs() {
		cfg := u.Configurations[id]
		if cfg == nil {
			continue
		}
		doc, err := configurationDocument(u.ID, cfg)
		if err != nil {
			return fmt.Errorf("encode configuration %d: %w", id, err)
		}
		ids = append(ids, id)
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc["_id"]}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	writes = append(writes, mongo.NewDeleteManyModel().SetFilter(bson.M{
		"user_id": u.ID,
		"id":      bson.M{"$nin": ids},
	}))

	if _, err := m.configurations.BulkWrite(ctx, writes); err != nil {
		return fmt.Errorf("save configurations of user %s: %w", u.ID, err)
	}
	return nil
}

func (m *Mongo) SetNotificationDate(ctx context.Context, userID string, fundingRequestID int, date time.Time) error {
	doc := notificationDocument{
		ID:               notificationID(userID, fundingRequestID),
		UserID:           userID,
		FundingRequestID: fundingRequestID,
		Date:             date.UTC(),
	}
	_, err := m.notifications.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("set notification %d of user %s: %w", fundingRequestID, userID, err)
	}
	return nil
}

func (m *Mongo) DeleteNotification(ctx context.Context, userID string, fundingRequestID int) error {
	if _, err := m.notifications.DeleteOne(ctx, bson.M{"_id": notificationID(userID, fundingRequestID)}); err != nil {
		return fmt.Errorf("delete notification %d of user %s: %w", fundingRequestID, userID, err)
	}
	return nil
}

func notificationID(userID string, fundingRequestID int) string {
	return userID + ":" + strconv.Itoa(fundingRequestID)
}

func configurationDocument(userID string, cfg *users.Configuration) (bson.M, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}

	var doc bson.M
	if err := bson.UnmarshalExtJSON(data, false, &doc); err != nil {
		return nil, err
	}
	doc["_id"] = userID + ":" + strconv.Itoa(cfg.ID)
	doc["user_id"] = userID
	return doc, nil
}

func configurationFromDocument(doc bson.M) (*users.Configuration, error) {
	delete(doc, "_id")
	delete(doc, "user_id")

	data, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return nil, err
	}

	var cfg users.Configuration
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
