package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cumplo-spotter/cumplo-spotter/internal/funding"
	"github.com/cumplo-spotter/cumplo-spotter/internal/users"
)

type userStore interface {
	GetUser(ctx context.Context, id string) (*users.User, error)
	GetUserByAPIKey(ctx context.Context, apiKey string) (*users.User, error)
	ListUsers(ctx context.Context) ([]*users.User, error)
	SaveUser(ctx context.Context, u *users.User) error
	SetNotificationDate(ctx context.Context, userID string, fundingRequestID int, date time.Time) error
	DeleteNotification(ctx context.Context, userID string, fundingRequestID int) error
}

var (
	_ userStore = (*Memory)(nil)
	_ userStore = (*Redis)(nil)
	_ userStore = (*Mongo)(nil)
)

func sampleUser(id string) *users.User {
	score := decimal.RequireFromString("0.85")
	paid := decimal.RequireFromString("92.5")
	maxDays := 30
	return &users.User{
		ID:         id,
		Name:       "Ana",
		APIKey:     "key-" + id,
		WebhookURL: "https://example.com/hook",
		Configurations: map[int]*users.Configuration{
			1: {
				ID:                1,
				Name:              "factoring",
				TargetCreditTypes: []funding.CreditType{funding.CreditTypeFactoring},
				MinimumScore:      &score,
				Borrower: users.BorrowerConfiguration{
					MaximumAverageDaysDelinquent: &maxDays,
					MinimumPaidInTimePercentage:  &paid,
				},
			},
			2: {ID: 2, Debtor: users.DebtorConfiguration{IgnoreDicom: true}},
		},
	}
}

func exerciseStore(t *testing.T, s userStore) {
	t.Helper()
	ctx := t.Context()
	id := uuid.NewString()

	_, err := s.GetUser(ctx, id)
	require.ErrorIs(t, err, ErrUserNotFound)

	u := sampleUser(id)
	require.NoError(t, s.SaveUser(ctx, u))

	got, err := s.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, u.Name, got.Name)
	assert.Equal(t, u.WebhookURL, got.WebhookURL)
	require.Len(t, got.Configurations, 2)
	assert.Equal(t, "0.85", got.Configurations[1].MinimumScore.String())
	assert.Equal(t, "92.5", got.Configurations[1].Borrower.MinimumPaidInTimePercentage.String())
	assert.Equal(t, 30, *got.Configurations[1].Borrower.MaximumAverageDaysDelinquent)
	assert.Equal(t, []funding.CreditType{funding.CreditTypeFactoring}, got.Configurations[1].TargetCreditTypes)
	assert.True(t, got.Configurations[2].Debtor.IgnoreDicom)

	byKey, err := s.GetUserByAPIKey(ctx, u.APIKey)
	require.NoError(t, err)
	assert.Equal(t, id, byKey.ID)

	_, err = s.GetUserByAPIKey(ctx, "missing-"+id)
	require.ErrorIs(t, err, ErrUserNotFound)

	date := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetNotificationDate(ctx, id, 77, date))
	require.NoError(t, s.SetNotificationDate(ctx, id, 78, date))
	require.NoError(t, s.DeleteNotification(ctx, id, 78))

	got, err = s.GetUser(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.Notifications, 1)
	assert.True(t, got.Notifications[77].Date.Equal(date))

	// saving again replaces configurations and keeps notifications
	delete(u.Configurations, 2)
	u.APIKey = "rotated-" + id
	require.NoError(t, s.SaveUser(ctx, u))

	got, err = s.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Len(t, got.Configurations, 1)
	assert.Len(t, got.Notifications, 1)

	_, err = s.GetUserByAPIKey(ctx, "key-"+id)
	require.ErrorIs(t, err, ErrUserNotFound)

	list, err := s.ListUsers(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(list))
	for _, l := range list {
		ids = append(ids, l.ID)
	}
	assert.Contains(t, ids, id)
}

func TestMemory(t *testing.T) {
	t.Parallel()

	exerciseStore(t, NewMemory())
}

func TestMemoryReturnsCopies(t *testing.T) {
	t.Parallel()

	m := NewMemory(sampleUser("a"))

	u, err := m.GetUser(t.Context(), "a")
	require.NoError(t, err)
	u.Configurations[1].Name = "changed"
	delete(u.Configurations, 2)

	again, err := m.GetUser(t.Context(), "a")
	require.NoError(t, err)
	assert.Equal(t, "factoring", again.Configurations[1].Name)
	assert.Len(t, again.Configurations, 2)
}

func TestMemoryNotificationForUnknownUser(t *testing.T) {
	t.Parallel()

	err := NewMemory().SetNotificationDate(t.Context(), "ghost", 1, time.Now())
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("SPOTTER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SPOTTER_TEST_REDIS_ADDR is not set")
	}

	client, err := NewRedisClient(t.Context(), RedisConfig{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	exerciseStore(t, NewRedis(client, "spotter-test:"+uuid.NewString()+":"))
}

func TestMongo(t *testing.T) {
	uri := os.Getenv("SPOTTER_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("SPOTTER_TEST_MONGO_URI is not set")
	}

	m, err := NewMongo(t.Context(), MongoConfig{URI: uri, Database: "spotter_test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	exerciseStore(t, m)
}

func TestConfigurationDocumentKeepsDecimals(t *testing.T) {
	t.Parallel()

	cfg := sampleUser("a").Configurations[1]

	doc, err := configurationDocument("a", cfg)
	require.NoError(t, err)
	assert.Equal(t, "a:1", doc["_id"])
	assert.Equal(t, "a", doc["user_id"])
	assert.Equal(t, "0.85", doc["minimum_score"])

	back, err := configurationFromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, back.ID)
	assert.True(t, cfg.MinimumScore.Equal(*back.MinimumScore))
}

func TestRedisKeysAreNamespaced(t *testing.T) {
	t.Parallel()

	for _, prefix := range []string{"cumplo-spotter", "cumplo-spotter:"} {
		r := NewRedis(nil, prefix)
		assert.Equal(t, "cumplo-spotter:users", r.usersKey())
		assert.Equal(t, "cumplo-spotter:user:42:configurations", r.configurationsKey("42"))
		assert.Equal(t, "cumplo-spotter:api-key:abc", r.apiKeyKey("abc"))
	}

	assert.Equal(t, "users", NewRedis(nil, "").usersKey())
	assert.Equal(t, "a:", KeyPrefix(KeyPrefix("a")))
}
