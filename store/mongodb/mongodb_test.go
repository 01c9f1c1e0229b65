package mongodb

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"leadcrm/models"
	"leadcrm/store"
	"leadcrm/store/storetest"
	"leadcrm/utils"
)

func TestContactFilterBSON(t *testing.T) {
	t.Run("empty filter matches everything", func(t *testing.T) {
		assert.Equal(t, bson.M{}, ContactFilterBSON(store.ContactFilter{}))
	})

	t.Run("audience predicates", func(t *testing.T) {
		after := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
		got := ContactFilterBSON(store.ContactFilter{
			Subscribed:   utils.Pointer(true),
			AnyTags:      []string{"vip", "lead"},
			NoneTags:     []string{"churned"},
			Statuses:     []models.ContactStatus{models.ContactStatusNew},
			Sources:      []models.LeadSource{models.LeadSourceReferral},
			CreatedAfter: &after,
		})
		assert.Equal(t, bson.M{
			"email_subscribed": true,
			"tags":             bson.M{"$in": []string{"vip", "lead"}, "$nin": []string{"churned"}},
			"status":           bson.M{"$in": []models.ContactStatus{models.ContactStatusNew}},
			"lead_source":      bson.M{"$in": []models.LeadSource{models.LeadSourceReferral}},
			"created_at":       bson.M{"$gte": after},
		}, got)
	})

	t.Run("unsubscribed is kept as a predicate", func(t *testing.T) {
		got := ContactFilterBSON(store.ContactFilter{Subscribed: utils.Pointer(false)})
		assert.Equal(t, bson.M{"email_subscribed": false}, got)
	})

	t.Run("exclusion alone", func(t *testing.T) {
		got := ContactFilterBSON(store.ContactFilter{NoneTags: []string{"churned"}})
		assert.Equal(t, bson.M{"tags": bson.M{"$nin": []string{"churned"}}}, got)
	})

	t.Run("search quotes regex metacharacters", func(t *testing.T) {
		got := ContactFilterBSON(store.ContactFilter{Search: "a.b+c"})
		or, ok := got["$or"].([]bson.M)
		require.True(t, ok)
		require.Len(t, or, len(store.SearchFields)+1)

		re := primitive.Regex{Pattern: `a\.b\+c`, Options: "i"}
		for i, field := range store.SearchFields {
			assert.Equal(t, bson.M{field: re}, or[i])
		}
		assert.Equal(t, bson.M{"tags": re}, or[len(or)-1])
	})
}

func TestFalseBooleansAreStored(t *testing.T) {
	t.Run("contact", func(t *testing.T) {
		raw, err := bson.Marshal(&models.Contact{ID: "c1", Email: "ann@example.com", EmailSubscribed: false})
		require.NoError(t, err)

		v, err := bson.Raw(raw).LookupErr("email_subscribed")
		require.NoError(t, err, "email_subscribed must be written even when false")
		assert.Equal(t, bson.TypeBoolean, v.Type)
		assert.False(t, v.Boolean())
	})

	t.Run("enrollment", func(t *testing.T) {
		raw, err := bson.Marshal(&models.SequenceEnrollment{ID: "e1", IsActive: false})
		require.NoError(t, err)

		v, err := bson.Raw(raw).LookupErr("is_active")
		require.NoError(t, err)
		assert.False(t, v.Boolean())

		completed, err := bson.Raw(raw).LookupErr("completed_at")
		require.NoError(t, err)
		assert.Equal(t, bson.TypeNull, completed.Type)
	})
}

// TestLiveStore runs the shared driver checks when LEADCRM_TEST_MONGO_URL
// points at a server. Each run uses a throwaway database.
func TestLiveStore(t *testing.T) {
	url := os.Getenv("LEADCRM_TEST_MONGO_URL")
	if url == "" {
		t.Skip("LEADCRM_TEST_MONGO_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(url))
	require.NoError(t, err)
	require.NoError(t, client.Ping(ctx, nil))

	db := client.Database("leadcrm_test_" + uuid.NewString()[:8])
	s := New(db)
	require.NoError(t, s.EnsureIndexes(ctx))
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = s.Close(context.Background())
	})

	storetest.Run(t, s)
}
