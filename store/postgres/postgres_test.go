package postgres

import (
	"context"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"leadcrm/models"
	"leadcrm/store"
	"leadcrm/store/storetest"
	"leadcrm/utils"
)

type statement struct {
	SQL  string
	Vars []interface{}
}

type recorder struct {
	mu    sync.Mutex
	stmts []statement
}

func (r *recorder) capture(tx *gorm.DB) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vars := make([]interface{}, len(tx.Statement.Vars))
	copy(vars, tx.Statement.Vars)
	r.stmts = append(r.stmts, statement{SQL: tx.Statement.SQL.String(), Vars: vars})
}

func (r *recorder) last(t *testing.T) statement {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.stmts, "no statement recorded")
	return r.stmts[len(r.stmts)-1]
}

// dryRunStore builds SQL without a server. The DSN is parsed, never dialed.
func dryRunStore(t *testing.T) (*Store, *recorder) {
	t.Helper()
	db, err := gorm.Open(pgdriver.New(pgdriver.Config{
		DSN: "host=localhost user=leadcrm dbname=leadcrm sslmode=disable",
	}), &gorm.Config{
		DryRun:                 true,
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
	})
	require.NoError(t, err)

	rec := &recorder{}
	require.NoError(t, db.Callback().Create().After("gorm:create").Register("leadcrm:record", rec.capture))
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("leadcrm:record", rec.capture))
	require.NoError(t, db.Callback().Update().After("gorm:update").Register("leadcrm:record", rec.capture))
	return New(db), rec
}

var insertColumns = regexp.MustCompile(`^INSERT INTO "\w+" \(([^)]*)\) VALUES`)

// inserted returns the value bound to column in a single-row INSERT.
func inserted(t *testing.T, st statement, column string) interface{} {
	t.Helper()
	m := insertColumns.FindStringSubmatch(st.SQL)
	require.NotNil(t, m, "not an insert: %s", st.SQL)
	for i, name := range strings.Split(m[1], ",") {
		if strings.Trim(name, `"`) == column {
			require.Less(t, i, len(st.Vars))
			return st.Vars[i]
		}
	}
	t.Fatalf("column %s not inserted: %s", column, st.SQL)
	return nil
}

// assigned returns the value bound to column in an UPDATE's SET list.
func assigned(t *testing.T, st statement, column string) interface{} {
	t.Helper()
	m := regexp.MustCompile(`"` + column + `"=\$(\d+)`).FindStringSubmatch(st.SQL)
	require.NotNil(t, m, "column %s not assigned: %s", column, st.SQL)
	n, err := strconv.Atoi(m[1])
	require.NoError(t, err)
	require.LessOrEqual(t, n, len(st.Vars))
	return st.Vars[n-1]
}

func TestZeroValuedBooleans(t *testing.T) {
	ctx := context.Background()
	s, rec := dryRunStore(t)

	t.Run("unsubscribed contact inserts false", func(t *testing.T) {
		c := &models.Contact{
			ID:              "c1",
			FirstName:       "Ann",
			Email:           "ann@example.com",
			Status:          models.ContactStatusNew,
			LeadSource:      models.LeadSourceWebsite,
			EmailSubscribed: false,
		}
		require.NoError(t, s.CreateContact(ctx, c))

		assert.Equal(t, false, inserted(t, rec.last(t), "email_subscribed"))
		assert.False(t, c.EmailSubscribed, "insert must not rewrite the model")
	})

	t.Run("subscribed contact inserts true", func(t *testing.T) {
		c := &models.Contact{ID: "c2", FirstName: "Bob", Email: "bob@example.com", EmailSubscribed: true}
		require.NoError(t, s.CreateContact(ctx, c))
		assert.Equal(t, true, inserted(t, rec.last(t), "email_subscribed"))
	})

	t.Run("inactive enrollment inserts false", func(t *testing.T) {
		now := time.Now()
		e := &models.SequenceEnrollment{
			ID: "e1", ContactID: "c1", SequenceID: "s1",
			EnrolledAt: now, CompletedAt: &now, IsActive: false,
		}
		require.NoError(t, s.CreateEnrollment(ctx, e))

		assert.Equal(t, false, inserted(t, rec.last(t), "is_active"))
		assert.False(t, e.IsActive)
	})

	t.Run("full save writes false", func(t *testing.T) {
		c := &models.Contact{ID: "c1", FirstName: "Ann", Email: "ann@example.com", EmailSubscribed: false}
		// A dry run affects no rows.
		assert.ErrorIs(t, s.SaveContact(ctx, c), store.ErrNotFound)

		st := rec.last(t)
		assert.True(t, strings.HasPrefix(st.SQL, `UPDATE "contacts"`), st.SQL)
		assert.Equal(t, false, assigned(t, st, "email_subscribed"))
		assert.NotContains(t, st.SQL, `"created_at"=`)
	})
}

func TestAudienceSQL(t *testing.T) {
	ctx := context.Background()
	s, rec := dryRunStore(t)

	filter := store.ContactFilter{
		Subscribed: utils.Pointer(true),
		AnyTags:    []string{"vip", "lead"},
		NoneTags:   []string{"churned"},
		Statuses:   []models.ContactStatus{models.ContactStatusNew, models.ContactStatusEngaged},
	}

	check := func(t *testing.T, st statement) {
		t.Helper()
		assert.Contains(t, st.SQL, "email_subscribed = $1")
		assert.Contains(t, st.SQL, "jsonb_exists_any(COALESCE(tags, '[]'::jsonb), $2)")
		assert.Contains(t, st.SQL, "NOT jsonb_exists_any(COALESCE(tags, '[]'::jsonb), $3)")
		assert.Contains(t, st.SQL, "status IN ($4,$5)")
		require.GreaterOrEqual(t, len(st.Vars), 5)
		assert.Equal(t, true, st.Vars[0])
		assert.Equal(t, pq.Array([]string{"vip", "lead"}), st.Vars[1])
		assert.Equal(t, pq.Array([]string{"churned"}), st.Vars[2])
		assert.Equal(t, models.ContactStatusNew, st.Vars[3])
		assert.Equal(t, models.ContactStatusEngaged, st.Vars[4])
	}

	t.Run("find", func(t *testing.T) {
		_, err := s.FindContacts(ctx, filter)
		require.NoError(t, err)
		st := rec.last(t)
		check(t, st)
		assert.Contains(t, st.SQL, "ORDER BY created_at DESC,id")
	})

	t.Run("count", func(t *testing.T) {
		_, err := s.CountContacts(ctx, filter)
		require.NoError(t, err)
		st := rec.last(t)
		check(t, st)
		assert.Contains(t, st.SQL, "count(*)")
	})

	t.Run("unsubscribed only", func(t *testing.T) {
		_, err := s.CountContacts(ctx, store.ContactFilter{Subscribed: utils.Pointer(false)})
		require.NoError(t, err)
		st := rec.last(t)
		assert.Contains(t, st.SQL, "email_subscribed = $1")
		assert.Equal(t, []interface{}{false}, st.Vars)
	})

	t.Run("search escapes like wildcards", func(t *testing.T) {
		_, err := s.FindContacts(ctx, store.ContactFilter{Search: `50%_off\`})
		require.NoError(t, err)
		st := rec.last(t)
		assert.Contains(t, st.SQL, "first_name ILIKE $1")
		assert.Contains(t, st.SQL, "jsonb_array_elements_text")
		require.Len(t, st.Vars, len(store.SearchFields)+1)
		for _, v := range st.Vars {
			assert.Equal(t, `%50\%\_off\\%`, v)
		}
	})
}

func TestDeactivateEnrollmentsSQL(t *testing.T) {
	s, rec := dryRunStore(t)

	_, err := s.DeactivateEnrollments(context.Background(), "s1")
	require.NoError(t, err)

	st := rec.last(t)
	assert.True(t, strings.HasPrefix(st.SQL, `UPDATE "sequence_enrollments"`), st.SQL)
	assert.Equal(t, false, assigned(t, st, "is_active"))
	assert.Nil(t, assigned(t, st, "next_email_at"))
	assert.NotContains(t, st.SQL, "completed_at")
	assert.Contains(t, st.SQL, "sequence_id = $3 AND is_active = $4")
	assert.Equal(t, []interface{}{false, nil, "s1", true}, st.Vars)
}

// TestLiveStore runs the shared driver checks when LEADCRM_TEST_POSTGRES_DSN
// points at a disposable database.
func TestLiveStore(t *testing.T) {
	dsn := os.Getenv("LEADCRM_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LEADCRM_TEST_POSTGRES_DSN not set")
	}
	db, err := gorm.Open(pgdriver.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Discard,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(Models()...))

	s := New(db)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	storetest.Run(t, s)
}
