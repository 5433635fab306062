package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-claims-backend/internal/domain"
)

const createScope = "/api/claims/create"

func TestGetIdempotency(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, &domain.Idempotency{})
	now := time.Now().UTC()

	require.NoError(t, db.Create(&domain.Idempotency{
		ID: "live", UserID: "u1", Scope: createScope, Key: "k-live", ResourceID: "c1",
		Status: 200, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}).Error)
	require.NoError(t, db.Create(&domain.Idempotency{
		ID: "old", UserID: "u1", Scope: createScope, Key: "k-old", ResourceID: "c0",
		Status: 200, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}).Error)

	cases := []struct {
		name             string
		user, scope, key string
		want             string
	}{
		{"live record", "u1", createScope, "k-live", "c1"},
		{"expired", "u1", createScope, "k-old", ""},
		{"unknown key", "u1", createScope, "k-none", ""},
		{"other user", "u2", createScope, "k-live", ""},
		{"other route", "u1", "/api/v1/wizard/:id/submit", "k-live", ""},
		{"blank scope", "u1", "  ", "k-live", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := GetIdempotency(ctx, db, tc.user, tc.scope, tc.key, now)
			if tc.want == "" {
				assert.ErrorIs(t, err, ErrNotFound)
				assert.Nil(t, rec)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, rec.ResourceID)
		})
	}
}

func TestCreateIdempotency(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, &domain.Idempotency{})
	start := time.Now().UTC()

	rec, err := CreateIdempotency(ctx, db, "u9", createScope, "k9", "c9", 200, 90*time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, 200, rec.Status)
	assert.WithinDuration(t, start.Add(90*time.Minute), rec.ExpiresAt, time.Minute)

	got, err := GetIdempotency(ctx, db, "u9", createScope, "k9", start)
	require.NoError(t, err)
	assert.Equal(t, "c9", got.ResourceID)

	_, err = CreateIdempotency(ctx, db, "u9", createScope, "k9", "cX", 200, time.Hour)
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = CreateIdempotency(ctx, db, "u10", createScope, "k9", "cY", 200, time.Hour)
	assert.NoError(t, err, "keys are scoped per user")
}

func TestCreateIdempotency_NoTable(t *testing.T) {
	_, err := CreateIdempotency(context.Background(), newTestDB(t), "u", createScope, "k", "c", 200, time.Minute)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicate)
}

func TestPurgeIdempotency(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, &domain.Idempotency{})
	now := time.Now().UTC()

	for i, exp := range []time.Duration{-time.Hour, -time.Second, 0, time.Hour} {
		require.NoError(t, db.Create(&domain.Idempotency{
			ID: string(rune('a' + i)), UserID: "u", Scope: createScope, Key: string(rune('k' + i)),
			ResourceID: "c", Status: 200, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(exp),
		}).Error)
	}

	n, err := PurgeIdempotency(ctx, db, now)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	var left []domain.Idempotency
	require.NoError(t, db.Find(&left).Error)
	require.Len(t, left, 1)
	assert.Equal(t, "d", left[0].ID)

	n, err = PurgeIdempotency(ctx, db, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}
