package repo

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thumbnailer/internal/domain"
)

func newRequest(t *testing.T, createdAt time.Time) *domain.GenerationRequest {
	t.Helper()
	custom := "Launch day"
	return &domain.GenerationRequest{
		ID:             uuid.NewString(),
		OriginalPrompt: "A cat playing piano",
		Customizations: domain.Customizations{
			ColorScheme:   domain.ColorSchemeVibrant,
			TextOption:    domain.TextOptionCustom,
			CustomText:    &custom,
			Style:         domain.StyleEnergetic,
			TargetEmotion: "excitement",
		},
		Status:    domain.StatusPending,
		Locale:    domain.DefaultLocale,
		CreatedAt: createdAt.UTC().Truncate(time.Microsecond),
	}
}

func contains(list []domain.GenerationRequest, id string) int {
	for i, r := range list {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// runStoreContract exercises the behaviour every RequestStore must share.
func runStoreContract(t *testing.T, store domain.RequestStore) {
	ctx := context.Background()

	t.Run("create then get returns an equal copy", func(t *testing.T) {
		req := newRequest(t, time.Now())
		require.NoError(t, store.Create(ctx, req))

		got, err := store.GetByID(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, req.ID, got.ID)
		assert.Equal(t, req.OriginalPrompt, got.OriginalPrompt)
		assert.Equal(t, req.Customizations, got.Customizations)
		assert.Equal(t, domain.StatusPending, got.Status)
		assert.True(t, req.CreatedAt.Equal(got.CreatedAt))
		assert.Nil(t, got.RefinedPrompt)
	})

	t.Run("repeated get returns the same record", func(t *testing.T) {
		req := newRequest(t, time.Now())
		require.NoError(t, store.Create(ctx, req))
		_, err := store.Update(ctx, req.ID, domain.RequestUpdate{
			Status:        domain.StatusPtr(domain.StatusProcessing),
			RefinedPrompt: domain.StringPtr("refined"),
		})
		require.NoError(t, err)

		first, err := store.GetByID(ctx, req.ID)
		require.NoError(t, err)
		firstJSON, err := json.Marshal(first)
		require.NoError(t, err)

		second, err := store.GetByID(ctx, req.ID)
		require.NoError(t, err)
		secondJSON, err := json.Marshal(second)
		require.NoError(t, err)
		assert.Equal(t, string(firstJSON), string(secondJSON))
	})

	t.Run("get unknown id", func(t *testing.T) {
		_, err := store.GetByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("update unknown id", func(t *testing.T) {
		_, err := store.Update(ctx, uuid.NewString(), domain.RequestUpdate{Status: domain.StatusPtr(domain.StatusFailed)})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("partial update leaves other fields", func(t *testing.T) {
		req := newRequest(t, time.Now())
		require.NoError(t, store.Create(ctx, req))

		got, err := store.Update(ctx, req.ID, domain.RequestUpdate{Status: domain.StatusPtr(domain.StatusProcessing)})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusProcessing, got.Status)

		got, err = store.Update(ctx, req.ID, domain.RequestUpdate{RefinedPrompt: domain.StringPtr("refined")})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusProcessing, got.Status)
		require.NotNil(t, got.RefinedPrompt)
		assert.Equal(t, "refined", *got.RefinedPrompt)

		reread, err := store.GetByID(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, got.RefinedPrompt, reread.RefinedPrompt)
		assert.Equal(t, req.OriginalPrompt, reread.OriginalPrompt)
	})

	t.Run("list by status is ordered by creation", func(t *testing.T) {
		base := time.Now().Add(-time.Hour)
		older := newRequest(t, base)
		newer := newRequest(t, base.Add(time.Minute))
		require.NoError(t, store.Create(ctx, newer))
		require.NoError(t, store.Create(ctx, older))
		_, err := store.Update(ctx, older.ID, domain.RequestUpdate{Status: domain.StatusPtr(domain.StatusFailed)})
		require.NoError(t, err)
		_, err = store.Update(ctx, newer.ID, domain.RequestUpdate{Status: domain.StatusPtr(domain.StatusFailed)})
		require.NoError(t, err)

		failed, err := store.ListByStatus(ctx, domain.StatusFailed)
		require.NoError(t, err)
		i, j := contains(failed, older.ID), contains(failed, newer.ID)
		require.GreaterOrEqual(t, i, 0)
		require.GreaterOrEqual(t, j, 0)
		assert.Less(t, i, j)

		pending, err := store.ListByStatus(ctx, domain.StatusPending)
		require.NoError(t, err)
		assert.Equal(t, -1, contains(pending, older.ID))

		all, err := store.ListByStatus(ctx, "")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, contains(all, newer.ID), 0)
	})

	t.Run("concurrent updates to one record all land", func(t *testing.T) {
		req := newRequest(t, time.Now())
		require.NoError(t, store.Create(ctx, req))

		var wg sync.WaitGroup
		errs := make(chan error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, req.ID, domain.RequestUpdate{RefinedPrompt: domain.StringPtr("p")})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, req.ID, domain.RequestUpdate{Status: domain.StatusPtr(domain.StatusProcessing)})
			errs <- err
		}()
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := store.GetByID(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusProcessing, got.Status)
		require.NotNil(t, got.RefinedPrompt)
		assert.Equal(t, "p", *got.RefinedPrompt)
	})

	t.Run("completed without outputs is rejected", func(t *testing.T) {
		req := newRequest(t, time.Now())
		require.NoError(t, store.Create(ctx, req))
		_, err := store.Update(ctx, req.ID, domain.RequestUpdate{Status: domain.StatusPtr(domain.StatusCompleted)})
		assert.Error(t, err)
	})
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	req := newRequest(t, time.Now())
	require.NoError(t, store.Create(ctx, req))

	req.OriginalPrompt = "mutated after create"
	*req.Customizations.CustomText = "mutated"

	got, err := store.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "A cat playing piano", got.OriginalPrompt)
	assert.Equal(t, "Launch day", got.Customizations.CustomTextValue())

	got.Status = domain.StatusFailed
	again, err := store.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, again.Status)
}

func TestMemoryStoreRejectsDuplicateIDs(t *testing.T) {
	store := NewMemoryStore()
	req := newRequest(t, time.Now())
	require.NoError(t, store.Create(context.Background(), req))
	err := store.Create(context.Background(), req)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

// TestRedisStoreContract runs against a live server when TEST_REDIS_URL is set.
func TestRedisStoreContract(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	runStoreContract(t, NewRedisStore(client))
}
