package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/company-brochure/internal/types"
)

func TestValkey_Integration(t *testing.T) {
	addr := os.Getenv("VALKEY_ADDR")
	if addr == "" {
		t.Skip("VALKEY_ADDR not set, skipping integration test")
	}

	log := logrus.New()
	v, err := NewValkey(ValkeyConfig{Address: addr, KeyPrefix: "brochure-test"}, 2*time.Second, log)
	require.NoError(t, err)
	defer v.Close()

	ctx := context.Background()
	v.Clear(ctx)

	_, ok := v.Get(ctx, "https://acme.test")
	assert.False(t, ok)

	v.Put(ctx, "https://acme.test", types.PageContent{URL: "https://acme.test", Title: "Acme", Text: "Rockets"})
	got, ok := v.Get(ctx, "https://acme.test")
	require.True(t, ok)
	assert.Equal(t, "Rockets", got.Text)
	assert.Equal(t, 0, v.ClearExpired(ctx))

	v.Clear(ctx)
	_, ok = v.Get(ctx, "https://acme.test")
	assert.False(t, ok)

	v.Put(ctx, "https://acme.test/about", types.PageContent{Text: "About"})
	time.Sleep(2500 * time.Millisecond)
	_, ok = v.Get(ctx, "https://acme.test/about")
	assert.False(t, ok, "entry should expire server-side")
}
