package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadInvalidate(t *testing.T) {
	store := newCountingStore()
	c := newTestClient(t, store)
	ctx := context.Background()

	items := []product{{ID: "p1", Name: "Widget"}, {ID: "p2", Name: "Gadget"}}
	require.NoError(t, Write(ctx, c, AssetsKey("products"), items))

	got, ok, err := Read[[]product](ctx, c, AssetsKey("products"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, items, got)

	require.NoError(t, c.Invalidate(ctx, AssetsKey("products"), AssetsKey("experts")))
	_, ok, err = Read[[]product](ctx, c, AssetsKey("products"))
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, Write(ctx, c, "", items), ErrInvalidKey)
}

func TestCBORCodecRoundTrip(t *testing.T) {
	store := newCountingStore()
	c := newTestClient(t, store, WithCodec(CBORCodec{}))
	ctx := context.Background()

	require.NoError(t, Write(ctx, c, KeyCampaigns, []product{{ID: "c1", Name: "Launch"}}))
	raw, _ := store.raw(KeyCampaigns)
	assert.NotEqual(t, byte('['), raw[0], "payload is binary, not JSON")

	got, ok, err := Read[[]product](ctx, c, KeyCampaigns)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Launch", got[0].Name)
}

func TestCodecByName(t *testing.T) {
	assert.Equal(t, "cbor", CodecByName("cbor").Name())
	assert.Equal(t, "json", CodecByName("json").Name())
	assert.Equal(t, "json", CodecByName("").Name())
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "aura_campaign_42", CampaignKey("42"))
	assert.Equal(t, "aura_campaign_content_42", CampaignContentKey("42"))
	assert.Equal(t, "aura_assets_audiences", AssetsKey("audiences"))
	assert.Equal(t, "aura_content_email", ContentKey("email"))

	assert.Equal(t, "aura_campaign", family(CampaignKey("0b3e8f9c-6f6e-4d3c-9a37-2f1d2b1a0c11")))
	assert.Equal(t, "aura_assets_products", family(AssetsKey("products")))
	assert.Equal(t, "plain", family("plain"))
}
