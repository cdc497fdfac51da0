package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryName(t *testing.T) {
	tests := map[string]string{
		"tvs":             "Smart TVs",
		"gaming_consoles": "Gaming Consoles",
		"smart_home":      "Smart Home Devices",
		"smartphones":     "Smartphones",
		"smart_watches":   "Smart Watches",
	}
	for id, want := range tests {
		t.Run(id, func(t *testing.T) {
			assert.Equal(t, want, CategoryName(id))
		})
	}
}

func TestService_Categories(t *testing.T) {
	svc, ids := newTestService(t)
	ctx := context.Background()

	res, err := svc.Categories(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, res.Total)

	phones := res.Categories[0]
	assert.Equal(t, "smartphones", phones.CategoryID)
	assert.Equal(t, "Smartphones", phones.Name)
	assert.Equal(t, 4, phones.ProductCount)
	assert.Equal(t, []string{"Apple", "Fairphone", "Google", "Samsung"}, phones.TopBrands)

	assert.Equal(t, "Smart TVs", res.Categories[1].Name)

	top, err := svc.TopProducts(ctx, "smartphones", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, top.Count)
	assert.Equal(t, ids["p-galaxy-s24"], top.Products[0].ID)
	assert.Equal(t, ids["p-iphone15"], top.Products[1].ID)

	_, err = svc.TopProducts(ctx, "drones", 0)
	assert.True(t, IsNotFound(err))

	brands, err := svc.CategoryBrands(ctx, "smartphones")
	require.NoError(t, err)
	assert.Equal(t, 4, brands.Total)

	_, err = svc.CategoryBrands(ctx, "drones")
	assert.True(t, IsNotFound(err))
}
