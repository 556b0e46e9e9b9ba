package service

import (
	"context"
	"testing"

	"github.com/thiagoooop/morada-de-praia/internal/domain"
	"github.com/thiagoooop/morada-de-praia/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApartmentService_Cache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	logger := zerolog.Nop()
	svc := NewApartmentService(f.db, &logger)

	list, err := svc.GetActiveApartments(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, svc.Refresh(ctx))
	list, err = svc.GetActiveApartments(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	apt := &models.Apartment{Name: "  Cobertura 3  ", Capacity: 6, IsActive: true}
	require.NoError(t, svc.CreateApartment(ctx, apt))
	assert.Equal(t, "Cobertura 3", apt.Name)

	list, err = svc.GetActiveApartments(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	// callers cannot mutate the cache through the returned slice
	list[0].Name = "changed"
	again, _ := svc.GetActiveApartments(ctx)
	assert.NotEqual(t, "changed", again[0].Name)

	apt.IsActive = false
	require.NoError(t, svc.UpdateApartment(ctx, apt))
	list, _ = svc.GetActiveApartments(ctx)
	assert.Len(t, list, 1)

	all, err := svc.ListApartments(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// inactive apartments are still reachable by id
	got, err := svc.GetApartment(ctx, apt.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	_, err = svc.GetApartment(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestApartmentService_Validation(t *testing.T) {
	f := newFixture(t)
	logger := zerolog.Nop()
	svc := NewApartmentService(f.db, &logger)

	err := svc.CreateApartment(context.Background(), &models.Apartment{Name: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
