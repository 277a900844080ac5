package table

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/store"
	"github.com/Additional-Code/tableside/internal/store/local"
)

func TestGetDefaultsToOpen(t *testing.T) {
	backend, err := local.Open()
	require.NoError(t, err)
	repo := NewRepository(backend, nil)

	s, err := repo.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, entity.OpenSession(7), s)
}

func TestPutAndDecodeLegacyRecord(t *testing.T) {
	ctx := context.Background()
	backend, err := local.Open()
	require.NoError(t, err)
	repo := NewRepository(backend, nil)

	require.NoError(t, repo.Put(ctx, entity.TableSession{TableID: 3, Status: entity.TableClosingRequested, PaymentMethod: entity.PaymentPix}))
	s, err := repo.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, entity.TableClosingRequested, s.Status)
	assert.Equal(t, entity.PaymentPix, s.PaymentMethod)

	require.NoError(t, backend.Put(ctx, store.Tables, "9", []byte(`{"status":"Fechamento Solicitado","paymentMethod":"Cartão de Débito"}`)))
	s, err = repo.Get(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, entity.TableID(9), s.TableID)
	assert.Equal(t, entity.PaymentDebit, s.PaymentMethod)

	require.NoError(t, repo.Delete(ctx, 3))
	require.NoError(t, repo.Delete(ctx, 3))
	s, err = repo.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, entity.TableOpen, s.Status)
}
