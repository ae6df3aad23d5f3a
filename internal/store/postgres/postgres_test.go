package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-procure/internal/store"
)

func TestTranslate(t *testing.T) {
	require.NoError(t, translate(nil))
	require.ErrorIs(t, translate(&pgconn.PgError{Code: codeUniqueViolation}), store.ErrConflict)
	require.ErrorIs(t, translate(&pgconn.PgError{Code: codeSerializationFailure}), store.ErrConflict)
	require.ErrorIs(t, translate(fmt.Errorf("wrap: %w", context.DeadlineExceeded)), store.ErrTimeout)
	require.ErrorIs(t, translate(store.ErrNotFound), store.ErrNotFound)

	other := errors.New("boom")
	require.Equal(t, other, translate(other))
	require.True(t, store.IsRetryable(translate(&pgconn.PgError{Code: codeDeadlockDetected})))
}

func TestSchemaEmbedded(t *testing.T) {
	require.Contains(t, schema, "procurement_documents")
	require.Contains(t, schema, "idempotency_keys")
}
