package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneKeepsCodeAndMatchesSentinel(t *testing.T) {
	err := Clone(ErrPermissionDenied, "reporters may only edit their own drafts")

	require.Equal(t, "PERMISSION_DENIED", err.Code)
	require.Equal(t, http.StatusForbidden, err.Status)
	assert.True(t, errors.Is(err, ErrPermissionDenied))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	err := FromError(fmt.Errorf("boom"))
	require.Equal(t, ErrInternal.Code, err.Code)
	require.Nil(t, FromError(nil))
}

func TestBackendWrapsCause(t *testing.T) {
	err := Backend(sql.ErrConnDone, "")

	require.Equal(t, http.StatusBadGateway, err.Status)
	assert.True(t, errors.Is(err, sql.ErrConnDone))
	assert.True(t, HasCode(fmt.Errorf("update: %w", err), ErrBackendFailure.Code))
	assert.False(t, HasCode(sql.ErrConnDone, ErrBackendFailure.Code))
}
