package contexthelpers_test

import (
	"net/http/httptest"
	"testing"

	"github.com/myrjola/misterio/internal/contexthelpers"
	"github.com/stretchr/testify/require"
)

func TestContextHelpers(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	require.Empty(t, contexthelpers.UserID(r.Context()))
	require.Empty(t, contexthelpers.RequestID(r.Context()))

	r = contexthelpers.SetUserID(r, "abc")
	r = contexthelpers.SetRequestID(r, "req-1")
	require.Equal(t, "abc", contexthelpers.UserID(r.Context()))
	require.Equal(t, "req-1", contexthelpers.RequestID(r.Context()))
}
