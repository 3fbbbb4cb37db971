package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToAPIErrorHidesInternalDetail(t *testing.T) {
	apiErr := toAPIError(http.StatusInternalServerError, errors.New("pq: duplicate key value violates unique constraint \"chunks_pkey\""))
	require.Equal(t, "PC-API-5000", apiErr.Code)
	require.NotContains(t, apiErr.Message, "chunks_pkey")
}

func TestToAPIErrorSchemaMissing(t *testing.T) {
	apiErr := toAPIError(http.StatusInternalServerError, errors.New(`relation "chunks" does not exist`))
	require.Equal(t, "PC-DB-5001", apiErr.Code)
}

func TestToAPIErrorBadGatewayIsGeneric(t *testing.T) {
	apiErr := toAPIError(http.StatusBadGateway, errors.New("failed to generate a response"))
	require.Equal(t, "PC-LLM-5020", apiErr.Code)
	require.Equal(t, "Failed to generate a response. Please retry.", apiErr.Message)
}

func TestToAPIErrorValidationMessages(t *testing.T) {
	apiErr := toAPIError(http.StatusBadRequest, errors.New("collection_id and question are required"))
	require.Equal(t, "PC-API-4001", apiErr.Code)
	require.Equal(t, "Both collection and question are required.", apiErr.Message)
}
