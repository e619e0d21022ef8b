package response

import (
	"errors"
	"net/http"
	"testing"

	"opsboard/internal/apperror"

	"github.com/stretchr/testify/assert"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantTag  string
	}{
		{"validation", apperror.Validation("bad split"), http.StatusBadRequest, "invalid_input"},
		{"not found", apperror.NotFound(apperror.CodeBatchNotFound, "batch x"), http.StatusNotFound, "batch_not_found"},
		{"conflict", apperror.Conflict(apperror.CodeAlreadySettled, "batch already settled"), http.StatusConflict, "already_settled"},
		{"forbidden", apperror.Forbidden("manager may not"), http.StatusForbidden, "forbidden"},
		{"foreign", errors.New("driver: bad connection"), http.StatusServiceUnavailable, "persistence_failure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := FromError(tt.err)
			assert.Equal(t, "error", res.Status)
			assert.Equal(t, tt.wantCode, res.StatusCode)
			assert.Equal(t, tt.wantTag, res.Code)
			assert.Equal(t, tt.err.Error(), res.Error)
		})
	}
}

func TestSuccess(t *testing.T) {
	res := Success(http.StatusCreated, map[string]string{"id": "1"})
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Empty(t, res.Code)
}
