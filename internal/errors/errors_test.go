package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocError_Unwrap_PreservesOriginalError(t *testing.T) {
	originalErr := errors.New("original error")

	docErr := New(ErrCodeCacheReadFailed, "page not found in cache", originalErr)

	require.NotNil(t, docErr)
	assert.Equal(t, originalErr, errors.Unwrap(docErr))
	assert.True(t, errors.Is(docErr, originalErr))
}

func TestDocError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigInvalid,
			message:  "weights must sum to 1.0",
			expected: "[ERR_401_CONFIG_INVALID] weights must sum to 1.0",
		},
		{
			name:     "cache error",
			code:     ErrCodeCacheReadFailed,
			message:  "page.json not found",
			expected: "[ERR_201_CACHE_READ_FAILED] page.json not found",
		},
		{
			name:     "fetch error",
			code:     ErrCodeFetchTimeout,
			message:  "request timed out",
			expected: "[ERR_101_FETCH_TIMEOUT] request timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestDocError_Is_MatchesByCode(t *testing.T) {
	err1 := New(ErrCodeCacheReadFailed, "page A not found", nil)
	err2 := New(ErrCodeCacheReadFailed, "page B not found", nil)

	assert.True(t, errors.Is(err1, err2))
}

func TestDocError_Is_DoesNotMatchDifferentCodes(t *testing.T) {
	err1 := New(ErrCodeCacheReadFailed, "page not found", nil)
	err2 := New(ErrCodeConfigInvalid, "config invalid", nil)

	assert.False(t, errors.Is(err1, err2))
}

func TestDocError_WithDetails_AddsContext(t *testing.T) {
	err := New(ErrCodeCacheReadFailed, "page not found", nil)

	err = err.WithDetail("url", "https://example.com/a")
	err = err.WithDetail("size", "1024")

	assert.Equal(t, "https://example.com/a", err.Details["url"])
	assert.Equal(t, "1024", err.Details["size"])
}

func TestDocError_WithSuggestion_AddsSuggestion(t *testing.T) {
	err := New(ErrCodeIndexTamper, "checksum mismatch", nil)

	err = err.WithSuggestion("delete the cache directory and re-run")

	assert.Equal(t, "delete the cache directory and re-run", err.Suggestion)
}

func TestDocError_CategoryFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantCategory Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeWeightsInvalid, CategoryConfig},
		{ErrCodeCacheReadFailed, CategoryIO},
		{ErrCodeCacheWriteFailed, CategoryIO},
		{ErrCodeFetchTimeout, CategoryCrawl},
		{ErrCodeFetchRobotsDenied, CategoryCrawl},
		{ErrCodeIndexTamper, CategoryIndex},
		{ErrCodeDimensionMismatch, CategoryIndex},
		{ErrCodeInternal, CategoryInternal},
		{ErrCodeEmbeddingFailed, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantCategory, err.Category)
		})
	}
}

func TestDocError_SeverityFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantSeverity Severity
	}{
		{ErrCodeIndexTamper, SeverityFatal},
		{ErrCodeStoreCorrupt, SeverityFatal},
		{ErrCodeCacheReadFailed, SeverityError},
		{ErrCodeFetchTimeout, SeverityWarning},
		{ErrCodeFetchConnection, SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantSeverity, err.Severity)
		})
	}
}

func TestDocError_RetryableFromCode(t *testing.T) {
	tests := []struct {
		code          string
		wantRetryable bool
	}{
		{ErrCodeFetchTimeout, true},
		{ErrCodeFetchConnection, true},
		{ErrCodeCacheReadFailed, false},
		{ErrCodeConfigInvalid, false},
		{ErrCodeIndexTamper, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantRetryable, err.Retryable)
		})
	}
}

func TestWrap_CreatesDocErrorFromError(t *testing.T) {
	originalErr := errors.New("something went wrong")

	docErr := Wrap(ErrCodeInternal, originalErr)

	require.NotNil(t, docErr)
	assert.Equal(t, ErrCodeInternal, docErr.Code)
	assert.Equal(t, "something went wrong", docErr.Message)
	assert.Equal(t, originalErr, docErr.Cause)
}

func TestConfigError_CreatesConfigCategoryError(t *testing.T) {
	err := ConfigError("invalid yaml syntax", nil)

	assert.Equal(t, CategoryConfig, err.Category)
	assert.Contains(t, err.Code, "CONFIG")
}

func TestCacheError_CreatesIOCategoryError(t *testing.T) {
	err := CacheError("cannot read cached page", nil)

	assert.Equal(t, CategoryIO, err.Category)
}

func TestFetchError_TimeoutIsRetryable(t *testing.T) {
	err := FetchError(ErrCodeFetchTimeout, "connection refused", nil)

	assert.Equal(t, CategoryCrawl, err.Category)
	assert.True(t, err.Retryable)
}

func TestValidationError_CreatesConfigCategoryError(t *testing.T) {
	err := ValidationError("query cannot be empty", nil)

	assert.Equal(t, CategoryConfig, err.Category)
}

func TestIsRetryable_ChecksRetryableFlag(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "retryable DocError",
			err:      New(ErrCodeFetchTimeout, "timeout", nil),
			expected: true,
		},
		{
			name:     "non-retryable DocError",
			err:      New(ErrCodeCacheReadFailed, "not found", nil),
			expected: false,
		},
		{
			name:     "wrapped retryable error",
			err:      Wrap(ErrCodeFetchTimeout, errors.New("wrapped")),
			expected: true,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal_ChecksFatalSeverity(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "fatal error",
			err:      New(ErrCodeIndexTamper, "checksum mismatch", nil),
			expected: true,
		},
		{
			name:     "corrupt store error",
			err:      New(ErrCodeStoreCorrupt, "chunk store corrupt", nil),
			expected: true,
		},
		{
			name:     "non-fatal error",
			err:      New(ErrCodeCacheReadFailed, "not found", nil),
			expected: false,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsFatal(tt.err))
		})
	}
}
