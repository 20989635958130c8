package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/symcache/internal/symstore"
	"github.com/samcharles93/symcache/pkg/symcache"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "")
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg, "")
}

func writeError(c *echo.Context, status int, errType, msg, code string) error {
	return c.JSON(status, ErrorResponse{Error: ResponseError{
		Message: msg,
		Type:    errType,
		Code:    code,
	}})
}

// writeStoreError maps registry and cache errors onto HTTP statuses.
func writeStoreError(c *echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, symstore.ErrInvalidName):
		return writeBadRequest(c, err.Error())
	case errors.Is(err, symstore.ErrCacheNotFound):
		return writeNotFound(c, err.Error())
	case isCorruption(err):
		return writeError(c, http.StatusUnprocessableEntity, "corrupt_cache_error", err.Error(), corruptionCode(err))
	default:
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "")
	}
}

var corruptionKinds = []struct {
	err  error
	code string
}{
	{symcache.ErrBufferNotAligned, "buffer_not_aligned"},
	{symcache.ErrHeaderTooSmall, "header_too_small"},
	{symcache.ErrWrongEndianness, "wrong_endianness"},
	{symcache.ErrWrongFormat, "wrong_format"},
	{symcache.ErrWrongVersion, "wrong_version"},
	{symcache.ErrBadFormatLength, "bad_format_length"},
	{symcache.ErrCyclicSourceLocation, "cyclic_source_location"},
	{symcache.ErrNonMonotonicRanges, "non_monotonic_ranges"},
	{symcache.ErrInvalidStringData, "invalid_string_data"},
	{symcache.ErrInvalidStringDataReference, "invalid_string_data_reference"},
	{symcache.ErrInvalidStringReference, "invalid_string_reference"},
	{symcache.ErrInvalidFileReference, "invalid_file_reference"},
	{symcache.ErrInvalidFunctionReference, "invalid_function_reference"},
	{symcache.ErrInvalidSourceLocationReference, "invalid_source_location_reference"},
	{symcache.ErrInvalidRangeReference, "invalid_range_reference"},
	// Region errors last: reference errors may carry them as their cause.
	{symcache.ErrOutOfBounds, "out_of_bounds"},
	{symcache.ErrUnaligned, "unaligned"},
}

func isCorruption(err error) bool {
	return corruptionCode(err) != ""
}

func corruptionCode(err error) string {
	for _, k := range corruptionKinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return ""
}
