// Package httpapi is the thin demo HTTP surface mounting a tenant
// kernel's operations (spec.md §6). Tenant routing itself stays out
// of scope per spec.md §1; the demo takes the tenant id as a path
// segment and resolves a kernel through kernel.Manager.Get. Grounded
// on the teacher's internal/http package: gin router, response
// envelope, CORS/trace middleware.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nounforge/entitykernel/internal/kernelerr"
)

// envelope matches spec.md §6's response shape exactly: either
// {success: true, data, meta?} or {success: false, error}, unlike the
// teacher's bare-data-on-success/{error:{...}}-on-failure response
// package, because the spec names a success field explicitly.
type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
	Meta    any  `json:"meta,omitempty"`
	Error   any  `json:"error,omitempty"`
}

type errorPayload struct {
	Code            string `json:"code"`
	Message         string `json:"message"`
	CurrentVersion  *int   `json:"currentVersion,omitempty"`
	ExpectedVersion *int   `json:"expectedVersion,omitempty"`
}

func respondOK(c *gin.Context, status int, data any, meta any) {
	c.JSON(status, envelope{Success: true, Data: data, Meta: meta})
}

// respondErr maps a kernel error (or any other error) to spec.md §6's
// HTTP status table and error envelope.
func respondErr(c *gin.Context, err error) {
	ke, ok := asKernelError(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, envelope{Success: false, Error: errorPayload{
			Code: string(kernelerr.CodeInternal), Message: err.Error(),
		}})
		return
	}
	payload := errorPayload{Code: string(ke.Code), Message: ke.Message}
	if ke.Code == kernelerr.CodeVersionConflict {
		cv, ev := ke.CurrentVersion, ke.ExpectedVersion
		payload.CurrentVersion = &cv
		payload.ExpectedVersion = &ev
	}
	c.JSON(ke.Code.HTTPStatus(), envelope{Success: false, Error: payload})
}

func asKernelError(err error) (*kernelerr.Error, bool) {
	var ke *kernelerr.Error
	return ke, errors.As(err, &ke)
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, envelope{Success: false, Error: errorPayload{
		Code: string(kernelerr.CodeBadInput), Message: message,
	}})
}
