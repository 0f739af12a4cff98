package server

import "github.com/gin-gonic/gin"

// apiError is the JSON error envelope every handler in this package
// returns on failure, trimmed from the teacher's richer APIError (no
// request-id/details plumbing — this surface has no auth middleware to
// correlate against).
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, apiError{Code: code, Message: message})
}
