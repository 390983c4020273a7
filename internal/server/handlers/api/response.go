package api

import "github.com/gin-gonic/gin"

func AbortWithError(ctx *gin.Context, status int, code string, err error) {
	AbortWithAPIError(ctx, status, &APIError{
		Code:    code,
		Message: err.Error(),
	}, err)
}

// AbortWithAPIError writes body as is and records cause on the context for the request logger
func AbortWithAPIError(ctx *gin.Context, status int, body *APIError, cause error) {
	ctx.Abort()
	if cause != nil {
		ctx.Error(cause)
	}
	ctx.PureJSON(status, body)
}
