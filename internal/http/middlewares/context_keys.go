package middlewares

const (
	CtxRequestID = "requestID"
)
