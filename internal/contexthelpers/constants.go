package contexthelpers

type contextKey string

const userIDContextKey = contextKey("userID")
const requestIDContextKey = contextKey("requestID")
