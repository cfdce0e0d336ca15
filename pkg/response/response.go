package response

// Generic response envelope shared by all HTTP APIs.
type APIResponseCode int

const (
	APIResponseCodeOK         APIResponseCode = 0
	APIResponseCodeBadRequest APIResponseCode = 40000
	// Entitlement / authorization denials. Every denial carries a distinct
	// code so clients can tell "log in", "subscribe", "wait for renewal" and
	// "contact support" apart.
	APIResponseCodeAuthRequired    APIResponseCode = 40100
	APIResponseCodeLinkIntegrity   APIResponseCode = 40300
	APIResponseCodeNotEligible     APIResponseCode = 40301
	APIResponseCodeNoSubscription  APIResponseCode = 40302
	APIResponseCodeQuotaExhausted  APIResponseCode = 40303
	APIResponseCodeNotFound        APIResponseCode = 40400
	APIResponseCodeError           APIResponseCode = 50000
	APIResponseCodeNotConfigured   APIResponseCode = 50001
	APIResponseCodeUpstreamFailure APIResponseCode = 50200
)

var codeToMsg = map[APIResponseCode]string{
	APIResponseCodeOK:              "ok",
	APIResponseCodeBadRequest:      "unexpected error",
	APIResponseCodeAuthRequired:    "login required",
	APIResponseCodeLinkIntegrity:   "invalid or expired download link",
	APIResponseCodeNotEligible:     "this product is not downloadable here",
	APIResponseCodeNoSubscription:  "you do not have an active subscription",
	APIResponseCodeQuotaExhausted:  "you have reached your download limit",
	APIResponseCodeNotFound:        "not found",
	APIResponseCodeError:           "internal error",
	APIResponseCodeNotConfigured:   "download not configured, please contact support",
	APIResponseCodeUpstreamFailure: "failed to access remote file",
}

// APIResponse is the generic response envelope used by HTTP APIs.
// Use OKT / ErrorT helpers to construct instances.
type APIResponse[T any] struct {
	Code    APIResponseCode `json:"code"`
	Message string          `json:"message"`
	Data    T               `json:"data"`
}

// OKT returns a successful response with data.
func OKT[T any](data T) *APIResponse[T] {
	return &APIResponse[T]{Code: APIResponseCodeOK, Message: codeToMsg[APIResponseCodeOK], Data: data}
}

// ErrorT returns an error response with the code's canonical message and
// optional data.
func ErrorT[T any](code APIResponseCode, data T) *APIResponse[T] {
	return &APIResponse[T]{Code: code, Message: codeToMsg[code], Data: data}
}
