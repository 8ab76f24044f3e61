package session

// Per-frame error kinds sent to the client. These are recoverable: the
// session stays open after any of them.
const (
	KindPayloadTooLarge    = "payload_too_large"
	KindDecodeError        = "decode_error"
	KindInferenceError     = "inference_error"
	KindUnsupportedMessage = "unsupported_message"
)

// Prediction is one ranked (label, confidence) pair.
type Prediction struct {
	Label string  `json:"label"`
	Score float32 `json:"score"`
}

// Result answers one successfully classified frame. TotalPredictions is the
// ranked top-K length before threshold filtering, FilteredPredictions the
// count actually returned.
type Result struct {
	Predictions         []Prediction `json:"predictions"`
	TotalPredictions    int          `json:"total_predictions"`
	FilteredPredictions int          `json:"filtered_predictions"`
}

// ErrorDetail describes a per-frame failure.
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ErrorResponse is the envelope for a per-frame failure.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

func errorResponse(kind, message string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Kind: kind, Message: message}}
}
