package handler

// === Requests ===

// URLRequest is the body of create and update requests.
type URLRequest struct {
	URL string `json:"url"`
}

// === Responses ===

type URLResponse struct {
	ID        int64  `json:"id"`
	URL       string `json:"url"`
	ShortCode string `json:"shortCode"`
	ShortURL  string `json:"shortUrl"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type StatsResponse struct {
	URLResponse
	AccessCount int64 `json:"accessCount"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
