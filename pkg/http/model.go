package http

// APIResponse represents standard API response.
type APIResponse struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationError represents validation error detail.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string                 `json:"field,omitempty" example:"symbol"`
	Message string                 `json:"message,omitempty" example:"Symbol is required"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// HealthResponse is returned by the health endpoint. Components maps a
// dependency name to "ok" or its error text.
type HealthResponse struct {
	Status     string            `json:"status" example:"ok"`
	Components map[string]string `json:"components,omitempty"`
}
