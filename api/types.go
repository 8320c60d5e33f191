package api

// routeHandlers contains all the handlers for different route types
type routeHandlers struct {
	healthHandler     healthHandler
	blogConfigHandler blogConfigHandler
	postHandler       postHandler
	schedulingHandler schedulingHandler
}

// ErrorResponse represents an error response from the API
// @Description Error response structure
type ErrorResponse struct {
	Error   string `json:"error" example:"blog config not found"`
	Status  string `json:"status" example:"error"`
	Field   string `json:"field,omitempty" example:"blogConfigId"`
	Details string `json:"details,omitempty" example:"Additional error details"`
	Cause   string `json:"cause,omitempty" example:"Underlying error cause"`
}

// DeleteResponse is returned by every delete endpoint.
type DeleteResponse struct {
	Status  string `json:"status" example:"success"`
	Message string `json:"message"`
}
