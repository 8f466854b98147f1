package dto

// OperatorLoginRequest represents the operator login payload
type OperatorLoginRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// OperatorRefreshRequest represents the token refresh payload
type OperatorRefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// OperatorLoginResponse carries the issued token pair
type OperatorLoginResponse struct {
	Operator     string `json:"operator"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
