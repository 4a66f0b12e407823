package api

// RegisterRequest представляет запрос на регистрацию нового пользователя
type RegisterRequest struct {
	Email    string `json:"email"`    // email для сброса пароля
	Username string `json:"username"` // username пользователя
	Password string `json:"password"` // пароль в открытом виде (только по TLS)
}

// UserInfo публичные данные аккаунта
type UserInfo struct {
	ID       string `json:"id"`       // UUID аккаунта
	Email    string `json:"email"`    // email аккаунта
	Username string `json:"username"` // username аккаунта
}

// RegisterResponse представляет ответ на успешную регистрацию
type RegisterResponse struct {
	Message string   `json:"message"` // сообщение об успешной регистрации
	User    UserInfo `json:"user"`    // созданный аккаунт
	Success bool     `json:"success"` // всегда true
}

// TokenRequest представляет запрос на получение токена
type TokenRequest struct {
	Username string `json:"username"` // username пользователя
	Password string `json:"password"` // пароль пользователя
}

// TokenResponse представляет ответ с токеном доступа
type TokenResponse struct {
	AccessToken string `json:"access_token"` // JWT access token
	TokenType   string `json:"token_type"`   // всегда "bearer"
	ExpiresIn   int64  `json:"expires_in"`   // время жизни токена в секундах
}

// ForgotPasswordRequest представляет запрос на сброс пароля
type ForgotPasswordRequest struct {
	Email string `json:"email"` // email аккаунта
}

// ResetPasswordRequest представляет запрос на установку нового пароля
type ResetPasswordRequest struct {
	Token       string `json:"token"`        // токен из письма
	NewPassword string `json:"new_password"` // новый пароль
}

// MessageResponse представляет ответ без данных
type MessageResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// AuthHealthResponse описывает состояние auth сервиса
type AuthHealthResponse struct {
	Status    string   `json:"status"`
	Service   string   `json:"service"`
	Endpoints []string `json:"endpoints"`
}

// HealthResponse описывает состояние сервиса и хранилища
type HealthResponse struct {
	Status  string `json:"status"`  // "ok" или "unavailable"
	Storage string `json:"storage"` // "ok" или "unavailable"
	Version string `json:"version"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // текст HTTP статуса
	Message string `json:"message,omitempty"` // описание ошибки
}
