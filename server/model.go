package server

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// URLRequest 通过图片地址抠图
type URLRequest struct {
	URL string `json:"url" binding:"required,url"`
}

// HealthResponse 健康检查
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Inflight      int64  `json:"inflight"`
	RemoteEnabled bool   `json:"remote_enabled"`
}
