package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/garyjia/procurement/internal/application/port"
	"github.com/garyjia/procurement/internal/application/service"
	"github.com/garyjia/procurement/internal/domain/entity"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	return &Handlers{services: services, logger: logger}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if h.services.Health != nil {
		resp.Components = h.services.Health.HealthCheck(c.Request.Context())
		for _, state := range resp.Components {
			if state != "ok" {
				resp.Status = "degraded"
			}
		}
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, Response{Success: resp.Status == "healthy", Data: resp})
}

// RegisterRequest is the body of POST /auth/register
type RegisterRequest struct {
	Email    string      `json:"email" binding:"required"`
	Password string      `json:"password" binding:"required"`
	FullName string      `json:"full_name"`
	Role     entity.Role `json:"role"`
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest is the body of POST /auth/refresh
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LoginResponse is returned on login
type LoginResponse struct {
	User   *entity.User    `json:"user"`
	Tokens *port.TokenPair `json:"tokens"`
}

// Register handles POST /api/v1/auth/register
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	user, err := h.services.Users.Register(c.Request.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Role:     req.Role,
	})
	if err != nil {
		h.respondError(c, "register", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: user})
}

// Login handles POST /api/v1/auth/login
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	user, tokens, err := h.services.Users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, "login", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: LoginResponse{User: user, Tokens: tokens}})
}

// Refresh handles POST /api/v1/auth/refresh
func (h *Handlers) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	tokens, err := h.services.Users.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.respondError(c, "refresh", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: tokens})
}

// Me handles GET /api/v1/me
func (h *Handlers) Me(c *gin.Context) {
	user, err := h.services.Users.GetUser(c.Request.Context(), mustActor(c).UserID)
	if err != nil {
		h.respondError(c, "me", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: user})
}

// UpdateUserRequest is the body of PUT /users/:id. Omitted fields are unchanged.
type UpdateUserRequest struct {
	FullName           *string          `json:"full_name"`
	Role               *entity.Role     `json:"role"`
	ApprovalLimit      *decimal.Decimal `json:"approval_limit"`
	ClearApprovalLimit bool             `json:"clear_approval_limit"`
}

// UserStatusRequest is the body of PUT /users/:id/status
type UserStatusRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// ListUsers handles GET /api/v1/users
func (h *Handlers) ListUsers(c *gin.Context) {
	var q PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}

	users, err := h.services.Users.ListUsers(c.Request.Context(), mustActor(c), q.Limit, q.Offset)
	if err != nil {
		h.respondError(c, "list_users", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: users})
}

// UpdateUser handles PUT /api/v1/users/:id
func (h *Handlers) UpdateUser(c *gin.Context) {
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	user, err := h.services.Users.UpdateUser(c.Request.Context(), mustActor(c), c.Param("id"), service.UpdateUserInput{
		FullName:           req.FullName,
		Role:               req.Role,
		ApprovalLimit:      req.ApprovalLimit,
		ClearApprovalLimit: req.ClearApprovalLimit,
	})
	if err != nil {
		h.respondError(c, "update_user", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: user})
}

// SetUserStatus handles PUT /api/v1/users/:id/status
func (h *Handlers) SetUserStatus(c *gin.Context) {
	var req UserStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	user, err := h.services.Users.SetUserStatus(c.Request.Context(), mustActor(c), c.Param("id"), *req.IsActive)
	if err != nil {
		h.respondError(c, "set_user_status", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: user})
}

// CreateSupplierRequest is the body of POST /suppliers
type CreateSupplierRequest struct {
	Name        string `json:"name" binding:"required"`
	Code        string `json:"code" binding:"required"`
	ContactName string `json:"contact_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
}

// PageQuery holds limit/offset query parameters
type PageQuery struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

// CreateSupplier handles POST /api/v1/suppliers
func (h *Handlers) CreateSupplier(c *gin.Context) {
	var req CreateSupplierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	supplier, err := h.services.Suppliers.CreateSupplier(c.Request.Context(), mustActor(c), service.CreateSupplierInput{
		Name:        req.Name,
		Code:        req.Code,
		ContactName: req.ContactName,
		Email:       req.Email,
		Phone:       req.Phone,
		Address:     req.Address,
	})
	if err != nil {
		h.respondError(c, "create_supplier", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: supplier})
}

// ListSuppliers handles GET /api/v1/suppliers
func (h *Handlers) ListSuppliers(c *gin.Context) {
	var q PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}

	suppliers, err := h.services.Suppliers.ListSuppliers(c.Request.Context(), q.Limit, q.Offset)
	if err != nil {
		h.respondError(c, "list_suppliers", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: suppliers})
}

// GetSupplier handles GET /api/v1/suppliers/:id
func (h *Handlers) GetSupplier(c *gin.Context) {
	supplier, err := h.services.Suppliers.GetSupplier(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get_supplier", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: supplier})
}
