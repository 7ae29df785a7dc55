package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"sevaconnect-backend/pkg/apperr"
)

// APIResponse 标准API响应结构
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// APIError 错误信息结构
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Meta 列表元数据
type Meta struct {
	Total  int `json:"total"`
	Unread int `json:"unread,omitempty"`
}

func encode(w http.ResponseWriter, statusCode int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// WriteJSONResponse 写入JSON响应
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	encode(w, statusCode, APIResponse{
		Success: statusCode >= 200 && statusCode < 300,
		Data:    data,
	})
}

// WriteSuccessResponse 写入成功响应
func WriteSuccessResponse(w http.ResponseWriter, data interface{}) {
	WriteJSONResponse(w, http.StatusOK, data)
}

// WriteCreatedResponse 写入创建成功响应
func WriteCreatedResponse(w http.ResponseWriter, data interface{}) {
	WriteJSONResponse(w, http.StatusCreated, data)
}

// WriteListResponse 写入列表响应，附带总数
func WriteListResponse(w http.ResponseWriter, data interface{}, meta Meta) {
	encode(w, http.StatusOK, APIResponse{Success: true, Data: data, Meta: &meta})
}

// WriteErrorResponseWithCode 写入带错误代码的错误响应
func WriteErrorResponseWithCode(w http.ResponseWriter, statusCode int, code, message, details string) {
	encode(w, statusCode, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message, Details: details},
	})
}

// WriteBadRequestResponse 写入400错误响应
func WriteBadRequestResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusBadRequest, "BAD_REQUEST", message, "")
}

// WriteUnauthorizedResponse 写入401错误响应
func WriteUnauthorizedResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusUnauthorized, "UNAUTHORIZED", message, "")
}

// WriteForbiddenResponse 写入403错误响应
func WriteForbiddenResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusForbidden, "FORBIDDEN", message, "")
}

// WriteNotFoundResponse 写入404错误响应
func WriteNotFoundResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusNotFound, "NOT_FOUND", message, "")
}

// WriteInternalServerErrorResponse 写入500错误响应
func WriteInternalServerErrorResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", message, "")
}

// WriteAppError 按错误分类写入响应
func WriteAppError(w http.ResponseWriter, err error) {
	var (
		ve *apperr.ValidationError
		de *apperr.DuplicateError
		ne *apperr.NotFoundError
		te *apperr.InvalidTransitionError
		pe *apperr.PersistenceError
	)
	msg := apperr.UserMessage(err)
	switch {
	case errors.As(err, &ve):
		WriteErrorResponseWithCode(w, http.StatusBadRequest, "VALIDATION_ERROR", msg, ve.Field)
	case errors.As(err, &de):
		WriteErrorResponseWithCode(w, http.StatusConflict, "DUPLICATE", msg, de.Field)
	case errors.As(err, &ne):
		WriteErrorResponseWithCode(w, http.StatusNotFound, "NOT_FOUND", msg, ne.ID)
	case errors.As(err, &te):
		WriteErrorResponseWithCode(w, http.StatusConflict, "INVALID_TRANSITION", msg, te.From+" -> "+te.To)
	case errors.As(err, &pe):
		WriteErrorResponseWithCode(w, http.StatusServiceUnavailable, "PERSISTENCE_UNAVAILABLE", msg, "")
	default:
		WriteInternalServerErrorResponse(w, msg)
	}
}

// ParseJSONBody 解析JSON请求体
func ParseJSONBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// GetQueryParam 获取查询参数，如果不存在则返回默认值
func GetQueryParam(r *http.Request, key, defaultValue string) string {
	if value := r.URL.Query().Get(key); value != "" {
		return value
	}
	return defaultValue
}
