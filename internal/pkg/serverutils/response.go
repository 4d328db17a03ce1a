package serverutils

import "time"

type BaseResponse[T any] struct {
	Success   bool      `json:"success"`
	Code      int       `json:"code"`
	Message   string    `json:"message"`
	Data      T         `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func SuccessResponse[T any](message string, data T) *BaseResponse[T] {
	return &BaseResponse[T]{
		Success:   true,
		Code:      200,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func ErrorResponse(code int, message string) *BaseResponse[any] {
	return &BaseResponse[any]{
		Success:   false,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// ErrorResponseWithData carries details such as per-field validation errors.
func ErrorResponseWithData(code int, message string, data any) *BaseResponse[any] {
	res := ErrorResponse(code, message)
	res.Data = data
	return res
}
