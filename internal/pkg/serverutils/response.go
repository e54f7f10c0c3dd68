package serverutils

// BaseResponse is the envelope every JSON endpoint answers with.
type BaseResponse[T any] struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
	Errors  any    `json:"errors,omitempty"`
}

func SuccessResponse[T any](message string, data T) BaseResponse[T] {
	return BaseResponse[T]{
		Success: true,
		Code:    200,
		Message: message,
		Data:    data,
	}
}

func ErrorResponse(code int, message string) BaseResponse[any] {
	return BaseResponse[any]{
		Success: false,
		Code:    code,
		Message: message,
	}
}

// ValidationErrorResponse carries per-field messages next to the summary.
func ValidationErrorResponse(fields map[string]string) BaseResponse[any] {
	return BaseResponse[any]{
		Success: false,
		Code:    400,
		Message: "Validation failed",
		Errors:  fields,
	}
}
