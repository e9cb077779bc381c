// Package apperr 定义业务层统一的错误类型。
//
// 每个错误都带有一个 Kind，HTTP 层据此映射状态码：
// Validation → 400, Authentication → 401, NotFound → 404, 其余 → 500。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误分类。
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error 携带分类、面向调用方的消息以及底层原因。
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg != "" {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation 返回输入校验错误。
func Validation(msg string) error {
	return &Error{Kind: KindValidation, Msg: msg}
}

// InvalidBody 返回请求体无法解析时的校验错误，不暴露解码细节。
func InvalidBody() error {
	return &Error{Kind: KindValidation, Msg: "Invalid request body."}
}

// Authentication 返回认证失败错误。
func Authentication(msg string) error {
	return &Error{Kind: KindAuthentication, Msg: msg}
}

// NotFound 返回资源不存在（或不属于当前用户）错误。
func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Msg: msg}
}

// Internal 包装存储层、外部依赖的失败。
func Internal(msg string, err error) error {
	return &Error{Kind: KindInternal, Msg: msg, Err: err}
}

// KindOf 返回错误的分类，非 *Error 一律视为 KindInternal。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is 判断 err 是否属于指定分类。
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message 返回可以直接展示给调用方的消息。内部错误一律返回通用消息。
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal && e.Msg != "" {
		return e.Msg
	}
	return "internal error"
}

// HTTPStatus 返回错误对应的 HTTP 状态码。
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
