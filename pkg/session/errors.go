package session

import (
	"errors"
	"fmt"
)

// 参数构建期错误
var (
	ErrMissingHostname          = errors.New("缺少服务器地址")
	ErrNoProposals              = errors.New("至少需要一个 SA 提议")
	ErrWrongProposalProtocol    = errors.New("SA 提议的协议类型不符")
	ErrMissingIdentification    = errors.New("缺少身份标识")
	ErrMissingAuth              = errors.New("缺少认证配置")
	ErrLifetimeOutOfRange       = errors.New("SA 生存期超出范围")
	ErrDpdDelayOutOfRange       = errors.New("DPD 间隔超出范围")
	ErrNattKeepaliveOutOfRange  = errors.New("NAT-T keepalive 间隔超出范围")
	ErrRetransmissionOutOfRange = errors.New("重传超时配置非法")
	ErrDscpOutOfRange           = errors.New("DSCP 超出范围")
	ErrKeyIdWithDigitalSign     = errors.New("KEY_ID 身份不能与数字签名认证同时使用")
	ErrEapOnlyWithoutEap        = errors.New("EAP-only 认证要求本端使用 EAP")
	ErrEapOnlyUnsafeMethod      = errors.New("EAP-only 认证要求全部 EAP 方法满足 RFC 5998")
	ErrInvalidConfigRequest     = errors.New("非法的配置请求")
	ErrConfigRequestNotAllowed  = errors.New("传输模式不能携带配置请求")
	ErrBuilderConsumed          = errors.New("builder 已使用，不能再次 Build")
)

// 配置解码错误
var ErrMalformedAttribute = errors.New("配置属性格式错误")

// 生命周期错误
var ErrSessionClosed = errors.New("会话已关闭")

// ParamsError 会话参数构建失败，Field 为出错的参数名
type ParamsError struct {
	Field string
	Err   error
}

func (e *ParamsError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("会话参数无效: %v", e.Err)
	}
	return fmt.Sprintf("会话参数 %s 无效: %v", e.Field, e.Err)
}

func (e *ParamsError) Unwrap() error { return e.Err }

func paramErr(field string, err error) error {
	return &ParamsError{Field: field, Err: err}
}
