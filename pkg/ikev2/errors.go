package ikev2

import (
	"errors"
	"fmt"
)

// 提议构建期的校验错误
var (
	ErrInvalidTransform    = errors.New("非法的变换")
	ErrNoEncryption        = errors.New("提议缺少加密算法")
	ErrMissingPrf          = errors.New("IKE 提议缺少 PRF")
	ErrMissingDhGroup      = errors.New("IKE 提议缺少 DH 组")
	ErrMissingIntegrity    = errors.New("非 AEAD 加密的 IKE 提议缺少完整性算法")
	ErrAeadWithIntegrity   = errors.New("AEAD 加密不能与完整性算法同时使用")
	ErrMixedCipherModes    = errors.New("同一提议不能混用 AEAD 与普通加密算法")
	ErrTransformNotAllowed = errors.New("该变换不允许出现在此类提议中")
	ErrUnsupportedProtocol = errors.New("不支持的协议 ID")
	ErrBuilderConsumed     = errors.New("builder 已使用，不能再次 Build")
)

// 协商期错误：对端选择了本端未提供的内容
var (
	ErrNoProposalChosen = errors.New("对端选择的提议不属于本端提供的任何提议")
	ErrProtocolMismatch = errors.New("协议 ID 不一致")
	ErrMissingKe        = errors.New("协商了 DH 组但缺少 KE 载荷")
	ErrUnexpectedKe     = errors.New("未协商 DH 组却收到 KE 载荷")
	ErrKeGroupMismatch  = errors.New("KE 载荷的 DH 组与协商结果不一致")
)

// ProposalError 提议构建失败，Err 可能由 multierr 合并多个违规项
type ProposalError struct {
	Protocol ProtocolID
	Err      error
}

func (e *ProposalError) Error() string {
	return fmt.Sprintf("%s SA 提议无效: %v", e.Protocol, e.Err)
}

func (e *ProposalError) Unwrap() error { return e.Err }

// NegotiationError 协商不匹配，对 SA 而言总是致命的
type NegotiationError struct {
	Protocol ProtocolID
	Err      error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("%s SA 协商失败: %v", e.Protocol, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }

// NotifyType 返回应回复给对端的错误通知类型
func (e *NegotiationError) NotifyType() uint16 {
	switch {
	case errors.Is(e.Err, ErrMissingKe), errors.Is(e.Err, ErrKeGroupMismatch):
		return INVALID_KE_PAYLOAD
	case errors.Is(e.Err, ErrUnexpectedKe):
		return INVALID_SYNTAX
	default:
		return NO_PROPOSAL_CHOSEN
	}
}
