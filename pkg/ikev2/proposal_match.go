package ikev2

import (
	"fmt"
	"slices"

	"github.com/iniwex5/ikeparams/pkg/logger"
	"go.uber.org/multierr"
)

// IsNegotiatedFrom 判断对端选中的 selected 是否合法地取自本端提供的 p
// 要求协议一致，并且每一族中 selected 恰好包含一个属于 p 的变换 (两者都为空时也成立)
func (p *SaProposal) IsNegotiatedFrom(selected *SaProposal) bool {
	return p.CheckNegotiatedFrom(selected, true) == nil
}

// IsNegotiatedFromExceptDhGroup 与 IsNegotiatedFrom 相同但不比较 DH 组
// 用于 Child SA Rekey：PFS 可以在两次 Rekey 之间开启或关闭
func (p *SaProposal) IsNegotiatedFromExceptDhGroup(selected *SaProposal) bool {
	return p.CheckNegotiatedFrom(selected, false) == nil
}

// CheckNegotiatedFrom 返回第一个不匹配的原因，matchDh 为 false 时跳过 DH 族
func (p *SaProposal) CheckNegotiatedFrom(selected *SaProposal, matchDh bool) error {
	if selected == nil {
		return fmt.Errorf("%w: 选中的提议为空", ErrNoProposalChosen)
	}
	if selected.protocol != p.protocol {
		return fmt.Errorf("%w: 提供 %s，选中 %s", ErrProtocolMismatch, p.protocol, selected.protocol)
	}
	for _, tt := range allTransformTypes {
		if tt == TransformTypeDH && !matchDh {
			continue
		}
		offered, chosen := *p.set.family(tt), *selected.set.family(tt)
		if !isSelectedFrom(offered, chosen, noneOf(tt)) {
			return fmt.Errorf("%w: %s 选择 %v 不在提供的 %v 中", ErrNoProposalChosen, tt, chosen, offered)
		}
	}
	return nil
}

// noneOf 返回与 "不携带该族" 等价的占位变换
func noneOf(tt TransformType) *Transform {
	switch tt {
	case TransformTypeInteg:
		return &integNone
	case TransformTypeDH:
		return &dhNone
	default:
		return nil
	}
}

func isSelectedFrom(offered, chosen []Transform, none *Transform) bool {
	if len(chosen) == 1 && slices.Contains(offered, chosen[0]) {
		return true
	}
	return isEffectivelyEmpty(chosen, none) && isEffectivelyEmpty(offered, none)
}

func isEffectivelyEmpty(list []Transform, none *Transform) bool {
	if len(list) == 0 {
		return true
	}
	return none != nil && len(list) == 1 && list[0] == *none
}

// Negotiate 在本端提供的提议中查找 selected 的来源，返回其下标
// 找不到时返回 *NegotiationError，调用方必须把它当作该 SA 的致命错误
func Negotiate(offered []*SaProposal, selected *SaProposal) (int, error) {
	return negotiate(offered, selected, true)
}

// NegotiateExceptDhGroup Child SA Rekey 使用的变体
func NegotiateExceptDhGroup(offered []*SaProposal, selected *SaProposal) (int, error) {
	return negotiate(offered, selected, false)
}

func negotiate(offered []*SaProposal, selected *SaProposal, matchDh bool) (int, error) {
	var reasons error
	for i, p := range offered {
		err := p.CheckNegotiatedFrom(selected, matchDh)
		if err == nil {
			return i, nil
		}
		reasons = multierr.Append(reasons, fmt.Errorf("提议 %d: %w", i+1, err))
	}

	proto := ProtoIKE
	if selected != nil {
		proto = selected.protocol
	} else if len(offered) > 0 {
		proto = offered[0].protocol
	}
	if reasons == nil {
		reasons = ErrNoProposalChosen
	}
	logger.Warn("对端选择的提议与本端提供的不匹配",
		logger.String("protocol", proto.String()),
		logger.String("selected", fmt.Sprint(selected)),
		logger.Int("offered", len(offered)),
		logger.Err(reasons))
	return -1, &NegotiationError{Protocol: proto, Err: multierr.Append(ErrNoProposalChosen, reasons)}
}

// SelectProposal 响应方选择：按本端偏好顺序，找到第一个能与对端提议匹配的组合
// 返回对端提议的下标和每族只含一个变换的选择结果 (对端 Rekey 请求时使用)
func SelectProposal(local []*SaProposal, peer []*SaProposal) (int, *SaProposal, error) {
	for _, lp := range local {
		for j, pp := range peer {
			if pp == nil || pp.protocol != lp.protocol {
				continue
			}
			sel, ok := selectFrom(lp, pp)
			if !ok {
				continue
			}
			chosen, err := newSaProposal(lp.protocol, sel, nil)
			if err != nil {
				continue
			}
			return j, chosen, nil
		}
	}
	proto := ProtoESP
	if len(local) > 0 {
		proto = local[0].protocol
	}
	logger.Warn("没有可接受的对端提议",
		logger.String("protocol", proto.String()),
		logger.Int("local", len(local)),
		logger.Int("peer", len(peer)))
	return -1, nil, &NegotiationError{Protocol: proto, Err: ErrNoProposalChosen}
}

func selectFrom(local, peer *SaProposal) (transformSet, bool) {
	var out transformSet
	for _, tt := range allTransformTypes {
		l, p := *local.set.family(tt), *peer.set.family(tt)
		none := noneOf(tt)
		picked := false
		for _, t := range l {
			if slices.Contains(p, t) {
				out.add(t)
				picked = true
				break
			}
		}
		if !picked && !(isEffectivelyEmpty(l, none) && isEffectivelyEmpty(p, none)) {
			return transformSet{}, false
		}
	}
	return out, true
}

// ValidateKeGroup 检查 KE 载荷与协商结果一致
// 协商了 DH 组时 KE 必须存在且组号相同；未协商时不得携带 KE
func ValidateKeGroup(negotiated *SaProposal, keGroup DhGroup, kePresent bool) error {
	if negotiated == nil {
		return &NegotiationError{Protocol: ProtoESP, Err: fmt.Errorf("%w: 协商结果为空", ErrNoProposalChosen)}
	}
	groups := negotiated.DhGroups()
	switch {
	case len(groups) == 0 && kePresent:
		return &NegotiationError{Protocol: negotiated.protocol, Err: ErrUnexpectedKe}
	case len(groups) == 0:
		return nil
	case !kePresent:
		return &NegotiationError{Protocol: negotiated.protocol, Err: ErrMissingKe}
	case keGroup != groups[0]:
		return &NegotiationError{Protocol: negotiated.protocol, Err: fmt.Errorf("%w: 期望 %s，收到 %s", ErrKeGroupMismatch, groups[0], keGroup)}
	default:
		return nil
	}
}

// DefaultIkeSaProposals 涵盖高、中、低兼容级别的 IKE 提议 (类似 strongSwan 默认提议)
func DefaultIkeSaProposals() []*SaProposal {
	return []*SaProposal{
		// 高安全组 (AES-GCM-256 + SHA384 + DH15)
		mustProposal(NewIkeSaProposalBuilder().
			AddEncryptionAlgorithm(ENCR_AES_GCM_16, KeyLenAES256).
			AddPseudorandomFunction(PRF_HMAC_SHA2_384).
			AddDhGroup(MODP_3072_bit).
			Build()),
		// 主流安全组 (AES-GCM-128 + SHA256 + DH14)，VoWiFi 常用
		mustProposal(NewIkeSaProposalBuilder().
			AddEncryptionAlgorithm(ENCR_AES_GCM_16, KeyLenAES128).
			AddPseudorandomFunction(PRF_HMAC_SHA2_256).
			AddDhGroup(MODP_2048_bit).
			AddDhGroup(CURVE25519).
			Build()),
		// 传统组 (AES-CBC + SHA256 + DH14)
		mustProposal(NewIkeSaProposalBuilder().
			AddEncryptionAlgorithm(ENCR_AES_CBC, KeyLenAES256).
			AddEncryptionAlgorithm(ENCR_AES_CBC, KeyLenAES128).
			AddIntegrityAlgorithm(AUTH_HMAC_SHA2_256_128).
			AddPseudorandomFunction(PRF_HMAC_SHA2_256).
			AddDhGroup(MODP_2048_bit).
			Build()),
		// 兜底兼容组 (AES-CBC-128 + SHA1 + DH2)
		mustProposal(NewIkeSaProposalBuilder().
			AddEncryptionAlgorithm(ENCR_AES_CBC, KeyLenAES128).
			AddIntegrityAlgorithm(AUTH_HMAC_SHA1_96).
			AddPseudorandomFunction(PRF_HMAC_SHA1).
			AddDhGroup(MODP_1024_bit).
			Build()),
	}
}

// DefaultChildSaProposals 默认 ESP 提议，均不带 DH 组
func DefaultChildSaProposals() []*SaProposal {
	return []*SaProposal{
		mustProposal(NewChildSaProposalBuilder().
			AddEncryptionAlgorithm(ENCR_AES_GCM_16, KeyLenAES256).
			AddEncryptionAlgorithm(ENCR_AES_GCM_16, KeyLenAES128).
			Build()),
		mustProposal(NewChildSaProposalBuilder().
			AddEncryptionAlgorithm(ENCR_AES_CBC, KeyLenAES128).
			AddIntegrityAlgorithm(AUTH_HMAC_SHA2_256_128).
			Build()),
		mustProposal(NewChildSaProposalBuilder().
			AddEncryptionAlgorithm(ENCR_AES_CBC, KeyLenAES128).
			AddIntegrityAlgorithm(AUTH_HMAC_SHA1_96).
			Build()),
	}
}

func mustProposal(p *SaProposal, err error) *SaProposal {
	if err != nil {
		panic(err)
	}
	return p
}
