package ikev2

import (
	"fmt"
	"slices"
	"strings"

	"go.uber.org/multierr"
)

// transformSet 按变换类型分组的有序集合，IKE 与 Child 提议共用
type transformSet struct {
	encryption []Transform
	prf        []Transform
	integrity  []Transform
	dh         []Transform
	esn        []Transform
}

func (s *transformSet) family(tt TransformType) *[]Transform {
	switch tt {
	case TransformTypeEncr:
		return &s.encryption
	case TransformTypePRF:
		return &s.prf
	case TransformTypeInteg:
		return &s.integrity
	case TransformTypeDH:
		return &s.dh
	case TransformTypeESN:
		return &s.esn
	default:
		return nil
	}
}

// add 集合语义：相同变换只保留第一次出现的位置
func (s *transformSet) add(t Transform) {
	list := s.family(t.Type)
	if list == nil || slices.Contains(*list, t) {
		return
	}
	*list = append(*list, t)
}

func (s *transformSet) clone() transformSet {
	return transformSet{
		encryption: slices.Clone(s.encryption),
		prf:        slices.Clone(s.prf),
		integrity:  slices.Clone(s.integrity),
		dh:         slices.Clone(s.dh),
		esn:        slices.Clone(s.esn),
	}
}

func (s *transformSet) isAEAD() bool {
	return len(s.encryption) > 0 && EncrID(s.encryption[0].ID).IsAEAD()
}

var (
	integNone = Transform{Type: TransformTypeInteg, ID: uint16(AUTH_NONE)}
	dhNone    = Transform{Type: TransformTypeDH, ID: uint16(DH_NONE)}
	esnNone   = Transform{Type: TransformTypeESN, ID: uint16(ESN_NONE)}
)

// SaProposal 一个 SA 的不可变提议 (RFC 7296 3.3.1 节)
// ProtocolID 区分 IKE SA 提议与 Child SA (ESP) 提议
type SaProposal struct {
	protocol ProtocolID
	set      transformSet
}

func (p *SaProposal) Protocol() ProtocolID { return p.protocol }

func (p *SaProposal) EncryptionTransforms() []Transform { return slices.Clone(p.set.encryption) }
func (p *SaProposal) PrfTransforms() []Transform        { return slices.Clone(p.set.prf) }
func (p *SaProposal) IntegrityTransforms() []Transform  { return slices.Clone(p.set.integrity) }
func (p *SaProposal) DhGroupTransforms() []Transform    { return slices.Clone(p.set.dh) }
func (p *SaProposal) EsnTransforms() []Transform        { return slices.Clone(p.set.esn) }

// DhGroups 返回提议中的 DH 组 (不含 DH_NONE)
func (p *SaProposal) DhGroups() []DhGroup {
	var out []DhGroup
	for _, t := range p.set.dh {
		if t != dhNone {
			out = append(out, DhGroup(t.ID))
		}
	}
	return out
}

// IsAEAD 提议是否使用组合模式加密
func (p *SaProposal) IsAEAD() bool { return p.set.isAEAD() }

// Transforms 按线上顺序 (ENCR, PRF, INTEG, DH, ESN) 展开全部变换，供编码器使用
func (p *SaProposal) Transforms() []Transform {
	out := make([]Transform, 0, len(p.set.encryption)+len(p.set.prf)+len(p.set.integrity)+len(p.set.dh)+len(p.set.esn))
	out = append(out, p.set.encryption...)
	out = append(out, p.set.prf...)
	out = append(out, p.set.integrity...)
	out = append(out, p.set.dh...)
	out = append(out, p.set.esn...)
	return out
}

// Equal 协议相同且每一族的变换集合相同 (不计顺序)
func (p *SaProposal) Equal(o *SaProposal) bool {
	if p == nil || o == nil {
		return p == o
	}
	if p.protocol != o.protocol {
		return false
	}
	for _, tt := range allTransformTypes {
		a, b := *p.set.family(tt), *o.set.family(tt)
		if len(a) != len(b) {
			return false
		}
		for _, t := range a {
			if !slices.Contains(b, t) {
				return false
			}
		}
	}
	return true
}

func (p *SaProposal) String() string {
	names := make([]string, 0, 8)
	for _, t := range p.Transforms() {
		names = append(names, t.String())
	}
	return p.protocol.String() + "[" + strings.Join(names, " ") + "]"
}

var allTransformTypes = []TransformType{TransformTypeEncr, TransformTypePRF, TransformTypeInteg, TransformTypeDH, TransformTypeESN}

// WithoutDhGroups 返回去掉全部 DH 组的副本
// 第一个 Child SA 在 IKE_AUTH 中协商，RFC 7296 1.2 节不允许携带 KE
func (p *SaProposal) WithoutDhGroups() (*SaProposal, error) {
	if p.protocol != ProtoESP {
		return nil, &ProposalError{Protocol: p.protocol, Err: fmt.Errorf("%w: 只有 Child SA 提议可以去除 DH 组", ErrTransformNotAllowed)}
	}
	set := p.set.clone()
	set.dh = nil
	return &SaProposal{protocol: p.protocol, set: set}, nil
}

// WithDhGroup 返回 DH 组集合恰好为 {g} 的副本，用于 Rekey 时由无 PFS 升级为 PFS
func (p *SaProposal) WithDhGroup(g DhGroup) (*SaProposal, error) {
	if p.protocol != ProtoESP {
		return nil, &ProposalError{Protocol: p.protocol, Err: fmt.Errorf("%w: 只有 Child SA 提议可以替换 DH 组", ErrTransformNotAllowed)}
	}
	t, err := NewDhGroupTransform(g)
	if err == nil && g == DH_NONE {
		err = fmt.Errorf("%w: DH_NONE", ErrInvalidTransform)
	}
	if err != nil {
		return nil, &ProposalError{Protocol: p.protocol, Err: err}
	}
	set := p.set.clone()
	set.dh = []Transform{t}
	return &SaProposal{protocol: p.protocol, set: set}, nil
}

// NewSaProposalFromTransforms 由解码后的变换列表构造提议，规则与 Builder 相同
func NewSaProposalFromTransforms(proto ProtocolID, transforms []Transform) (*SaProposal, error) {
	var errs error
	var set transformSet
	for _, t := range transforms {
		if err := ValidateTransform(t); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		set.add(t)
	}
	return newSaProposal(proto, set, errs)
}

func newSaProposal(proto ProtocolID, set transformSet, prior error) (*SaProposal, error) {
	if proto == ProtoESP {
		normalizeChildSet(&set)
	}
	if err := multierr.Append(prior, validateProposal(proto, &set)); err != nil {
		return nil, &ProposalError{Protocol: proto, Err: err}
	}
	return &SaProposal{protocol: proto, set: set}, nil
}

// normalizeChildSet DH_NONE 等价于不携带 DH；未指定 ESN 时默认为 ESN_NONE
func normalizeChildSet(s *transformSet) {
	s.dh = slices.DeleteFunc(s.dh, func(t Transform) bool { return t == dhNone })
	if len(s.esn) == 0 {
		s.esn = []Transform{esnNone}
	}
}

func validateProposal(proto ProtocolID, s *transformSet) error {
	switch proto {
	case ProtoIKE:
		return validateIkeProposal(s)
	case ProtoESP:
		return validateChildProposal(s)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedProtocol, proto)
	}
}

// validateEncryption 两类提议共用的加密/完整性组合规则
func validateEncryption(s *transformSet) error {
	if len(s.encryption) == 0 {
		return ErrNoEncryption
	}
	aead := 0
	for _, t := range s.encryption {
		if EncrID(t.ID).IsAEAD() {
			aead++
		}
	}
	if aead > 0 && aead < len(s.encryption) {
		return ErrMixedCipherModes
	}
	if aead > 0 && slices.ContainsFunc(s.integrity, func(t Transform) bool { return t != integNone }) {
		return ErrAeadWithIntegrity
	}
	return nil
}

func validateIkeProposal(s *transformSet) error {
	err := validateEncryption(s)
	if len(s.encryption) > 0 && !s.isAEAD() {
		if !slices.ContainsFunc(s.integrity, func(t Transform) bool { return t != integNone }) {
			err = multierr.Append(err, ErrMissingIntegrity)
		} else if slices.Contains(s.integrity, integNone) {
			err = multierr.Append(err, fmt.Errorf("%w: 普通加密的 IKE 提议不能包含 AUTH_NONE", ErrTransformNotAllowed))
		}
	}
	if len(s.prf) == 0 {
		err = multierr.Append(err, ErrMissingPrf)
	}
	if len(s.dh) == 0 {
		err = multierr.Append(err, ErrMissingDhGroup)
	} else if slices.Contains(s.dh, dhNone) {
		err = multierr.Append(err, fmt.Errorf("%w: IKE 提议不能包含 DH_NONE", ErrTransformNotAllowed))
	}
	if len(s.esn) > 0 {
		err = multierr.Append(err, fmt.Errorf("%w: IKE 提议不能包含 ESN", ErrTransformNotAllowed))
	}
	return err
}

// validateChildProposal Child SA 的完整性算法可选，不允许 PRF
func validateChildProposal(s *transformSet) error {
	err := validateEncryption(s)
	if len(s.prf) > 0 {
		err = multierr.Append(err, fmt.Errorf("%w: Child SA 提议不能包含 PRF", ErrTransformNotAllowed))
	}
	return err
}

// proposalBuilder 累积变换，Build 时一次性校验全部规则
// Build 之后 builder 即被消耗
type proposalBuilder struct {
	set      transformSet
	errs     error
	consumed bool
}

func (b *proposalBuilder) add(t Transform, err error) {
	if b.consumed {
		return
	}
	if err != nil {
		b.errs = multierr.Append(b.errs, err)
		return
	}
	b.set.add(t)
}

func (b *proposalBuilder) finish(proto ProtocolID) (*SaProposal, error) {
	if b.consumed {
		return nil, &ProposalError{Protocol: proto, Err: ErrBuilderConsumed}
	}
	set, errs := b.set, b.errs
	b.consumed = true
	b.set, b.errs = transformSet{}, nil
	return newSaProposal(proto, set, errs)
}

// IkeSaProposalBuilder 构建 IKE SA 提议
type IkeSaProposalBuilder struct {
	b proposalBuilder
}

func NewIkeSaProposalBuilder() *IkeSaProposalBuilder {
	return &IkeSaProposalBuilder{}
}

// AddEncryptionAlgorithm 固定长度算法传 KeyLenUnused
func (b *IkeSaProposalBuilder) AddEncryptionAlgorithm(id EncrID, keyLen int) *IkeSaProposalBuilder {
	b.b.add(NewEncryptionTransform(id, keyLen))
	return b
}

func (b *IkeSaProposalBuilder) AddIntegrityAlgorithm(id IntegID) *IkeSaProposalBuilder {
	b.b.add(NewIntegrityTransform(id))
	return b
}

func (b *IkeSaProposalBuilder) AddPseudorandomFunction(id PrfID) *IkeSaProposalBuilder {
	b.b.add(NewPrfTransform(id))
	return b
}

func (b *IkeSaProposalBuilder) AddDhGroup(g DhGroup) *IkeSaProposalBuilder {
	b.b.add(NewDhGroupTransform(g))
	return b
}

// Build 校验并返回不可变提议；失败时错误包含全部违规项
func (b *IkeSaProposalBuilder) Build() (*SaProposal, error) {
	return b.b.finish(ProtoIKE)
}

// ChildSaProposalBuilder 构建 Child SA (ESP) 提议
type ChildSaProposalBuilder struct {
	b proposalBuilder
}

func NewChildSaProposalBuilder() *ChildSaProposalBuilder {
	return &ChildSaProposalBuilder{}
}

func (b *ChildSaProposalBuilder) AddEncryptionAlgorithm(id EncrID, keyLen int) *ChildSaProposalBuilder {
	b.b.add(NewEncryptionTransform(id, keyLen))
	return b
}

func (b *ChildSaProposalBuilder) AddIntegrityAlgorithm(id IntegID) *ChildSaProposalBuilder {
	b.b.add(NewIntegrityTransform(id))
	return b
}

// AddDhGroup 为 Rekey 提供 PFS；DH_NONE 会被忽略
func (b *ChildSaProposalBuilder) AddDhGroup(g DhGroup) *ChildSaProposalBuilder {
	b.b.add(NewDhGroupTransform(g))
	return b
}

func (b *ChildSaProposalBuilder) AddEsnPolicy(e EsnPolicy) *ChildSaProposalBuilder {
	b.b.add(NewEsnTransform(e))
	return b
}

func (b *ChildSaProposalBuilder) Build() (*SaProposal, error) {
	return b.b.finish(ProtoESP)
}
