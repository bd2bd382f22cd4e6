package session

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"fmt"
	"net/netip"
	"slices"
	"time"

	"github.com/iniwex5/ikeparams/pkg/eap"
	"github.com/iniwex5/ikeparams/pkg/ikev2"
	"go.uber.org/multierr"
)

// IKE 会话定时参数
const (
	DpdDelaySecDefault = 120
	DpdDelaySecMin     = 20
	DpdDelaySecMax     = 1800

	NattKeepaliveDelaySecDefault = 10
	NattKeepaliveDelaySecMin     = 10
	NattKeepaliveDelaySecMax     = 3600

	RetransmitTimeoutMsMin = 500
	RetransmitTimeoutMsMax = 1800000
	RetransmitCountMax     = 10

	DscpMax = 63
)

// DefaultRetransmitTimeoutsMs 第 N 次重传前等待的毫秒数
var DefaultRetransmitTimeoutsMs = []int{500, 1000, 2000, 4000, 8000}

// IkeSessionParams 建立 IKE 会话所需的全部参数，构建后不可变
// 同一个对象在 IKE SA Rekey 时原样复用
type IkeSessionParams struct {
	serverHostname string
	proposals      []*ikev2.SaProposal
	localID        ikev2.Identification
	remoteID       ikev2.Identification
	localAuth      AuthConfig
	remoteAuth     AuthConfig
	configRequests []ikev2.ConfigAttribute
	options        optionSet
	lifetime       lifetime
	dpdDelay       time.Duration
	nattKeepalive  time.Duration
	retransmits    []time.Duration
	dscp           int
}

func (p *IkeSessionParams) ServerHostname() string { return p.serverHostname }

// SaProposals 按偏好顺序
func (p *IkeSessionParams) SaProposals() []*ikev2.SaProposal { return slices.Clone(p.proposals) }

func (p *IkeSessionParams) LocalIdentification() ikev2.Identification  { return p.localID }
func (p *IkeSessionParams) RemoteIdentification() ikev2.Identification { return p.remoteID }
func (p *IkeSessionParams) LocalAuthConfig() AuthConfig                { return p.localAuth }
func (p *IkeSessionParams) RemoteAuthConfig() AuthConfig               { return p.remoteAuth }

// ConfigRequests IKE 级别的配置请求 (P-CSCF 等)，顺序与添加顺序一致
func (p *IkeSessionParams) ConfigRequests() []ikev2.ConfigAttribute {
	return slices.Clone(p.configRequests)
}

func (p *IkeSessionParams) HasOption(o IkeOption) bool { return p.options.has(o) }

// Options 按定义顺序返回已开启的选项
func (p *IkeSessionParams) Options() []IkeOption {
	var out []IkeOption
	for o := OptionAcceptAnyRemoteID; o <= OptionRekeyMobility; o++ {
		if p.options.has(o) {
			out = append(out, o)
		}
	}
	return out
}

func (p *IkeSessionParams) HardLifetime() time.Duration       { return p.lifetime.hard }
func (p *IkeSessionParams) SoftLifetime() time.Duration       { return p.lifetime.soft }
func (p *IkeSessionParams) DpdDelay() time.Duration           { return p.dpdDelay }
func (p *IkeSessionParams) NattKeepaliveDelay() time.Duration { return p.nattKeepalive }
func (p *IkeSessionParams) Dscp() int                         { return p.dscp }

func (p *IkeSessionParams) RetransmissionTimeouts() []time.Duration {
	return slices.Clone(p.retransmits)
}

// DefaultDhGroup IKE_SA_INIT 的 KE 载荷使用第一个提议的第一个 DH 组
func (p *IkeSessionParams) DefaultDhGroup() ikev2.DhGroup {
	groups := p.proposals[0].DhGroups()
	if len(groups) == 0 {
		return ikev2.DH_NONE
	}
	return groups[0]
}

// AcceptsDhGroupForRetry 收到 INVALID_KE_PAYLOAD 后，只有当每个提议都包含对端要求的组时才重试
func (p *IkeSessionParams) AcceptsDhGroupForRetry(g ikev2.DhGroup) bool {
	if g == ikev2.DH_NONE {
		return false
	}
	for _, prop := range p.proposals {
		if !slices.Contains(prop.DhGroups(), g) {
			return false
		}
	}
	return true
}

// AcceptsRemoteIdentification 校验对端 IDr；开启 OptionAcceptAnyRemoteID 时总是接受
func (p *IkeSessionParams) AcceptsRemoteIdentification(id ikev2.Identification) bool {
	return p.options.has(OptionAcceptAnyRemoteID) || p.remoteID.Equal(id)
}

// IkeSessionParamsBuilder 所有 setter 都不立即报错，Build 时一次性校验
type IkeSessionParamsBuilder struct {
	params    IkeSessionParams
	hardSec   int
	softSec   int
	dpdSec    int
	nattSec   int
	retransMs []int
	errs      error
	consumed  bool
}

func NewIkeSessionParamsBuilder() *IkeSessionParamsBuilder {
	return &IkeSessionParamsBuilder{
		hardSec:   IkeHardLifetimeSecDefault,
		softSec:   IkeSoftLifetimeSecDefault,
		dpdSec:    DpdDelaySecDefault,
		nattSec:   NattKeepaliveDelaySecDefault,
		retransMs: slices.Clone(DefaultRetransmitTimeoutsMs),
	}
}

func (b *IkeSessionParamsBuilder) SetServerHostname(host string) *IkeSessionParamsBuilder {
	b.params.serverHostname = host
	return b
}

// AddSaProposal 只接受 IKE 提议
func (b *IkeSessionParamsBuilder) AddSaProposal(p *ikev2.SaProposal) *IkeSessionParamsBuilder {
	if p == nil || p.Protocol() != ikev2.ProtoIKE {
		b.errs = multierr.Append(b.errs, paramErr("proposals", fmt.Errorf("%w: 需要 IKE 提议", ErrWrongProposalProtocol)))
		return b
	}
	b.params.proposals = append(b.params.proposals, p)
	return b
}

func (b *IkeSessionParamsBuilder) SetLocalIdentification(id ikev2.Identification) *IkeSessionParamsBuilder {
	b.params.localID = id
	return b
}

func (b *IkeSessionParamsBuilder) SetRemoteIdentification(id ikev2.Identification) *IkeSessionParamsBuilder {
	b.params.remoteID = id
	return b
}

// SetAuthPsk 双方均使用 PSK，替换之前的认证配置
func (b *IkeSessionParamsBuilder) SetAuthPsk(psk []byte) *IkeSessionParamsBuilder {
	if len(psk) == 0 {
		b.errs = multierr.Append(b.errs, paramErr("auth", fmt.Errorf("%w: PSK 为空", ErrMissingAuth)))
		return b
	}
	cfg := PskAuthConfig{psk: bytes.Clone(psk)}
	b.params.localAuth, b.params.remoteAuth = cfg, cfg
	return b
}

// SetAuthDigitalSignature 双方均使用证书签名，替换之前的认证配置
func (b *IkeSessionParamsBuilder) SetAuthDigitalSignature(serverCA, clientCert *x509.Certificate, intermediates []*x509.Certificate, key crypto.Signer) *IkeSessionParamsBuilder {
	if clientCert == nil || key == nil {
		b.errs = multierr.Append(b.errs, paramErr("auth", fmt.Errorf("%w: 缺少本端证书或私钥", ErrMissingAuth)))
		return b
	}
	b.params.localAuth = DigitalSignLocalConfig{ClientCert: clientCert, Intermediates: slices.Clone(intermediates), PrivateKey: key}
	b.params.remoteAuth = DigitalSignRemoteConfig{TrustAnchor: serverCA}
	return b
}

// SetAuthEap 本端 EAP，对端使用证书签名 (EAP-only 时对端可不签名)
func (b *IkeSessionParamsBuilder) SetAuthEap(serverCA *x509.Certificate, cfg *eap.SessionConfig) *IkeSessionParamsBuilder {
	if cfg == nil {
		b.errs = multierr.Append(b.errs, paramErr("auth", fmt.Errorf("%w: 缺少 EAP 配置", ErrMissingAuth)))
		return b
	}
	b.params.localAuth = EapAuthConfig{Config: cfg}
	b.params.remoteAuth = DigitalSignRemoteConfig{TrustAnchor: serverCA}
	return b
}

// AddPcscfServerRequest 按地址族请求 P-CSCF
func (b *IkeSessionParamsBuilder) AddPcscfServerRequest(f ikev2.AddressFamily) *IkeSessionParamsBuilder {
	b.params.configRequests = append(b.params.configRequests, ikev2.PcscfRequest(f))
	return b
}

// AddPcscfServerRequestFor 请求指定的 P-CSCF 地址
func (b *IkeSessionParamsBuilder) AddPcscfServerRequestFor(addr netip.Addr) *IkeSessionParamsBuilder {
	attr, err := ikev2.PcscfRequestFor(addr)
	if err != nil {
		b.errs = multierr.Append(b.errs, paramErr("configRequests", fmt.Errorf("%w: %v", ErrInvalidConfigRequest, err)))
		return b
	}
	b.params.configRequests = append(b.params.configRequests, attr)
	return b
}

func (b *IkeSessionParamsBuilder) AddOption(o IkeOption) *IkeSessionParamsBuilder {
	if !o.valid() {
		b.errs = multierr.Append(b.errs, paramErr("options", fmt.Errorf("未知选项 %d", o)))
		return b
	}
	b.params.options.add(o)
	return b
}

func (b *IkeSessionParamsBuilder) RemoveOption(o IkeOption) *IkeSessionParamsBuilder {
	b.params.options.remove(o)
	return b
}

func (b *IkeSessionParamsBuilder) SetLifetimeSeconds(hard, soft int) *IkeSessionParamsBuilder {
	b.hardSec, b.softSec = hard, soft
	return b
}

func (b *IkeSessionParamsBuilder) SetDpdDelaySeconds(sec int) *IkeSessionParamsBuilder {
	b.dpdSec = sec
	return b
}

func (b *IkeSessionParamsBuilder) SetNattKeepaliveDelaySeconds(sec int) *IkeSessionParamsBuilder {
	b.nattSec = sec
	return b
}

func (b *IkeSessionParamsBuilder) SetRetransmissionTimeoutsMillis(ms []int) *IkeSessionParamsBuilder {
	b.retransMs = slices.Clone(ms)
	return b
}

func (b *IkeSessionParamsBuilder) SetDscp(dscp int) *IkeSessionParamsBuilder {
	b.params.dscp = dscp
	return b
}

// Build 校验全部参数；失败时错误包含每一个违规项
func (b *IkeSessionParamsBuilder) Build() (*IkeSessionParams, error) {
	if b.consumed {
		return nil, paramErr("", ErrBuilderConsumed)
	}
	b.consumed = true
	p := b.params
	b.params = IkeSessionParams{}

	errs := b.errs
	if p.serverHostname == "" {
		errs = multierr.Append(errs, paramErr("serverHostname", ErrMissingHostname))
	}
	if len(p.proposals) == 0 {
		errs = multierr.Append(errs, paramErr("proposals", ErrNoProposals))
	}
	if p.localID.IsZero() {
		errs = multierr.Append(errs, paramErr("localIdentification", ErrMissingIdentification))
	}
	if p.remoteID.IsZero() {
		errs = multierr.Append(errs, paramErr("remoteIdentification", ErrMissingIdentification))
	}
	if p.localAuth == nil || p.remoteAuth == nil {
		errs = multierr.Append(errs, paramErr("auth", ErrMissingAuth))
	}

	lt, err := newLifetime(ikeLifetimeBounds, b.hardSec, b.softSec)
	if err != nil {
		errs = multierr.Append(errs, paramErr("lifetime", err))
	}
	p.lifetime = lt

	if b.dpdSec < DpdDelaySecMin || b.dpdSec > DpdDelaySecMax {
		errs = multierr.Append(errs, paramErr("dpdDelay", fmt.Errorf("%w: %ds 不在 [%d, %d] 内", ErrDpdDelayOutOfRange, b.dpdSec, DpdDelaySecMin, DpdDelaySecMax)))
	}
	p.dpdDelay = time.Duration(b.dpdSec) * time.Second

	if b.nattSec < NattKeepaliveDelaySecMin || b.nattSec > NattKeepaliveDelaySecMax {
		errs = multierr.Append(errs, paramErr("nattKeepaliveDelay", fmt.Errorf("%w: %ds 不在 [%d, %d] 内", ErrNattKeepaliveOutOfRange, b.nattSec, NattKeepaliveDelaySecMin, NattKeepaliveDelaySecMax)))
	}
	p.nattKeepalive = time.Duration(b.nattSec) * time.Second

	if err := validateRetransmits(b.retransMs); err != nil {
		errs = multierr.Append(errs, paramErr("retransmissionTimeouts", err))
	}
	for _, ms := range b.retransMs {
		p.retransmits = append(p.retransmits, time.Duration(ms)*time.Millisecond)
	}

	if p.dscp < 0 || p.dscp > DscpMax {
		errs = multierr.Append(errs, paramErr("dscp", fmt.Errorf("%w: %d", ErrDscpOutOfRange, p.dscp)))
	}

	if p.localID.Type == ikev2.ID_KEY_ID && p.localAuth != nil && p.localAuth.Method() == AuthMethodDigitalSignature {
		errs = multierr.Append(errs, paramErr("localIdentification", ErrKeyIdWithDigitalSign))
	}
	errs = multierr.Append(errs, validateEapOnly(&p))

	if errs != nil {
		return nil, errs
	}
	return &p, nil
}

func validateRetransmits(ms []int) error {
	if len(ms) == 0 || len(ms) > RetransmitCountMax {
		return fmt.Errorf("%w: 次数 %d 不在 [1, %d] 内", ErrRetransmissionOutOfRange, len(ms), RetransmitCountMax)
	}
	for i, v := range ms {
		if v < RetransmitTimeoutMsMin || v > RetransmitTimeoutMsMax {
			return fmt.Errorf("%w: 第 %d 次超时 %dms 不在 [%d, %d] 内", ErrRetransmissionOutOfRange, i+1, v, RetransmitTimeoutMsMin, RetransmitTimeoutMsMax)
		}
	}
	return nil
}

// validateEapOnly EAP-only 要求本端为 EAP 且每个方法都能独立完成双向认证
func validateEapOnly(p *IkeSessionParams) error {
	if !p.options.has(OptionEapOnlyAuth) || p.localAuth == nil {
		return nil
	}
	cfg, ok := p.localAuth.(EapAuthConfig)
	if !ok {
		return paramErr("options", ErrEapOnlyWithoutEap)
	}
	if !cfg.Config.AllMethodsEapOnlySafe() {
		return paramErr("options", ErrEapOnlyUnsafeMethod)
	}
	return nil
}
