package session

import (
	"fmt"
	"net/netip"
	"slices"
	"time"

	"github.com/iniwex5/ikeparams/pkg/ikev2"
	"go.uber.org/multierr"
)

// Mode Child SA 封装模式
type Mode int

const (
	ModeTunnel Mode = iota
	ModeTransport
)

func (m Mode) String() string {
	if m == ModeTransport {
		return "transport"
	}
	return "tunnel"
}

// ChildSessionParams 一个 Child SA 的参数，构建后不可变，Rekey 时复用
type ChildSessionParams struct {
	mode           Mode
	proposals      []*ikev2.SaProposal
	inboundTS      []ikev2.TrafficSelector
	outboundTS     []ikev2.TrafficSelector
	configRequests []ikev2.ConfigAttribute
	lifetime       lifetime
}

func (p *ChildSessionParams) Mode() Mode { return p.mode }

func (p *ChildSessionParams) SaProposals() []*ikev2.SaProposal { return slices.Clone(p.proposals) }

func (p *ChildSessionParams) InboundTrafficSelectors() []ikev2.TrafficSelector {
	return slices.Clone(p.inboundTS)
}

func (p *ChildSessionParams) OutboundTrafficSelectors() []ikev2.TrafficSelector {
	return slices.Clone(p.outboundTS)
}

// ConfigRequests 仅隧道模式有内容
func (p *ChildSessionParams) ConfigRequests() []ikev2.ConfigAttribute {
	return slices.Clone(p.configRequests)
}

func (p *ChildSessionParams) HardLifetime() time.Duration { return p.lifetime.hard }
func (p *ChildSessionParams) SoftLifetime() time.Duration { return p.lifetime.soft }

// FirstChildProposals 随 IKE_AUTH 协商的第一个 Child SA 不能携带 KE，去掉全部 DH 组
func (p *ChildSessionParams) FirstChildProposals() []*ikev2.SaProposal {
	out := make([]*ikev2.SaProposal, 0, len(p.proposals))
	for _, prop := range p.proposals {
		stripped, err := prop.WithoutDhGroups()
		if err != nil {
			// 构建时已保证全部为 ESP 提议
			panic(err)
		}
		out = append(out, stripped)
	}
	return out
}

// RekeyProposals 本端发起 Rekey 时使用的提议
// 上一次协商带了 DH 组时，不带 DH 的提议补上该组以保持 PFS
func (p *ChildSessionParams) RekeyProposals(negotiatedDh ikev2.DhGroup) []*ikev2.SaProposal {
	if negotiatedDh == ikev2.DH_NONE {
		return p.SaProposals()
	}
	out := make([]*ikev2.SaProposal, 0, len(p.proposals))
	for _, prop := range p.proposals {
		if len(prop.DhGroups()) > 0 {
			out = append(out, prop)
			continue
		}
		withDh, err := prop.WithDhGroup(negotiatedDh)
		if err != nil {
			out = append(out, prop)
			continue
		}
		out = append(out, withDh)
	}
	return out
}

// ChildSessionParamsBuilder 隧道模式与传输模式共用，配置请求只允许出现在隧道模式
type ChildSessionParamsBuilder struct {
	params      ChildSessionParams
	hardSec     int
	softSec     int
	ipv4Address bool
	errs        error
	consumed    bool
}

func NewTunnelModeChildSessionParamsBuilder() *ChildSessionParamsBuilder {
	return newChildBuilder(ModeTunnel)
}

func NewTransportModeChildSessionParamsBuilder() *ChildSessionParamsBuilder {
	return newChildBuilder(ModeTransport)
}

func newChildBuilder(m Mode) *ChildSessionParamsBuilder {
	return &ChildSessionParamsBuilder{
		params:  ChildSessionParams{mode: m},
		hardSec: ChildHardLifetimeSecDefault,
		softSec: ChildSoftLifetimeSecDefault,
	}
}

// AddSaProposal 只接受 ESP 提议
func (b *ChildSessionParamsBuilder) AddSaProposal(p *ikev2.SaProposal) *ChildSessionParamsBuilder {
	if p == nil || p.Protocol() != ikev2.ProtoESP {
		b.errs = multierr.Append(b.errs, paramErr("proposals", fmt.Errorf("%w: 需要 ESP 提议", ErrWrongProposalProtocol)))
		return b
	}
	b.params.proposals = append(b.params.proposals, p)
	return b
}

func (b *ChildSessionParamsBuilder) AddInboundTrafficSelector(ts ikev2.TrafficSelector) *ChildSessionParamsBuilder {
	b.params.inboundTS = append(b.params.inboundTS, ts)
	return b
}

func (b *ChildSessionParamsBuilder) AddOutboundTrafficSelector(ts ikev2.TrafficSelector) *ChildSessionParamsBuilder {
	b.params.outboundTS = append(b.params.outboundTS, ts)
	return b
}

func (b *ChildSessionParamsBuilder) SetLifetimeSeconds(hard, soft int) *ChildSessionParamsBuilder {
	b.hardSec, b.softSec = hard, soft
	return b
}

func (b *ChildSessionParamsBuilder) addRequest(attr ikev2.ConfigAttribute, err error) *ChildSessionParamsBuilder {
	switch {
	case b.params.mode != ModeTunnel:
		b.errs = multierr.Append(b.errs, paramErr("configRequests", fmt.Errorf("%w: %s", ErrConfigRequestNotAllowed, attr.Type)))
	case err != nil:
		b.errs = multierr.Append(b.errs, paramErr("configRequests", fmt.Errorf("%w: %v", ErrInvalidConfigRequest, err)))
	default:
		if attr.Type == ikev2.INTERNAL_IP4_ADDRESS {
			b.ipv4Address = true
		}
		b.params.configRequests = append(b.params.configRequests, attr)
	}
	return b
}

// AddInternalAddressRequest 按地址族请求内部地址
func (b *ChildSessionParamsBuilder) AddInternalAddressRequest(f ikev2.AddressFamily) *ChildSessionParamsBuilder {
	return b.addRequest(ikev2.AddressRequest(f), nil)
}

func (b *ChildSessionParamsBuilder) AddInternalIpv4AddressRequest(addr netip.Addr) *ChildSessionParamsBuilder {
	return b.addRequest(ikev2.Ipv4AddressRequest(addr))
}

func (b *ChildSessionParamsBuilder) AddInternalIpv6AddressRequest(prefix netip.Prefix) *ChildSessionParamsBuilder {
	return b.addRequest(ikev2.Ipv6AddressRequest(prefix))
}

func (b *ChildSessionParamsBuilder) AddInternalDnsServerRequest(f ikev2.AddressFamily) *ChildSessionParamsBuilder {
	return b.addRequest(ikev2.DnsRequest(f), nil)
}

func (b *ChildSessionParamsBuilder) AddInternalDnsServerRequestFor(addr netip.Addr) *ChildSessionParamsBuilder {
	return b.addRequest(ikev2.DnsRequestFor(addr))
}

func (b *ChildSessionParamsBuilder) AddInternalDhcpServerRequest(f ikev2.AddressFamily) *ChildSessionParamsBuilder {
	return b.addRequest(ikev2.DhcpRequest(f), nil)
}

func (b *ChildSessionParamsBuilder) AddInternalDhcpServerRequestFor(addr netip.Addr) *ChildSessionParamsBuilder {
	return b.addRequest(ikev2.DhcpRequestFor(addr))
}

func (b *ChildSessionParamsBuilder) AddInternalSubnetRequest(f ikev2.AddressFamily) *ChildSessionParamsBuilder {
	return b.addRequest(ikev2.SubnetRequest(f), nil)
}

// Build 未指定流量选择器的方向使用 IPv4 + IPv6 全范围；请求了 IPv4 地址时追加 netmask 请求
func (b *ChildSessionParamsBuilder) Build() (*ChildSessionParams, error) {
	if b.consumed {
		return nil, paramErr("", ErrBuilderConsumed)
	}
	b.consumed = true
	p := b.params
	b.params = ChildSessionParams{}

	errs := b.errs
	if len(p.proposals) == 0 {
		errs = multierr.Append(errs, paramErr("proposals", ErrNoProposals))
	}
	lt, err := newLifetime(childLifetimeBounds, b.hardSec, b.softSec)
	if err != nil {
		errs = multierr.Append(errs, paramErr("lifetime", err))
	}
	if errs != nil {
		return nil, errs
	}
	p.lifetime = lt

	if len(p.inboundTS) == 0 {
		p.inboundTS = defaultTrafficSelectors()
	}
	if len(p.outboundTS) == 0 {
		p.outboundTS = defaultTrafficSelectors()
	}
	if b.ipv4Address {
		p.configRequests = append(p.configRequests, ikev2.Ipv4NetmaskRequest())
	}
	return &p, nil
}

func defaultTrafficSelectors() []ikev2.TrafficSelector {
	return []ikev2.TrafficSelector{ikev2.FullRangeIPv4(), ikev2.FullRangeIPv6()}
}
