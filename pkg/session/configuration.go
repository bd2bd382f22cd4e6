package session

import (
	"bytes"
	"fmt"
	"math/bits"
	"net/netip"
	"slices"

	"github.com/iniwex5/ikeparams/pkg/ikev2"
	"github.com/iniwex5/ikeparams/pkg/logger"
	"go.uber.org/multierr"
)

// IkeExtension 协商成功的 IKE 扩展
type IkeExtension int

const (
	ExtensionFragmentation IkeExtension = iota + 1 // RFC 7383
	ExtensionMobike                                // RFC 4555
)

func (e IkeExtension) String() string {
	switch e {
	case ExtensionFragmentation:
		return "FRAGMENTATION"
	case ExtensionMobike:
		return "MOBIKE"
	default:
		return "UNKNOWN"
	}
}

// ChildSessionConfiguration 一个 Child SA 建立后得到的网络配置，只读
type ChildSessionConfiguration struct {
	inboundTS         []ikev2.TrafficSelector
	outboundTS        []ikev2.TrafficSelector
	internalAddresses []netip.Prefix
	internalSubnets   []netip.Prefix
	dnsServers        []netip.Addr
	dhcpServers       []netip.Addr
}

func (c *ChildSessionConfiguration) InboundTrafficSelectors() []ikev2.TrafficSelector {
	return slices.Clone(c.inboundTS)
}

func (c *ChildSessionConfiguration) OutboundTrafficSelectors() []ikev2.TrafficSelector {
	return slices.Clone(c.outboundTS)
}

// InternalAddresses 地址 + 前缀长度，IPv4 未收到 netmask 时前缀为 32
func (c *ChildSessionConfiguration) InternalAddresses() []netip.Prefix {
	return slices.Clone(c.internalAddresses)
}

func (c *ChildSessionConfiguration) InternalSubnets() []netip.Prefix {
	return slices.Clone(c.internalSubnets)
}

func (c *ChildSessionConfiguration) DnsServers() []netip.Addr  { return slices.Clone(c.dnsServers) }
func (c *ChildSessionConfiguration) DhcpServers() []netip.Addr { return slices.Clone(c.dhcpServers) }

// NewChildSessionConfiguration 解析 CFG_REPLY 中与 Child SA 相关的属性
// 空值属性与未知类型被忽略；已知类型的值格式错误时返回 ErrMalformedAttribute
func NewChildSessionConfiguration(reply []ikev2.ConfigAttribute, inbound, outbound []ikev2.TrafficSelector) (*ChildSessionConfiguration, error) {
	c := &ChildSessionConfiguration{
		inboundTS:  slices.Clone(inbound),
		outboundTS: slices.Clone(outbound),
	}

	var errs error
	var v4Addrs []netip.Addr
	v4Prefix := 32
	netmaskSeen := false

	for _, attr := range reply {
		if attr.IsEmpty() {
			logger.Debug("忽略空的配置属性", logger.Stringer("type", attr.Type))
			continue
		}
		switch attr.Type {
		case ikev2.INTERNAL_IP4_ADDRESS:
			a, err := decodeAddr(attr, 4)
			errs = multierr.Append(errs, err)
			if err == nil {
				v4Addrs = append(v4Addrs, a)
			}
		case ikev2.INTERNAL_IP4_NETMASK:
			n, err := decodeNetmask(attr)
			errs = multierr.Append(errs, err)
			// 只使用第一个 netmask，作用于全部 IPv4 地址
			if err == nil && !netmaskSeen {
				v4Prefix, netmaskSeen = n, true
			}
		case ikev2.INTERNAL_IP6_ADDRESS:
			p, err := decodeIpv6Prefix(attr)
			errs = multierr.Append(errs, err)
			if err == nil {
				c.internalAddresses = append(c.internalAddresses, p)
			}
		case ikev2.INTERNAL_IP4_SUBNET:
			p, err := decodeIpv4Subnet(attr)
			errs = multierr.Append(errs, err)
			if err == nil {
				c.internalSubnets = append(c.internalSubnets, p)
			}
		case ikev2.INTERNAL_IP6_SUBNET:
			p, err := decodeIpv6Prefix(attr)
			errs = multierr.Append(errs, err)
			if err == nil {
				c.internalSubnets = append(c.internalSubnets, p.Masked())
			}
		case ikev2.INTERNAL_IP4_DNS, ikev2.INTERNAL_IP6_DNS:
			a, err := decodeAddr(attr, familyLen(attr.Type))
			errs = multierr.Append(errs, err)
			if err == nil {
				c.dnsServers = append(c.dnsServers, a)
			}
		case ikev2.INTERNAL_IP4_DHCP, ikev2.INTERNAL_IP6_DHCP:
			a, err := decodeAddr(attr, familyLen(attr.Type))
			errs = multierr.Append(errs, err)
			if err == nil {
				c.dhcpServers = append(c.dhcpServers, a)
			}
		default:
			logger.Debug("忽略与 Child SA 无关的配置属性", logger.Stringer("type", attr.Type))
		}
	}
	if errs != nil {
		return nil, errs
	}

	// IPv4 地址排在 IPv6 之前
	v4 := make([]netip.Prefix, 0, len(v4Addrs))
	for _, a := range v4Addrs {
		v4 = append(v4, netip.PrefixFrom(a, v4Prefix))
	}
	c.internalAddresses = append(v4, c.internalAddresses...)
	return c, nil
}

// IkeSessionConfiguration IKE 会话建立后得到的信息，只读
type IkeSessionConfiguration struct {
	pcscfServers       []netip.Addr
	applicationVersion string
	remoteVendorIDs    [][]byte
	extensions         []IkeExtension
}

func (c *IkeSessionConfiguration) PcscfServers() []netip.Addr { return slices.Clone(c.pcscfServers) }
func (c *IkeSessionConfiguration) ApplicationVersion() string { return c.applicationVersion }

func (c *IkeSessionConfiguration) RemoteVendorIDs() [][]byte {
	out := make([][]byte, 0, len(c.remoteVendorIDs))
	for _, v := range c.remoteVendorIDs {
		out = append(out, bytes.Clone(v))
	}
	return out
}

func (c *IkeSessionConfiguration) IsExtensionEnabled(e IkeExtension) bool {
	return slices.Contains(c.extensions, e)
}

// NewIkeSessionConfiguration 解析 CFG_REPLY 中与 IKE 会话相关的属性 (P-CSCF、应用版本)
func NewIkeSessionConfiguration(reply []ikev2.ConfigAttribute, remoteVendorIDs [][]byte, extensions []IkeExtension) (*IkeSessionConfiguration, error) {
	c := &IkeSessionConfiguration{}
	for _, v := range remoteVendorIDs {
		c.remoteVendorIDs = append(c.remoteVendorIDs, bytes.Clone(v))
	}
	for _, e := range extensions {
		if !slices.Contains(c.extensions, e) {
			c.extensions = append(c.extensions, e)
		}
	}

	var errs error
	for _, attr := range reply {
		if attr.IsEmpty() {
			logger.Debug("忽略空的配置属性", logger.Stringer("type", attr.Type))
			continue
		}
		switch attr.Type {
		case ikev2.P_CSCF_IP4_ADDRESS:
			a, err := decodeAddr(attr, 4)
			errs = multierr.Append(errs, err)
			if err == nil {
				c.pcscfServers = append(c.pcscfServers, a)
			}
		case ikev2.P_CSCF_IP6_ADDRESS, ikev2.ASSIGNED_PCSCF_IP6_ADDRESS:
			a, err := decodePcscfIpv6(attr)
			errs = multierr.Append(errs, err)
			if err == nil {
				c.pcscfServers = append(c.pcscfServers, a)
			}
		case ikev2.APPLICATION_VERSION:
			c.applicationVersion = string(attr.Value)
		default:
			logger.Debug("忽略与 IKE 会话无关的配置属性", logger.Stringer("type", attr.Type))
		}
	}
	if errs != nil {
		return nil, errs
	}
	return c, nil
}

func familyLen(t ikev2.ConfigAttributeType) int {
	switch t {
	case ikev2.INTERNAL_IP6_DNS, ikev2.INTERNAL_IP6_DHCP:
		return 16
	default:
		return 4
	}
}

func malformed(attr ikev2.ConfigAttribute, format string, args ...any) error {
	return fmt.Errorf("%w: %s %s", ErrMalformedAttribute, attr.Type, fmt.Sprintf(format, args...))
}

func decodeAddr(attr ikev2.ConfigAttribute, n int) (netip.Addr, error) {
	if len(attr.Value) != n {
		return netip.Addr{}, malformed(attr, "长度 %d，期望 %d", len(attr.Value), n)
	}
	a, _ := netip.AddrFromSlice(attr.Value)
	return a, nil
}

// decodeNetmask 掩码必须是连续的 1
func decodeNetmask(attr ikev2.ConfigAttribute) (int, error) {
	if len(attr.Value) != 4 {
		return 0, malformed(attr, "长度 %d，期望 4", len(attr.Value))
	}
	return maskToPrefixLen(attr, attr.Value)
}

func maskToPrefixLen(attr ikev2.ConfigAttribute, mask []byte) (int, error) {
	m := uint32(mask[0])<<24 | uint32(mask[1])<<16 | uint32(mask[2])<<8 | uint32(mask[3])
	n := bits.LeadingZeros32(^m)
	if m<<n != 0 {
		return 0, malformed(attr, "掩码 %x 不连续", mask)
	}
	return n, nil
}

// decodeIpv4Subnet 值为 4 字节地址 + 4 字节掩码
func decodeIpv4Subnet(attr ikev2.ConfigAttribute) (netip.Prefix, error) {
	if len(attr.Value) != 8 {
		return netip.Prefix{}, malformed(attr, "长度 %d，期望 8", len(attr.Value))
	}
	n, err := maskToPrefixLen(attr, attr.Value[4:8])
	if err != nil {
		return netip.Prefix{}, err
	}
	a := netip.AddrFrom4([4]byte(attr.Value[:4]))
	return netip.PrefixFrom(a, n).Masked(), nil
}

// decodeIpv6Prefix 值为 16 字节地址 + 1 字节前缀长度
func decodeIpv6Prefix(attr ikev2.ConfigAttribute) (netip.Prefix, error) {
	if len(attr.Value) != 17 {
		return netip.Prefix{}, malformed(attr, "长度 %d，期望 17", len(attr.Value))
	}
	bitsLen := int(attr.Value[16])
	if bitsLen > 128 {
		return netip.Prefix{}, malformed(attr, "前缀长度 %d 非法", bitsLen)
	}
	return netip.PrefixFrom(netip.AddrFrom16([16]byte(attr.Value[:16])), bitsLen), nil
}

// decodePcscfIpv6 兼容携带前缀长度字节的实现 (17 字节)
func decodePcscfIpv6(attr ikev2.ConfigAttribute) (netip.Addr, error) {
	switch len(attr.Value) {
	case 16, 17:
		return netip.AddrFrom16([16]byte(attr.Value[:16])), nil
	default:
		return netip.Addr{}, malformed(attr, "长度 %d，期望 16", len(attr.Value))
	}
}
