package ikev2

import (
	"bytes"
	"fmt"
	"net/netip"
)

// 配置属性类型 (RFC 7296 3.15.1 节，RFC 7651，3GPP TS 24.302)
type ConfigAttributeType uint16

const (
	INTERNAL_IP4_ADDRESS       ConfigAttributeType = 1
	INTERNAL_IP4_NETMASK       ConfigAttributeType = 2
	INTERNAL_IP4_DNS           ConfigAttributeType = 3
	INTERNAL_IP4_NBNS          ConfigAttributeType = 4
	INTERNAL_IP4_DHCP          ConfigAttributeType = 6
	APPLICATION_VERSION        ConfigAttributeType = 7
	INTERNAL_IP6_ADDRESS       ConfigAttributeType = 8
	INTERNAL_IP6_DNS           ConfigAttributeType = 10
	INTERNAL_IP6_DHCP          ConfigAttributeType = 12
	INTERNAL_IP4_SUBNET        ConfigAttributeType = 13
	SUPPORTED_ATTRIBUTES       ConfigAttributeType = 14
	INTERNAL_IP6_SUBNET        ConfigAttributeType = 15
	P_CSCF_IP4_ADDRESS         ConfigAttributeType = 20
	P_CSCF_IP6_ADDRESS         ConfigAttributeType = 21
	ASSIGNED_PCSCF_IP6_ADDRESS ConfigAttributeType = 16390
)

func (t ConfigAttributeType) String() string {
	switch t {
	case INTERNAL_IP4_ADDRESS:
		return "INTERNAL_IP4_ADDRESS"
	case INTERNAL_IP4_NETMASK:
		return "INTERNAL_IP4_NETMASK"
	case INTERNAL_IP4_DNS:
		return "INTERNAL_IP4_DNS"
	case INTERNAL_IP4_NBNS:
		return "INTERNAL_IP4_NBNS"
	case INTERNAL_IP4_DHCP:
		return "INTERNAL_IP4_DHCP"
	case APPLICATION_VERSION:
		return "APPLICATION_VERSION"
	case INTERNAL_IP6_ADDRESS:
		return "INTERNAL_IP6_ADDRESS"
	case INTERNAL_IP6_DNS:
		return "INTERNAL_IP6_DNS"
	case INTERNAL_IP6_DHCP:
		return "INTERNAL_IP6_DHCP"
	case INTERNAL_IP4_SUBNET:
		return "INTERNAL_IP4_SUBNET"
	case SUPPORTED_ATTRIBUTES:
		return "SUPPORTED_ATTRIBUTES"
	case INTERNAL_IP6_SUBNET:
		return "INTERNAL_IP6_SUBNET"
	case P_CSCF_IP4_ADDRESS:
		return "P_CSCF_IP4_ADDRESS"
	case P_CSCF_IP6_ADDRESS:
		return "P_CSCF_IP6_ADDRESS"
	case ASSIGNED_PCSCF_IP6_ADDRESS:
		return "ASSIGNED_PCSCF_IP6_ADDRESS"
	default:
		return fmt.Sprintf("ATTR(%d)", uint16(t))
	}
}

// AddressFamily 请求按地址族区分时使用
type AddressFamily uint8

const (
	FamilyIPv4 AddressFamily = 4
	FamilyIPv6 AddressFamily = 6
)

func (f AddressFamily) String() string {
	if f == FamilyIPv6 {
		return "IPv6"
	}
	return "IPv4"
}

// ConfigAttribute CP 载荷中的一个属性，Value 为空表示请求该类型
type ConfigAttribute struct {
	Type  ConfigAttributeType
	Value []byte
}

func (a ConfigAttribute) IsEmpty() bool { return len(a.Value) == 0 }

func (a ConfigAttribute) Equal(o ConfigAttribute) bool {
	return a.Type == o.Type && bytes.Equal(a.Value, o.Value)
}

func (a ConfigAttribute) String() string {
	if a.IsEmpty() {
		return a.Type.String()
	}
	return fmt.Sprintf("%s(%x)", a.Type, a.Value)
}

func emptyAttr(t ConfigAttributeType) ConfigAttribute { return ConfigAttribute{Type: t} }

func byFamily(f AddressFamily, v4, v6 ConfigAttributeType) ConfigAttribute {
	if f == FamilyIPv6 {
		return emptyAttr(v6)
	}
	return emptyAttr(v4)
}

func addrAttr(addr netip.Addr, v4, v6 ConfigAttributeType) (ConfigAttribute, error) {
	addr = addr.Unmap()
	switch {
	case addr.Is4():
		b := addr.As4()
		return ConfigAttribute{Type: v4, Value: b[:]}, nil
	case addr.Is6():
		b := addr.As16()
		return ConfigAttribute{Type: v6, Value: b[:]}, nil
	default:
		return ConfigAttribute{}, fmt.Errorf("非法地址 %v", addr)
	}
}

// AddressRequest 请求分配一个内部地址
func AddressRequest(f AddressFamily) ConfigAttribute {
	return byFamily(f, INTERNAL_IP4_ADDRESS, INTERNAL_IP6_ADDRESS)
}

// Ipv4AddressRequest 请求指定的 IPv4 内部地址
func Ipv4AddressRequest(addr netip.Addr) (ConfigAttribute, error) {
	addr = addr.Unmap()
	if !addr.Is4() {
		return ConfigAttribute{}, fmt.Errorf("%s 不是 IPv4 地址", addr)
	}
	b := addr.As4()
	return ConfigAttribute{Type: INTERNAL_IP4_ADDRESS, Value: b[:]}, nil
}

// Ipv6AddressRequest 请求指定的 IPv6 内部地址，值为 16 字节地址 + 1 字节前缀长度
func Ipv6AddressRequest(prefix netip.Prefix) (ConfigAttribute, error) {
	if !prefix.IsValid() || !prefix.Addr().Is6() || prefix.Addr().Is4In6() {
		return ConfigAttribute{}, fmt.Errorf("%s 不是 IPv6 前缀", prefix)
	}
	b := prefix.Addr().As16()
	return ConfigAttribute{Type: INTERNAL_IP6_ADDRESS, Value: append(b[:], byte(prefix.Bits()))}, nil
}

// Ipv4NetmaskRequest 请求 IPv4 地址时随附
func Ipv4NetmaskRequest() ConfigAttribute { return emptyAttr(INTERNAL_IP4_NETMASK) }

func DnsRequest(f AddressFamily) ConfigAttribute {
	return byFamily(f, INTERNAL_IP4_DNS, INTERNAL_IP6_DNS)
}

// DnsRequestFor 请求指定的 DNS 服务器
func DnsRequestFor(addr netip.Addr) (ConfigAttribute, error) {
	return addrAttr(addr, INTERNAL_IP4_DNS, INTERNAL_IP6_DNS)
}

func DhcpRequest(f AddressFamily) ConfigAttribute {
	return byFamily(f, INTERNAL_IP4_DHCP, INTERNAL_IP6_DHCP)
}

func DhcpRequestFor(addr netip.Addr) (ConfigAttribute, error) {
	return addrAttr(addr, INTERNAL_IP4_DHCP, INTERNAL_IP6_DHCP)
}

func SubnetRequest(f AddressFamily) ConfigAttribute {
	return byFamily(f, INTERNAL_IP4_SUBNET, INTERNAL_IP6_SUBNET)
}

// PcscfRequest 请求 P-CSCF 服务器地址 (3GPP TS 24.302)
func PcscfRequest(f AddressFamily) ConfigAttribute {
	return byFamily(f, P_CSCF_IP4_ADDRESS, P_CSCF_IP6_ADDRESS)
}

func PcscfRequestFor(addr netip.Addr) (ConfigAttribute, error) {
	return addrAttr(addr, P_CSCF_IP4_ADDRESS, P_CSCF_IP6_ADDRESS)
}

// ApplicationVersionRequest IKE_AUTH 的 CP 请求总以它结尾
func ApplicationVersionRequest() ConfigAttribute { return emptyAttr(APPLICATION_VERSION) }
