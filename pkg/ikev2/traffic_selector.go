package ikev2

import (
	"errors"
	"fmt"
	"net/netip"
)

// 流量选择器类型 (RFC 7296 3.13.1 节)
const (
	TS_IPV4_ADDR_RANGE = 7
	TS_IPV6_ADDR_RANGE = 8
)

// IP 协议号，0 表示任意协议
const IPProtoAny uint8 = 0

var ErrInvalidTrafficSelector = errors.New("非法的流量选择器")

// TrafficSelector 一个地址/端口范围，描述 Child SA 保护的流量
type TrafficSelector struct {
	IPProtocol uint8
	StartPort  uint16
	EndPort    uint16
	StartAddr  netip.Addr
	EndAddr    netip.Addr
}

// NewTrafficSelector 校验地址族一致且 start <= end
func NewTrafficSelector(startAddr, endAddr netip.Addr, startPort, endPort uint16, proto uint8) (TrafficSelector, error) {
	if !startAddr.IsValid() || !endAddr.IsValid() {
		return TrafficSelector{}, fmt.Errorf("%w: 地址为空", ErrInvalidTrafficSelector)
	}
	startAddr, endAddr = startAddr.Unmap(), endAddr.Unmap()
	if startAddr.Is4() != endAddr.Is4() {
		return TrafficSelector{}, fmt.Errorf("%w: %s 与 %s 地址族不同", ErrInvalidTrafficSelector, startAddr, endAddr)
	}
	if startAddr.Compare(endAddr) > 0 {
		return TrafficSelector{}, fmt.Errorf("%w: 起始地址 %s 大于结束地址 %s", ErrInvalidTrafficSelector, startAddr, endAddr)
	}
	if startPort > endPort {
		return TrafficSelector{}, fmt.Errorf("%w: 起始端口 %d 大于结束端口 %d", ErrInvalidTrafficSelector, startPort, endPort)
	}
	return TrafficSelector{
		IPProtocol: proto,
		StartPort:  startPort,
		EndPort:    endPort,
		StartAddr:  startAddr,
		EndAddr:    endAddr,
	}, nil
}

// FullRangeIPv4 0.0.0.0 - 255.255.255.255，全部端口
func FullRangeIPv4() TrafficSelector {
	return TrafficSelector{
		EndPort:   65535,
		StartAddr: netip.IPv4Unspecified(),
		EndAddr:   netip.AddrFrom4([4]byte{255, 255, 255, 255}),
	}
}

// FullRangeIPv6 :: - ffff:...:ffff，全部端口
func FullRangeIPv6() TrafficSelector {
	var last [16]byte
	for i := range last {
		last[i] = 0xff
	}
	return TrafficSelector{
		EndPort:   65535,
		StartAddr: netip.IPv6Unspecified(),
		EndAddr:   netip.AddrFrom16(last),
	}
}

// TSType 返回线上编码使用的选择器类型
func (ts TrafficSelector) TSType() uint8 {
	if ts.StartAddr.Is4() {
		return TS_IPV4_ADDR_RANGE
	}
	return TS_IPV6_ADDR_RANGE
}

// IsIPv4 选择器是否为 IPv4 范围
func (ts TrafficSelector) IsIPv4() bool { return ts.StartAddr.Is4() }

// Contains 判断一个数据包 (目的地址, 协议, 端口) 是否落在选择器内
// 协议为 0 的选择器匹配任意协议
func (ts TrafficSelector) Contains(addr netip.Addr, proto uint8, port uint16) bool {
	addr = addr.Unmap()
	if addr.Is4() != ts.StartAddr.Is4() {
		return false
	}
	if addr.Compare(ts.StartAddr) < 0 || addr.Compare(ts.EndAddr) > 0 {
		return false
	}
	if ts.IPProtocol != IPProtoAny && ts.IPProtocol != proto {
		return false
	}
	return port >= ts.StartPort && port <= ts.EndPort
}

// Prefixes 把地址范围拆成最少的 CIDR 前缀列表
func (ts TrafficSelector) Prefixes() []netip.Prefix {
	var out []netip.Prefix
	start, end := ts.StartAddr, ts.EndAddr
	if !start.IsValid() || !end.IsValid() || start.Compare(end) > 0 {
		return nil
	}
	for {
		p := largestPrefixAt(start, end)
		out = append(out, p)
		last := lastAddr(p)
		if last.Compare(end) >= 0 {
			return out
		}
		start = last.Next()
	}
}

// largestPrefixAt 以 start 为网络地址、且不超过 end 的最大前缀
func largestPrefixAt(start, end netip.Addr) netip.Prefix {
	for bits := 0; bits < start.BitLen(); bits++ {
		p := netip.PrefixFrom(start, bits)
		if p.Masked().Addr() != start {
			continue
		}
		if lastAddr(p).Compare(end) <= 0 {
			return p
		}
	}
	return netip.PrefixFrom(start, start.BitLen())
}

// lastAddr 前缀内的最后一个地址 (主机位全 1)
func lastAddr(p netip.Prefix) netip.Addr {
	a := p.Masked().Addr()
	if a.Is4() {
		b := a.As4()
		setHostBits(b[:], p.Bits())
		return netip.AddrFrom4(b)
	}
	b := a.As16()
	setHostBits(b[:], p.Bits())
	return netip.AddrFrom16(b)
}

func setHostBits(b []byte, bits int) {
	for i := range b {
		switch {
		case bits >= 8:
			bits -= 8
		case bits > 0:
			b[i] |= 0xff >> bits
			bits = 0
		default:
			b[i] = 0xff
		}
	}
}

func (ts TrafficSelector) String() string {
	proto := "any"
	if ts.IPProtocol != IPProtoAny {
		proto = fmt.Sprint(ts.IPProtocol)
	}
	return fmt.Sprintf("%s-%s[%s/%d-%d]", ts.StartAddr, ts.EndAddr, proto, ts.StartPort, ts.EndPort)
}
