package session

import (
	"net/netip"
	"testing"

	"github.com/iniwex5/ikeparams/pkg/ikev2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attr(t ikev2.ConfigAttributeType, v ...byte) ikev2.ConfigAttribute {
	return ikev2.ConfigAttribute{Type: t, Value: v}
}

func TestIpv4AddressWithNetmask(t *testing.T) {
	c, err := NewChildSessionConfiguration([]ikev2.ConfigAttribute{
		attr(ikev2.INTERNAL_IP4_ADDRESS, 10, 0, 0, 5),
		attr(ikev2.INTERNAL_IP4_NETMASK, 255, 255, 255, 0),
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{netip.MustParsePrefix("10.0.0.5/24")}, c.InternalAddresses())
}

func TestIpv4AddressWithoutNetmask(t *testing.T) {
	c, err := NewChildSessionConfiguration([]ikev2.ConfigAttribute{
		attr(ikev2.INTERNAL_IP4_ADDRESS, 10, 0, 0, 5),
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{netip.MustParsePrefix("10.0.0.5/32")}, c.InternalAddresses())
}

func TestEmptyNetmaskIgnored(t *testing.T) {
	c, err := NewChildSessionConfiguration([]ikev2.ConfigAttribute{
		attr(ikev2.INTERNAL_IP4_NETMASK),
		attr(ikev2.INTERNAL_IP4_ADDRESS, 10, 0, 0, 5),
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 32, c.InternalAddresses()[0].Bits())
}

func TestEmptyDnsAttributeDropped(t *testing.T) {
	c, err := NewChildSessionConfiguration([]ikev2.ConfigAttribute{
		attr(ikev2.INTERNAL_IP4_DNS),
		attr(ikev2.INTERNAL_IP4_DNS, 8, 8, 8, 8),
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("8.8.8.8")}, c.DnsServers())

	c, err = NewChildSessionConfiguration([]ikev2.ConfigAttribute{attr(ikev2.INTERNAL_IP6_DNS)}, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, c.DnsServers())
}

func TestIpv6AddressSubnetAndDhcp(t *testing.T) {
	v6 := netip.MustParseAddr("2001:db8::5").As16()
	sub := netip.MustParseAddr("2001:db8:1::").As16()
	c, err := NewChildSessionConfiguration([]ikev2.ConfigAttribute{
		attr(ikev2.INTERNAL_IP6_ADDRESS, append(v6[:], 64)...),
		attr(ikev2.INTERNAL_IP4_ADDRESS, 10, 0, 0, 5),
		attr(ikev2.INTERNAL_IP4_SUBNET, 192, 168, 1, 0, 255, 255, 255, 0),
		attr(ikev2.INTERNAL_IP6_SUBNET, append(sub[:], 48)...),
		attr(ikev2.INTERNAL_IP4_DHCP, 10, 0, 0, 1),
		attr(ikev2.P_CSCF_IP4_ADDRESS, 10, 0, 0, 9),
		attr(ikev2.ConfigAttributeType(999), 1, 2, 3),
	}, []ikev2.TrafficSelector{ikev2.FullRangeIPv4()}, nil)
	require.NoError(t, err)

	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.5/32"),
		netip.MustParsePrefix("2001:db8::5/64"),
	}, c.InternalAddresses())
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("192.168.1.0/24"),
		netip.MustParsePrefix("2001:db8:1::/48"),
	}, c.InternalSubnets())
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("10.0.0.1")}, c.DhcpServers())
	assert.Len(t, c.InboundTrafficSelectors(), 1)
	assert.Empty(t, c.OutboundTrafficSelectors())
}

func TestMalformedAttribute(t *testing.T) {
	_, err := NewChildSessionConfiguration([]ikev2.ConfigAttribute{
		attr(ikev2.INTERNAL_IP4_ADDRESS, 10, 0, 0),
	}, nil, nil)
	assert.ErrorIs(t, err, ErrMalformedAttribute)

	_, err = NewChildSessionConfiguration([]ikev2.ConfigAttribute{
		attr(ikev2.INTERNAL_IP4_NETMASK, 255, 0, 255, 0),
	}, nil, nil)
	assert.ErrorIs(t, err, ErrMalformedAttribute)
}

func TestIkeSessionConfiguration(t *testing.T) {
	pcscf6 := netip.MustParseAddr("2001:db8::9").As16()
	c, err := NewIkeSessionConfiguration([]ikev2.ConfigAttribute{
		attr(ikev2.P_CSCF_IP4_ADDRESS, 10, 0, 0, 9),
		attr(ikev2.P_CSCF_IP6_ADDRESS, pcscf6[:]...),
		attr(ikev2.P_CSCF_IP6_ADDRESS),
		attr(ikev2.APPLICATION_VERSION, []byte("ePDG 1.0")...),
		attr(ikev2.INTERNAL_IP4_ADDRESS, 10, 0, 0, 5),
	}, [][]byte{{0xde, 0xad}}, []IkeExtension{ExtensionMobike, ExtensionMobike})
	require.NoError(t, err)

	assert.Equal(t, []netip.Addr{netip.MustParseAddr("10.0.0.9"), netip.MustParseAddr("2001:db8::9")}, c.PcscfServers())
	assert.Equal(t, "ePDG 1.0", c.ApplicationVersion())
	assert.Equal(t, [][]byte{{0xde, 0xad}}, c.RemoteVendorIDs())
	assert.True(t, c.IsExtensionEnabled(ExtensionMobike))
	assert.False(t, c.IsExtensionEnabled(ExtensionFragmentation))

	_, err = NewIkeSessionConfiguration([]ikev2.ConfigAttribute{attr(ikev2.P_CSCF_IP6_ADDRESS, 1, 2, 3)}, nil, nil)
	assert.ErrorIs(t, err, ErrMalformedAttribute)
}
