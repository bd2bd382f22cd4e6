package profile

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"

	"github.com/iniwex5/ikeparams/pkg/eap"
	"github.com/iniwex5/ikeparams/pkg/ikev2"
	"github.com/iniwex5/ikeparams/pkg/logger"
	"github.com/iniwex5/ikeparams/pkg/session"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidProfile = errors.New("配置文件内容非法")
	ErrUnknownName    = errors.New("未知名称")
)

// Profile 一个 IKE 会话及其第一个 Child 会话的配置文件
type Profile struct {
	Server   string        `yaml:"server"`
	LocalID  IDConfig      `yaml:"local_id"`
	RemoteID IDConfig      `yaml:"remote_id"`
	Auth     AuthConfig    `yaml:"auth"`
	Ike      IkeConfig     `yaml:"ike"`
	Child    ChildConfig   `yaml:"child"`
	Logger   *LoggerConfig `yaml:"logger,omitempty"`
}

type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// IDConfig 身份，type 取 ipv4 / ipv6 / fqdn / rfc822 / key_id
type IDConfig struct {
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

// AuthConfig psk / eap / cert 三选一，server_ca 用于校验对端证书
type AuthConfig struct {
	Psk      string     `yaml:"psk,omitempty"`
	Eap      *EapConfig `yaml:"eap,omitempty"`
	ServerCA string     `yaml:"server_ca,omitempty"`
	Cert     string     `yaml:"cert,omitempty"`
	Key      string     `yaml:"key,omitempty"`
}

type EapConfig struct {
	Identity string            `yaml:"identity"`
	Methods  []EapMethodConfig `yaml:"methods"`
}

// EapMethodConfig type 取 sim / aka / aka_prime / mschapv2
type EapMethodConfig struct {
	Type          string `yaml:"type"`
	SubID         int    `yaml:"sub_id"`
	AppType       string `yaml:"app_type"`
	NetworkName   string `yaml:"network_name"`
	AllowMismatch bool   `yaml:"allow_mismatched_network_names"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
}

// LifetimeConfig 单位秒，0 表示使用默认值
type LifetimeConfig struct {
	Hard int `yaml:"hard"`
	Soft int `yaml:"soft"`
}

type IkeConfig struct {
	// 每个提议是一组算法名称，例如 [AES_GCM_16/256, PRF_HMAC_SHA2_256, MODP_2048]
	Proposals     [][]string      `yaml:"proposals"`
	Lifetime      *LifetimeConfig `yaml:"lifetime,omitempty"`
	DpdDelay      *int            `yaml:"dpd_delay,omitempty"`
	NattKeepalive *int            `yaml:"natt_keepalive,omitempty"`
	RetransmitMs  []int           `yaml:"retransmit_ms,omitempty"`
	Dscp          int             `yaml:"dscp"`
	Options       []string        `yaml:"options"`
	PcscfRequests []string        `yaml:"pcscf"`
}

type ChildConfig struct {
	Mode       string          `yaml:"mode"`
	Proposals  [][]string      `yaml:"proposals"`
	Lifetime   *LifetimeConfig `yaml:"lifetime,omitempty"`
	InboundTS  []TSConfig      `yaml:"inbound_ts"`
	OutboundTS []TSConfig      `yaml:"outbound_ts"`
	Requests   RequestConfig   `yaml:"requests"`
}

// TSConfig 端口缺省为 0-65535，协议缺省为任意
type TSConfig struct {
	Start     string  `yaml:"start"`
	End       string  `yaml:"end"`
	StartPort *uint16 `yaml:"start_port,omitempty"`
	EndPort   *uint16 `yaml:"end_port,omitempty"`
	Protocol  uint8   `yaml:"protocol"`
}

// RequestConfig 每项为 ipv4 / ipv6 地址族，或一个具体地址
type RequestConfig struct {
	Address []string `yaml:"address"`
	DNS     []string `yaml:"dns"`
	DHCP    []string `yaml:"dhcp"`
	Subnet  []string `yaml:"subnet"`
}

func Load(path string) (*Profile, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("配置文件不存在: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}
	return p, nil
}

func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p.Logger == nil {
		p.Logger = &LoggerConfig{Level: "info", Format: "console"}
	}
	return &p, nil
}

// Build 通过 session 包的 Builder 生成参数，与代码构造走同一套校验
func (p *Profile) Build() (*session.IkeSessionParams, *session.ChildSessionParams, error) {
	ike, ikeErr := p.buildIke()
	child, childErr := p.buildChild()
	if err := multierr.Append(ikeErr, childErr); err != nil {
		return nil, nil, err
	}
	logger.Debug("配置文件构建完成",
		logger.String("server", ike.ServerHostname()),
		logger.Int("ike_proposals", len(ike.SaProposals())),
		logger.Int("child_proposals", len(child.SaProposals())))
	return ike, child, nil
}

// IkeProposals 仅解析 IKE 提议
func (p *Profile) IkeProposals() ([]*ikev2.SaProposal, error) {
	return parseProposals(ikev2.ProtoIKE, p.Ike.Proposals)
}

// ChildProposals 仅解析 Child 提议
func (p *Profile) ChildProposals() ([]*ikev2.SaProposal, error) {
	return parseProposals(ikev2.ProtoESP, p.Child.Proposals)
}

func (p *Profile) buildIke() (*session.IkeSessionParams, error) {
	var errs error
	b := session.NewIkeSessionParamsBuilder().SetServerHostname(p.Server)

	proposals, err := p.IkeProposals()
	errs = multierr.Append(errs, err)
	for _, prop := range proposals {
		b.AddSaProposal(prop)
	}

	if id, err := parseID(p.LocalID); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("local_id: %w", err))
	} else {
		b.SetLocalIdentification(id)
	}
	if id, err := parseID(p.RemoteID); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("remote_id: %w", err))
	} else {
		b.SetRemoteIdentification(id)
	}
	errs = multierr.Append(errs, p.applyAuth(b))

	if lt := p.Ike.Lifetime; lt != nil {
		b.SetLifetimeSeconds(lt.Hard, lt.Soft)
	}
	if p.Ike.DpdDelay != nil {
		b.SetDpdDelaySeconds(*p.Ike.DpdDelay)
	}
	if p.Ike.NattKeepalive != nil {
		b.SetNattKeepaliveDelaySeconds(*p.Ike.NattKeepalive)
	}
	if p.Ike.RetransmitMs != nil {
		b.SetRetransmissionTimeoutsMillis(p.Ike.RetransmitMs)
	}
	b.SetDscp(p.Ike.Dscp)

	for _, name := range p.Ike.Options {
		o, ok := session.ParseIkeOption(name)
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("%w: IKE 选项 %q", ErrUnknownName, name))
			continue
		}
		b.AddOption(o)
	}
	for _, r := range p.Ike.PcscfRequests {
		f, addr, err := parseRequest(r)
		switch {
		case err != nil:
			errs = multierr.Append(errs, fmt.Errorf("pcscf: %w", err))
		case addr.IsValid():
			b.AddPcscfServerRequestFor(addr)
		default:
			b.AddPcscfServerRequest(f)
		}
	}

	params, err := b.Build()
	if err := multierr.Append(errs, err); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *Profile) applyAuth(b *session.IkeSessionParamsBuilder) error {
	a := p.Auth
	n := 0
	for _, set := range []bool{a.Psk != "", a.Eap != nil, a.Cert != ""} {
		if set {
			n++
		}
	}
	if n > 1 {
		return fmt.Errorf("%w: auth 只能配置 psk / eap / cert 之一", ErrInvalidProfile)
	}

	var serverCA *x509.Certificate
	if a.ServerCA != "" {
		c, err := loadCertificate(a.ServerCA)
		if err != nil {
			return err
		}
		serverCA = c
	}

	switch {
	case a.Psk != "":
		b.SetAuthPsk([]byte(a.Psk))
	case a.Eap != nil:
		cfg, err := buildEap(a.Eap)
		if err != nil {
			return err
		}
		b.SetAuthEap(serverCA, cfg)
	case a.Cert != "":
		cert, err := loadCertificate(a.Cert)
		if err != nil {
			return err
		}
		key, err := loadPrivateKey(a.Key)
		if err != nil {
			return err
		}
		b.SetAuthDigitalSignature(serverCA, cert, nil, key)
	}
	return nil
}

func buildEap(c *EapConfig) (*eap.SessionConfig, error) {
	var errs error
	b := eap.NewBuilder()
	if c.Identity != "" {
		b.SetIdentity([]byte(c.Identity))
	}
	for _, m := range c.Methods {
		app, err := parseAppType(m.AppType)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		switch strings.ToLower(m.Type) {
		case "sim":
			b.AddSim(m.SubID, app)
		case "aka":
			b.AddAka(m.SubID, app)
		case "aka_prime", "aka'":
			b.AddAkaPrime(m.SubID, app, m.NetworkName, m.AllowMismatch)
		case "mschapv2":
			b.AddMsChapV2(m.Username, m.Password)
		default:
			errs = multierr.Append(errs, fmt.Errorf("%w: EAP 方法 %q", ErrUnknownName, m.Type))
		}
	}
	cfg, err := b.Build()
	if err := multierr.Append(errs, err); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseAppType(s string) (eap.AppType, error) {
	switch strings.ToLower(s) {
	case "", "usim":
		return eap.AppTypeUSIM, nil
	case "sim":
		return eap.AppTypeSIM, nil
	case "isim":
		return eap.AppTypeISIM, nil
	case "ruim":
		return eap.AppTypeRUIM, nil
	case "csim":
		return eap.AppTypeCSIM, nil
	}
	return 0, fmt.Errorf("%w: UICC 应用类型 %q", ErrUnknownName, s)
}

func (p *Profile) buildChild() (*session.ChildSessionParams, error) {
	var b *session.ChildSessionParamsBuilder
	switch strings.ToLower(p.Child.Mode) {
	case "", "tunnel":
		b = session.NewTunnelModeChildSessionParamsBuilder()
	case "transport":
		b = session.NewTransportModeChildSessionParamsBuilder()
	default:
		return nil, fmt.Errorf("%w: child 模式 %q", ErrUnknownName, p.Child.Mode)
	}

	var errs error
	proposals, err := p.ChildProposals()
	errs = multierr.Append(errs, err)
	for _, prop := range proposals {
		b.AddSaProposal(prop)
	}
	if lt := p.Child.Lifetime; lt != nil {
		b.SetLifetimeSeconds(lt.Hard, lt.Soft)
	}

	for i, c := range p.Child.InboundTS {
		ts, err := parseTS(c)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("inbound_ts[%d]: %w", i, err))
			continue
		}
		b.AddInboundTrafficSelector(ts)
	}
	for i, c := range p.Child.OutboundTS {
		ts, err := parseTS(c)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("outbound_ts[%d]: %w", i, err))
			continue
		}
		b.AddOutboundTrafficSelector(ts)
	}

	req := p.Child.Requests
	errs = multierr.Append(errs, addRequests("address", req.Address,
		func(f ikev2.AddressFamily) { b.AddInternalAddressRequest(f) },
		func(a netip.Addr) {
			if a.Is4() {
				b.AddInternalIpv4AddressRequest(a)
			} else {
				b.AddInternalIpv6AddressRequest(netip.PrefixFrom(a, 64))
			}
		}))
	errs = multierr.Append(errs, addRequests("dns", req.DNS,
		func(f ikev2.AddressFamily) { b.AddInternalDnsServerRequest(f) },
		func(a netip.Addr) { b.AddInternalDnsServerRequestFor(a) }))
	errs = multierr.Append(errs, addRequests("dhcp", req.DHCP,
		func(f ikev2.AddressFamily) { b.AddInternalDhcpServerRequest(f) },
		func(a netip.Addr) { b.AddInternalDhcpServerRequestFor(a) }))
	for _, r := range req.Subnet {
		f, addr, err := parseRequest(r)
		if err == nil && addr.IsValid() {
			err = fmt.Errorf("%w: subnet 只能按地址族请求", ErrInvalidProfile)
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("subnet: %w", err))
			continue
		}
		b.AddInternalSubnetRequest(f)
	}

	params, err := b.Build()
	if err := multierr.Append(errs, err); err != nil {
		return nil, err
	}
	return params, nil
}

func addRequests(field string, items []string, byFamily func(ikev2.AddressFamily), byAddr func(netip.Addr)) error {
	var errs error
	for _, r := range items {
		f, addr, err := parseRequest(r)
		switch {
		case err != nil:
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", field, err))
		case addr.IsValid():
			byAddr(addr)
		default:
			byFamily(f)
		}
	}
	return errs
}

// parseRequest "ipv4" / "ipv6" 返回地址族，否则按地址解析
func parseRequest(s string) (ikev2.AddressFamily, netip.Addr, error) {
	switch strings.ToLower(s) {
	case "ipv4", "v4":
		return ikev2.FamilyIPv4, netip.Addr{}, nil
	case "ipv6", "v6":
		return ikev2.FamilyIPv6, netip.Addr{}, nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return 0, netip.Addr{}, fmt.Errorf("%w: 配置请求 %q", ErrInvalidProfile, s)
	}
	return 0, addr, nil
}

func parseProposals(proto ikev2.ProtocolID, lists [][]string) ([]*ikev2.SaProposal, error) {
	var (
		out  []*ikev2.SaProposal
		errs error
	)
	for i, names := range lists {
		transforms := make([]ikev2.Transform, 0, len(names))
		var bad error
		for _, name := range names {
			t, err := ikev2.ParseTransform(name)
			if err != nil {
				bad = multierr.Append(bad, err)
				continue
			}
			transforms = append(transforms, t)
		}
		if bad != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s 提议 #%d: %w", proto, i+1, bad))
			continue
		}
		prop, err := ikev2.NewSaProposalFromTransforms(proto, transforms)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s 提议 #%d: %w", proto, i+1, err))
			continue
		}
		out = append(out, prop)
	}
	return out, errs
}

func parseID(c IDConfig) (ikev2.Identification, error) {
	switch strings.ToLower(c.Type) {
	case "ipv4", "ipv6":
		addr, err := netip.ParseAddr(c.Value)
		if err != nil {
			return ikev2.Identification{}, fmt.Errorf("%w: 地址 %q", ErrInvalidProfile, c.Value)
		}
		if strings.EqualFold(c.Type, "ipv4") {
			return ikev2.NewIpv4Identification(addr)
		}
		return ikev2.NewIpv6Identification(addr)
	case "fqdn":
		return ikev2.NewFqdnIdentification(c.Value)
	case "rfc822", "email":
		return ikev2.NewRfc822Identification(c.Value)
	case "key_id":
		return ikev2.NewKeyIdIdentification([]byte(c.Value))
	case "":
		return ikev2.Identification{}, fmt.Errorf("%w: 缺少身份类型", ErrInvalidProfile)
	}
	return ikev2.Identification{}, fmt.Errorf("%w: 身份类型 %q", ErrUnknownName, c.Type)
}

func parseTS(c TSConfig) (ikev2.TrafficSelector, error) {
	start, err := netip.ParseAddr(c.Start)
	if err != nil {
		return ikev2.TrafficSelector{}, fmt.Errorf("%w: 起始地址 %q", ErrInvalidProfile, c.Start)
	}
	end, err := netip.ParseAddr(c.End)
	if err != nil {
		return ikev2.TrafficSelector{}, fmt.Errorf("%w: 结束地址 %q", ErrInvalidProfile, c.End)
	}
	sp, ep := uint16(0), uint16(65535)
	if c.StartPort != nil {
		sp = *c.StartPort
	}
	if c.EndPort != nil {
		ep = *c.EndPort
	}
	return ikev2.NewTrafficSelector(start, end, sp, ep, c.Protocol)
}

func loadCertificate(path string) (*x509.Certificate, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("解析证书 %s 失败: %w", path, err)
	}
	return cert, nil
}

func loadPrivateKey(path string) (crypto.Signer, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: cert 需要同时配置 key", ErrInvalidProfile)
	}
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	var key any
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	}
	if err != nil {
		return nil, fmt.Errorf("解析私钥 %s 失败: %w", path, err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%w: 私钥 %s 不支持签名", ErrInvalidProfile, path)
	}
	return signer, nil
}

func readPEM(path string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取 %s 失败: %w", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: %s 不是 PEM 格式", ErrInvalidProfile, path)
	}
	return block, nil
}
