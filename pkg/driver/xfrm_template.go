package driver

import (
	"errors"
	"fmt"
	"net"
	"slices"

	"github.com/iniwex5/ikeparams/pkg/ikev2"
	"github.com/iniwex5/ikeparams/pkg/logger"
	"github.com/iniwex5/ikeparams/pkg/session"
	"github.com/iniwex5/netlink"
)

var (
	ErrUnsupportedAlgorithm = errors.New("XFRM 不支持的算法")
	ErrNotNegotiated        = errors.New("提议不是协商结果")
)

// DefaultReplayWindow 抗重放窗口大小
const DefaultReplayWindow = 32

// XfrmStateTemplate 由协商结果和 Child 参数生成 ESP SA 模板
// 只填算法名称、ICV/截断长度、ESN、模式和生命周期；地址、SPI 与密钥由调用方在 KEYMAT 派生后填入
func XfrmStateTemplate(negotiated *ikev2.SaProposal, params *session.ChildSessionParams) (*netlink.XfrmState, error) {
	if err := checkNegotiated(negotiated); err != nil {
		return nil, err
	}

	state := &netlink.XfrmState{
		Proto:        netlink.XFRM_PROTO_ESP,
		Mode:         xfrmMode(params.Mode()),
		ReplayWindow: DefaultReplayWindow,
		// 隧道模式 SA 允许承载任意地址族的内层流量
		AFUnspec: params.Mode() == session.ModeTunnel,
		ESN:      slices.Contains(negotiated.EsnTransforms(), esnEnabled),
		Limits: netlink.XfrmStateLimits{
			TimeSoft: uint64(params.SoftLifetime().Seconds()),
			TimeHard: uint64(params.HardLifetime().Seconds()),
		},
	}

	enc := negotiated.EncryptionTransforms()[0]
	if negotiated.IsAEAD() {
		a, err := aeadAlgo(enc)
		if err != nil {
			return nil, err
		}
		state.Aead = a.stateAlgo(true)
	} else {
		c, err := cryptAlgo(enc)
		if err != nil {
			return nil, err
		}
		state.Crypt = c.stateAlgo(false)
		if integ, ok := negotiatedIntegrity(negotiated); ok {
			a, err := authAlgo(integ)
			if err != nil {
				return nil, err
			}
			state.Auth = a.stateAlgo(false)
		}
	}

	logger.Debug("生成 XFRM SA 模板",
		logger.String("proposal", negotiated.String()),
		logger.String("mode", params.Mode().String()),
		logger.Bool("esn", state.ESN))
	return state, nil
}

// KeyMaterialLength 每个方向需要从 KEYMAT 取出的字节数 (加密密钥在前，完整性密钥在后)
func KeyMaterialLength(negotiated *ikev2.SaProposal) (int, error) {
	if err := checkNegotiated(negotiated); err != nil {
		return 0, err
	}
	enc := negotiated.EncryptionTransforms()[0]
	if negotiated.IsAEAD() {
		a, err := aeadAlgo(enc)
		if err != nil {
			return 0, err
		}
		return a.keyBits / 8, nil
	}

	c, err := cryptAlgo(enc)
	if err != nil {
		return 0, err
	}
	n := c.keyBits / 8
	if integ, ok := negotiatedIntegrity(negotiated); ok {
		a, err := authAlgo(integ)
		if err != nil {
			return 0, err
		}
		n += a.keyBits / 8
	}
	return n, nil
}

// XfrmPolicySelectors 把地址范围拆成覆盖它的 CIDR 列表
func XfrmPolicySelectors(ts []ikev2.TrafficSelector) []*net.IPNet {
	var out []*net.IPNet
	for _, t := range ts {
		for _, p := range t.Prefixes() {
			out = append(out, &net.IPNet{
				IP:   net.IP(p.Addr().AsSlice()),
				Mask: net.CIDRMask(p.Bits(), p.Addr().BitLen()),
			})
		}
	}
	return out
}

// XfrmPolicyTemplates 生成某一方向的安全策略模板
// 入站选择器描述本端地址，出站选择器描述对端地址；只组合同一地址族且上层协议相容的选择器
func XfrmPolicyTemplates(params *session.ChildSessionParams, dir netlink.Dir) []*netlink.XfrmPolicy {
	mode := xfrmMode(params.Mode())
	var out []*netlink.XfrmPolicy
	for _, local := range params.InboundTrafficSelectors() {
		for _, remote := range params.OutboundTrafficSelectors() {
			if local.IsIPv4() != remote.IsIPv4() {
				continue
			}
			proto, ok := policyProto(local, remote)
			if !ok {
				continue
			}
			src, dst := local, remote
			if dir != netlink.XFRM_DIR_OUT {
				src, dst = remote, local
			}
			for _, s := range XfrmPolicySelectors([]ikev2.TrafficSelector{src}) {
				for _, d := range XfrmPolicySelectors([]ikev2.TrafficSelector{dst}) {
					p := &netlink.XfrmPolicy{
						Src:   s,
						Dst:   d,
						Dir:   dir,
						Proto: netlink.Proto(proto),
						Tmpls: []netlink.XfrmPolicyTmpl{{
							Proto: netlink.XFRM_PROTO_ESP,
							Mode:  mode,
						}},
					}
					p.SrcPort = singlePort(src)
					p.DstPort = singlePort(dst)
					out = append(out, p)
				}
			}
		}
	}
	return out
}

var esnEnabled = ikev2.Transform{Type: ikev2.TransformTypeESN, ID: uint16(ikev2.ESN_ENABLED)}

// checkNegotiated 协商结果每一族最多一个变换，且必须是 ESP
func checkNegotiated(p *ikev2.SaProposal) error {
	switch {
	case p == nil:
		return fmt.Errorf("%w: 提议为空", ErrNotNegotiated)
	case p.Protocol() != ikev2.ProtoESP:
		return fmt.Errorf("%w: 协议 %s 不是 ESP", ErrNotNegotiated, p.Protocol())
	case len(p.EncryptionTransforms()) != 1,
		len(p.IntegrityTransforms()) > 1,
		len(p.DhGroupTransforms()) > 1,
		len(p.EsnTransforms()) > 1:
		return fmt.Errorf("%w: %s", ErrNotNegotiated, p)
	}
	return nil
}

func negotiatedIntegrity(p *ikev2.SaProposal) (ikev2.Transform, bool) {
	integ := p.IntegrityTransforms()
	if len(integ) == 0 || ikev2.IntegID(integ[0].ID) == ikev2.AUTH_NONE {
		return ikev2.Transform{}, false
	}
	return integ[0], true
}

func xfrmMode(m session.Mode) netlink.Mode {
	if m == session.ModeTransport {
		return netlink.XFRM_MODE_TRANSPORT
	}
	return netlink.XFRM_MODE_TUNNEL
}

// policyProto 两端都限定了不同的上层协议时没有流量能同时匹配，返回 false
func policyProto(a, b ikev2.TrafficSelector) (uint8, bool) {
	switch {
	case a.IPProtocol == b.IPProtocol, b.IPProtocol == ikev2.IPProtoAny:
		return a.IPProtocol, true
	case a.IPProtocol == ikev2.IPProtoAny:
		return b.IPProtocol, true
	default:
		return ikev2.IPProtoAny, false
	}
}

// singlePort 内核策略只能匹配单个端口，范围选择器不限定端口
func singlePort(ts ikev2.TrafficSelector) int {
	if ts.StartPort == ts.EndPort {
		return int(ts.StartPort)
	}
	return 0
}
