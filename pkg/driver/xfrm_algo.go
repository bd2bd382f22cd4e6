package driver

import (
	"fmt"

	"github.com/iniwex5/ikeparams/pkg/ikev2"
	"github.com/iniwex5/netlink"
)

// IKEv2 变换 → Linux XFRM 内核算法名称的映射

// xfrmAlgo 一个算法的内核名称与密钥布局
type xfrmAlgo struct {
	name     string
	keyBits  int // 内核需要的密钥位数 (含 salt / nonce)
	saltBits int
	icvBits  int // AEAD 的 ICV 或完整性算法的截断位数
}

// stateAlgo 生成不带密钥的 netlink 算法模板
func (a xfrmAlgo) stateAlgo(aead bool) *netlink.XfrmStateAlgo {
	algo := &netlink.XfrmStateAlgo{Name: a.name}
	switch {
	case aead:
		algo.ICVLen = a.icvBits
	case a.icvBits > 0:
		algo.TruncateLen = a.icvBits
	}
	return algo
}

// cryptAlgo 非 AEAD 加密算法
func cryptAlgo(t ikev2.Transform) (xfrmAlgo, error) {
	switch ikev2.EncrID(t.ID) {
	case ikev2.ENCR_AES_CBC:
		return xfrmAlgo{name: "cbc(aes)", keyBits: t.KeyLength}, nil
	case ikev2.ENCR_AES_CTR:
		// RFC 3686: 密钥末尾附加 4 字节 nonce
		return xfrmAlgo{name: "rfc3686(ctr(aes))", keyBits: t.KeyLength + 32, saltBits: 32}, nil
	case ikev2.ENCR_3DES:
		return xfrmAlgo{name: "cbc(des3_ede)", keyBits: 192}, nil
	default:
		return xfrmAlgo{}, fmt.Errorf("%w: 加密算法 %s", ErrUnsupportedAlgorithm, t)
	}
}

// aeadAlgo AEAD 算法，内核需要的 key = encKey + salt
func aeadAlgo(t ikev2.Transform) (xfrmAlgo, error) {
	switch ikev2.EncrID(t.ID) {
	case ikev2.ENCR_AES_GCM_8:
		return gcm(t.KeyLength, 64), nil
	case ikev2.ENCR_AES_GCM_12:
		return gcm(t.KeyLength, 96), nil
	case ikev2.ENCR_AES_GCM_16:
		return gcm(t.KeyLength, 128), nil
	case ikev2.ENCR_AES_CCM_8:
		return ccm(t.KeyLength, 64), nil
	case ikev2.ENCR_AES_CCM_12:
		return ccm(t.KeyLength, 96), nil
	case ikev2.ENCR_AES_CCM_16:
		return ccm(t.KeyLength, 128), nil
	case ikev2.ENCR_CHACHA20_POLY1305:
		return xfrmAlgo{name: "rfc7539esp(chacha20,poly1305)", keyBits: 256 + 32, saltBits: 32, icvBits: 128}, nil
	default:
		return xfrmAlgo{}, fmt.Errorf("%w: AEAD 算法 %s", ErrUnsupportedAlgorithm, t)
	}
}

func gcm(keyBits, icvBits int) xfrmAlgo {
	return xfrmAlgo{name: "rfc4106(gcm(aes))", keyBits: keyBits + 32, saltBits: 32, icvBits: icvBits}
}

// ccm 加 3 字节 salt
func ccm(keyBits, icvBits int) xfrmAlgo {
	return xfrmAlgo{name: "rfc4309(ccm(aes))", keyBits: keyBits + 24, saltBits: 24, icvBits: icvBits}
}

// authAlgo 完整性算法
func authAlgo(t ikev2.Transform) (xfrmAlgo, error) {
	switch ikev2.IntegID(t.ID) {
	case ikev2.AUTH_HMAC_SHA1_96:
		return xfrmAlgo{name: "hmac(sha1)", keyBits: 160, icvBits: 96}, nil
	case ikev2.AUTH_AES_XCBC_96:
		return xfrmAlgo{name: "xcbc(aes)", keyBits: 128, icvBits: 96}, nil
	case ikev2.AUTH_AES_CMAC_96:
		return xfrmAlgo{name: "cmac(aes)", keyBits: 128, icvBits: 96}, nil
	case ikev2.AUTH_HMAC_SHA2_256_128:
		return xfrmAlgo{name: "hmac(sha256)", keyBits: 256, icvBits: 128}, nil
	case ikev2.AUTH_HMAC_SHA2_384_192:
		return xfrmAlgo{name: "hmac(sha384)", keyBits: 384, icvBits: 192}, nil
	case ikev2.AUTH_HMAC_SHA2_512_256:
		return xfrmAlgo{name: "hmac(sha512)", keyBits: 512, icvBits: 256}, nil
	default:
		return xfrmAlgo{}, fmt.Errorf("%w: 完整性算法 %s", ErrUnsupportedAlgorithm, t)
	}
}
