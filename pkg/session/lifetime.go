package session

import (
	"fmt"
	"time"
)

// IKE SA 生存期 (秒)
const (
	IkeHardLifetimeSecMin     = 300
	IkeHardLifetimeSecMax     = 86400
	IkeHardLifetimeSecDefault = 14400
	IkeSoftLifetimeSecMin     = 120
	IkeSoftLifetimeSecDefault = 7200
)

// Child SA 生存期 (秒)
const (
	ChildHardLifetimeSecMin     = 300
	ChildHardLifetimeSecMax     = 14400
	ChildHardLifetimeSecDefault = 3600
	ChildSoftLifetimeSecMin     = 120
	ChildSoftLifetimeSecDefault = 3000
)

// LifetimeMarginSec 软生存期必须至少比硬生存期早这么多秒触发 Rekey
const LifetimeMarginSec = 60

type lifetimeBounds struct {
	hardMin, hardMax, softMin int
}

var (
	ikeLifetimeBounds   = lifetimeBounds{IkeHardLifetimeSecMin, IkeHardLifetimeSecMax, IkeSoftLifetimeSecMin}
	childLifetimeBounds = lifetimeBounds{ChildHardLifetimeSecMin, ChildHardLifetimeSecMax, ChildSoftLifetimeSecMin}
)

// lifetime 已校验的硬/软生存期
type lifetime struct {
	hard time.Duration
	soft time.Duration
}

// newLifetime MIN_HARD <= hard <= MAX_HARD，soft >= MIN_SOFT，soft <= hard - MARGIN
func newLifetime(b lifetimeBounds, hardSec, softSec int) (lifetime, error) {
	switch {
	case hardSec < b.hardMin || hardSec > b.hardMax:
		return lifetime{}, fmt.Errorf("%w: 硬生存期 %ds 不在 [%d, %d] 内", ErrLifetimeOutOfRange, hardSec, b.hardMin, b.hardMax)
	case softSec < b.softMin:
		return lifetime{}, fmt.Errorf("%w: 软生存期 %ds 小于 %d", ErrLifetimeOutOfRange, softSec, b.softMin)
	case hardSec-softSec < LifetimeMarginSec:
		return lifetime{}, fmt.Errorf("%w: 软生存期 %ds 必须比硬生存期 %ds 至少早 %ds", ErrLifetimeOutOfRange, softSec, hardSec, LifetimeMarginSec)
	}
	return lifetime{
		hard: time.Duration(hardSec) * time.Second,
		soft: time.Duration(softSec) * time.Second,
	}, nil
}
