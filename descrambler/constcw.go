package descrambler

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// ConstCW is a client serving fixed control words to one service.
type ConstCW struct {
	Label      string
	Kind       Kind
	CAID       uint16
	ProviderID uint32
	TSID       uint16
	SID        uint16
	Even, Odd  []byte
	Logger     *logrus.Entry
}

func (c *ConstCW) Name() string { return "constcw-" + c.Label }

// Matches reports whether the client serves svc: service and transport ids
// must agree, and the CAID must be forced on the service or announced by
// it with the client's provider id.
func (c *ConstCW) Matches(info ServiceInfo) bool {
	if info.ForceCAID != 0 && info.ForceCAID != c.CAID {
		return false
	}
	if info.SID != c.SID || info.TSID != c.TSID {
		return false
	}
	if info.ForceCAID != 0 {
		return true
	}
	return lo.SomeBy(info.CAIDs, func(x CAID) bool {
		return x.ID == c.CAID && x.Provider == c.ProviderID
	})
}

func (c *ConstCW) Start(r *Registry, svc *Service) {
	if !c.Matches(svc.Info()) || svc.has(c.Name()) {
		return
	}
	if err := r.Keys(svc.Info().SID, c.Name(), c.Kind, c.Even, c.Odd); err != nil {
		log := c.Logger
		if log == nil {
			log = logrus.NewEntry(logrus.StandardLogger())
		}
		log.WithError(err).Warnf("%s: keys not installed", c.Name())
	}
}

// ParseKey reads size bytes of hex from s. Characters that are not hex
// digits are skipped, so "11 22:33" and "112233" are equal; missing digits
// read as zero.
func ParseKey(s string, size int) []byte {
	key := make([]byte, size)
	digits := make([]byte, 0, 2*size)
	for i := 0; i < len(s) && len(digits) < 2*size; i++ {
		if v, ok := hexNibble(s[i]); ok {
			digits = append(digits, v)
		}
	}
	for i, d := range digits {
		key[i/2] |= d << (4 * (1 - i%2))
	}
	return key
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// NewConstCW builds a client from textual keys, sized for kind.
func NewConstCW(label string, kind Kind, caid uint16, provider uint32, tsid, sid uint16, even, odd string) (*ConstCW, error) {
	if !kind.valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return &ConstCW{
		Label:      label,
		Kind:       kind,
		CAID:       caid,
		ProviderID: provider,
		TSID:       tsid,
		SID:        sid,
		Even:       ParseKey(even, kind.KeySize()),
		Odd:        ParseKey(odd, kind.KeySize()),
	}, nil
}
