package watermark

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// Settings is the admin-configurable watermark appearance. Any change to any
// field produces a new fingerprint, which changes every cache filename — the
// stated invalidation strategy is a full purge plus fingerprint rotation, no
// selective invalidation.
type Settings struct {
	Text string `json:"text"`
	// Opacity follows the 0..100 admin scale where higher is more transparent.
	Opacity     int     `json:"opacity"`
	SizePercent float64 `json:"size_percent"`
	Angle       float64 `json:"angle"`
	Spacing     float64 `json:"spacing"`
}

// Fingerprint hashes the settings into the cache-filename component.
func (st Settings) Fingerprint() string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s%d%g%g%g", st.Text, st.Opacity, st.SizePercent, st.Angle, st.Spacing)))
	return hex.EncodeToString(sum[:])
}

// alpha converts the admin opacity scale to a draw alpha in [0,1].
func (st Settings) alpha() float64 {
	op := st.Opacity
	if op < 0 {
		op = 0
	}
	if op > 100 {
		op = 100
	}
	return 1.0 - float64(op)/127.0
}
