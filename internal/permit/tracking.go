// internal/permit/tracking.go
package permit

import (
	"crypto/rand"
	"fmt"
	"time"
)

const trackingSuffixCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateTrackingID produces a human-readable public identifier of the
// form APP-YYYYMMDD-XXXX where the date segment is the current date and the
// suffix is 4 random uppercase alphanumerics. Uniqueness is best-effort;
// the application store retries on a tracking id collision.
func GenerateTrackingID() string {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a
		// time-derived suffix just in case.
		nanos := time.Now().UnixNano()
		for i := range suffix {
			suffix[i] = trackingSuffixCharset[int(nanos>>(i*6))%len(trackingSuffixCharset)]
		}
	} else {
		for i, b := range suffix {
			suffix[i] = trackingSuffixCharset[int(b)%len(trackingSuffixCharset)]
		}
	}
	return fmt.Sprintf("APP-%s-%s", time.Now().Format("20060102"), suffix)
}
