package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/stock-watch-agent/internal/models"
)

// PriceBucket maps a percent change onto threshold-sized buckets, keeping the
// sign: with a 0.5 threshold, +0.6 is bucket 1, +1.2 is bucket 2, -0.7 is -1.
func PriceBucket(changePercent, threshold decimal.Decimal) int64 {
	if threshold.Sign() <= 0 {
		return 0
	}
	return changePercent.Div(threshold).Truncate(0).IntPart()
}

// PriceFingerprint identifies one price move for one user: the move away from
// baseline, in the same bucket and direction, within the same window. A later
// move measured from a new baseline is a new occurrence.
func PriceFingerprint(userID int64, ticker string, baseline, changePercent, threshold decimal.Decimal, at time.Time, window time.Duration) string {
	bucket := PriceBucket(changePercent, threshold)
	slot := at.UTC().Truncate(window).Format(time.RFC3339)
	return hash(strconv.FormatInt(userID, 10), ticker, models.EventKindPriceMove, baseline.String(), strconv.FormatInt(bucket, 10), slot)
}

// NewsFingerprint identifies one article for one user
func NewsFingerprint(userID int64, ticker, articleID string) string {
	return hash(strconv.FormatInt(userID, 10), ticker, models.EventKindNews, articleID, "")
}

func hash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
