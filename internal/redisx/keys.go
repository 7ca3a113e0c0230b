package redisx

import "time"

const (
	// Dedup webhook payment gateway: dedup:gateway:{event_id} -> "1"
	KeyGatewayDedup = "dedup:gateway:%s"

	// Dedup event processing di mailer: dedup:mailer:{event_id}
	KeyMailerDedup = "dedup:mailer:%s"

	// Cache entitlement aktif buyer: entitlements:{buyer_id} -> JSON array pasangan (product_id, enroll_key)
	KeyEntitlements = "entitlements:%s"

	// Cache hasil agregasi watched time: progress:{buyer_id} -> JSON map course_id -> progress
	KeyProgress = "progress:%s"
)

var (
	TTLDedup        = 48 * time.Hour
	TTLEntitlements = 2 * time.Minute
	TTLProgress     = 1 * time.Minute
)
