package exchange

import "errors"

// ErrExchangeAbandoned describes an exchange that exhausted its retry
// budget without a terminal ack. The sessions log it; the application
// sees the abandonment as a PublishAckEvent with Abandoned set.
var ErrExchangeAbandoned = errors.New("exchange: abandoned after max attempts")
