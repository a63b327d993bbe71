package fsm

import "github.com/buildtall-systems/printq/internal/domain"

const (
	OrderStatePendingPayment = string(domain.StatusPendingPayment)
	OrderStateProcessing     = string(domain.StatusProcessing)
	OrderStateReadyForPickup = string(domain.StatusReadyForPickup)
	OrderStateCompleted      = string(domain.StatusCompleted)
	OrderStateDelivered      = string(domain.StatusDelivered)
)

const (
	OrderEventPay       = "pay"
	OrderEventMarkReady = "mark_ready"
	OrderEventComplete  = "complete"
	OrderEventDeliver   = "deliver"
)

const (
	ChannelStateConnecting = "connecting"
	ChannelStateLive       = "live"
	ChannelStateStale      = "stale"
	ChannelStateClosed     = "closed"
)

const (
	ChannelEventEstablished = "established"
	ChannelEventDropped     = "dropped"
	ChannelEventResumed     = "resumed"
	ChannelEventClose       = "close"
)
