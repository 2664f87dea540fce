package breez

// Notifier receives payment state transitions from the tracker. The
// webhook sender and the Kafka producer both implement it; MultiNotifier
// in the webhook package fans a transition out to several targets.
type Notifier interface {
	NotifyPayment(identifier string, status PaymentState, payment *PaymentRecord, errMsg string)
}

// NotifierFunc adapts a plain function to the Notifier interface.
type NotifierFunc func(identifier string, status PaymentState, payment *PaymentRecord, errMsg string)

func (f NotifierFunc) NotifyPayment(identifier string, status PaymentState, payment *PaymentRecord, errMsg string) {
	f(identifier, status, payment, errMsg)
}
