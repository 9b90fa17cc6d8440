package hub

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickSubscriber
)

// Policy decides what happens to a subscriber whose send buffer is full.
type Policy interface {
	OnBackpressure(sub *Subscription) BackpressureAction
}

// SimplePolicy disconnects slow consumers.
type SimplePolicy struct{}

func (SimplePolicy) OnBackpressure(*Subscription) BackpressureAction {
	return KickSubscriber
}

// DropPolicy skips the frame and keeps the subscriber.
type DropPolicy struct{}

func (DropPolicy) OnBackpressure(*Subscription) BackpressureAction {
	return DropFrame
}

// PolicyByName maps a config value to a Policy; unknown names kick.
func PolicyByName(name string) Policy {
	if name == "drop" {
		return DropPolicy{}
	}
	return SimplePolicy{}
}
