package worker

// Observer receives instance lifecycle events from a Pool.
// Calls may come from different goroutines.
type Observer interface {
	InstanceStarted(spec string, index int)
	InstanceStopped(spec string, index int, err error)
}

type nopObserver struct{}

func (nopObserver) InstanceStarted(string, int)        {}
func (nopObserver) InstanceStopped(string, int, error) {}

// Observers fans events out to several observers
type Observers []Observer

// InstanceStarted implements Observer interface
func (o Observers) InstanceStarted(spec string, index int) {
	for _, obs := range o {
		obs.InstanceStarted(spec, index)
	}
}

// InstanceStopped implements Observer interface
func (o Observers) InstanceStopped(spec string, index int, err error) {
	for _, obs := range o {
		obs.InstanceStopped(spec, index, err)
	}
}
