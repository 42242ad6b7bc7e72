package concurrency

import "github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core"

// LocalBackend creates in-process channels and controllers
type LocalBackend struct{}

// NewLocalBackend creates a LocalBackend
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{}
}

// NewChannel implements Backend interface. The codec is ignored.
func (b *LocalBackend) NewChannel(name string, capacity int, _ core.Codec) (Channel, error) {
	return NewChannel(name, capacity)
}

// NewController implements Backend interface
func (b *LocalBackend) NewController() (Controller, error) {
	return NewController(), nil
}

// Close implements Backend interface
func (b *LocalBackend) Close() error {
	return nil
}
