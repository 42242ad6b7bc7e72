package worker

import (
	"context"
	"fmt"
	"reflect"

	"github.com/derekGou/autonomy-bootcamp-2025-p2/pkg/core"
)

// EntryFunc is the body of one worker instance. args is the spec's static
// argument bundle; env carries the instance's channels, controller and
// private logger.
type EntryFunc[A any] func(ctx context.Context, args A, env *Env) error

// Entry is a typed worker entry point with a fixed argument shape.
// The zero Entry is invalid.
type Entry struct {
	name     string
	argsType reflect.Type
	check    func(args any) error
	run      func(ctx context.Context, args any, env *Env) error
}

// NewEntry captures fn and its argument type A. A nil fn yields the zero
// Entry, which NewSpec rejects.
func NewEntry[A any](name string, fn EntryFunc[A]) Entry {
	if fn == nil {
		return Entry{}
	}

	argsType := reflect.TypeFor[A]()
	return Entry{
		name:     name,
		argsType: argsType,
		check: func(args any) error {
			if args == nil {
				return nil
			}
			if _, ok := args.(A); !ok {
				return &core.Error{
					Code:    core.CodeInvalidArgument,
					Message: fmt.Sprintf("entry %s expects args of type %s, got %T", name, argsType, args),
				}
			}
			return nil
		},
		run: func(ctx context.Context, args any, env *Env) error {
			var a A
			if args != nil {
				a = args.(A)
			}
			return fn(ctx, a, env)
		},
	}
}

// Name returns the entry name
func (e Entry) Name() string {
	return e.name
}

// ArgsType returns the declared argument type, nil for the zero Entry
func (e Entry) ArgsType() reflect.Type {
	return e.argsType
}

// IsZero reports whether e has no function
func (e Entry) IsZero() bool {
	return e.run == nil
}
