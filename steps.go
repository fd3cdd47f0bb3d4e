package loom

import (
	"context"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Typed wraps a strongly-typed function into a StepFunc. The node's inputs
// are decoded into I with loose field matching, so steps can work with
// structs instead of raw maps:
//
//	type Order struct {
//	    ID    string
//	    Total float64
//	}
//
//	loom.Typed(func(ctx context.Context, o Order) (Receipt, error) { ... })
//
// The returned value is merged into the workflow context like any other step
// result.
func Typed[I, O any](fn func(context.Context, I) (O, error)) StepFunc {
	return func(ctx context.Context, inputs map[string]any) (any, error) {
		var in I
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &in,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(inputs); err != nil {
			return nil, err
		}
		return fn(ctx, in)
	}
}

// SleepStep returns a step that sleeps for the given duration or returns
// early with ctx.Err if the run is cancelled. It produces no result.
func SleepStep(d time.Duration) StepFunc {
	return func(ctx context.Context, _ map[string]any) (any, error) {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// ConstStep returns a step that always produces the given value. Useful for
// seeding context keys and for tests.
func ConstStep(v any) StepFunc {
	return func(context.Context, map[string]any) (any, error) {
		return v, nil
	}
}

// KeyStep returns a step that reads a single context key and passes it
// through unchanged. Combined with WithOutput it renames context keys.
func KeyStep(key string) StepFunc {
	return func(_ context.Context, inputs map[string]any) (any, error) {
		return inputs[key], nil
	}
}
