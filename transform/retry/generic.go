package retry

import "context"

// DoWithResultTyped runs fn under r and returns the value of the successful
// attempt, or the zero value with the final error.
//
//	res, err := retry.DoWithResultTyped(r, ctx, func() (*transform.Result, error) {
//	    return adapter.Transform(ctx, req)
//	})
func DoWithResultTyped[T any](r Retryer, ctx context.Context, fn func() (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
