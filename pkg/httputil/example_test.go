package httputil_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matzehuels/gemlock/pkg/httputil"
)

func ExampleBackoff_Do() {
	b := httputil.Backoff{Attempts: 3, Delay: time.Millisecond}
	err := b.Do(context.Background(), func(attempt int) error {
		fmt.Println("attempt", attempt)
		if attempt == 0 {
			return httputil.Retryable(errors.New("503 from registry"))
		}
		return nil
	})
	fmt.Println("err:", err)
	// Output:
	// attempt 0
	// attempt 1
	// err: <nil>
}
