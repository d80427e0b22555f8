package upstream

import (
	"errors"
	"fmt"
)

// ErrRateLimited is returned when the HSP API answers 429. The worker maps
// it to the "Rate Limited" job failure; retrying is the queue policy's
// business, not the client's.
var ErrRateLimited = errors.New("rate limited")

// StatusError is any other non-2xx upstream response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API Error %d: %s", e.Status, e.Body)
}
