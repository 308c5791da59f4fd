package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit admits a burst of `burst` requests per client IP and a
// sustained rate of roughly one request per second, rejecting excess with
// 429. This gates the public identity endpoints; registration in
// particular is the enumeration and spam surface.
func RateLimit(burst int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(burst, time.Duration(burst)*time.Second)
}
