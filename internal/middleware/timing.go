package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// ProcessingTimeHeader reports how long the handler ran before writing the
// response, in microseconds.
const ProcessingTimeHeader = "X-Processing-Time-Micros"

// Timing sets ProcessingTimeHeader on every response.
func Timing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := newResponseRecorder(w)
		rec.onHeader = func(h http.Header) {
			h.Set(ProcessingTimeHeader, strconv.FormatInt(time.Since(start).Microseconds(), 10))
		}

		next.ServeHTTP(rec, r)

		// Handlers that write nothing still get the header.
		if !rec.wroteHeader {
			rec.WriteHeader(http.StatusOK)
		}
	})
}
