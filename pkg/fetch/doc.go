// Package fetch is the resilient HTTP client used for every call to the
// content backend.
//
// A call is described by a RequestSpec and run by Client.Execute, which
// bounds each attempt with its own timeout, classifies the attempt as an
// Outcome and asks Decide what to do next. Retryable statuses, transport
// errors and attempt timeouts are retried with exponential backoff (or the
// server's Retry-After on 429) until MaxRetries is spent:
//
//	client := fetch.NewClient(fetch.Options{BaseURL: "http://localhost:4000/api"}, log)
//	spec := client.NewRequest(http.MethodGet, "/products")
//	products, err := fetch.FetchJSON[[]Product](ctx, client, spec)
//
// Failures come back as *errors.Error from buildsite/pkg/errors. Cancelling
// the caller's context is never retried and its error is returned as is.
package fetch
