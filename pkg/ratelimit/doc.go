// Package ratelimit throttles abuse-prone endpoints such as the contact form
// and admin login.
//
// KeyedLimiter keeps one golang.org/x/time/rate token bucket per key and
// Middleware wires it into echo:
//
//	contact := ratelimit.NewKeyedLimiter(5, 3) // 5/min per IP, burst 3
//	go contact.Run(ctx, time.Minute)
//	e.POST("/api/contact", h.Contact, ratelimit.Middleware(contact, "contact", ratelimit.RealIP, log))
package ratelimit
