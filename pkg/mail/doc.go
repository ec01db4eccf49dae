// Package mail delivers messages submitted through the contact form.
//
// SMTPMailer sends a plain-text email through a relay and retries transient
// failures with pkg/retry. LogMailer only logs and is meant for development.
package mail
