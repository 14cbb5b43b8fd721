package domain

import "errors"

var (
	// ErrUnauthorized marks a failed webhook authenticity check.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMalformedPayload marks a body that could not be decoded. It is acked, never retried.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrDispatch marks a failed forward to Agent Dispatch.
	ErrDispatch = errors.New("dispatch failed")
)
