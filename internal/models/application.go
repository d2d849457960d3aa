// internal/models/application.go
package models

import (
	"time"

	"loan-origination/internal/lifecycle"
)

// Application is the persisted loan application.
type Application struct {
	ID          string           `json:"id"`
	Status      lifecycle.Status `json:"status"`
	FormData    FormData         `json:"form_data"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	SubmittedAt *time.Time       `json:"submitted_at,omitempty"`
}

// Envelope is the success/failure wrapper every persistence call returns.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    *T     `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// OK wraps data in a successful envelope.
func OK[T any](data T) Envelope[T] {
	return Envelope[T]{Success: true, Data: &data}
}

// Fail builds an unsuccessful envelope.
func Fail[T any](message string) Envelope[T] {
	return Envelope[T]{Success: false, Message: message}
}

type ApplicationRef struct {
	ID string `json:"id"`
}

type SubmitResult struct {
	Status lifecycle.Status `json:"status"`
}
