/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package apierror

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrInvalidParameters ErrorCode = "INVALID_PARAMETERS"
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrConflict          ErrorCode = "CONFLICT"
	ErrPolicyViolation   ErrorCode = "POLICY_VIOLATION"
	ErrEnqueueFailed     ErrorCode = "ENQUEUE_FAILED"
	ErrInternalServer    ErrorCode = "INTERNAL_SERVER_ERROR"
)

// APIError is the typed error surfaced to callers of the collection core.
// Details carries the context the caller needs to act on it, e.g. the offending trigger.
type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e APIError) Unwrap() error {
	return e.cause
}

// Is matches any APIError carrying the same code.
func (e APIError) Is(target error) bool {
	var t APIError
	if errors.As(target, &t) {
		return t.Code == e.Code && t.Message == ""
	}
	return false
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	logrus.WithField("code", code).Error(message)
	err := APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
	if cause, ok := details.(error); ok {
		err.cause = cause
	}
	return err
}

// Code returns a bare APIError usable as an errors.Is target.
func Code(code ErrorCode) APIError {
	return APIError{Code: code}
}

// CodeOf returns the code of err, or ErrInternalServer when err is not an APIError.
func CodeOf(err error) ErrorCode {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ErrInternalServer
}
