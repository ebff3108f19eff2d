// Package fn provides a small generic toolkit: a three-state Result, traced
// pipeline stages, retry, and slice and parallel helpers.
package fn

import (
	"errors"
	"fmt"
)

// ErrNone is returned by Unwrap on a None result.
var ErrNone = errors.New("no value")

type state uint8

const (
	stateErr state = iota
	stateOk
	stateNone
)

// Result[T] carries a value, the absence of one, or an error. It separates
// "nothing there" from "could not look".
type Result[T any] struct {
	val T
	err error
	st  state
}

// Ok creates a successful Result.
func Ok[T any](v T) Result[T] {
	return Result[T]{val: v, st: stateOk}
}

// None creates a Result that found nothing.
func None[T any]() Result[T] {
	return Result[T]{st: stateNone}
}

// Err creates a failed Result from an error.
func Err[T any](err error) Result[T] {
	return Result[T]{err: err, st: stateErr}
}

// Errf creates a failed Result from a formatted string.
func Errf[T any](format string, args ...any) Result[T] {
	return Err[T](fmt.Errorf(format, args...))
}

// IsOk returns true if the result holds a value.
func (r Result[T]) IsOk() bool { return r.st == stateOk }

// IsNone returns true if the lookup succeeded but found nothing.
func (r Result[T]) IsNone() bool { return r.st == stateNone }

// IsErr returns true if the result is an error.
func (r Result[T]) IsErr() bool { return r.st == stateErr }

// Err returns the error, nil unless IsErr.
func (r Result[T]) Err() error { return r.err }

// Unwrap returns the value and error. None unwraps to ErrNone.
func (r Result[T]) Unwrap() (T, error) {
	if r.st == stateNone {
		return r.val, ErrNone
	}
	return r.val, r.err
}

// Must returns the value or panics when there is none.
func (r Result[T]) Must() T {
	v, err := r.Unwrap()
	if err != nil {
		panic(err)
	}
	return v
}

// UnwrapOr returns the value, or fallback for None and Err alike.
func (r Result[T]) UnwrapOr(fallback T) T {
	if r.st != stateOk {
		return fallback
	}
	return r.val
}

// FromPair creates a Result from a (value, error) pair.
func FromPair[T any](v T, err error) Result[T] {
	if err != nil {
		return Err[T](err)
	}
	return Ok(v)
}
