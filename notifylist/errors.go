package notifylist

import "github.com/cockroachdb/errors"

var (
	// ErrWrongArity is returned when NOTIFYLIST.SET gets anything but a pattern and a destination.
	ErrWrongArity = errors.New("wrong number of arguments for 'notifylist.set' command")

	// ErrActivation marks a failed keyspace subscription. The registry entry written by the
	// same call is kept, and the next registration retries the subscription.
	ErrActivation = errors.New("keyspace subscription failed")

	// ErrPushFailed marks a dispatch record that could not be pushed to its destination.
	ErrPushFailed = errors.New("push failed")

	// ErrClosed is returned by a Module after Close.
	ErrClosed = errors.New("notifylist module is closed")
)
