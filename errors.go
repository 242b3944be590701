package goGuard

import (
	"errors"

	"github.com/MrEthical07/goGuard/internal/resolver"
)

var (
	// ErrResolveFailed wraps every permission fetch failure. Failures are never cached.
	ErrResolveFailed = resolver.ErrResolveFailed
	// ErrEngineNotReady is returned when a nil or closed Engine is used.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrEngineClosed is returned by operations after Close.
	ErrEngineClosed = errors.New("engine closed")
	// ErrInvalidIdentity is returned when a user or organization id is missing.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrPermissionUnknown is returned when a queried permission is not registered.
	ErrPermissionUnknown = errors.New("permission not registered")
	// ErrSourceRequired is returned by Build when no permission source is configured.
	ErrSourceRequired = errors.New("permission source required")
	// ErrPermissionsRequired is returned by Build when no permissions are registered.
	ErrPermissionsRequired = errors.New("permissions must be provided")
	// ErrBuilderUsed is returned when Build is called twice on one Builder.
	ErrBuilderUsed = errors.New("builder already used")
)
