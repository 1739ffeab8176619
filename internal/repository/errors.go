// Package repository persists users and refresh tokens and enforces the
// registry-level invariants around the owner role. The sentinel errors below
// let handlers map each failure to the right HTTP status without inspecting
// error strings.
package repository

import "errors"

// ErrEmailExists is returned when registering or creating a user with an
// email that is already taken. Handlers translate it into HTTP 400.
var ErrEmailExists = errors.New("email already exists")

// ErrNotFound is returned when a user or token lookup matches nothing.
var ErrNotFound = errors.New("not found")

// ErrOwnerImmutable is returned when a role change targets an owner account.
// The owner role is only ever assigned or re-asserted by the bootstrap.
var ErrOwnerImmutable = errors.New("owner role is immutable")

// ErrRoleNotAssignable is returned when an administrative call tries to hand
// out a role outside {ADMIN, OPERATOR, VIEWER} — including OWNER.
var ErrRoleNotAssignable = errors.New("role not assignable")

// ErrLastOwner is returned when a mutation would leave the system with zero
// active owners.
var ErrLastOwner = errors.New("cannot remove the last active owner")

// ErrOwnerProtected is returned when a delete targets an owner account.
var ErrOwnerProtected = errors.New("owner accounts cannot be deleted")

// ErrSelfDelete is returned when a caller tries to delete their own account.
var ErrSelfDelete = errors.New("cannot delete own account")

// ErrTokenRotated is returned when a refresh rotation loses the conditional
// update: the presented token was already revoked or rotated by a concurrent
// call. Handlers treat it exactly like an invalid token (401).
var ErrTokenRotated = errors.New("refresh token already rotated")
