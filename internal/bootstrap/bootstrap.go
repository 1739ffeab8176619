// Package bootstrap guarantees that at least one active owner account exists
// before the HTTP server starts accepting requests.
package bootstrap

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/kavehrad/traffic-dashboard/internal/config"
	"github.com/kavehrad/traffic-dashboard/internal/model"
	"github.com/kavehrad/traffic-dashboard/internal/queue"
	"github.com/kavehrad/traffic-dashboard/internal/repository"
	queue_publisher "github.com/kavehrad/traffic-dashboard/internal/service"
)

// generatedPasswordBytes is the entropy of a generated owner password.
const generatedPasswordBytes = 16

// Result reports what EnsureOwner did.
type Result struct {
	UserID   uint64
	Created  bool   // true when the owner account was newly created
	Password string // generated password, only set when one was generated
}

// EnsureOwner makes sure the account at cfg.OwnerEmail exists, holds the
// owner role and is active.
//
// If the account exists it is promoted in place — role forced to OWNER and
// reactivated — even if it previously held a different role. Otherwise it is
// created with cfg.OwnerPassword, or with a generated random password when
// none is configured; a generated password is published out-of-band and
// logged with a change-it-now warning. Running twice with the same email is
// a no-op promotion, never a duplicate.
//
// main calls this before the router starts listening, so the administrative
// surface is never reachable without a privileged identity.
func EnsureOwner(ctx context.Context, cfg config.Config, users *repository.UserRepo) (Result, error) {
	existing, err := users.GetByEmail(ctx, cfg.OwnerEmail)
	if err == nil {
		if err := users.PromoteOwner(ctx, existing.ID); err != nil {
			return Result{}, fmt.Errorf("promoting owner %q: %w", cfg.OwnerEmail, err)
		}
		return Result{UserID: existing.ID}, nil
	}
	if err != repository.ErrNotFound {
		return Result{}, fmt.Errorf("looking up owner %q: %w", cfg.OwnerEmail, err)
	}

	password := cfg.OwnerPassword
	generated := password == ""
	if generated {
		buf := make([]byte, generatedPasswordBytes)
		if _, err := rand.Read(buf); err != nil {
			return Result{}, fmt.Errorf("generating owner password: %w", err)
		}
		password = hex.EncodeToString(buf)
	}

	id, err := users.Create(ctx, "System Owner", cfg.OwnerEmail, password, model.RoleOwner, cfg.BcryptCost)
	if err != nil {
		return Result{}, fmt.Errorf("creating owner %q: %w", cfg.OwnerEmail, err)
	}

	res := Result{UserID: id, Created: true}
	if generated {
		res.Password = password
		log.Printf("bootstrap: owner account %s created with a generated password; change it immediately", cfg.OwnerEmail)
		_ = queue_publisher.PublishAuthEvent(ctx, queue.AuthEvent{
			Kind:       queue.EventOwnerBootstrapped,
			UserID:     id,
			Email:      cfg.OwnerEmail,
			Credential: password,
			OccurredAt: time.Now().UTC().Format(time.RFC3339),
		})
	} else {
		log.Printf("bootstrap: owner account %s created", cfg.OwnerEmail)
	}
	return res, nil
}
