package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"clubgate/internal/auth/models"
	"clubgate/internal/auth/password"
	authservice "clubgate/internal/auth/service"
	"clubgate/internal/member"
	memberservice "clubgate/internal/member/service"
	id "clubgate/pkg/domain"
	dErrors "clubgate/pkg/domain-errors"
	"clubgate/pkg/platform/sentinel"
)

const (
	seedAdminUsername = "admin"
	seedAdminPassword = "admin1234"
)

// seedDev creates a superadmin and a demo member for local development.
// Existing rows are left alone so restarts are idempotent.
func seedDev(ctx context.Context, users authservice.UserStore, hasher *password.Hasher, members *memberservice.Service, log *slog.Logger) error {
	hash, err := hasher.Hash(seedAdminPassword)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	err = users.Create(ctx, &models.User{
		Username:     seedAdminUsername,
		Email:        "admin@clubgate.local",
		PasswordHash: hash,
		DisplayName:  "Administrador",
		Role:         id.RoleSuperAdmin,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	switch {
	case errors.Is(err, sentinel.ErrConflict):
		log.InfoContext(ctx, "dev superadmin already present", "username", seedAdminUsername)
	case err != nil:
		return err
	default:
		log.WarnContext(ctx, "seeded dev superadmin", "username", seedAdminUsername)
	}

	paid := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	due := paid.AddDate(0, 1, 9)
	m, err := members.Enroll(ctx, member.Enrollment{
		DocumentType:   "DNI",
		DocumentNumber: "30111222",
		FullName:       "Socio Demo",
		Category:       "activo",
		State:          member.StateActive,
		LastPaidPeriod: &paid,
		NextDueDate:    &due,
	})
	switch {
	case dErrors.HasCode(err, dErrors.CodeConflict):
		log.InfoContext(ctx, "dev member already present")
	case err != nil:
		return err
	default:
		log.InfoContext(ctx, "seeded dev member", "member_id", m.ID, "number", m.Number, "qr", m.CredentialPayload)
	}
	return nil
}
