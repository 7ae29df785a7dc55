package app

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"sevaconnect-backend/pkg/apperr"
	"sevaconnect-backend/pkg/models"
)

const minPasswordLength = 8

// Authenticate checks email and password against the stored credentials.
// NGOs can only sign in once their registration is approved.
func (a *App) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	cred, ok := a.credentialFor(ctx, email)
	if !ok {
		return models.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}

	if cred.Role == models.RoleNGO {
		reg, err := a.Store.NGOs.Get(ctx, cred.SubjectID)
		if err != nil {
			return models.User{}, err
		}
		if reg.Status != models.RegistrationApproved {
			return models.User{}, ErrNotVerified
		}
	}
	return models.User{ID: cred.SubjectID, Email: cred.Email, Role: cred.Role}, nil
}

// AddCredential stores a bcrypt hash of password for subjectID.
func (a *App) AddCredential(ctx context.Context, subjectID, email string, role models.Role, password string) (models.Credential, error) {
	if err := checkPassword(password); err != nil {
		return models.Credential{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.Credential{}, fmt.Errorf("hash password: %w", err)
	}
	return a.Store.Credentials.Create(ctx, models.Credential{
		SubjectID:    subjectID,
		Email:        strings.TrimSpace(email),
		Role:         role,
		PasswordHash: string(hash),
	})
}

// RegisterNGO records a Pending NGO registration and the login it will use
// after approval.
func (a *App) RegisterNGO(ctx context.Context, reg models.NGORegistration, password string) (models.NGORegistration, error) {
	if err := a.checkSignup(ctx, reg.Email, password); err != nil {
		return models.NGORegistration{}, err
	}
	saved, err := a.Lifecycle.RegisterNGO(ctx, reg)
	if err != nil {
		return saved, err
	}
	if _, err := a.AddCredential(ctx, saved.ID, saved.Email, models.RoleNGO, password); err != nil {
		a.Logger.Error("ngo registered without a login", "ngo_id", saved.ID, "error", err)
	}
	return saved, nil
}

// RegisterDonor records a donor account and its login.
func (a *App) RegisterDonor(ctx context.Context, d models.Donor, password string) (models.Donor, error) {
	if err := a.checkSignup(ctx, d.Email, password); err != nil {
		return models.Donor{}, err
	}
	saved, err := a.Lifecycle.RegisterDonor(ctx, d)
	if err != nil {
		return saved, err
	}
	if _, err := a.AddCredential(ctx, saved.ID, saved.Email, models.RoleDonor, password); err != nil {
		a.Logger.Error("donor registered without a login", "donor_id", saved.ID, "error", err)
	}
	return saved, nil
}

func (a *App) checkSignup(ctx context.Context, email, password string) error {
	if err := checkPassword(password); err != nil {
		return err
	}
	if _, taken := a.credentialFor(ctx, email); taken {
		return apperr.Duplicate("email", strings.TrimSpace(email))
	}
	return nil
}

func (a *App) credentialFor(ctx context.Context, email string) (models.Credential, bool) {
	want := strings.ToLower(strings.TrimSpace(email))
	if want == "" {
		return models.Credential{}, false
	}
	found := a.Store.Credentials.List(ctx, func(c models.Credential) bool {
		return strings.ToLower(c.Email) == want
	})
	if len(found) == 0 {
		return models.Credential{}, false
	}
	return found[0], true
}

// seedAdmin creates the admin credential from ADMIN_EMAIL/ADMIN_PASSWORD
// when no credential uses that email yet.
func (a *App) seedAdmin(ctx context.Context) error {
	email := a.Config.AdminEmail
	if email == "" || a.Config.AdminPassword == "" {
		return nil
	}
	if _, ok := a.credentialFor(ctx, email); ok {
		return nil
	}
	if _, err := a.AddCredential(ctx, "admin", email, models.RoleAdmin, a.Config.AdminPassword); err != nil {
		return fmt.Errorf("seed admin credential: %w", err)
	}
	a.Logger.Info("👤 Admin credential created", "email", email)
	return nil
}

func checkPassword(password string) error {
	if len(password) < minPasswordLength {
		return apperr.Validation("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	return nil
}
