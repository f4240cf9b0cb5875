package authpw

import (
	"context"
	"errors"
	"testing"
	"time"

	"masthead/api/internal/store"
)

// mockUserStore is a mock implementation of UserStore for testing
type mockUserStore struct {
	users         map[string]store.User
	emailIndex    map[string]string // email -> userID
	verifications map[string]store.User
	resets        map[string]struct {
		userID    string
		expiresAt time.Time
		used      bool
	}
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:         make(map[string]store.User),
		emailIndex:    make(map[string]string),
		verifications: make(map[string]store.User),
		resets: make(map[string]struct {
			userID    string
			expiresAt time.Time
			used      bool
		}),
	}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if userID, ok := m.emailIndex[email]; ok {
		return m.users[userID], nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) CreateUser(ctx context.Context, user store.User) error {
	m.users[user.ID] = user
	m.emailIndex[user.Email] = user.ID
	return nil
}

func (m *mockUserStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	if user, ok := m.users[userID]; ok {
		user.VerificationToken = token
		user.VerificationExpiresAt = &expiresAt
		m.users[userID] = user
		m.verifications[token] = user
	}
	return nil
}

func (m *mockUserStore) VerifyUserEmail(ctx context.Context, token string) error {
	if user, ok := m.verifications[token]; ok {
		user.IsEmailVerified = true
		m.users[user.ID] = user
		m.emailIndex[user.Email] = user.ID
		return nil
	}
	return errors.New("invalid token")
}

func (m *mockUserStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	if user, ok := m.users[userID]; ok {
		user.PasswordHash = passwordHash
		m.users[userID] = user
		return nil
	}
	return errors.New("user not found")
}

func (m *mockUserStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	m.resets[token] = struct {
		userID    string
		expiresAt time.Time
		used      bool
	}{userID: userID, expiresAt: expiresAt, used: false}
	return nil
}

func (m *mockUserStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	if reset, ok := m.resets[token]; ok && !reset.used && time.Now().Before(reset.expiresAt) {
		return reset.userID, nil
	}
	return "", errors.New("invalid or expired token")
}

func (m *mockUserStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	if reset, ok := m.resets[token]; ok {
		reset.used = true
		m.resets[token] = reset
	}
	return nil
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	t.Run("successful sign up", func(t *testing.T) {
		resp, err := svc.SignUp(ctx, SignUpRequest{
			Email:       "dana@example.com",
			Password:    "password123",
			DisplayName: "Dana",
		})
		if err != nil {
			t.Fatalf("SignUp failed: %v", err)
		}
		if resp.UserID == "" {
			t.Error("expected user ID to be set")
		}
		if resp.VerificationToken == "" {
			t.Error("expected verification token to be set")
		}
		if !resp.RequiresEmailVerify {
			t.Error("expected email verification to be required")
		}
		user := mockStore.users[resp.UserID]
		if user.Color == "" {
			t.Error("expected a presence color to be assigned")
		}
		if user.Role != "editor" {
			t.Errorf("expected default role editor, got %s", user.Role)
		}
	})

	t.Run("duplicate email rejected", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{
			Email:       "dana@example.com",
			Password:    "password123",
			DisplayName: "Dana Again",
		})
		if err == nil || err.Error() != "email already registered" {
			t.Errorf("expected duplicate email error, got %v", err)
		}
	})

	t.Run("short password rejected", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{
			Email:       "short@example.com",
			Password:    "short",
			DisplayName: "Shorty",
		})
		if err == nil {
			t.Error("expected error for short password")
		}
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{Email: "x@example.com"})
		if err == nil {
			t.Error("expected error for missing fields")
		}
	})
}

func TestColorsAreStablePerEmail(t *testing.T) {
	if colorFor("dana@example.com") != colorFor("Dana@Example.com") {
		t.Error("color must be case-insensitive on email")
	}
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	resp, err := svc.SignUp(ctx, SignUpRequest{
		Email:       "sam@example.com",
		Password:    "password123",
		DisplayName: "Sam",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	t.Run("unverified user flagged", func(t *testing.T) {
		signIn, err := svc.SignIn(ctx, SignInRequest{Email: "sam@example.com", Password: "password123"})
		if err != nil {
			t.Fatalf("SignIn failed: %v", err)
		}
		if !signIn.RequiresVerify {
			t.Error("expected RequiresVerify for unverified user")
		}
	})

	if err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	t.Run("correct password", func(t *testing.T) {
		signIn, err := svc.SignIn(ctx, SignInRequest{Email: "sam@example.com", Password: "password123"})
		if err != nil {
			t.Fatalf("SignIn failed: %v", err)
		}
		if signIn.RequiresVerify {
			t.Error("unexpected RequiresVerify after verification")
		}
		if signIn.User.Email != "sam@example.com" {
			t.Errorf("unexpected user: %+v", signIn.User)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		if _, err := svc.SignIn(ctx, SignInRequest{Email: "sam@example.com", Password: "wrong-password"}); err == nil {
			t.Error("expected error for wrong password")
		}
	})

	t.Run("unknown email", func(t *testing.T) {
		if _, err := svc.SignIn(ctx, SignInRequest{Email: "ghost@example.com", Password: "password123"}); err == nil {
			t.Error("expected error for unknown email")
		}
	})
}

func TestPasswordReset(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := NewService(mockStore)

	resp, err := svc.SignUp(ctx, SignUpRequest{
		Email:       "reset@example.com",
		Password:    "password123",
		DisplayName: "Reset Me",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	token, err := svc.RequestPasswordReset(ctx, "reset@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected reset token for existing account")
	}

	// Unknown emails must not be distinguishable
	ghost, err := svc.RequestPasswordReset(ctx, "ghost@example.com")
	if err != nil || ghost != "" {
		t.Errorf("expected silent empty token for unknown email, got (%q, %v)", ghost, err)
	}

	if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "newpassword456"}); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	if _, err := svc.SignIn(ctx, SignInRequest{Email: "reset@example.com", Password: "newpassword456"}); err != nil {
		t.Errorf("SignIn with new password failed: %v", err)
	}
	if _, err := svc.SignIn(ctx, SignInRequest{Email: "reset@example.com", Password: "password123"}); err == nil {
		t.Error("old password should no longer work")
	}
}
