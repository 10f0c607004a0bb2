package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stef44n/messaging-app/internal/db"
	"github.com/stef44n/messaging-app/internal/token"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func newUserService(t *testing.T) (*UserService, *token.Service, *gorm.DB) {
	t.Helper()
	gdb := newTestDB(t)
	tokens := token.NewService("test-secret", 15*time.Minute, 7*24*time.Hour)
	return NewUserService(gdb, tokens), tokens, gdb
}

func TestSignup(t *testing.T) {
	svc, _, _ := newUserService(t)

	user, err := svc.Signup("alice", "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	if user.ID == 0 {
		t.Error("Signup() user ID not assigned")
	}
	if user.Username != "alice" || user.Email != "alice@example.com" {
		t.Errorf("Signup() user = %+v", user)
	}
}

func TestSignup_NeverExposesPasswordHash(t *testing.T) {
	svc, _, _ := newUserService(t)

	user, err := svc.Signup("alice", "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	b, err := json.Marshal(user)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := strings.ToLower(string(b))
	if strings.Contains(s, "password") || strings.Contains(s, "hash") {
		t.Errorf("serialized user leaks password material: %s", b)
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	svc, _, _ := newUserService(t)

	if _, err := svc.Signup("alice", "alice@example.com", "pw1234"); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	_, err := svc.Signup("alice2", "alice@example.com", "pw1234")
	if !errors.Is(err, ErrEmailTaken) {
		t.Errorf("Signup() error = %v, want ErrEmailTaken", err)
	}
}

func TestSignup_DuplicateUsername(t *testing.T) {
	svc, _, _ := newUserService(t)

	if _, err := svc.Signup("alice", "alice@example.com", "pw1234"); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	_, err := svc.Signup("alice", "other@example.com", "pw1234")
	if !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("Signup() error = %v, want ErrUsernameTaken", err)
	}
}

func TestLogin(t *testing.T) {
	svc, tokens, _ := newUserService(t)

	created, err := svc.Signup("alice", "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	result, err := svc.Login("alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.User.ID != created.ID {
		t.Errorf("Login() user id = %v, want %v", result.User.ID, created.ID)
	}

	// access token verifies back to the same user id
	uid, err := tokens.VerifyAccess(result.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess() error = %v", err)
	}
	if uid != created.ID {
		t.Errorf("VerifyAccess() uid = %v, want %v", uid, created.ID)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc, _, _ := newUserService(t)

	if _, err := svc.Signup("alice", "alice@example.com", "password123"); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	// same generic error whether the email exists or not
	_, errWrongPw := svc.Login("alice@example.com", "wrongpassword")
	_, errNoUser := svc.Login("ghost@example.com", "password123")

	if !errors.Is(errWrongPw, ErrInvalidCredentials) {
		t.Errorf("Login() wrong password error = %v, want ErrInvalidCredentials", errWrongPw)
	}
	if !errors.Is(errNoUser, ErrInvalidCredentials) {
		t.Errorf("Login() unknown email error = %v, want ErrInvalidCredentials", errNoUser)
	}
	if errWrongPw.Error() != errNoUser.Error() {
		t.Error("Login() failure messages should be indistinguishable")
	}
}

func TestRefresh_Rotation(t *testing.T) {
	svc, tokens, _ := newUserService(t)

	created, _ := svc.Signup("alice", "alice@example.com", "password123")
	login, err := svc.Login("alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	result, err := svc.Refresh(login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	uid, err := tokens.VerifyAccess(result.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess() error = %v", err)
	}
	if uid != created.ID {
		t.Errorf("refreshed access token uid = %v, want %v", uid, created.ID)
	}

	// the old refresh token was rotated out and must no longer work
	if _, err := svc.Refresh(login.RefreshToken); !errors.Is(err, ErrInvalidRefresh) {
		t.Errorf("Refresh() reuse error = %v, want ErrInvalidRefresh", err)
	}

	// the new one works exactly once more
	if _, err := svc.Refresh(result.RefreshToken); err != nil {
		t.Errorf("Refresh() with rotated token error = %v", err)
	}
}

func TestRefresh_TamperedToken(t *testing.T) {
	svc, _, _ := newUserService(t)

	svc.Signup("alice", "alice@example.com", "password123")
	login, _ := svc.Login("alice@example.com", "password123")

	tampered := login.RefreshToken[:len(login.RefreshToken)-2] + "xx"
	if _, err := svc.Refresh(tampered); !errors.Is(err, ErrInvalidRefresh) {
		t.Errorf("Refresh() tampered error = %v, want ErrInvalidRefresh", err)
	}
}

func TestRefresh_ExpiredToken(t *testing.T) {
	gdb := newTestDB(t)
	expired := token.NewService("test-secret", 15*time.Minute, -time.Hour)
	svc := NewUserService(gdb, expired)

	svc.Signup("alice", "alice@example.com", "password123")
	login, err := svc.Login("alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if _, err := svc.Refresh(login.RefreshToken); !errors.Is(err, ErrInvalidRefresh) {
		t.Errorf("Refresh() expired error = %v, want ErrInvalidRefresh", err)
	}
}

func TestRefresh_AccessTokenRejected(t *testing.T) {
	svc, _, _ := newUserService(t)

	svc.Signup("alice", "alice@example.com", "password123")
	login, _ := svc.Login("alice@example.com", "password123")

	if _, err := svc.Refresh(login.AccessToken); !errors.Is(err, ErrInvalidRefresh) {
		t.Errorf("Refresh() with access token error = %v, want ErrInvalidRefresh", err)
	}
}

func TestUpdateProfile_Validation(t *testing.T) {
	svc, _, _ := newUserService(t)
	user, _ := svc.Signup("alice", "alice@example.com", "password123")

	str := func(s string) *string { return &s }

	tests := []struct {
		name string
		upd  ProfileUpdate
	}{
		{"short username", ProfileUpdate{Username: str("ab")}},
		{"long bio", ProfileUpdate{Bio: str(strings.Repeat("x", 301))}},
		{"bad avatar scheme", ProfileUpdate{AvatarURL: str("ftp://example.com/a.png")}},
		{"avatar not a url", ProfileUpdate{AvatarURL: str("not-a-url")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateProfile(user.ID, tt.upd)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("UpdateProfile() error = %v, want ValidationError", err)
			}
		})
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, _, _ := newUserService(t)
	user, _ := svc.Signup("alice", "alice@example.com", "password123")

	name := "alice_cooper"
	bio := "hello there"
	avatar := "https://example.com/a.png"
	updated, err := svc.UpdateProfile(user.ID, ProfileUpdate{Username: &name, Bio: &bio, AvatarURL: &avatar})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}

	got, err := svc.Profile(user.ID)
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if got.Username != name || got.Bio != bio || got.AvatarURL != avatar {
		t.Errorf("Profile() after update = %+v", got)
	}
	_ = updated
}

func TestUpdateProfile_UsernameConflict(t *testing.T) {
	svc, _, _ := newUserService(t)
	svc.Signup("alice", "alice@example.com", "pw1234")
	bob, _ := svc.Signup("bob", "bob@example.com", "pw1234")

	name := "alice"
	if _, err := svc.UpdateProfile(bob.ID, ProfileUpdate{Username: &name}); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("UpdateProfile() error = %v, want ErrUsernameTaken", err)
	}
}

func TestUpdateProfile_KeepOwnUsername(t *testing.T) {
	svc, _, _ := newUserService(t)
	user, _ := svc.Signup("alice", "alice@example.com", "pw1234")

	name := "alice"
	if _, err := svc.UpdateProfile(user.ID, ProfileUpdate{Username: &name}); err != nil {
		t.Errorf("UpdateProfile() resubmitting own username error = %v", err)
	}
}

func TestSearch(t *testing.T) {
	svc, _, _ := newUserService(t)
	svc.Signup("alice", "alice@example.com", "pw1234")
	svc.Signup("Alicia", "alicia@example.com", "pw1234")
	svc.Signup("bob", "bob@example.com", "pw1234")

	tests := []struct {
		name string
		q    string
		want int
	}{
		{"case-insensitive substring", "ali", 2},
		{"exact", "bob", 1},
		{"no match", "zzz", 0},
		{"empty query", "", 0},
		{"whitespace query", "   ", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Search(tt.q)
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("Search(%q) = %d results, want %d", tt.q, len(got), tt.want)
			}
		})
	}
}

func TestSearch_Capped(t *testing.T) {
	svc, _, _ := newUserService(t)
	for i := 0; i < 15; i++ {
		svc.Signup(fmt.Sprintf("user%02d", i), fmt.Sprintf("user%02d@example.com", i), "pw1234")
	}

	got, err := svc.Search("user")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 10 {
		t.Errorf("Search() = %d results, want cap of 10", len(got))
	}
}
