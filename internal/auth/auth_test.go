package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarity-dx/referral-portal/internal/config"
)

func testRoster() []config.UserConfig {
	return []config.UserConfig{
		{
			ID: "1", Email: "admin@clarity-dx.example", Name: "Admin User", Role: "admin",
			Salt: "s1", PasswordSHA256: HashPassword("s1", "admin123"),
		},
		{
			ID: "2", Email: "reviewer@clarity-dx.example", Name: "Reviewer", Role: "user",
			Salt: "s2", PasswordSHA256: HashPassword("s2", "review123"),
		},
	}
}

func TestStaticProviderAuthenticate(t *testing.T) {
	p := NewStaticProvider(testRoster())

	t.Run("Success", func(t *testing.T) {
		u, err := p.Authenticate("admin@clarity-dx.example", "admin123")
		require.NoError(t, err)
		assert.Equal(t, "1", u.ID)
		assert.True(t, u.IsAdmin())
	})

	t.Run("EmailCaseInsensitive", func(t *testing.T) {
		u, err := p.Authenticate("Admin@Clarity-DX.example", "admin123")
		require.NoError(t, err)
		assert.Equal(t, "1", u.ID)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		_, err := p.Authenticate("admin@clarity-dx.example", "nope")
		assert.ErrorIs(t, err, ErrBadCredentials)
	})

	t.Run("UnknownEmail", func(t *testing.T) {
		_, err := p.Authenticate("ghost@clarity-dx.example", "admin123")
		assert.ErrorIs(t, err, ErrBadCredentials)
	})
}

func TestStaticProviderByID(t *testing.T) {
	p := NewStaticProvider(testRoster())

	u, ok := p.ByID("2")
	require.True(t, ok)
	assert.Equal(t, "Reviewer", u.Name)
	assert.False(t, u.IsAdmin())

	_, ok = p.ByID("99")
	assert.False(t, ok)
}

func TestTokenRoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	token, err := issuer.Issue(&User{ID: "1", Email: "admin@clarity-dx.example", Name: "Admin User", Role: "admin"})
	require.NoError(t, err)

	user, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "1", user.ID)
	assert.Equal(t, "admin@clarity-dx.example", user.Email)
	assert.Equal(t, "admin", user.Role)
}

func TestTokenExpiry(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret", -time.Minute)
	require.NoError(t, err)
	// negative ttl falls back to the default, so force an expired issuer
	issuer.ttl = -time.Minute

	token, err := issuer.Issue(&User{ID: "1"})
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	require.Error(t, err)
}

func TestTokenWrongSecret(t *testing.T) {
	a, err := NewTokenIssuer("secret-a", time.Hour)
	require.NoError(t, err)
	b, err := NewTokenIssuer("secret-b", time.Hour)
	require.NoError(t, err)

	token, err := a.Issue(&User{ID: "1"})
	require.NoError(t, err)

	_, err = b.Verify(token)
	require.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	var gotUser *User
	handler := Middleware(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("ValidToken", func(t *testing.T) {
		token, err := issuer.Issue(&User{ID: "1", Email: "admin@clarity-dx.example"})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, gotUser)
		assert.Equal(t, "admin@clarity-dx.example", gotUser.Email)
	})

	t.Run("MissingHeader", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("GarbageToken", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		req.Header.Set("Authorization", "Bearer not.a.jwt")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
