package jwtauth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gqlgate/gqlgate/internal/config"
	"github.com/gqlgate/gqlgate/internal/observability"
)

func newLocator(rules ...config.LookupLocation) *locator {
	return &locator{rules: rules, logger: observability.NopLogger()}
}

func TestLocatorHeader(t *testing.T) {
	t.Parallel()

	t.Run("plain header", func(t *testing.T) {
		t.Parallel()
		l := newLocator(config.LookupLocation{In: config.LookupInHeader, Name: "Authorization"})

		r := httptest.NewRequest(http.MethodPost, "/graphql", nil)
		r.Header.Set("Authorization", "token-value")

		token, err := l.locate(r)
		require.Nil(t, err)
		assert.Equal(t, "token-value", token)
	})

	t.Run("plain header value is verbatim", func(t *testing.T) {
		t.Parallel()
		l := newLocator(config.LookupLocation{In: config.LookupInHeader, Name: "X-Token"})

		r := httptest.NewRequest(http.MethodPost, "/graphql", nil)
		r.Header.Set("X-Token", " spaced value ")

		token, err := l.locate(r)
		require.Nil(t, err)
		assert.Equal(t, " spaced value ", token)
	})

	t.Run("prefix stripped and trimmed", func(t *testing.T) {
		t.Parallel()
		l := newLocator(config.LookupLocation{
			In: config.LookupInHeader, Name: "Authorization", Prefix: "Bearer",
		})

		r := httptest.NewRequest(http.MethodPost, "/graphql", nil)
		r.Header.Set("Authorization", "Bearer  token-value ")

		token, err := l.locate(r)
		require.Nil(t, err)
		assert.Equal(t, "token-value", token)
	})

	t.Run("prefix mismatch fails immediately", func(t *testing.T) {
		t.Parallel()
		l := newLocator(
			config.LookupLocation{In: config.LookupInHeader, Name: "Authorization", Prefix: "Bearer "},
			config.LookupLocation{In: config.LookupInQueryParam, Name: "token"},
		)

		// The fallback rule would match, but the mismatched prefix on a
		// present header terminates the whole lookup.
		r := httptest.NewRequest(http.MethodPost, "/graphql?token=other", nil)
		r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

		_, err := l.locate(r)
		require.NotNil(t, err)
		assert.Equal(t, ReasonPrefixMismatch, err.Reason)
	})

	t.Run("prefix match is case sensitive", func(t *testing.T) {
		t.Parallel()
		l := newLocator(config.LookupLocation{
			In: config.LookupInHeader, Name: "Authorization", Prefix: "Bearer ",
		})

		r := httptest.NewRequest(http.MethodPost, "/graphql", nil)
		r.Header.Set("Authorization", "bearer token-value")

		_, err := l.locate(r)
		require.NotNil(t, err)
		assert.Equal(t, ReasonPrefixMismatch, err.Reason)
	})

	t.Run("absent header falls through", func(t *testing.T) {
		t.Parallel()
		l := newLocator(
			config.LookupLocation{In: config.LookupInHeader, Name: "Authorization", Prefix: "Bearer "},
			config.LookupLocation{In: config.LookupInQueryParam, Name: "jwt"},
		)

		r := httptest.NewRequest(http.MethodPost, "/graphql?jwt=from-query", nil)

		token, err := l.locate(r)
		require.Nil(t, err)
		assert.Equal(t, "from-query", token)
	})

	t.Run("undecodable header value is skipped and reported", func(t *testing.T) {
		t.Parallel()
		l := newLocator(config.LookupLocation{In: config.LookupInHeader, Name: "X-Token"})

		r := httptest.NewRequest(http.MethodPost, "/graphql", nil)
		r.Header.Set("X-Token", "bad\x00value")

		_, err := l.locate(r)
		require.NotNil(t, err)
		assert.Equal(t, ReasonHeaderDecode, err.Reason)
	})
}

func TestLocatorQueryParam(t *testing.T) {
	t.Parallel()

	l := newLocator(config.LookupLocation{In: config.LookupInQueryParam, Name: "jwt"})

	t.Run("present", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/graphql?jwt=abc.def.ghi", nil)
		token, err := l.locate(r)
		require.Nil(t, err)
		assert.Equal(t, "abc.def.ghi", token)
	})

	t.Run("absent", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/graphql", nil)
		_, err := l.locate(r)
		require.NotNil(t, err)
		assert.Equal(t, ReasonNotFound, err.Reason)
	})
}

func TestLocatorCookie(t *testing.T) {
	t.Parallel()

	l := newLocator(config.LookupLocation{In: config.LookupInCookie, Name: "auth"})

	t.Run("present", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/graphql", nil)
		r.Header.Set("Cookie", "session=xyz; auth=token-value")

		token, err := l.locate(r)
		require.Nil(t, err)
		assert.Equal(t, "token-value", token)
	})

	t.Run("quoted value unwrapped", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/graphql", nil)
		r.Header.Set("Cookie", `auth="token-value"`)

		token, err := l.locate(r)
		require.Nil(t, err)
		assert.Equal(t, "token-value", token)
	})

	t.Run("malformed segment is skipped", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/graphql", nil)
		r.Header.Set("Cookie", "garbage; auth=token-value")

		token, err := l.locate(r)
		require.Nil(t, err)
		assert.Equal(t, "token-value", token)
	})

	t.Run("absent cookie", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/graphql", nil)
		r.Header.Set("Cookie", "session=xyz")

		_, err := l.locate(r)
		require.NotNil(t, err)
		assert.Equal(t, ReasonNotFound, err.Reason)
	})
}

func TestLocatorRuleOrder(t *testing.T) {
	t.Parallel()

	l := newLocator(
		config.LookupLocation{In: config.LookupInQueryParam, Name: "jwt"},
		config.LookupLocation{In: config.LookupInHeader, Name: "Authorization"},
	)

	r := httptest.NewRequest(http.MethodPost, "/graphql?jwt=from-query", nil)
	r.Header.Set("Authorization", "from-header")

	token, err := l.locate(r)
	require.Nil(t, err)
	assert.Equal(t, "from-query", token)
}

func TestParseCookieSegment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		segment   string
		wantName  string
		wantValue string
		wantErr   bool
	}{
		{"a=b", "a", "b", false},
		{" a = b ", "a", "b", false},
		{`a="b"`, "a", "b", false},
		{"a=", "a", "", false},
		{"noequals", "", "", true},
		{"=value", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.segment, func(t *testing.T) {
			t.Parallel()
			name, value, err := parseCookieSegment(tt.segment)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantValue, value)
		})
	}
}
