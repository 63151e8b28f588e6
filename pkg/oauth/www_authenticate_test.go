package oauth

import (
	"net/http"
	"reflect"
	"testing"
)

func TestParseWWWAuthenticate(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    *BearerChallenge
		wantErr bool
	}{
		{
			name:   "simple bearer",
			header: "Bearer",
			want:   &BearerChallenge{Scheme: "Bearer"},
		},
		{
			name:   "bearer with realm and scope",
			header: `Bearer realm="api", scope="openid profile"`,
			want: &BearerChallenge{
				Scheme: "Bearer",
				Realm:  "api",
				Scope:  "openid profile",
			},
		},
		{
			name:   "bearer with error",
			header: `Bearer error="invalid_token", error_description="The token has expired"`,
			want: &BearerChallenge{
				Scheme:           "Bearer",
				Error:            "invalid_token",
				ErrorDescription: "The token has expired",
			},
		},
		{
			name:   "parameter names are case insensitive",
			header: `Bearer ERROR="invalid_token"`,
			want: &BearerChallenge{
				Scheme: "Bearer",
				Error:  "invalid_token",
			},
		},
		{
			name:    "empty header",
			header:  "   ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWWWAuthenticate(tt.header)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseWWWAuthenticate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseWWWAuthenticate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseWWWAuthenticateFromResponse(t *testing.T) {
	t.Run("nil response", func(t *testing.T) {
		if got := ParseWWWAuthenticateFromResponse(nil); got != nil {
			t.Errorf("expected nil, got %+v", got)
		}
	})

	t.Run("ignores non-401 responses", func(t *testing.T) {
		resp := &http.Response{StatusCode: http.StatusForbidden, Header: http.Header{}}
		resp.Header.Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
		if got := ParseWWWAuthenticateFromResponse(resp); got != nil {
			t.Errorf("expected nil, got %+v", got)
		}
	})

	t.Run("parses 401 challenge", func(t *testing.T) {
		resp := &http.Response{StatusCode: http.StatusUnauthorized, Header: http.Header{}}
		resp.Header.Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		got := ParseWWWAuthenticateFromResponse(resp)
		if !got.IsInvalidToken() {
			t.Errorf("expected invalid_token challenge, got %+v", got)
		}
	})
}
