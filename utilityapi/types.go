package utilityapi

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/jrsteele09/go-utility-portal/internal/utils"
)

// Envelope is the response shape shared by every utility API endpoint.
type Envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// HasData reports whether the envelope carries a non-null data payload.
func (e Envelope) HasData() bool {
	trimmed := bytes.TrimSpace(e.Data)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// Decode unmarshals the data payload into v.
func (e Envelope) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// ID accepts both numeric and string identifiers from the backend.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	switch {
	case bytes.Equal(trimmed, []byte("null")):
		*id = ""
		return nil
	case len(trimmed) > 0 && trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return err
		}
		*id = ID(n.String())
		return nil
	}
}

// User is the customer profile returned on login.
type User struct {
	ID                   ID      `json:"id"`
	Login                string  `json:"login"`
	Email                *string `json:"email,omitempty"`
	Contact              *string `json:"contact,omitempty"`
	FirstName            *string `json:"firstname,omitempty"`
	LastName             *string `json:"lastname,omitempty"`
	DocumentVerified     bool    `json:"isDocumentVerified"`
	EmailVerified        bool    `json:"isEmailVerified"`
	ContactVerified      bool    `json:"isContactVerified"`
	Certified            bool    `json:"isCertified"`
	CompletionPercentage float64 `json:"completionPercentage"`
}

// DisplayName returns "First Last" when known, otherwise the login.
func (u User) DisplayName() string {
	name := strings.TrimSpace(utils.Value(u.FirstName) + " " + utils.Value(u.LastName))
	if name == "" {
		return u.Login
	}
	return name
}

type TokenRequest struct {
	APIKey string `json:"apikey"`
}

type VerifyRequest struct {
	Login string `json:"login"`
}

type LoginRequest struct {
	Login    string `json:"login"`
	Passcode string `json:"passcode"`
}

// LoginData is the payload of a successful login or social login.
type LoginData struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	User         *User  `json:"user"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type RefreshData struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

type LogoutRequest struct {
	Token string `json:"token"`
}

type SocialLoginRequest struct {
	Token string `json:"token"`
}

type OTPGenerateRequest struct {
	Login string `json:"login"`
}

type OTPVerifyRequest struct {
	Login string `json:"login"`
	Code  string `json:"code"`
}

type RegisterRequest struct {
	Login     string  `json:"login"`
	Passcode  string  `json:"passcode"`
	FirstName *string `json:"firstname,omitempty"`
	LastName  *string `json:"lastname,omitempty"`
	Email     *string `json:"email,omitempty"`
	Contact   *string `json:"contact,omitempty"`
}
