// Package dto define los cuerpos de request y response de la API.
package dto

import "encoding/json"

// ─── Magic link ──────────────────────────────────────────────────────

type MagicRequestIn struct {
	Email string `json:"email"`
}

type MagicVerifyIn struct {
	Token string `json:"token"`
}

// ─── TOTP ────────────────────────────────────────────────────────────

type TOTPEnrollIn struct {
	Email string `json:"email"`
}

type TOTPEnrollOut struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
}

type TOTPVerifyIn struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// ─── WebAuthn ────────────────────────────────────────────────────────

type WebAuthnOptionsIn struct {
	Email string `json:"email"`
}

type WebAuthnOptionsOut struct {
	ChallengeID string          `json:"challenge_id"`
	Options     json.RawMessage `json:"options"`
}

type WebAuthnCompleteIn struct {
	ChallengeID string          `json:"challenge_id"`
	Response    json.RawMessage `json:"response"`
}

type WebAuthnRegisterOut struct {
	CredentialID string `json:"credential_id"`
}

// ─── Tokens ──────────────────────────────────────────────────────────

type TokenRefreshIn struct {
	RefreshToken string `json:"refresh_token"`
}

type TokenPairOut struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// ─── Admin ───────────────────────────────────────────────────────────

type UserOut struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	TOTPEnrolled bool   `json:"totp_enrolled"`
	CreatedAt    string `json:"created_at"`
}

type EmailQueueStatsOut struct {
	Pending int `json:"pending"`
	Sending int `json:"sending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

type AuditEntryOut struct {
	ID        int64  `json:"id"`
	EventType string `json:"event_type"`
	UserID    string `json:"user_id,omitempty"`
	Email     string `json:"email,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	Success   bool   `json:"success"`
	Detail    string `json:"detail,omitempty"`
	CreatedAt string `json:"created_at"`
}

type RevokeOut struct {
	Revoked int `json:"revoked"`
}
