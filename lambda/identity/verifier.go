// Package identity はベアラートークンの検証を行う。
package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Verifier はトークンを検証してユーザー識別子(subクレーム)を返す
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (string, error)
}

// VerifierFunc は関数をVerifierとして使うためのアダプター
type VerifierFunc func(ctx context.Context, rawToken string) (string, error)

func (f VerifierFunc) Verify(ctx context.Context, rawToken string) (string, error) {
	return f(ctx, rawToken)
}

// ExtractBearer はAuthorizationヘッダーの値からトークン本体を取り出す。
// "Bearer " プレフィックス(大文字小文字どちらも)と前後の空白を除去する
func ExtractBearer(raw string) string {
	token := strings.TrimSpace(raw)
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer"))
	token = strings.TrimSpace(strings.TrimPrefix(token, "bearer"))
	return strings.TrimSpace(token)
}

// OIDCVerifier はOIDCプロバイダーのJWKSエンドポイントを使ってトークンを検証する
type OIDCVerifier struct {
	IssuerURL string
	// ClientID が空の場合はaudienceの検証をスキップする
	// (アクセストークンにはaudクレームが含まれないため)
	ClientID string

	mu       sync.Mutex
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(issuerURL, clientID string) *OIDCVerifier {
	return &OIDCVerifier{IssuerURL: issuerURL, ClientID: clientID}
}

// tokenVerifier はプロバイダーへの接続を初回のみ行い、以降は使い回す。
// Lambdaのウォームスタート間で共有されるため排他する
func (v *OIDCVerifier) tokenVerifier(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.verifier != nil {
		return v.verifier, nil
	}

	provider, err := oidc.NewProvider(ctx, v.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider error: %w", err)
	}

	cfg := &oidc.Config{ClientID: v.ClientID}
	if v.ClientID == "" {
		cfg.SkipClientIDCheck = true
	}
	v.verifier = provider.Verifier(cfg)
	return v.verifier, nil
}

// Verify は署名・有効期限・発行者を検証し、subクレームを返す
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (string, error) {
	verifier, err := v.tokenVerifier(ctx)
	if err != nil {
		return "", err
	}

	idToken, err := verifier.Verify(ctx, rawToken)
	if err != nil {
		return "", fmt.Errorf("token verification failed: %w", err)
	}

	if idToken.Subject == "" {
		return "", fmt.Errorf("token has no subject claim")
	}
	return idToken.Subject, nil
}
