package mailer

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/parbhatkapila4/vectormail-worker/internal/models"
	"github.com/parbhatkapila4/vectormail-worker/internal/service"
)

// TokenStore persists refreshed OAuth tokens back to the account row
type TokenStore interface {
	UpdateTokens(ctx context.Context, accountID string, accessToken string, refreshToken string, accessTokenExpiresAt time.Time) error
}

// GmailStrategy sends through the account's own Gmail session, so replies
// stay threaded and land in the user's Sent folder.
type GmailStrategy struct {
	clientID     string
	clientSecret string
	tokens       TokenStore
}

func NewGmailStrategy(clientID string, clientSecret string, tokens TokenStore) *GmailStrategy {
	return &GmailStrategy{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokens:       tokens,
	}
}

// Send composes an RFC 822 message from the structured payload and submits
// it via the Gmail API
func (s *GmailStrategy) Send(ctx context.Context, account *models.Account, payload *models.GmailSendPayload) (*service.SendResult, error) {
	if account.AccessToken == nil {
		return nil, fmt.Errorf("account missing access token")
	}

	token := &oauth2.Token{
		AccessToken: *account.AccessToken,
		TokenType:   "Bearer",
	}
	if account.RefreshToken != nil {
		token.RefreshToken = *account.RefreshToken
	}
	if account.AccessTokenExpiresAt != nil {
		token.Expiry = *account.AccessTokenExpiresAt
	}

	// The oauth2 config refreshes the access token transparently when it has
	// expired between scheduling and execution.
	oauthCfg := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}

	tokenSource := oauthCfg.TokenSource(ctx, token)
	gmailService, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	raw := base64.URLEncoding.EncodeToString([]byte(buildMIME(account, payload)))
	msg := &gmail.Message{Raw: raw}
	if payload.ThreadID != "" {
		msg.ThreadId = payload.ThreadID
	}

	sent, sendErr := gmailService.Users.Messages.Send("me", msg).Do()

	// The token source may have refreshed the access token during the call;
	// persist it either way so the next job does not refresh again.
	s.persistRefreshedToken(ctx, account, tokenSource)

	if sendErr != nil {
		return nil, fmt.Errorf("gmail send failed: %w", sendErr)
	}
	return &service.SendResult{ProviderMessageID: sent.Id}, nil
}

// persistRefreshedToken writes the token back to the account row when the
// token source handed out a newer one than the row carries. Failures are
// logged only; the send outcome does not depend on this write.
func (s *GmailStrategy) persistRefreshedToken(ctx context.Context, account *models.Account, tokenSource oauth2.TokenSource) {
	current, err := tokenSource.Token()
	if err != nil {
		return
	}
	if account.AccessToken != nil && current.AccessToken == *account.AccessToken {
		return
	}

	refreshToken := current.RefreshToken
	if refreshToken == "" && account.RefreshToken != nil {
		refreshToken = *account.RefreshToken
	}

	if err := s.tokens.UpdateTokens(ctx, account.ID, current.AccessToken, refreshToken, current.Expiry); err != nil {
		log.Printf("Failed to persist refreshed token for account %s: %v", account.ID, err)
	}
}

func buildMIME(account *models.Account, payload *models.GmailSendPayload) string {
	var b strings.Builder
	writeHeader := func(name, value string) {
		if value != "" {
			b.WriteString(name)
			b.WriteString(": ")
			b.WriteString(value)
			b.WriteString("\r\n")
		}
	}

	writeHeader("From", account.EmailAddress)
	writeHeader("To", strings.Join(payload.To, ", "))
	writeHeader("Cc", strings.Join(payload.CC, ", "))
	writeHeader("Bcc", strings.Join(payload.BCC, ", "))
	writeHeader("Subject", payload.Subject)
	writeHeader("In-Reply-To", payload.InReplyTo)
	writeHeader("References", payload.References)
	writeHeader("Date", time.Now().Format(time.RFC1123Z))
	writeHeader("MIME-Version", "1.0")
	writeHeader("Content-Type", `text/html; charset="UTF-8"`)
	b.WriteString("\r\n")
	b.WriteString(payload.BodyHTML)
	return b.String()
}
