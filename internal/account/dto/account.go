package dto

import accountdomain "github.com/Retr0-XD/FInance-Monkey/internal/account/domain"

// ConnectRequest links a mailbox. For IMAP the password goes in AccessToken.
type ConnectRequest struct {
	EmailAddress string                 `json:"email_address" binding:"required,email"`
	Provider     accountdomain.Provider `json:"provider"`
	AccessToken  string                 `json:"access_token" binding:"required"`
	RefreshToken string                 `json:"refresh_token"`
	ServerAddr   string                 `json:"server_addr"`
}

type AccountListResponse struct {
	Accounts []accountdomain.EmailAccount `json:"accounts"`
}
