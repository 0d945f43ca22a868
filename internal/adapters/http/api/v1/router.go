package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/npsg02/auth-service/internal/adapters/http/api/v1/handlers"
)

type Router struct {
	auth     *handlers.AuthHandler
	wallets  *handlers.WalletHandler
	passkeys *handlers.PasskeyHandler
	oauth    *handlers.OAuthHandler
	authMW   echo.MiddlewareFunc
}

func NewRouter(auth *handlers.AuthHandler, wallets *handlers.WalletHandler, passkeys *handlers.PasskeyHandler, oauth *handlers.OAuthHandler, authMW echo.MiddlewareFunc) *Router {
	return &Router{auth: auth, wallets: wallets, passkeys: passkeys, oauth: oauth, authMW: authMW}
}

func (r *Router) Register(g *echo.Group) {
	auth := g.Group("/auth")
	auth.POST("/register", r.auth.Register)
	auth.POST("/login", r.auth.Login)
	auth.POST("/otp/request", r.auth.RequestLoginOtp)
	auth.POST("/otp/login", r.auth.LoginWithOtp)
	auth.POST("/verify", r.auth.VerifyIdentifier)
	auth.POST("/verify/resend", r.auth.ResendVerification)
	auth.POST("/refresh", r.auth.Refresh)
	auth.POST("/password/reset/start", r.auth.PasswordResetStart)
	auth.POST("/password/reset/finish", r.auth.PasswordResetFinish)

	protected := auth.Group("", r.authMW)
	protected.GET("/me", r.auth.GetMe)
	protected.POST("/password/change", r.auth.ChangePassword)
	protected.POST("/logout", r.auth.Logout)
	protected.POST("/logout/all", r.auth.LogoutAll)
	protected.GET("/sessions", r.auth.ListSessions)

	wallet := g.Group("/wallet")
	wallet.GET("/nonce", r.wallets.Nonce)
	wallet.POST("/login", r.wallets.Login)
	wallet.POST("/register", r.wallets.Register)

	walletProtected := wallet.Group("", r.authMW)
	walletProtected.GET("", r.wallets.List)
	walletProtected.POST("/link", r.wallets.Link)
	walletProtected.DELETE("/:id", r.wallets.Unlink)
	walletProtected.POST("/:id/primary", r.wallets.SetPrimary)

	passkey := g.Group("/passkey")
	passkey.POST("/login/begin", r.passkeys.BeginLogin)
	passkey.POST("/login/finish", r.passkeys.FinishLogin)

	passkeyProtected := passkey.Group("", r.authMW)
	passkeyProtected.POST("/register/begin", r.passkeys.BeginRegistration)
	passkeyProtected.POST("/register/finish", r.passkeys.FinishRegistration)
	passkeyProtected.GET("", r.passkeys.List)
	passkeyProtected.PATCH("/:id", r.passkeys.Rename)
	passkeyProtected.DELETE("/:id", r.passkeys.Delete)

	oauth := g.Group("/oauth")
	oauth.GET("/state", r.oauth.State)
	oauth.POST("/:provider/callback", r.oauth.Callback)

	oauthProtected := oauth.Group("", r.authMW)
	oauthProtected.GET("", r.oauth.List)
	oauthProtected.POST("/:provider/link", r.oauth.Link)
	oauthProtected.DELETE("/:id", r.oauth.Unlink)
}
