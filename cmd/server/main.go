// Command server runs the language-exchange API.
//
// @title                      Lingo API
// @version                    1.0
// @description                Language-exchange backend: accounts, onboarding, friend requests and chat tokens.
// @BasePath                   /api
// @securityDefinitions.apikey CookieAuth
// @in                         cookie
// @name                       jwt
package main

import (
	"os"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
