// Package httpapp provides the HTTP server for the ssasy demo.
//
//	@title						ssasy demo API
//	@version					1.0
//	@description				A passwordless authentication demo. Users prove control of a
//	@description				private key by solving encrypted challenges instead of sending
//	@description				passwords.
//	@description
//	@description				## Authentication Flow
//	@description
//	@description				```
//	@description				┌──────────────────┐     ┌──────────────────┐     ┌──────────────────┐
//	@description				│  1. Challenge    │────▶│  2. Solve        │────▶│  3. Register or  │
//	@description				│  POST /auth/     │     │  (signing agent  │     │     log in       │
//	@description				│     challenge    │     │   decrypts it)   │     │  POST /auth/...  │
//	@description				└──────────────────┘     └──────────────────┘     └──────────────────┘
//	@description				```
//	@description
//	@description				### Step 1: Get a Challenge
//	@description				Submit your public key (ssasy key URI) and receive a ciphertext
//	@description				only the matching private key can open.
//	@description				```bash
//	@description				curl -X POST /auth/challenge -d '{"publicKey":"ssasy://key?..."}'
//	@description				```
//	@description
//	@description				### Step 2: Solve It
//	@description				Your signing agent decrypts the challenge with the shared key it
//	@description				derives from your private key and the server's public key, then
//	@description				encrypts a solution back to the server.
//	@description
//	@description				### Step 3: Register or Log In
//	@description				```bash
//	@description				curl -X POST /auth/register -d '{"publicKey":"...","username":"alice","challenge":"ssasy://ciphertext?..."}'
//	@description				curl -X POST /auth/login -d '{"publicKey":"...","challenge":"ssasy://ciphertext?..."}'
//	@description				# Login returns: {"user": {...}, "token": "..."}
//	@description				```
//	@description
//	@description				### Step 4: Use the Token
//	@description				```bash
//	@description				curl -X POST /thoughts -H "Authorization: Bearer TOKEN" -d '{"text":"hello"}'
//	@description				```
//
//	@license.name				MIT
//
//	@host						localhost:3000
//	@BasePath					/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token from /auth/login
//
//	@tag.name					Authentication
//	@tag.description			Challenge-response authentication. Request a challenge, solve it with your signing agent, exchange it for an account or a token.
//
//	@tag.name					Users
//	@tag.description			Public directory of registered users and their public keys.
//
//	@tag.name					Thoughts
//	@tag.description			Short text posts. Writing requires a bearer token.
package httpapp
