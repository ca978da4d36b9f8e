package domain

import "errors"

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountExists        = errors.New("account already exists")
	ErrBatchNotFound        = errors.New("request not found")
	ErrSecretNotFound       = errors.New("secret not found")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidTarget        = errors.New("invalid target")
	ErrInvalidInteraction   = errors.New("invalid interaction")
	ErrUserOnCooldown       = errors.New("user is on cooldown")
	ErrTargetBusy           = errors.New("a request is already active for this target")
	ErrNoEligibleAccounts   = errors.New("no eligible accounts")
	ErrInsufficientAccounts = errors.New("not enough eligible accounts")
	ErrAccountsBusy         = errors.New("accounts are busy with other requests")
	ErrPrerequisiteMissing  = errors.New("accounts lack a required relationship with the target")
	ErrNotRequestOwner      = errors.New("request belongs to another user")
)
