package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidParameter      = errors.New("invalid parameter")
	ErrPaymentMintNotAllowed = errors.New("payment mint not allowed")
	ErrPaymentMintMismatch   = errors.New("payment mint mismatch")
	ErrUndefinedNftSet       = errors.New("undefined nft set")
	ErrConstraintCollection  = errors.New("nft collection is not as expected")
	ErrCollectionNotVerified = errors.New("nft collection membership is not verified")
	ErrNFTNotInSet           = errors.New("nft is not in set")
	ErrOrderNotOpen          = errors.New("order is not open")
	ErrPriceMismatch         = errors.New("price mismatch")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrRateLimited           = errors.New("rate limited")
)
