package service

import "github.com/rl1809/storefront/internal/core/domain"

var (
	ErrNotAllowed     = domain.NewError(domain.ErrForbidden, "Not allowed!")
	ErrAdminOnly      = domain.NewError(domain.ErrForbidden, "Only admins can perform this action")
	ErrProductGone    = domain.NewError(domain.ErrNotFound, "Product doesn't exist any longer!")
	ErrProductMissing = domain.NewError(domain.ErrNotFound, "Product not found!")
	ErrCartItemAbsent = domain.NewError(domain.ErrNotFound, "Cart item not found!")
	ErrOutOfStock     = domain.NewError(domain.ErrOutOfBound, "Product quantity out of bound!")
	ErrEmptyCart      = domain.NewError(domain.ErrValidation, "No cart item found!")
	ErrCartChanged    = domain.NewError(domain.ErrConflict, "Cart changed while creating the order, please retry")
	ErrOrderNotFound  = domain.NewError(domain.ErrNotFound, "Order details not found!")
	ErrAlreadyPaid    = domain.NewError(domain.ErrConflict, "Payment already made!")
	ErrNotPaid        = domain.NewError(domain.ErrConflict, "Payment not made yet!")
	ErrNoPayment      = domain.NewError(domain.ErrNotFound, "Payment details not found!")
	ErrZeroCharge     = domain.NewError(domain.ErrValidation, "Order total must be greater than zero")
	ErrBadCallback    = domain.NewError(domain.ErrValidation, "Bad response!")
	ErrUnknownOrder   = domain.NewError(domain.ErrNotFound, "Unable to determine order!")
	ErrBadSignature   = domain.NewError(domain.ErrSignatureInvalid, "Invalid signature")
	ErrBadWebhook     = domain.NewError(domain.ErrValidation, "Invalid webhook payload")
	ErrCredentialUsed = domain.NewError(domain.ErrConflict, "Credential already assigned to a user")
	ErrCredentialGone = domain.NewError(domain.ErrNotFound, "Credential not found!")
	ErrAddressMissing = domain.NewError(domain.ErrNotFound, "Address not found!")
)
