package errors

import "net/http"

// ErrorCode represents a machine-readable error identifier for frontend error handling.
type ErrorCode string

// Request validation
const (
	ErrCodeInvalidField   ErrorCode = "invalid_field"
	ErrCodeMissingField   ErrorCode = "missing_field"
	ErrCodeInvalidRequest ErrorCode = "invalid_request"
)

// Authentication and authorization
const (
	ErrCodeUnauthorized       ErrorCode = "unauthorized"
	ErrCodeInvalidToken       ErrorCode = "invalid_token"
	ErrCodeInvalidCredentials ErrorCode = "invalid_credentials"
	ErrCodeForbidden          ErrorCode = "forbidden"
)

// Missing resources
const (
	ErrCodeNotFound            ErrorCode = "not_found"
	ErrCodeProductNotFound     ErrorCode = "product_not_found"
	ErrCodeOrderNotFound       ErrorCode = "order_not_found"
	ErrCodeTransactionNotFound ErrorCode = "transaction_not_found"
	ErrCodeCartItemNotFound    ErrorCode = "cart_item_not_found"
	ErrCodeUserNotFound        ErrorCode = "user_not_found"
	ErrCodeAddressNotFound     ErrorCode = "address_not_found"
	ErrCodeReviewNotFound      ErrorCode = "review_not_found"
)

// Coupon rejections
const (
	ErrCodeCouponNotFound          ErrorCode = "coupon_not_found"
	ErrCodeCouponNotStarted        ErrorCode = "coupon_not_started"
	ErrCodeCouponExpired           ErrorCode = "coupon_expired"
	ErrCodeCouponBelowMinimum      ErrorCode = "coupon_below_minimum"
	ErrCodeCouponUsageLimitReached ErrorCode = "coupon_usage_limit_reached"
	ErrCodeCouponAlreadyUsed       ErrorCode = "coupon_already_used"
	ErrCodeCouponRequiresUser      ErrorCode = "coupon_requires_user"
)

// Business rule conflicts
const (
	ErrCodeCartEmpty          ErrorCode = "cart_empty"
	ErrCodeDuplicateCoupon    ErrorCode = "duplicate_coupon"
	ErrCodeDuplicateReview    ErrorCode = "duplicate_review"
	ErrCodeAlreadyInWishlist  ErrorCode = "already_in_wishlist"
	ErrCodeEmailRegistered    ErrorCode = "email_registered"
	ErrCodeInvalidTransition  ErrorCode = "invalid_transition"
	ErrCodeNothingToUpdate    ErrorCode = "nothing_to_update"
	ErrCodeInsufficientStock  ErrorCode = "insufficient_stock"
	ErrCodeIdempotencyPending ErrorCode = "idempotency_pending"
)

// Upstream and internal failures
const (
	ErrCodeStripeError        ErrorCode = "stripe_error"
	ErrCodeServiceUnavailable ErrorCode = "service_unavailable"
	ErrCodeWebhookError       ErrorCode = "webhook_error"
	ErrCodeDatabaseError      ErrorCode = "database_error"
	ErrCodeInternalError      ErrorCode = "internal_error"
)

// IsRetryable reports whether the client may retry the same request unchanged.
func (e ErrorCode) IsRetryable() bool {
	switch e {
	case ErrCodeStripeError, ErrCodeServiceUnavailable, ErrCodeDatabaseError, ErrCodeIdempotencyPending:
		return true
	default:
		return false
	}
}

// HTTPStatus maps an error code to its HTTP status.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	case ErrCodeInvalidField, ErrCodeMissingField, ErrCodeInvalidRequest,
		ErrCodeCouponNotStarted, ErrCodeCouponExpired, ErrCodeCouponBelowMinimum,
		ErrCodeCouponUsageLimitReached, ErrCodeCouponAlreadyUsed, ErrCodeCouponRequiresUser,
		ErrCodeCartEmpty, ErrCodeDuplicateCoupon, ErrCodeDuplicateReview, ErrCodeAlreadyInWishlist,
		ErrCodeEmailRegistered, ErrCodeNothingToUpdate, ErrCodeInsufficientStock, ErrCodeWebhookError:
		return http.StatusBadRequest

	case ErrCodeUnauthorized, ErrCodeInvalidToken, ErrCodeInvalidCredentials:
		return http.StatusUnauthorized

	case ErrCodeForbidden:
		return http.StatusForbidden

	case ErrCodeNotFound, ErrCodeProductNotFound, ErrCodeOrderNotFound, ErrCodeTransactionNotFound,
		ErrCodeCartItemNotFound, ErrCodeUserNotFound, ErrCodeAddressNotFound, ErrCodeReviewNotFound,
		ErrCodeCouponNotFound:
		return http.StatusNotFound

	case ErrCodeInvalidTransition, ErrCodeIdempotencyPending:
		return http.StatusConflict

	case ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}
