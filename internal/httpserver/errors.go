package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/lilgiftcorner/server/internal/cart"
	"github.com/lilgiftcorner/server/internal/checkout"
	"github.com/lilgiftcorner/server/internal/circuitbreaker"
	"github.com/lilgiftcorner/server/internal/coupons"
	apierrors "github.com/lilgiftcorner/server/internal/errors"
	"github.com/lilgiftcorner/server/internal/inquiries"
	"github.com/lilgiftcorner/server/internal/logger"
	"github.com/lilgiftcorner/server/internal/orders"
	"github.com/lilgiftcorner/server/internal/products"
	"github.com/lilgiftcorner/server/internal/reviews"
	"github.com/lilgiftcorner/server/internal/users"
	"github.com/lilgiftcorner/server/internal/wishlist"
)

type errorMapping struct {
	target  error
	code    apierrors.ErrorCode
	message string // empty uses err.Error()
}

// Order matters: the first matching target wins.
var errorMappings = []errorMapping{
	{products.ErrProductNotFound, apierrors.ErrCodeProductNotFound, "Product not found"},
	{products.ErrQueryTooShort, apierrors.ErrCodeInvalidField, ""},
	{products.ErrInvalidProduct, apierrors.ErrCodeInvalidField, ""},
	{products.ErrNothingToUpdate, apierrors.ErrCodeNothingToUpdate, "No fields to update"},

	{cart.ErrItemNotFound, apierrors.ErrCodeCartItemNotFound, "Cart item not found"},
	{cart.ErrInvalidQuantity, apierrors.ErrCodeInvalidField, ""},
	{cart.ErrMissingSession, apierrors.ErrCodeMissingField, ""},

	{orders.ErrOrderNotFound, apierrors.ErrCodeOrderNotFound, "Order not found"},
	{orders.ErrInvalidOrder, apierrors.ErrCodeInvalidField, ""},
	{orders.ErrInvalidStatus, apierrors.ErrCodeInvalidField, "Invalid status"},
	{orders.ErrInvalidTransition, apierrors.ErrCodeInvalidTransition, ""},
	{orders.ErrStatusChanged, apierrors.ErrCodeInvalidTransition, "Order status changed, retry"},

	{coupons.ErrCouponNotFound, apierrors.ErrCodeCouponNotFound, "Invalid coupon code"},
	{coupons.ErrCouponNotStarted, apierrors.ErrCodeCouponNotStarted, "Coupon not yet valid"},
	{coupons.ErrCouponExpired, apierrors.ErrCodeCouponExpired, "Coupon has expired"},
	{coupons.ErrCouponUsageLimitReached, apierrors.ErrCodeCouponUsageLimitReached, "Coupon usage limit reached"},
	{coupons.ErrCouponAlreadyUsed, apierrors.ErrCodeCouponAlreadyUsed, "You've already used this coupon"},
	{coupons.ErrCouponRequiresUser, apierrors.ErrCodeCouponRequiresUser, "Sign in to use coupons"},
	{coupons.ErrDuplicateCode, apierrors.ErrCodeDuplicateCoupon, "Coupon code already exists"},
	{coupons.ErrInvalidCoupon, apierrors.ErrCodeInvalidField, ""},
	{coupons.ErrNothingToUpdate, apierrors.ErrCodeNothingToUpdate, "No fields to update"},

	{checkout.ErrMissingFields, apierrors.ErrCodeMissingField, ""},
	{checkout.ErrCartEmpty, apierrors.ErrCodeCartEmpty, "Cart is empty"},
	{checkout.ErrNothingToCharge, apierrors.ErrCodeInvalidField, ""},
	{checkout.ErrTransactionNotFound, apierrors.ErrCodeTransactionNotFound, "Transaction not found"},
	{checkout.ErrInvalidTransition, apierrors.ErrCodeInvalidTransition, ""},
	{circuitbreaker.ErrOpen, apierrors.ErrCodeServiceUnavailable, "Payment provider temporarily unavailable"},
	{checkout.ErrProvider, apierrors.ErrCodeStripeError, "Payment provider error"},

	{users.ErrUserNotFound, apierrors.ErrCodeUserNotFound, "User not found"},
	{users.ErrEmailRegistered, apierrors.ErrCodeEmailRegistered, "Email already registered"},
	{users.ErrAddressNotFound, apierrors.ErrCodeAddressNotFound, "Address not found"},
	{users.ErrInvalidCredentials, apierrors.ErrCodeInvalidCredentials, "Invalid email or password"},
	{users.ErrInvalidInput, apierrors.ErrCodeInvalidField, ""},
	{users.ErrNothingToUpdate, apierrors.ErrCodeNothingToUpdate, "No fields to update"},

	{reviews.ErrReviewNotFound, apierrors.ErrCodeReviewNotFound, "Review not found"},
	{reviews.ErrAlreadyReviewed, apierrors.ErrCodeDuplicateReview, "You have already reviewed this product"},
	{reviews.ErrForbidden, apierrors.ErrCodeForbidden, "Not authorized to delete this review"},
	{reviews.ErrInvalidReview, apierrors.ErrCodeInvalidField, ""},

	{wishlist.ErrAlreadyListed, apierrors.ErrCodeAlreadyInWishlist, "Product already in wishlist"},
	{wishlist.ErrItemNotFound, apierrors.ErrCodeNotFound, "Item not found in wishlist"},

	{inquiries.ErrInquiryNotFound, apierrors.ErrCodeNotFound, "Not found"},
	{inquiries.ErrInvalidInquiry, apierrors.ErrCodeInvalidField, ""},
}

// classify resolves a service error to its API code and client message.
func classify(err error) (apierrors.ErrorCode, string, bool) {
	var minErr *coupons.MinimumOrderError
	if errors.As(err, &minErr) {
		return apierrors.ErrCodeCouponBelowMinimum, minErr.Error(), true
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			msg := m.message
			if msg == "" {
				msg = err.Error()
			}
			return m.code, msg, true
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apierrors.ErrCodeServiceUnavailable, "Request timed out", true
	}
	return apierrors.ErrCodeInternalError, "Internal server error", false
}

// writeServiceError maps err onto the error envelope. Unknown errors are logged
// and reported as a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, event string, err error) {
	code, msg, known := classify(err)
	log := logger.FromContext(r.Context())
	if !known || code.HTTPStatus() >= http.StatusInternalServerError {
		log.Error().Err(err).Str("error_code", string(code)).Msg(event)
	} else {
		log.Debug().Err(err).Str("error_code", string(code)).Msg(event)
	}
	apierrors.WriteSimpleError(w, code, msg)
}

func writeBadJSON(w http.ResponseWriter) {
	apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidRequest, "Invalid JSON body")
}
