package license

import "errors"

// Error taxonomy for engine operations. All are terminal for the request;
// retry policy is the caller's concern.
var (
	// ErrDuplicateUsername rejects a credential whose (app, username) pair
	// already exists.
	ErrDuplicateUsername = errors.New("license: username already exists for application")
	// ErrSellerExists rejects registration with a taken seller username.
	ErrSellerExists = errors.New("license: seller username already taken")
	// ErrSellerNotFound indicates an unknown seller username.
	ErrSellerNotFound = errors.New("license: seller not found")
	// ErrInvalidPassword indicates a failed seller password check.
	ErrInvalidPassword = errors.New("license: invalid password")
	// ErrInvalidApplication indicates an unknown (owner, app secret) pair.
	ErrInvalidApplication = errors.New("license: invalid application details")
	// ErrInvalidCredentials indicates an unknown end user or wrong password.
	ErrInvalidCredentials = errors.New("license: invalid credentials")
	// ErrSubscriptionExpired indicates the credential expiry has passed.
	ErrSubscriptionExpired = errors.New("license: subscription has expired")
	// ErrHWIDMismatch indicates the supplied HWID differs from the bound one.
	ErrHWIDMismatch = errors.New("license: hwid mismatch")
	// ErrNotFound is the generic lookup miss for management operations.
	ErrNotFound = errors.New("license: not found")
)
