package crud

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"forkChan/domain"
	"forkChan/errs"
)

const (
	// RememberTokenBytes is the size of a freshly generated remember token.
	RememberTokenBytes = 32
	// MaxNameLength is the maximum number of characters of a display name.
	MaxNameLength = 50
	// MaxBioLength is the maximum number of characters of a profile bio.
	MaxBioLength = 160
)

// UserService manages Users. It also contains the part of the authentication system
// that handles store interactions and token creation / hashing. It's basically
// the "backend" of the auth system, with http/auth.go dealing with requests, middleware
// and cookies being the "frontend". It implements the domain.UserService interface.
type UserService struct {
	userValidator
}

// userValidator runs validations on incoming User data.
// On success, it passes the data on to userStore.
// Otherwise, it returns the error of the validation that has failed.
type userValidator struct {
	hmacKey    []byte
	pepper     string
	emailRegex *regexp.Regexp
	userStore
}

// userStore runs CRUD operations on the remote store using incoming User data.
// It assumes that data has been validated. On success, it returns nil.
// Otherwise, it returns the error of the operation that has failed.
type userStore struct {
	store domain.RemoteStore
}

// NewUserService returns an instance of UserService.
func NewUserService(store domain.RemoteStore, hmacKey, pepper string) *UserService {
	return &UserService{
		userValidator{
			hmacKey:    []byte(hmacKey),
			pepper:     pepper,
			emailRegex: regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,16}$`),
			userStore: userStore{
				store: store,
			},
		},
	}
}

// Ensure the UserService struct properly implements the domain.UserService interface.
// If it does not, then this expression becomes invalid and won't compile.
var _ domain.UserService = &UserService{}

// Authenticate checks a submitted email address and password for existence and correctness.
func (uv *userValidator) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	user := domain.User{Email: email, Password: password}
	if err := runUserValFns(&user, uv.emailNormalize, uv.emailRequired, uv.passwordRequired); err != nil {
		return nil, err
	}

	// Look for a user document containing the submitted email address.
	found, err := uv.userStore.ByEmail(ctx, user.Email)
	if err != nil {
		if errs.Is(err, errs.ENOTFOUND) {
			return nil, errs.Errorf(errs.EINVALID, "The email address does not exist in our database.")
		}
		return nil, err
	}

	// Append the pepper to the submitted password and compare it to the stored hash.
	err = bcrypt.CompareHashAndPassword([]byte(found.PasswordHash), []byte(password+uv.pepper))
	if err != nil {
		if err == bcrypt.ErrMismatchedHashAndPassword {
			return nil, errs.Errorf(errs.EINVALID, "The password is incorrect.")
		}
		return nil, err
	}
	return found, nil
}

// MakeRememberToken is helper to generate remember tokens of a predetermined byte size.
func (uv *userValidator) MakeRememberToken() (string, error) {
	return bytesToString(RememberTokenBytes)
}

// ByRemember hashes a user's remember token and looks the hash up in the store.
func (uv *userValidator) ByRemember(ctx context.Context, token string) (*domain.User, error) {
	user := domain.User{
		Remember: token,
	}
	if err := runUserValFns(&user, uv.rememberMinBytes, uv.rememberHmac, uv.rememberHashRequired); err != nil {
		return nil, err
	}
	return uv.userStore.ByRemember(ctx, user.RememberHash)
}

// Create runs validations needed for creating new User documents.
// It will create a remember token if none is provided.
func (uv *userValidator) Create(ctx context.Context, user *domain.User) error {
	err := runUserValFns(user,
		uv.nameNormalize,
		uv.nameLength,
		uv.bioLength,
		uv.passwordRequired,
		uv.passwordMinLength,
		uv.passwordBcrypt,
		uv.passwordHashRequired,
		uv.rememberSetIfUnset,
		uv.rememberMinBytes,
		uv.rememberHmac,
		uv.rememberHashRequired,
		uv.emailNormalize,
		uv.emailRequired,
		uv.emailFormat)
	if err != nil {
		return err
	}
	if err := uv.emailIsAvail(ctx, user); err != nil {
		return err
	}
	return uv.userStore.Create(ctx, user)
}

// SignIn gives the user a fresh remember token and stores its hash.
func (uv *userValidator) SignIn(ctx context.Context, user *domain.User) error {
	user.Remember = ""
	err := runUserValFns(user,
		uv.rememberSetIfUnset,
		uv.rememberMinBytes,
		uv.rememberHmac,
		uv.rememberHashRequired)
	if err != nil {
		return err
	}
	return uv.userStore.Update(ctx, user.ID, domain.Fields{domain.FieldRememberHash: user.RememberHash})
}

// SignOut replaces the user's remember token with one nobody knows, which
// invalidates the cookie of every device the user is signed in on.
func (uv *userValidator) SignOut(ctx context.Context, user *domain.User) error {
	if err := uv.SignIn(ctx, user); err != nil {
		return err
	}
	user.Remember = ""
	return nil
}

// UpdateProfile runs validations on the changed profile fields and stores them.
func (uv *userValidator) UpdateProfile(ctx context.Context, id string, upd domain.ProfileUpdate) (*domain.User, error) {
	if id == "" {
		return nil, errs.UserIdValid
	}
	user, err := uv.userStore.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		user.Name = *upd.Name
	}
	if upd.Avatar != nil {
		user.Avatar = strings.TrimSpace(*upd.Avatar)
	}
	if upd.Bio != nil {
		user.Bio = *upd.Bio
	}
	if err := runUserValFns(user, uv.nameNormalize, uv.nameLength, uv.bioLength); err != nil {
		return nil, err
	}
	fields := domain.Fields{}
	if upd.Name != nil {
		fields["name"] = user.Name
	}
	if upd.Avatar != nil {
		fields["avatar"] = user.Avatar
	}
	if upd.Bio != nil {
		fields["bio"] = user.Bio
	}
	if len(fields) == 0 {
		return user, nil
	}
	if err := uv.userStore.Update(ctx, id, fields); err != nil {
		return nil, err
	}
	return user, nil
}

// runUserValFns runs any number of functions of type userValFn on the passed in User object.
// If none of them returns an error, it returns nil. Otherwise, it returns the respective error.
func runUserValFns(user *domain.User, fns ...userValFn) error {
	for _, fn := range fns {
		if err := fn(user); err != nil {
			return err
		}
	}
	return nil
}

// A userValFn is any function that takes in a pointer to a domain.User object and returns an error.
type userValFn func(user *domain.User) error

// bioLength makes sure that the bio does not exceed the maximum length.
func (uv *userValidator) bioLength(user *domain.User) error {
	user.Bio = strings.TrimSpace(user.Bio)
	if utf8.RuneCountInString(user.Bio) > MaxBioLength {
		return errs.Errorf(errs.EINVALID, "The bio max length is %d characters.", MaxBioLength)
	}
	return nil
}

// emailFormat makes sure that a provided email address matches a predefined regex pattern.
func (uv *userValidator) emailFormat(user *domain.User) error {
	if user.Email == "" {
		return nil
	}
	if !uv.emailRegex.MatchString(user.Email) {
		return errs.Errorf(errs.EINVALID, "The email address is invalid.")
	}
	return nil
}

// emailIsAvail makes sure that a provided email address is not yet taken.
func (uv *userValidator) emailIsAvail(ctx context.Context, user *domain.User) error {
	existing, err := uv.userStore.ByEmail(ctx, user.Email)
	if errs.Is(err, errs.ENOTFOUND) {
		// Address is not taken.
		return nil
	}
	if err != nil {
		return err
	}
	if user.ID != existing.ID {
		// Email found, and the passed in user is not the owner of that email.
		return errs.Errorf(errs.EINVALID, "This email address is already taken.")
	}
	return nil
}

// emailNormalize converts the email to all lowercase and trims its whitespaces.
func (uv *userValidator) emailNormalize(user *domain.User) error {
	user.Email = strings.ToLower(user.Email)
	user.Email = strings.TrimSpace(user.Email)
	return nil
}

// emailRequired makes sure that the email is not the empty string.
func (uv *userValidator) emailRequired(user *domain.User) error {
	if user.Email == "" {
		return errs.Errorf(errs.EINVALID, "An email address is required.")
	}
	return nil
}

func (uv *userValidator) nameNormalize(user *domain.User) error {
	user.Name = strings.TrimSpace(user.Name)
	return nil
}

// nameLength makes sure that the display name does not exceed the maximum length.
// An empty name is allowed: such users show up as "Anonymous".
func (uv *userValidator) nameLength(user *domain.User) error {
	if utf8.RuneCountInString(user.Name) > MaxNameLength {
		return errs.Errorf(errs.EINVALID, "The name max length is %d characters.", MaxNameLength)
	}
	return nil
}

// passwordBcrypt hashes a user's password with a predefined pepper.
// It bcrypts it, if the Password field is not the empty string.
// It then clears the password on the user object in memory for security reasons.
func (uv *userValidator) passwordBcrypt(user *domain.User) error {
	if user.Password == "" {
		return nil
	}
	pwBytes := []byte(user.Password + uv.pepper)
	hashedBytes, err := bcrypt.GenerateFromPassword(pwBytes, bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.PasswordHash = string(hashedBytes)
	user.Password = ""
	return nil
}

// passwordHashRequired makes sure that the user's password hash is not the empty string.
func (uv *userValidator) passwordHashRequired(user *domain.User) error {
	if user.PasswordHash == "" {
		return errs.Errorf(errs.EINVALID, "A password is required.")
	}
	return nil
}

// passwordMinLength makes sure that the user's password is at least 8 characters long.
func (uv *userValidator) passwordMinLength(user *domain.User) error {
	if user.Password == "" {
		return nil
	}
	if utf8.RuneCountInString(user.Password) < 8 {
		return errs.Errorf(errs.EINVALID, "The password must have at least 8 characters.")
	}
	return nil
}

// passwordRequired makes sure that the user's password is not the empty string.
func (uv *userValidator) passwordRequired(user *domain.User) error {
	if user.Password == "" {
		return errs.Errorf(errs.EINVALID, "A password is required.")
	}
	return nil
}

// rememberHashRequired makes sure the user's remember token hash is not the empty string.
func (uv *userValidator) rememberHashRequired(user *domain.User) error {
	if user.RememberHash == "" {
		return errs.RememberHashEmpty
	}
	return nil
}

// rememberHmac creates the user's remember token hash, if a remember token has been provided.
func (uv *userValidator) rememberHmac(user *domain.User) error {
	if user.Remember == "" {
		return nil
	}
	user.RememberHash = hashToken(uv.hmacKey, user.Remember)
	return nil
}

// rememberMinBytes makes sure that the user's remember token is not too short.
func (uv *userValidator) rememberMinBytes(user *domain.User) error {
	if user.Remember == "" {
		return nil
	}
	n, err := nBytes(user.Remember)
	if err != nil {
		return errs.RememberTooShort
	}
	if n < RememberTokenBytes {
		return errs.RememberTooShort
	}
	return nil
}

// rememberSetIfUnset creates the user's remember token if none is provided.
func (uv *userValidator) rememberSetIfUnset(user *domain.User) error {
	if user.Remember != "" {
		return nil
	}
	token, err := uv.MakeRememberToken()
	if err != nil {
		return err
	}
	user.Remember = token
	return nil
}

// ByID retrieves a User document by ID.
func (us *userStore) ByID(ctx context.Context, id string) (*domain.User, error) {
	doc, err := us.store.Get(ctx, domain.CollectionUsers, id)
	if err != nil {
		if errs.Is(err, errs.ENOTFOUND) {
			return nil, errs.Errorf(errs.ENOTFOUND, "The user does not exist.")
		}
		return nil, err
	}
	var user domain.User
	if err := domain.Decode(*doc, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ByEmail retrieves a User document by Email.
func (us *userStore) ByEmail(ctx context.Context, email string) (*domain.User, error) {
	return us.first(ctx, domain.FieldEmail, email)
}

// ByRemember retrieves a User document by its hashed remember token.
// The checkUser middleware calls this on every request, trying to identify a user
// by matching a request cookie's remember token to a hashed remember token in the store.
func (us *userStore) ByRemember(ctx context.Context, rememberHash string) (*domain.User, error) {
	return us.first(ctx, domain.FieldRememberHash, rememberHash)
}

// Create stores the data from the User object in a new document.
func (us *userStore) Create(ctx context.Context, user *domain.User) error {
	fields, err := domain.FieldsOf(user)
	if err != nil {
		return err
	}
	id, err := us.store.Create(ctx, domain.CollectionUsers, fields)
	if err != nil {
		return err
	}
	created, err := us.ByID(ctx, id)
	if err != nil {
		return err
	}
	created.Remember = user.Remember
	*user = *created
	return nil
}

// Update saves changed fields of an existing user document.
func (us *userStore) Update(ctx context.Context, id string, fields domain.Fields) error {
	err := us.store.Update(ctx, domain.CollectionUsers, id, fields)
	if errs.Is(err, errs.ENOTFOUND) {
		return errs.Errorf(errs.ENOTFOUND, "The user does not exist.")
	}
	return err
}

// first is a helper for getting the first user document whose field matches value.
func (us *userStore) first(ctx context.Context, field, value string) (*domain.User, error) {
	docs, err := us.store.Query(ctx, domain.Query{
		Collection: domain.CollectionUsers,
		Filters:    []domain.Filter{domain.Where(field, value)},
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, errs.Errorf(errs.ENOTFOUND, "The user does not exist.")
	}
	var user domain.User
	if err := domain.Decode(docs[0], &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// hashToken hashes an input string using HMAC with the secret key
// provided when the UserService was created. A new hash.Hash is used
// per call, so concurrent requests can't corrupt each other's state.
func hashToken(key []byte, input string) string {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(input))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

// bytes generates n random bytes or returns an error. It uses the
// crypto/rand package, so it can be used for things like remember tokens.
func bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// nBytes returns the number of bytes used in a base64 URL encoded string.
func nBytes(base64String string) (int, error) {
	b, err := base64.URLEncoding.DecodeString(base64String)
	if err != nil {
		return -1, err
	}
	return len(b), nil
}

// bytesToString generates a byte slice of size nBytes and then returns a
// string that is the base64 URL encoded version of that byte slice.
func bytesToString(nBytes int) (string, error) {
	b, err := bytes(nBytes)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
