package user

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/elimu/core"
)

var (
	roleTag  = "role"
	roleText = "invalid role"

	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to user attributes"

	pwdNoCommonTag  = "pwdnocommon"
	pwdNoCommonText = "password is too common"
	commonPasswords = []string{
		"111111", "123123", "1234567", "12345678", "123456789", "abc123",
		"iloveyou", "letmein", "monkey", "password", "password1", "qwerty",
		"qwerty123", "welcome", "dragon",
	}
)

func init() {
	sort.Strings(commonPasswords)
}

// RegisterValidators registers the user-specific validation tags on the
// given validator instance.
func RegisterValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(roleTag, roleValidation)
	core.RegisterCustomTranslation(validate, translator, roleTag, roleText)

	_ = validate.RegisterValidation(pwdMinLenTag, pwdMinLenValidation)
	core.RegisterCustomTranslation(validate, translator, pwdMinLenTag, pwdMinLenText)

	_ = validate.RegisterValidation(pwdNoSpaceTag, pwdNoSpaceValidation)
	core.RegisterCustomTranslation(validate, translator, pwdNoSpaceTag, pwdNoSpaceText)

	_ = validate.RegisterValidation(pwdNotAllNumTag, pwdNotAllNumValidation)
	core.RegisterCustomTranslation(validate, translator, pwdNotAllNumTag, pwdNotAllNumText)

	_ = validate.RegisterValidation(pwdNoCommonTag, pwdNoCommonValidation)
	core.RegisterCustomTranslation(validate, translator, pwdNoCommonTag, pwdNoCommonText)

	validate.RegisterStructValidation(newUserStructValidation, NewUser{})
	core.RegisterCustomTranslation(validate, translator, pwdAttrSimTag, pwdAttrSimText)
}

// Custom Validators

// roleValidation checks that the provided role is in AllRoles.
func roleValidation(fl validator.FieldLevel) bool {
	return Role(fl.Field().String()).Valid()
}

func pwdMinLenValidation(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) >= pwdMinLen
}

func pwdNoSpaceValidation(fl validator.FieldLevel) bool {
	return strings.IndexFunc(fl.Field().String(), unicode.IsSpace) == -1
}

func pwdNotAllNumValidation(fl validator.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		if !unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func pwdNoCommonValidation(fl validator.FieldLevel) bool {
	pwd := strings.ToLower(fl.Field().String())
	if i := sort.SearchStrings(commonPasswords, pwd); i < len(commonPasswords) {
		return commonPasswords[i] != pwd
	}
	return true
}

// newUserStructValidation rejects passwords too similar to the user's own
// name or email.
func newUserStructValidation(sl validator.StructLevel) {
	nu, ok := sl.Current().Interface().(NewUser)
	if !ok {
		return
	}
	if pwdTooSimilar(nu.Password, nu.Name, nu.Email) {
		sl.ReportError(nu.Password, "password", "Password", pwdAttrSimTag, "")
	}
}

func pwdTooSimilar(pwd string, attrs ...string) bool {
	if pwd == "" {
		return false
	}
	pwd = strings.ToLower(pwd)
	for _, attr := range attrs {
		attr = strings.ToLower(strings.TrimSpace(attr))
		if attr == "" {
			continue
		}
		matcher := difflib.NewMatcher(strings.Split(pwd, ""), strings.Split(attr, ""))
		if matcher.QuickRatio() >= pwdMaxSim {
			return true
		}
	}
	return false
}
