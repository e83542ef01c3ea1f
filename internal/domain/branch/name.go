package branch

import (
	"errors"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	domainagg "github.com/yungbote/branchgraph/internal/domain/aggregates"
)

const (
	MinNameLength = 3
	MaxNameLength = 32
)

var nameChars = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]*$`)

var (
	validateOnce sync.Once
	nameValidate *validator.Validate
)

func validate() *validator.Validate {
	validateOnce.Do(func() {
		nameValidate = validator.New()
		_ = nameValidate.RegisterValidation("branchname", validateBranchName)
	})
	return nameValidate
}

// validateBranchName rejects names a git ref cannot carry.
func validateBranchName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if !nameChars.MatchString(name) {
		return false
	}
	switch {
	case strings.Contains(name, ".."),
		strings.Contains(name, "//"),
		strings.Contains(name, "@{"),
		strings.HasSuffix(name, "/"),
		strings.HasSuffix(name, "."),
		strings.HasSuffix(name, ".lock"):
		return false
	}
	return true
}

type nameInput struct {
	Name string `validate:"required,min=3,max=32,branchname"`
}

// ValidateName checks a user supplied branch name.
func ValidateName(name string) error {
	if name == GlobalBranchName {
		return domainagg.Validation("branch.name", "%q is reserved", name)
	}
	err := validate().Struct(nameInput{Name: name})
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		switch verrs[0].Tag() {
		case "required":
			return domainagg.Validation("branch.name", "name is required")
		case "min", "max":
			return domainagg.Validation("branch.name", "name %q must be %d to %d characters", name, MinNameLength, MaxNameLength)
		default:
			return domainagg.Validation("branch.name", "name %q contains characters or sequences a git ref cannot hold", name)
		}
	}
	return domainagg.Wrap(domainagg.CodeValidation, "branch.name", err)
}
