package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"

	apperrors "github.com/target/transcode-dispatch/internal/errors"
)

// Classify derives a low-cardinality label for an error, for tagging metrics
// and log lines. Application errors map to their code, context cancellations
// to fixed names, and anything else to the type of the innermost error in
// the chain.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var appErr *apperrors.AppError
	if goerrors.As(err, &appErr) && appErr.Code != "" {
		return string(appErr.Code)
	}

	switch {
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	case goerrors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	}

	return typeToken(innermost(err))
}

func innermost(err error) error {
	for {
		next := goerrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// typeToken flattens a concrete type name like *fs.PathError to fs_patherror.
func typeToken(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	token := strings.NewReplacer("*", "", ".", "_").Replace(strings.ToLower(t.String()))
	if token == "" {
		return "unknown"
	}
	return token
}
