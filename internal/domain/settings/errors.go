package settings

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoBracketsConfigured   = errors.New("no tax brackets configured")
	ErrNoActiveSetting        = errors.New("no active benefit setting")
	ErrInvalidBrackets        = errors.New("invalid tax bracket table")
	ErrDuplicateActiveSetting = errors.New("more than one active benefit setting for key and date")
	ErrUnknownBenefitKey      = errors.New("unknown benefit setting key")
)

// NoBracketsConfiguredError reports a missing tax table for an effective year.
type NoBracketsConfiguredError struct {
	Year int
}

func (e *NoBracketsConfiguredError) Error() string {
	return fmt.Sprintf("no tax brackets configured for %d", e.Year)
}

func (e *NoBracketsConfiguredError) Is(target error) bool {
	return target == ErrNoBracketsConfigured
}

// NoActiveSettingError reports a benefit key with no setting in effect on AsOf.
type NoActiveSettingError struct {
	Key  BenefitKey
	AsOf time.Time
}

func (e *NoActiveSettingError) Error() string {
	return fmt.Sprintf("no active setting %q as of %s", e.Key, e.AsOf.Format("2006-01-02"))
}

func (e *NoActiveSettingError) Is(target error) bool {
	return target == ErrNoActiveSetting
}
