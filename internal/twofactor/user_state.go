package twofactor

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/khanghh/kadmin/internal/store"
	"github.com/khanghh/kadmin/params"
	"github.com/spf13/cast"
)

// pendingEnrollment is a TOTP secret waiting for its first valid code.
type pendingEnrollment struct {
	SealedSecret string    `json:"sealedSecret"`
	CreatedAt    time.Time `json:"createdAt"`
}

// userStateStore keeps per identity verification state: failure counters, the last
// accepted TOTP step and pending enrollments.
type userStateStore struct {
	storage     store.Storage
	enrollments store.Store[pendingEnrollment]
}

func failKey(identityID uint) string {
	return "fail:" + strconv.FormatUint(uint64(identityID), 10)
}

func stepKey(identityID uint) string {
	return "totp:" + strconv.FormatUint(uint64(identityID), 10)
}

func usedStepKey(identityID uint, step int64) string {
	return stepKey(identityID) + ":" + strconv.FormatInt(step, 10)
}

func enrollKey(identityID uint) string {
	return strconv.FormatUint(uint64(identityID), 10)
}

func (s *userStateStore) FailCount(ctx context.Context, identityID uint) (int, error) {
	raw, err := s.storage.Get(ctx, failKey(identityID))
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return cast.ToIntE(raw)
}

func (s *userStateStore) IncreaseFailCount(ctx context.Context, identityID uint) (int, error) {
	count, err := s.storage.Incr(ctx, failKey(identityID), params.MFAFailWindow)
	return int(count), err
}

func (s *userStateStore) ResetFailCount(ctx context.Context, identityID uint) error {
	err := s.storage.Delete(ctx, failKey(identityID))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// ConsumeTOTPStep records step as used. It returns false when the step, or a later
// one, was already accepted for the identity.
func (s *userStateStore) ConsumeTOTPStep(ctx context.Context, identityID uint, step int64) (bool, error) {
	ttl := time.Duration(2*params.MFATOTPSkew+2) * params.MFATOTPPeriod * time.Second
	raw, err := s.storage.Get(ctx, stepKey(identityID))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	if err == nil && cast.ToInt64(raw) >= step {
		return false, nil
	}
	uses, err := s.storage.Incr(ctx, usedStepKey(identityID, step), ttl)
	if err != nil {
		return false, err
	}
	if uses > 1 {
		return false, nil
	}
	return true, s.storage.Set(ctx, stepKey(identityID), strconv.FormatInt(step, 10), ttl)
}

func (s *userStateStore) SetEnrollment(ctx context.Context, identityID uint, enrollment pendingEnrollment) error {
	return s.enrollments.Set(ctx, enrollKey(identityID), enrollment, params.MFAPendingEnrollmentTTL)
}

func (s *userStateStore) GetEnrollment(ctx context.Context, identityID uint) (*pendingEnrollment, error) {
	enrollment, err := s.enrollments.Get(ctx, enrollKey(identityID))
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

func (s *userStateStore) DeleteEnrollment(ctx context.Context, identityID uint) error {
	err := s.enrollments.Delete(ctx, enrollKey(identityID))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

func newUserStateStore(storage store.Storage) *userStateStore {
	prefixed := store.StorageWithPrefix(storage, params.MFAKeyPrefix)
	return &userStateStore{
		storage:     prefixed,
		enrollments: store.New[pendingEnrollment](prefixed, "enroll:"),
	}
}
